// Copyright 2021-2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package portfolio

import (
	"sort"
	"time"

	"github.com/penny-vault/pv-cluster/cluster"
	"github.com/penny-vault/pv-cluster/common"
)

// Universe maps each rebalance start date to the sorted tickers held from
// that date through the end of its month
type Universe map[time.Time][]string

// ShiftForward moves a month-end label to the first day of the next month,
// the date a portfolio built from that month's signals starts trading
func ShiftForward(monthEnd time.Time) time.Time {
	return monthEnd.AddDate(0, 0, 1)
}

// BuildUniverse selects the tickers labeled target in each month, dated at
// the start of the following month. Rebalance dates on or after cutoff are
// left out because their holding month is not complete.
func BuildUniverse(assignments cluster.Assignments, target int, cutoff time.Time) Universe {
	u := make(Universe)
	for dt, labels := range assignments {
		start := ShiftForward(dt)
		if !start.Before(cutoff) {
			continue
		}

		tickers := make([]string, 0, len(labels))
		for ticker, label := range labels {
			if label == target {
				tickers = append(tickers, ticker)
			}
		}
		if len(tickers) == 0 {
			continue
		}
		sort.Strings(tickers)
		u[start] = tickers
	}
	return u
}

// Cutoff is the first day of end's month; rebalances from then on are
// excluded
func Cutoff(end time.Time) time.Time {
	return common.MonthBegin(end)
}

// Dates returns the rebalance dates in order
func (u Universe) Dates() []time.Time {
	dates := make([]time.Time, 0, len(u))
	for dt := range u {
		dates = append(dates, dt)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Tickers returns every ticker held in any period, sorted
func (u Universe) Tickers() []string {
	all := make([]string, 0)
	for _, tickers := range u {
		all = append(all, tickers...)
	}
	return common.UniqueSorted(all)
}

// PriceWindow is the span of daily prices the rebalancing loop needs: from
// lookbackMonths before the first rebalance through the end of the last
// rebalance month, capped at end
func (u Universe) PriceWindow(lookbackMonths int, end time.Time) (time.Time, time.Time) {
	dates := u.Dates()
	if len(dates) == 0 {
		return time.Time{}, time.Time{}
	}
	begin := common.AddMonths(dates[0], -lookbackMonths)
	last := common.MonthEnd(dates[len(dates)-1])
	return begin, common.MinTime(last, end)
}
