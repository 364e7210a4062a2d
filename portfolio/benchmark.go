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
	"math"
	"time"

	"github.com/penny-vault/pv-cluster/dataframe"
)

// BenchmarkColumn labels the buy and hold column for a benchmark ticker
func BenchmarkColumn(ticker string) string {
	if ticker == "DIA" {
		return "DOW Jones Buy&Hold"
	}
	return ticker + " Buy&Hold"
}

// CompareBenchmark inner joins the strategy's daily returns with the
// benchmark's daily log returns on date. benchmark holds adjusted close
// prices in its first column; the first price day has no return and is
// dropped.
func CompareBenchmark(strategy, benchmark *dataframe.DataFrame, column string) *dataframe.DataFrame {
	res := dataframe.New([]time.Time{}, StrategyColumn, column)
	for idx := range res.Vals {
		res.Vals[idx] = []float64{}
	}
	if benchmark.ColCount() == 0 || strategy.ColCount() == 0 {
		return res
	}

	rets := benchmark.Log().Diff()
	strat := strategy.Vals[0]
	bench := rets.Vals[0]
	for row, dt := range strategy.Dates {
		benchRow := rets.RowIndex(dt)
		if benchRow == -1 || math.IsNaN(bench[benchRow]) || math.IsNaN(strat[row]) {
			continue
		}
		res.InsertRow(dt, strat[row], bench[benchRow])
	}
	return res
}
