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
	"gonum.org/v1/gonum/stat"
)

// DrawDown is a fall from a previous peak
type DrawDown struct {
	Begin       time.Time
	End         time.Time
	Recovery    time.Time
	LossPercent float64
}

// Summary holds headline statistics for one return column
type Summary struct {
	Name        string
	Days        int
	TotalReturn float64
	CAGR        float64
	Volatility  float64
	Sharpe      float64
	MaxDrawDown *DrawDown
}

// CumulativeReturns compounds each column as exp(cumsum(log1p(r))) - 1
func CumulativeReturns(table *dataframe.DataFrame) *dataframe.DataFrame {
	res := table.Copy()
	for colIdx, col := range table.Vals {
		acc := 0.0
		for rowIdx, r := range col {
			if !math.IsNaN(r) {
				acc += math.Log1p(r)
			}
			res.Vals[colIdx][rowIdx] = math.Exp(acc) - 1
		}
	}
	return res
}

func toYears(d time.Duration) float64 {
	return d.Hours() / 24 / 365.25
}

// Summarize computes per column statistics of daily returns. Volatility is
// annualized by sqrt(tradingDays); the Sharpe ratio is the annualized mean
// excess return over annualized volatility.
func Summarize(table *dataframe.DataFrame, riskFree float64, tradingDays int) []*Summary {
	cum := CumulativeReturns(table)
	res := make([]*Summary, 0, table.ColCount())
	for colIdx, name := range table.ColNames {
		rets := dataframe.DropNaN(table.Vals[colIdx])
		summary := &Summary{
			Name:        name,
			Days:        len(rets),
			TotalReturn: math.NaN(),
			CAGR:        math.NaN(),
			Volatility:  math.NaN(),
			Sharpe:      math.NaN(),
		}
		res = append(res, summary)
		if len(rets) == 0 {
			continue
		}

		summary.TotalReturn = cum.Vals[colIdx][cum.Len()-1]
		if years := toYears(table.End().Sub(table.Start())); years > 0 {
			summary.CAGR = math.Pow(1+summary.TotalReturn, 1/years) - 1
		}

		if len(rets) > 1 {
			mean, std := stat.MeanStdDev(rets, nil)
			summary.Volatility = std * math.Sqrt(float64(tradingDays))
			if summary.Volatility > 0 {
				summary.Sharpe = (mean*float64(tradingDays) - riskFree) / summary.Volatility
			}
		}

		summary.MaxDrawDown = maxDrawDown(cum.Dates, cum.Vals[colIdx])
	}
	return res
}

// maxDrawDown finds the deepest fall of the growth curve 1+cum from a prior
// peak; nil when the curve never falls
func maxDrawDown(dates []time.Time, cum []float64) *DrawDown {
	var worst, current *DrawDown
	peak := 1.0
	prev := time.Time{}
	if len(dates) > 0 {
		prev = dates[0]
	}

	for idx, c := range cum {
		value := 1 + c
		if value >= peak {
			peak = value
			if current != nil {
				current.Recovery = dates[idx]
				current = nil
			}
			prev = dates[idx]
			continue
		}

		loss := value/peak - 1
		if current == nil {
			current = &DrawDown{Begin: prev, End: dates[idx], LossPercent: loss}
		}
		if loss < current.LossPercent {
			current.End = dates[idx]
			current.LossPercent = loss
		}
		if worst == nil || current.LossPercent < worst.LossPercent {
			worst = current
		}
	}
	return worst
}
