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

package dataframe

import (
	"math"
	"time"

	"github.com/penny-vault/pv-cluster/common"
)

// ResampleMonthly collapses the rows of each calendar month into one row
// dated at the month's last calendar day. Columns listed in aggs use that
// aggregation, all others use def. Months without any rows are not emitted.
func (df *DataFrame) ResampleMonthly(aggs map[string]Aggregation, def Aggregation) *DataFrame {
	res := &DataFrame{
		Dates:    []time.Time{},
		ColNames: df.ColNames,
		Vals:     make([][]float64, len(df.ColNames)),
	}

	colAgg := make([]Aggregation, len(df.ColNames))
	for idx, name := range df.ColNames {
		colAgg[idx] = def
		if agg, ok := aggs[name]; ok {
			colAgg[idx] = agg
		}
	}

	groupStart := 0
	for rowIdx := 1; rowIdx <= len(df.Dates); rowIdx++ {
		if rowIdx < len(df.Dates) && sameMonth(df.Dates[rowIdx], df.Dates[groupStart]) {
			continue
		}

		res.Dates = append(res.Dates, common.MonthEnd(df.Dates[groupStart]))
		for colIdx, col := range df.Vals {
			res.Vals[colIdx] = append(res.Vals[colIdx], aggregate(col[groupStart:rowIdx], colAgg[colIdx]))
		}
		groupStart = rowIdx
	}

	return res
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func aggregate(vals []float64, agg Aggregation) float64 {
	switch agg {
	case Mean:
		return NanMean(vals)
	default:
		for idx := len(vals) - 1; idx >= 0; idx-- {
			if !math.IsNaN(vals[idx]) {
				return vals[idx]
			}
		}
		return math.NaN()
	}
}
