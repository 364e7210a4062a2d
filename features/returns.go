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

package features

import (
	"math"

	"github.com/penny-vault/pv-cluster/data"
	"github.com/penny-vault/pv-cluster/dataframe"
)

// AddReturns appends one annualized return column per lag to every ticker.
// The lag counts rows of the filtered monthly frame, not calendar months.
// Each horizon is clipped to its own [cutoff, 1-cutoff] quantiles over the
// ticker's full series before compounding to a monthly rate with
// (1+r)^(1/lag) - 1. Rows with any missing value are dropped afterwards.
func AddReturns(monthly dataframe.Map, s Settings) dataframe.Map {
	res := make(dataframe.Map, len(monthly))
	for ticker, df := range monthly {
		adj := df.Column(data.MetricAdjustedClose)
		if adj == nil {
			continue
		}

		out := df.Copy()
		for _, lag := range s.ReturnLags {
			out.Set(ReturnColumn(lag), AnnualizedReturn(adj, lag, s.OutlierCutoff))
		}

		out.Drop(math.NaN())
		if out.Len() > 0 {
			res[ticker] = out
		}
	}
	return res
}

// AnnualizedReturn is the clipped, compounded lag-period return of prices
func AnnualizedReturn(prices []float64, lag int, cutoff float64) []float64 {
	pct := dataframe.PctChange(prices, lag)
	lo := dataframe.Quantile(pct, cutoff)
	hi := dataframe.Quantile(pct, 1-cutoff)
	clipped := dataframe.Clip(pct, lo, hi)

	exp := 1.0 / float64(lag)
	for idx, v := range clipped {
		if !math.IsNaN(v) {
			clipped[idx] = math.Pow(1+v, exp) - 1
		}
	}
	return clipped
}
