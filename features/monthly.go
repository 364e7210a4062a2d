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
	"sort"
	"time"

	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/indicators"
	"github.com/rs/zerolog/log"
)

// Aggregate collapses the daily enriched frames to month end and applies the
// liquidity filter. Dollar volume is averaged within the month, every other
// column takes the month's last observation, and months with any missing
// value are dropped. The rolling dollar volume mean runs over the calendar of
// months seen across all tickers so a ticker's missing months count against
// its window. Within each month tickers are ranked by that mean, largest
// first, and only those ranked strictly below floor(indexSize *
// LiquidityFraction) are kept. The dollar volume column is removed from the
// result.
func Aggregate(daily dataframe.Map, indexSize int, s Settings) dataframe.Map {
	monthly := make(dataframe.Map, len(daily))
	for ticker, df := range daily {
		m := df.ResampleMonthly(map[string]dataframe.Aggregation{
			indicators.ColDollarVolume: dataframe.Mean,
		}, dataframe.Last)
		m.Drop(math.NaN())
		if m.Len() > 0 {
			monthly[ticker] = m
		}
	}

	if len(monthly) == 0 {
		return monthly
	}

	rolled := monthly.Wide(indicators.ColDollarVolume).RollingMean(s.DollarVolumeWindow, s.DollarVolumeMinPeriods)
	cutoff := float64(int(float64(indexSize) * s.LiquidityFraction))

	subLog := log.With().Int("IndexSize", indexSize).Float64("RankCutoff", cutoff).Logger()
	subLog.Debug().Msg("applying liquidity filter")

	keep := make(map[string]map[time.Time]bool, len(monthly))
	for rowIdx, dt := range rolled.Dates {
		vals := make([]float64, len(rolled.ColNames))
		for colIdx := range rolled.ColNames {
			vals[colIdx] = rolled.Vals[colIdx][rowIdx]
		}
		ranks := RankDescending(vals)
		for colIdx, ticker := range rolled.ColNames {
			if ranks[colIdx] < cutoff {
				if keep[ticker] == nil {
					keep[ticker] = make(map[time.Time]bool)
				}
				keep[ticker][dt] = true
			}
		}
	}

	res := make(dataframe.Map, len(keep))
	for ticker, dates := range keep {
		df := monthly[ticker]
		filtered := df.Filter(func(row int) bool {
			return dates[df.Dates[row]]
		}).DropCols(indicators.ColDollarVolume)
		if filtered.Len() > 0 {
			res[ticker] = filtered
		}
	}

	subLog.Info().Int("Tickers", len(res)).Int("Rows", res.Len()).Msg("aggregated to monthly")
	return res
}

// RankDescending ranks vals from largest (rank 1) to smallest; ties share
// the average of their ranks and NaN values get a NaN rank
func RankDescending(vals []float64) []float64 {
	ranks := dataframe.NaNs(len(vals))
	order := make([]int, 0, len(vals))
	for idx, v := range vals {
		if !math.IsNaN(v) {
			order = append(order, idx)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return vals[order[i]] > vals[order[j]]
	})

	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && vals[order[end]] == vals[order[start]] {
			end++
		}
		avg := float64(start+1+end) / 2
		for ii := start; ii < end; ii++ {
			ranks[order[ii]] = avg
		}
		start = end
	}
	return ranks
}
