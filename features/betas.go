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
	"time"

	"github.com/penny-vault/pv-cluster/data"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// singular values below rcond times the largest are treated as zero
const rcond = 1e-15

// EstimateBetas fits a rolling regression of each ticker's 1 month return on
// an intercept and the five factors. Only months present in both the panel
// and factors are used; tickers with fewer than BetaMinObservations such
// months are left out. The window is min(BetaWindow, n) rows and a fit needs
// at least one more valid row than it has parameters. Unless Expanding is
// set, rows before the first full window have no betas. The result holds one
// frame per ticker with data.FactorColumns dated like the matched panel rows.
func EstimateBetas(panel dataframe.Map, factors *dataframe.DataFrame, s Settings) dataframe.Map {
	res := make(dataframe.Map, len(panel))
	retCol := ReturnColumn(1)
	minNobs := len(data.FactorColumns) + 2

	factorCols := make([][]float64, len(data.FactorColumns))
	for idx, name := range data.FactorColumns {
		factorCols[idx] = factors.Column(name)
		if factorCols[idx] == nil {
			log.Error().Str("Column", name).Msg("factor returns are missing a column")
			return res
		}
	}

	for _, ticker := range panel.Tickers() {
		df := panel[ticker]
		ret := df.Column(retCol)
		if ret == nil {
			log.Error().Str("Ticker", ticker).Str("Column", retCol).Msg("panel is missing the 1 month return")
			continue
		}

		dates := make([]time.Time, 0, df.Len())
		y := make([]float64, 0, df.Len())
		x := make([][]float64, 0, df.Len())
		for rowIdx, dt := range df.Dates {
			factorIdx := factors.RowIndex(dt)
			if factorIdx == -1 {
				continue
			}
			row := make([]float64, len(factorCols))
			for colIdx, col := range factorCols {
				row[colIdx] = col[factorIdx]
			}
			dates = append(dates, dt)
			y = append(y, ret[rowIdx])
			x = append(x, row)
		}

		n := len(dates)
		if n < s.BetaMinObservations {
			log.Debug().Str("Ticker", ticker).Int("Observations", n).Msg("too few months for beta estimation")
			continue
		}

		window := s.BetaWindow
		if n < window {
			window = n
		}

		betas := dataframe.New(dates, data.FactorColumns...)
		for ii := 0; ii < n; ii++ {
			lo := ii - window + 1
			if lo < 0 {
				if !s.Expanding {
					continue
				}
				lo = 0
			}

			params, ok := ols(y[lo:ii+1], x[lo:ii+1], minNobs)
			if !ok {
				continue
			}
			for colIdx := range data.FactorColumns {
				betas.Vals[colIdx][ii] = params[colIdx+1]
			}
		}

		res[ticker] = betas
	}

	return res
}

// ols returns [intercept, coefficients...] for the rows of y and x without
// missing values, or false if fewer than minNobs rows remain
func ols(y []float64, x [][]float64, minNobs int) ([]float64, bool) {
	rows := make([]int, 0, len(y))
	for idx := range y {
		valid := !math.IsNaN(y[idx])
		for _, v := range x[idx] {
			valid = valid && !math.IsNaN(v)
		}
		if valid {
			rows = append(rows, idx)
		}
	}

	if len(rows) < minNobs || len(rows) == 0 {
		return nil, false
	}

	p := len(x[0]) + 1
	design := mat.NewDense(len(rows), p, nil)
	target := mat.NewDense(len(rows), 1, nil)
	for ii, row := range rows {
		design.Set(ii, 0, 1)
		for jj, v := range x[row] {
			design.Set(ii, jj+1, v)
		}
		target.Set(ii, 0, y[row])
	}

	var svd mat.SVD
	if !svd.Factorize(design, mat.SVDThin) {
		return nil, false
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		return nil, false
	}

	var beta mat.Dense
	svd.SolveTo(&beta, target, rank)

	params := make([]float64, p)
	for idx := range params {
		params[idx] = beta.At(idx, 0)
	}
	return params, true
}

// JoinBetas attaches each ticker's betas to its panel rows, lagged by one beta
// row so a month only sees betas fitted on earlier months. Missing betas are
// filled with the ticker's own average beta. The adjusted close column is
// removed and any row still incomplete is dropped, which also removes tickers
// that had no betas at all.
func JoinBetas(panel, betas dataframe.Map) dataframe.Map {
	res := make(dataframe.Map, len(panel))
	for ticker, df := range panel {
		out := df.DropCols(data.MetricAdjustedClose).Copy()

		var shifted *dataframe.DataFrame
		if b, ok := betas[ticker]; ok {
			shifted = b.Lag(1)
		}

		for colIdx, name := range data.FactorColumns {
			col := dataframe.NaNs(out.Len())
			if shifted != nil {
				src := shifted.Vals[colIdx]
				for rowIdx, dt := range out.Dates {
					if betaIdx := shifted.RowIndex(dt); betaIdx != -1 {
						col[rowIdx] = src[betaIdx]
					}
				}
			}

			mean := dataframe.NanMean(col)
			for rowIdx, v := range col {
				if math.IsNaN(v) {
					col[rowIdx] = mean
				}
			}
			out.Set(name, col)
		}

		out.Drop(math.NaN())
		if out.Len() > 0 {
			res[ticker] = out
		}
	}
	return res
}
