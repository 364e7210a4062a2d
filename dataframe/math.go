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
	"sort"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Log computes the natural log of every value and returns a new dataframe
func (df *DataFrame) Log() *DataFrame {
	df = df.Copy()
	for colIdx := range df.Vals {
		for rowIdx, v := range df.Vals[colIdx] {
			df.Vals[colIdx][rowIdx] = math.Log(v)
		}
	}
	return df
}

// Diff computes row[i] - row[i-1] for every column; the first row is NaN
func (df *DataFrame) Diff() *DataFrame {
	res := df.Copy()
	for colIdx, col := range df.Vals {
		for rowIdx := range col {
			if rowIdx == 0 {
				res.Vals[colIdx][rowIdx] = math.NaN()
				continue
			}
			res.Vals[colIdx][rowIdx] = col[rowIdx] - col[rowIdx-1]
		}
	}
	return res
}

// FFill propagates the last valid observation forward over NaN values
func (df *DataFrame) FFill() *DataFrame {
	df = df.Copy()
	for colIdx, col := range df.Vals {
		last := math.NaN()
		for rowIdx, v := range col {
			if math.IsNaN(v) {
				df.Vals[colIdx][rowIdx] = last
			} else {
				last = v
			}
		}
	}
	return df
}

// MulScalar multiplies all columns in dataframe df by the scalar and returns a new dataframe
func (df *DataFrame) MulScalar(scalar float64) *DataFrame {
	df = df.Copy()
	for colIdx := range df.Vals {
		floats.Scale(scalar, df.Vals[colIdx])
	}
	return df
}

// PctChange computes row[i] / row[i-n] - 1 for every column; the first n
// rows are NaN
func (df *DataFrame) PctChange(n int) *DataFrame {
	res := df.Copy()
	for colIdx, col := range df.Vals {
		res.Vals[colIdx] = PctChange(col, n)
	}
	return res
}

// PctChange computes x[i] / x[i-n] - 1; the first n values are NaN
func PctChange(x []float64, n int) []float64 {
	res := NaNs(len(x))
	for idx := n; idx < len(x); idx++ {
		res[idx] = x[idx]/x[idx-n] - 1.0
	}
	return res
}

// RollingMean computes the mean over a trailing window of `window` rows for
// every column. NaN values inside the window are skipped; a row yields NaN
// unless at least minPeriods valid values fall in its window.
func (df *DataFrame) RollingMean(window, minPeriods int) *DataFrame {
	if window <= 0 || minPeriods <= 0 {
		log.Error().Stack().Int("Window", window).Int("MinPeriods", minPeriods).Msg("window and minPeriods must be positive")
		return New(df.Dates, df.ColNames...)
	}

	res := df.Copy()
	for colIdx, col := range df.Vals {
		sum := 0.0
		cnt := 0
		for rowIdx, v := range col {
			if !math.IsNaN(v) {
				sum += v
				cnt++
			}
			if drop := rowIdx - window; drop >= 0 && !math.IsNaN(col[drop]) {
				sum -= col[drop]
				cnt--
			}
			if cnt >= minPeriods {
				res.Vals[colIdx][rowIdx] = sum / float64(cnt)
			} else {
				res.Vals[colIdx][rowIdx] = math.NaN()
			}
		}
	}
	return res
}

// Series helpers

// DropNaN returns the non-NaN values of x
func DropNaN(x []float64) []float64 {
	res := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) {
			res = append(res, v)
		}
	}
	return res
}

// NanMean averages the non-NaN values of x; NaN when there are none
func NanMean(x []float64) float64 {
	valid := DropNaN(x)
	if len(valid) == 0 {
		return math.NaN()
	}
	return stat.Mean(valid, nil)
}

// Quantile returns the q-th quantile of the non-NaN values of x using linear
// interpolation between closest ranks (position q*(n-1)). NaN when x has no
// valid values.
func Quantile(x []float64, q float64) float64 {
	valid := DropNaN(x)
	if len(valid) == 0 {
		return math.NaN()
	}
	sort.Float64s(valid)

	pos := q * float64(len(valid)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return valid[lo]
	}
	frac := pos - float64(lo)
	return valid[lo] + (valid[hi]-valid[lo])*frac
}

// Clip bounds every value of x to [lower, upper]. A NaN bound leaves that
// side unbounded and NaN values stay NaN.
func Clip(x []float64, lower, upper float64) []float64 {
	res := make([]float64, len(x))
	for idx, v := range x {
		switch {
		case math.IsNaN(v):
			res[idx] = v
		case !math.IsNaN(lower) && v < lower:
			res[idx] = lower
		case !math.IsNaN(upper) && v > upper:
			res[idx] = upper
		default:
			res[idx] = v
		}
	}
	return res
}

// ZScore standardizes x with the mean and sample standard deviation of its
// non-NaN values. NaN inputs stay NaN.
func ZScore(x []float64) []float64 {
	valid := DropNaN(x)
	res := NaNs(len(x))
	if len(valid) < 2 {
		return res
	}

	mean, std := stat.MeanStdDev(valid, nil)
	for idx, v := range x {
		if !math.IsNaN(v) {
			res[idx] = (v - mean) / std
		}
	}
	return res
}
