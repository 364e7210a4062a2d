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

package data

import (
	"context"
	"time"

	"github.com/penny-vault/pv-cluster/dataframe"
)

// PriceProvider loads daily end-of-day prices. Both bounds are inclusive.
// The result holds one frame per ticker with PriceColumns; tickers without
// any rows are left out of the map rather than zero filled.
type PriceProvider interface {
	FetchPrices(ctx context.Context, tickers []string, begin, end time.Time) (dataframe.Map, error)
}

// FactorProvider loads monthly factor returns in decimal form, dated at
// calendar month end, with FactorColumns.
type FactorProvider interface {
	FetchFactorReturns(ctx context.Context, begin time.Time) (*dataframe.DataFrame, error)
}

// newPriceFrame allocates an empty per-ticker frame with room for n rows
func newPriceFrame(n int) *dataframe.DataFrame {
	df := &dataframe.DataFrame{
		Dates:    make([]time.Time, 0, n),
		ColNames: append([]string{}, PriceColumns...),
		Vals:     make([][]float64, len(PriceColumns)),
	}
	for idx := range df.Vals {
		df.Vals[idx] = make([]float64, 0, n)
	}
	return df
}

// appendPriceRow adds a row when date is after the last row; out of order or
// duplicate dates are dropped and reported as false
func appendPriceRow(df *dataframe.DataFrame, date time.Time, open, high, low, closePrice, adjClose, volume float64) bool {
	if n := len(df.Dates); n > 0 && !df.Dates[n-1].Before(date) {
		return false
	}
	df.Dates = append(df.Dates, date)
	for idx, v := range []float64{open, high, low, closePrice, adjClose, volume} {
		df.Vals[idx] = append(df.Vals[idx], v)
	}
	return true
}
