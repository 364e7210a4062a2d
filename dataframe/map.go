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
	"sort"
	"time"
)

// Tickers returns the keys of the map in sorted order
func (dfMap Map) Tickers() []string {
	tickers := make([]string, 0, len(dfMap))
	for k := range dfMap {
		tickers = append(tickers, k)
	}
	sort.Strings(tickers)
	return tickers
}

// Dates returns the sorted union of every dataframe's dates
func (dfMap Map) Dates() []time.Time {
	set := make(map[time.Time]struct{})
	for _, df := range dfMap {
		for _, dt := range df.Dates {
			set[dt] = struct{}{}
		}
	}

	dates := make([]time.Time, 0, len(set))
	for dt := range set {
		dates = append(dates, dt)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Drop calls dataframe.Drop on each dataframe in the map and removes tickers
// that are left without rows
func (dfMap Map) Drop(val float64) Map {
	for k, v := range dfMap {
		v.Drop(val)
		if v.Len() == 0 {
			delete(dfMap, k)
		}
	}
	return dfMap
}

// DropCols removes the named columns from every dataframe in the map
func (dfMap Map) DropCols(colNames ...string) Map {
	res := make(Map, len(dfMap))
	for k, v := range dfMap {
		res[k] = v.DropCols(colNames...)
	}
	return res
}

// Len returns the total number of rows across all tickers
func (dfMap Map) Len() int {
	n := 0
	for _, df := range dfMap {
		n += df.Len()
	}
	return n
}

// Wide pivots colName out of every ticker's dataframe into a single dataframe
// with one column per ticker (sorted) over the union of dates. Dates a ticker
// does not have are NaN; nothing is filled.
func (dfMap Map) Wide(colName string) *DataFrame {
	dates := dfMap.Dates()
	rowOf := make(map[time.Time]int, len(dates))
	for idx, dt := range dates {
		rowOf[dt] = idx
	}

	tickers := dfMap.Tickers()
	wide := New(dates, tickers...)
	for colIdx, ticker := range tickers {
		df := dfMap[ticker]
		src := df.Column(colName)
		if src == nil {
			continue
		}
		for rowIdx, dt := range df.Dates {
			wide.Vals[colIdx][rowOf[dt]] = src[rowIdx]
		}
	}

	return wide
}
