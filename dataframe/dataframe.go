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
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
)

// New creates a dataframe over dates with the named columns filled with NaN
func New(dates []time.Time, colNames ...string) *DataFrame {
	df := &DataFrame{
		Dates:    dates,
		ColNames: colNames,
		Vals:     make([][]float64, len(colNames)),
	}
	for idx := range df.Vals {
		df.Vals[idx] = NaNs(len(dates))
	}
	return df
}

// NaNs returns a slice of n NaN values
func NaNs(n int) []float64 {
	vals := make([]float64, n)
	for idx := range vals {
		vals[idx] = math.NaN()
	}
	return vals
}

// Breakout takes a dataframe with multiple columns and returns a map of dataframes, one per column
func (df *DataFrame) Breakout() Map {
	dfMap := Map{}
	for idx, col := range df.ColNames {
		dfMap[col] = &DataFrame{
			Dates:    df.Dates,
			ColNames: []string{col},
			Vals:     [][]float64{df.Vals[idx]},
		}
	}
	return dfMap
}

// Get index of specified column; returns -1 if column doesn't exist
func (df *DataFrame) ColIndex(colName string) int {
	for idx, val := range df.ColNames {
		if colName == val {
			return idx
		}
	}

	return -1
}

// ColCount returns the number of columns in the dataframe
func (df *DataFrame) ColCount() int {
	return len(df.ColNames)
}

// Column returns the values of the named column or nil if it doesn't exist
func (df *DataFrame) Column(colName string) []float64 {
	idx := df.ColIndex(colName)
	if idx == -1 {
		return nil
	}
	return df.Vals[idx]
}

// Copy creates a deep copy of the dataframe
func (df *DataFrame) Copy() *DataFrame {
	df2 := &DataFrame{
		ColNames: make([]string, len(df.ColNames)),
		Dates:    make([]time.Time, len(df.Dates)),
		Vals:     make([][]float64, len(df.Vals)),
	}

	copy(df2.ColNames, df.ColNames)
	copy(df2.Dates, df.Dates)

	for idx := range df2.Vals {
		df2.Vals[idx] = make([]float64, len(df.Vals[idx]))
		copy(df2.Vals[idx], df.Vals[idx])
	}

	return df2
}

// Drop removes rows that contain the value `val` in any column. Passing NaN
// drops incomplete rows.
func (df *DataFrame) Drop(val float64) *DataFrame {
	isNA := math.IsNaN(val)
	newVals := make([][]float64, len(df.Vals))
	newDates := make([]time.Time, 0, len(df.Dates))

	for idx, rowDate := range df.Dates {
		keep := true
		for _, col := range df.Vals {
			rowVal := col[idx]
			keep = keep && !(rowVal == val || (isNA && math.IsNaN(rowVal)))
			if !keep {
				break
			}
		}

		if keep {
			newDates = append(newDates, rowDate)
			for colIdx, col := range df.Vals {
				newVals[colIdx] = append(newVals[colIdx], col[idx])
			}
		}
	}

	for colIdx := range newVals {
		if newVals[colIdx] == nil {
			newVals[colIdx] = []float64{}
		}
	}

	df.Vals = newVals
	df.Dates = newDates
	return df
}

// DropCols returns a new dataframe without the named columns
func (df *DataFrame) DropCols(colNames ...string) *DataFrame {
	_, rest := df.Split(colNames...)
	return rest
}

// DropDuplicateDates keeps the first row for every date. Rows must already be
// ordered by date.
func (df *DataFrame) DropDuplicateDates() *DataFrame {
	keepIdx := make([]int, 0, len(df.Dates))
	for idx, dt := range df.Dates {
		if idx > 0 && dt.Equal(df.Dates[keepIdx[len(keepIdx)-1]]) {
			continue
		}
		keepIdx = append(keepIdx, idx)
	}
	return df.take(keepIdx)
}

// End returns the last time in the DataFrame
func (df *DataFrame) End() time.Time {
	if len(df.Dates) == 0 {
		return time.Time{}
	}
	return df.Dates[len(df.Dates)-1]
}

// Set replaces the named column, or appends it if it does not exist
func (df *DataFrame) Set(name string, col []float64) *DataFrame {
	if len(col) != len(df.Dates) {
		log.Panic().Str("Column", name).Int("ColLen", len(col)).Int("NumRows", len(df.Dates)).Msg("column length must equal number of rows")
	}

	if idx := df.ColIndex(name); idx != -1 {
		df.Vals[idx] = col
		return df
	}

	df.ColNames = append(df.ColNames, name)
	df.Vals = append(df.Vals, col)
	return df
}

// InsertRow adds a new row to the dataframe. Date must be after the last date in the dataframe and vals must equal the number
// of columns. If either of these conditions are not met then panic
func (df *DataFrame) InsertRow(date time.Time, vals ...float64) *DataFrame {
	if len(df.Dates) != 0 {
		last := df.Dates[len(df.Dates)-1]
		if !last.Before(date) {
			log.Panic().Time("lastDate", last).Time("newDate", date).Msg("newDate must be after lastDate")
		}
	}

	if len(vals) != len(df.ColNames) {
		log.Panic().Int("NumValsPassed", len(vals)).Int("NumColumns", len(df.ColNames)).Msg("number of vals passed must equal number of columns")
	}

	df.Dates = append(df.Dates, date)
	for colIdx := range df.ColNames {
		df.Vals[colIdx] = append(df.Vals[colIdx], vals[colIdx])
	}

	return df
}

// Lag shifts every column down by n rows, filling the head with NaN. The date
// index is unchanged so row i holds the values previously at row i-n.
func (df *DataFrame) Lag(n int) *DataFrame {
	df = df.Copy()
	for idx := range df.Vals {
		l := len(df.Vals[idx])
		shifted := NaNs(l)
		for rowIdx := n; rowIdx < l; rowIdx++ {
			shifted[rowIdx] = df.Vals[idx][rowIdx-n]
		}
		df.Vals[idx] = shifted
	}
	return df
}

// Len returns the number of rows in the dataframe
func (df *DataFrame) Len() int {
	return len(df.Dates)
}

// RowIndex returns the row of date or -1 when the date is not in the index
func (df *DataFrame) RowIndex(date time.Time) int {
	idx := sort.Search(len(df.Dates), func(i int) bool {
		return !df.Dates[i].Before(date)
	})
	if idx < len(df.Dates) && df.Dates[idx].Equal(date) {
		return idx
	}
	return -1
}

// Select returns a new dataframe that shares storage with df and contains
// only the named columns in the requested order
func (df *DataFrame) Select(colNames ...string) (*DataFrame, error) {
	res := &DataFrame{
		Dates:    df.Dates,
		ColNames: make([]string, 0, len(colNames)),
		Vals:     make([][]float64, 0, len(colNames)),
	}

	for _, name := range colNames {
		idx := df.ColIndex(name)
		if idx == -1 {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
		}
		res.ColNames = append(res.ColNames, name)
		res.Vals = append(res.Vals, df.Vals[idx])
	}

	return res, nil
}

// Split the dataframe into 2, with columns being in the first dataframe and
// all remaining columns in the second
func (df *DataFrame) Split(columns ...string) (*DataFrame, *DataFrame) {
	one := &DataFrame{
		Dates:    df.Dates,
		ColNames: []string{},
		Vals:     [][]float64{},
	}

	two := &DataFrame{
		Dates:    df.Dates,
		ColNames: []string{},
		Vals:     [][]float64{},
	}

	colMap := make(map[string]bool, len(columns))
	for _, col := range columns {
		colMap[col] = true
	}

	for idx, col := range df.ColNames {
		if _, ok := colMap[col]; ok {
			one.ColNames = append(one.ColNames, col)
			one.Vals = append(one.Vals, df.Vals[idx])
		} else {
			two.ColNames = append(two.ColNames, col)
			two.Vals = append(two.Vals, df.Vals[idx])
		}
	}

	return one, two
}

// Start returns the first date of the dataframe
func (df *DataFrame) Start() time.Time {
	if len(df.Dates) == 0 {
		return time.Time{}
	}
	return df.Dates[0]
}

// Table prints an ASCII formatted table
func (df *DataFrame) Table() string {
	if len(df.Dates) == 0 {
		return "<NO DATA>"
	}

	tableCols := append([]string{"Date"}, df.ColNames...)

	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader(tableCols)
	footer := make([]string, len(tableCols))
	footer[0] = "Num Rows"
	if len(footer) > 1 {
		footer[1] = fmt.Sprintf("%d", df.Len())
	}
	table.SetFooter(footer)
	table.SetBorder(false)

	for idx, rowDate := range df.Dates {
		row := make([]string, 0, len(df.Vals)+1)
		row = append(row, rowDate.Format("2006-01-02"))
		for _, col := range df.Vals {
			row = append(row, fmt.Sprintf("%.4f", col[idx]))
		}
		table.Append(row)
	}

	table.Render()
	return s.String()
}

// Trim the dataframe to the specified date range (inclusive). The returned
// dataframe shares storage with df.
func (df *DataFrame) Trim(begin, end time.Time) *DataFrame {
	df2 := &DataFrame{
		ColNames: df.ColNames,
		Dates:    []time.Time{},
		Vals:     make([][]float64, len(df.Vals)),
	}
	for idx := range df2.Vals {
		df2.Vals[idx] = []float64{}
	}

	if end.Before(begin) || df.Len() == 0 {
		return df2
	}

	beginIdx := sort.Search(len(df.Dates), func(i int) bool {
		return !df.Dates[i].Before(begin)
	})

	endIdx := sort.Search(len(df.Dates), func(i int) bool {
		return df.Dates[i].After(end)
	})

	if beginIdx >= endIdx {
		return df2
	}

	df2.Dates = df.Dates[beginIdx:endIdx]
	for colIdx, col := range df.Vals {
		df2.Vals[colIdx] = col[beginIdx:endIdx]
	}

	return df2
}

// Concat stacks the rows of dfs, orders them by date and keeps the first row
// for each date. Columns are the union of all column names in order of first
// appearance; missing values are NaN.
func Concat(dfs ...*DataFrame) *DataFrame {
	colNames := []string{}
	seen := map[string]bool{}
	total := 0
	for _, df := range dfs {
		total += df.Len()
		for _, name := range df.ColNames {
			if !seen[name] {
				seen[name] = true
				colNames = append(colNames, name)
			}
		}
	}

	stacked := New(make([]time.Time, 0, total), colNames...)
	for idx := range stacked.Vals {
		stacked.Vals[idx] = make([]float64, 0, total)
	}

	for _, df := range dfs {
		stacked.Dates = append(stacked.Dates, df.Dates...)
		for colIdx, name := range colNames {
			if src := df.Column(name); src != nil {
				stacked.Vals[colIdx] = append(stacked.Vals[colIdx], src...)
			} else {
				stacked.Vals[colIdx] = append(stacked.Vals[colIdx], NaNs(df.Len())...)
			}
		}
	}

	order := make([]int, stacked.Len())
	for idx := range order {
		order[idx] = idx
	}
	sort.SliceStable(order, func(i, j int) bool {
		return stacked.Dates[order[i]].Before(stacked.Dates[order[j]])
	})

	return stacked.take(order).DropDuplicateDates()
}

// Filter returns a new dataframe with the rows for which keep returns true
func (df *DataFrame) Filter(keep func(row int) bool) *DataFrame {
	rows := make([]int, 0, df.Len())
	for idx := range df.Dates {
		if keep(idx) {
			rows = append(rows, idx)
		}
	}
	return df.take(rows)
}

// take builds a new dataframe from the given row positions
func (df *DataFrame) take(rows []int) *DataFrame {
	res := &DataFrame{
		Dates:    make([]time.Time, len(rows)),
		ColNames: df.ColNames,
		Vals:     make([][]float64, len(df.Vals)),
	}
	for idx, row := range rows {
		res.Dates[idx] = df.Dates[row]
	}
	for colIdx, col := range df.Vals {
		res.Vals[colIdx] = make([]float64, len(rows))
		for idx, row := range rows {
			res.Vals[colIdx][idx] = col[row]
		}
	}
	return res
}
