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

package export

import (
	"io"
	"math"
	"time"

	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/portfolio"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const (
	SheetReturns = "Returns"
	SheetWeights = "Weights"
	SheetSummary = "Summary"
)

// Report is the content of the xlsx workbook
type Report struct {
	// Comparison holds daily strategy and benchmark returns
	Comparison *dataframe.DataFrame
	Periods    []*portfolio.Period
	Skipped    []*portfolio.SkippedPeriod
	Summaries  []*portfolio.Summary
}

func cellValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func dateValue(dt time.Time) interface{} {
	if dt.IsZero() {
		return nil
	}
	return dt.Format("2006-01-02")
}

func setRow(f *excelize.File, sheet string, row int, vals []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &vals)
}

// WriteReport writes the Returns, Weights and Summary sheets to w
func WriteReport(w io.Writer, report *Report) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Warn().Err(err).Msg("could not close workbook")
		}
	}()

	for _, build := range []struct {
		name  string
		write func(*excelize.File) error
	}{
		{SheetReturns, report.writeReturns},
		{SheetWeights, report.writeWeights},
		{SheetSummary, report.writeSummary},
	} {
		if _, err := f.NewSheet(build.name); err != nil {
			return err
		}
		if err := build.write(f); err != nil {
			log.Error().Err(err).Str("Sheet", build.name).Msg("could not write sheet")
			return err
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	idx, err := f.GetSheetIndex(SheetReturns)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)

	_, err = f.WriteTo(w)
	return err
}

// writeReturns lists daily returns next to the cumulative return of each
// column
func (report *Report) writeReturns(f *excelize.File) error {
	table := report.Comparison
	if table == nil {
		table = dataframe.New(nil)
	}
	cum := portfolio.CumulativeReturns(table)

	header := []interface{}{"Date"}
	for _, name := range table.ColNames {
		header = append(header, name)
	}
	for _, name := range table.ColNames {
		header = append(header, name+" (cumulative)")
	}
	if err := setRow(f, SheetReturns, 1, header); err != nil {
		return err
	}

	for rowIdx, dt := range table.Dates {
		vals := []interface{}{dateValue(dt)}
		for _, col := range table.Vals {
			vals = append(vals, cellValue(col[rowIdx]))
		}
		for _, col := range cum.Vals {
			vals = append(vals, cellValue(col[rowIdx]))
		}
		if err := setRow(f, SheetReturns, rowIdx+2, vals); err != nil {
			return err
		}
	}
	return nil
}

// writeWeights has one row per (period, ticker); skipped periods are listed
// with their error and no ticker
func (report *Report) writeWeights(f *excelize.File) error {
	if err := setRow(f, SheetWeights, 1, []interface{}{"Start", "End", "Ticker", "Weight", "Fallback", "Reason"}); err != nil {
		return err
	}

	row := 2
	for _, period := range report.Periods {
		reason := ""
		if period.Fallback {
			reason = period.Reason.String()
		}
		for _, ticker := range period.Weights.Tickers() {
			vals := []interface{}{dateValue(period.Start), dateValue(period.End), ticker, cellValue(period.Weights[ticker]), period.Fallback, reason}
			if err := setRow(f, SheetWeights, row, vals); err != nil {
				return err
			}
			row++
		}
	}

	for _, skipped := range report.Skipped {
		vals := []interface{}{dateValue(skipped.Start), nil, nil, nil, nil, skipped.Err.Error()}
		if err := setRow(f, SheetWeights, row, vals); err != nil {
			return err
		}
		row++
	}
	return nil
}

func (report *Report) writeSummary(f *excelize.File) error {
	header := []interface{}{"Name", "Days", "Total Return", "CAGR", "Volatility", "Sharpe", "Max Drawdown", "Drawdown Begin", "Drawdown End", "Recovery"}
	if err := setRow(f, SheetSummary, 1, header); err != nil {
		return err
	}

	for idx, summary := range report.Summaries {
		vals := []interface{}{
			summary.Name,
			summary.Days,
			cellValue(summary.TotalReturn),
			cellValue(summary.CAGR),
			cellValue(summary.Volatility),
			cellValue(summary.Sharpe),
			nil, nil, nil, nil,
		}
		if dd := summary.MaxDrawDown; dd != nil {
			vals[6] = cellValue(dd.LossPercent)
			vals[7] = dateValue(dd.Begin)
			vals[8] = dateValue(dd.End)
			vals[9] = dateValue(dd.Recovery)
		}
		if err := setRow(f, SheetSummary, idx+2, vals); err != nil {
			return err
		}
	}
	return nil
}
