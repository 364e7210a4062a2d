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

// Package export writes research results to files: the monthly feature panel
// as parquet and the backtest report as an xlsx workbook.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/goccy/go-json"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/rs/zerolog/log"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const (
	ColDate   = "date"
	ColTicker = "ticker"
)

type schemaField struct {
	Tag string `json:"Tag"`
}

type schema struct {
	Tag    string        `json:"Tag"`
	Fields []schemaField `json:"Fields"`
}

// ParquetName converts a column name to the name used in the parquet schema:
// lower case with non alphanumeric characters replaced by underscores
func ParquetName(col string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(col) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

func panelSchema(cols []string) (string, error) {
	s := schema{
		Tag: "name=panel, repetitiontype=REQUIRED",
		Fields: []schemaField{
			{Tag: fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED", ColDate)},
			{Tag: fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED", ColTicker)},
		},
	}
	for _, col := range cols {
		s.Fields = append(s.Fields, schemaField{Tag: fmt.Sprintf("name=%s, type=DOUBLE, repetitiontype=OPTIONAL", ParquetName(col))})
	}
	buf, err := json.Marshal(s)
	return string(buf), err
}

// panelColumns is the union of column names over every ticker, in the order
// of the first ticker that has them
func panelColumns(panel dataframe.Map) []string {
	seen := make(map[string]bool)
	cols := []string{}
	for _, ticker := range panel.Tickers() {
		for _, col := range panel[ticker].ColNames {
			if !seen[col] {
				seen[col] = true
				cols = append(cols, col)
			}
		}
	}
	return cols
}

// WritePanel saves the panel as one parquet row per (date, ticker), ordered by
// ticker then date. NaN values are stored as nulls.
func WritePanel(path string, panel dataframe.Map) error {
	cols := panelColumns(panel)
	jsonSchema, err := panelSchema(cols)
	if err != nil {
		return err
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		log.Error().Err(err).Str("Path", path).Msg("could not create parquet file")
		return err
	}
	defer fw.Close()

	pw, err := writer.NewJSONWriter(jsonSchema, fw, 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	rows := 0
	for _, ticker := range panel.Tickers() {
		df := panel[ticker]
		for rowIdx, dt := range df.Dates {
			rec := make(map[string]interface{}, len(cols)+2)
			rec[ColDate] = dt.Format("2006-01-02")
			rec[ColTicker] = ticker
			for _, col := range cols {
				rec[ParquetName(col)] = nil
				if vals := df.Column(col); vals != nil && !math.IsNaN(vals[rowIdx]) {
					rec[ParquetName(col)] = vals[rowIdx]
				}
			}

			buf, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := pw.Write(string(buf)); err != nil {
				log.Error().Err(err).Str("Ticker", ticker).Time("Date", dt).Msg("could not write parquet row")
				return err
			}
			rows++
		}
	}

	if err := pw.WriteStop(); err != nil {
		log.Error().Err(err).Str("Path", path).Msg("could not finish parquet file")
		return err
	}

	log.Info().Str("Path", path).Int("Rows", rows).Int("Columns", len(cols)).Msg("wrote panel")
	return nil
}
