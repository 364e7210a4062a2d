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

package export_test

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/export"
	"github.com/penny-vault/pv-cluster/portfolio"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xuri/excelize/v2"
)

var _ = Describe("Export", func() {
	var dates []time.Time

	BeforeEach(func() {
		dates = []time.Time{
			time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC),
		}
	})

	DescribeTable("sanitizes parquet column names",
		func(col, expected string) {
			Expect(export.ParquetName(col)).To(Equal(expected))
		},
		Entry("factor", "Mkt-RF", "mkt_rf"),
		Entry("return", "return_12m", "return_12m"),
		Entry("mixed case", "SMB", "smb"),
	)

	Describe("panel", func() {
		It("writes one row per ticker and month", func() {
			aapl := dataframe.New(dates, "rsi", "Mkt-RF", "cluster")
			aapl.Vals[0] = []float64{40, 50, 60}
			aapl.Vals[1] = []float64{1.1, 1.2, 1.3}
			aapl.Vals[2] = []float64{3, 3, math.NaN()}
			msft := dataframe.New(dates[:2], "rsi", "Mkt-RF", "cluster")
			msft.Vals[0] = []float64{70, 65}
			msft.Vals[1] = []float64{0.9, 0.8}
			msft.Vals[2] = []float64{1, 2}

			path := filepath.Join(GinkgoT().TempDir(), "panel.parquet")
			Expect(export.WritePanel(path, dataframe.Map{"AAPL": aapl, "MSFT": msft})).To(Succeed())

			fr, err := local.NewLocalFileReader(path)
			Expect(err).To(BeNil())
			defer fr.Close()

			pr, err := reader.NewParquetReader(fr, nil, 1)
			Expect(err).To(BeNil())
			defer pr.ReadStop()

			Expect(pr.GetNumRows()).To(Equal(int64(5)))

			// the reader renames schema elements to exported Go names, the
			// names stored in the file are kept as ExName
			names := []string{}
			for _, info := range pr.SchemaHandler.Infos {
				names = append(names, info.ExName)
			}
			Expect(names).To(ContainElements(export.ColDate, export.ColTicker, "rsi", "mkt_rf", "cluster"))
		})
	})

	Describe("report", func() {
		It("writes the returns, weights and summary sheets", func() {
			comparison := dataframe.New(dates, portfolio.StrategyColumn, "SPY Buy&Hold")
			comparison.Vals[0] = []float64{0.1, 0.1, math.NaN()}
			comparison.Vals[1] = []float64{0.05, -0.05, 0.0}

			periods := []*portfolio.Period{
				{
					Start:    time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
					End:      time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC),
					Weights:  portfolio.Weights{"MSFT": 0.5, "AAPL": 0.5},
					Fallback: true,
					Reason:   portfolio.InfeasibleBounds,
				},
			}
			skipped := []*portfolio.SkippedPeriod{
				{Start: time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC), Err: errors.New("no returns in holding period")},
			}

			report := &export.Report{
				Comparison: comparison,
				Periods:    periods,
				Skipped:    skipped,
				Summaries:  portfolio.Summarize(comparison, 0.02, 252),
			}

			var buf bytes.Buffer
			Expect(export.WriteReport(&buf, report)).To(Succeed())

			f, err := excelize.OpenReader(&buf)
			Expect(err).To(BeNil())
			defer f.Close()

			Expect(f.GetSheetList()).To(Equal([]string{export.SheetReturns, export.SheetWeights, export.SheetSummary}))

			rows, err := f.GetRows(export.SheetReturns)
			Expect(err).To(BeNil())
			Expect(rows).To(HaveLen(4))
			Expect(rows[0]).To(Equal([]string{"Date", portfolio.StrategyColumn, "SPY Buy&Hold",
				portfolio.StrategyColumn + " (cumulative)", "SPY Buy&Hold (cumulative)"}))
			Expect(rows[1][0]).To(Equal("2023-01-31"))

			rows, err = f.GetRows(export.SheetWeights)
			Expect(err).To(BeNil())
			Expect(rows).To(HaveLen(4))
			Expect(rows[1][2]).To(Equal("AAPL"))
			Expect(rows[2][2]).To(Equal("MSFT"))
			Expect(rows[1][5]).To(Equal("infeasible bounds"))
			Expect(rows[3][0]).To(Equal("2023-02-01"))
			Expect(rows[3][5]).To(Equal("no returns in holding period"))

			rows, err = f.GetRows(export.SheetSummary)
			Expect(err).To(BeNil())
			Expect(rows).To(HaveLen(3))
			Expect(rows[1][0]).To(Equal(portfolio.StrategyColumn))
			Expect(rows[2][0]).To(Equal("SPY Buy&Hold"))
		})
	})
})
