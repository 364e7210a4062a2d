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

package features_test

import (
	"context"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/pv-cluster/data"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/features"
	"github.com/penny-vault/pv-cluster/indicators"
)

var _ = Describe("Factor betas", func() {
	var (
		start   time.Time
		factors *dataframe.DataFrame
		s       features.Settings
	)

	BeforeEach(func() {
		start = time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
		factors = randomFactors(start, 40, 42)
		s = features.DefaultSettings()
	})

	It("recovers exact linear betas once the window is full", func() {
		panel := dataframe.Map{"AAA": linearReturns(factors, 30)}
		betas := features.EstimateBetas(panel, factors, s)

		b := betas["AAA"]
		Expect(b.ColNames).To(Equal(data.FactorColumns))
		Expect(b.Len()).To(Equal(30))
		for row := 0; row < 23; row++ {
			Expect(math.IsNaN(b.Vals[0][row])).To(BeTrue())
		}
		for row := 23; row < 30; row++ {
			for kk, beta := range []float64{1.5, 0.5, -0.2, 0.3, 0.1} {
				Expect(b.Vals[kk][row]).To(BeNumerically("~", beta, 1e-8))
			}
		}
	})

	It("fits from the minimum observation count when expanding", func() {
		s.Expanding = true
		betas := features.EstimateBetas(dataframe.Map{"AAA": linearReturns(factors, 30)}, factors, s)
		b := betas["AAA"]
		Expect(math.IsNaN(b.Vals[0][5])).To(BeTrue())
		Expect(b.Vals[0][6]).To(BeNumerically("~", 1.5, 1e-8))
	})

	It("uses the whole history as the window for short tickers", func() {
		betas := features.EstimateBetas(dataframe.Map{"AAA": linearReturns(factors, 15)}, factors, s)
		b := betas["AAA"]
		Expect(dataframe.DropNaN(b.Vals[0])).To(HaveLen(1))
		Expect(b.Vals[0][14]).To(BeNumerically("~", 1.5, 1e-8))
	})

	It("excludes tickers with fewer than ten months", func() {
		betas := features.EstimateBetas(dataframe.Map{"AAA": linearReturns(factors, 9)}, factors, s)
		Expect(betas).To(BeEmpty())
	})

	It("only uses months with factor data", func() {
		short := factors.Trim(factors.Start(), factors.Dates[19])
		betas := features.EstimateBetas(dataframe.Map{"AAA": linearReturns(factors, 30)}, short, s)
		Expect(betas["AAA"].Len()).To(Equal(20))
	})

	Context("when joining betas to the panel", func() {
		It("lags betas one row and fills the gap with the ticker mean", func() {
			dates := monthEnds(start, 4)
			panel := dataframe.New(dates, data.MetricAdjustedClose, "return_1m")
			betas := dataframe.New(dates, data.FactorColumns...)
			for row := range dates {
				panel.Vals[0][row] = 100
				panel.Vals[1][row] = 0.01
				for colIdx := range betas.Vals {
					betas.Vals[colIdx][row] = float64(row + 1)
				}
			}

			res := features.JoinBetas(dataframe.Map{"AAA": panel}, dataframe.Map{"AAA": betas})
			out := res["AAA"]
			Expect(out.ColIndex(data.MetricAdjustedClose)).To(Equal(-1))

			mkt := out.Column(data.FactorMarket)
			// shifted values are 1, 2, 3 with mean 2 filling the first row
			Expect(mkt).To(Equal([]float64{2, 1, 2, 3}))
		})

		It("drops tickers without betas", func() {
			dates := monthEnds(start, 3)
			panel := dataframe.New(dates, data.MetricAdjustedClose, "return_1m")
			for row := range dates {
				panel.Vals[0][row] = 1
				panel.Vals[1][row] = 1
			}
			res := features.JoinBetas(dataframe.Map{"AAA": panel}, dataframe.Map{})
			Expect(res).To(BeEmpty())
		})
	})

	Context("when building the full panel", func() {
		It("produces complete rows in feature order", func() {
			begin := time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)
			end := time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC)

			prices := dataframe.Map{}
			for idx, ticker := range []string{"AAA", "BBB", "CCC", "DDD"} {
				prices[ticker] = dailyPrices(begin, end, 50+float64(idx)*10, 1e6*float64(idx+1), int64(idx+1))
			}
			daily := indicators.Compute(prices, indicators.DefaultSettings())

			s.LiquidityFraction = 1
			panel, err := features.Build(context.Background(), daily, randomFactors(begin, 72, 7), 5, s)
			Expect(err).To(BeNil())
			Expect(panel).ToNot(BeEmpty())

			for _, df := range panel {
				Expect(df.ColNames).To(Equal(features.Columns()))
				for _, col := range df.Vals {
					Expect(dataframe.DropNaN(col)).To(HaveLen(df.Len()))
				}
			}
		})

		It("requires factor returns", func() {
			_, err := features.Build(context.Background(), dataframe.Map{}, nil, 10, s)
			Expect(err).To(MatchError(features.ErrNoFactorData))
		})
	})
})
