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

package portfolio_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/portfolio"
)

var _ = Describe("Metrics", func() {
	var (
		table *dataframe.DataFrame
		dates []time.Time
	)

	BeforeEach(func() {
		dates = []time.Time{
			time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC),
		}
		table = dataframe.New(dates, portfolio.StrategyColumn, "SPY Buy&Hold")
		table.Vals[0] = []float64{0.1, -0.5, 0.2, 1.0}
		table.Vals[1] = []float64{0.1, 0.1, math.NaN(), 0.1}
	})

	It("compounds returns", func() {
		cum := portfolio.CumulativeReturns(table)
		Expect(cum.Vals[1][0]).To(BeNumerically("~", 0.1, 1e-12))
		Expect(cum.Vals[1][1]).To(BeNumerically("~", 0.21, 1e-12))
		// missing days carry the prior value
		Expect(cum.Vals[1][2]).To(BeNumerically("~", 0.21, 1e-12))
		Expect(cum.Vals[1][3]).To(BeNumerically("~", 0.331, 1e-12))
		Expect(cum.Vals[0][3]).To(BeNumerically("~", 0.32, 1e-12))
	})

	It("finds the deepest drawdown and its recovery", func() {
		summaries := portfolio.Summarize(table, 0.02, 252)
		Expect(summaries).To(HaveLen(2))

		dd := summaries[0].MaxDrawDown
		Expect(dd).NotTo(BeNil())
		Expect(dd.Begin).To(Equal(dates[0]))
		Expect(dd.End).To(Equal(dates[1]))
		Expect(dd.Recovery).To(Equal(dates[3]))
		Expect(dd.LossPercent).To(BeNumerically("~", -0.5, 1e-12))

		Expect(summaries[1].MaxDrawDown).To(BeNil())
	})

	It("summarizes each column", func() {
		summaries := portfolio.Summarize(table, 0.02, 252)

		strategy := summaries[0]
		Expect(strategy.Name).To(Equal(portfolio.StrategyColumn))
		Expect(strategy.Days).To(Equal(4))
		Expect(strategy.TotalReturn).To(BeNumerically("~", 0.32, 1e-12))
		Expect(strategy.Volatility).To(BeNumerically(">", 0))
		Expect(math.IsNaN(strategy.Sharpe)).To(BeFalse())

		years := 3.0 / 365.25
		Expect(strategy.CAGR).To(BeNumerically("~", math.Pow(1.32, 1/years)-1, 1e-6))

		Expect(summaries[1].Days).To(Equal(3))
		Expect(summaries[1].TotalReturn).To(BeNumerically("~", 0.331, 1e-12))
	})

	It("leaves statistics undefined for empty columns", func() {
		empty := dataframe.New([]time.Time{}, portfolio.StrategyColumn)
		empty.Vals[0] = []float64{}
		summaries := portfolio.Summarize(empty, 0.02, 252)
		Expect(summaries).To(HaveLen(1))
		Expect(summaries[0].Days).To(Equal(0))
		Expect(math.IsNaN(summaries[0].TotalReturn)).To(BeTrue())
		Expect(summaries[0].MaxDrawDown).To(BeNil())
	})
})
