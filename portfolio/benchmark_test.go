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

var _ = Describe("Benchmark", func() {
	DescribeTable("names the benchmark column",
		func(ticker, expected string) {
			Expect(portfolio.BenchmarkColumn(ticker)).To(Equal(expected))
		},
		Entry("S&P 500", "SPY", "SPY Buy&Hold"),
		Entry("NASDAQ 100", "QQQ", "QQQ Buy&Hold"),
		Entry("Dow Jones", "DIA", "DOW Jones Buy&Hold"),
	)

	It("joins strategy and benchmark log returns on common dates", func() {
		day := func(d int) time.Time { return time.Date(2023, 3, d, 0, 0, 0, 0, time.UTC) }

		strategy := dataframe.New([]time.Time{day(2), day(3), day(6)}, portfolio.StrategyColumn)
		strategy.Vals[0] = []float64{0.01, -0.02, 0.03}

		benchmark := dataframe.New([]time.Time{day(1), day(2), day(6), day(7)}, "SPY")
		benchmark.Vals[0] = []float64{100, 101, 99, 100}

		table := portfolio.CompareBenchmark(strategy, benchmark, "SPY Buy&Hold")
		Expect(table.ColNames).To(Equal([]string{portfolio.StrategyColumn, "SPY Buy&Hold"}))
		Expect(table.Dates).To(Equal([]time.Time{day(2), day(6)}))
		Expect(table.Vals[0]).To(Equal([]float64{0.01, 0.03}))
		Expect(table.Vals[1][0]).To(BeNumerically("~", math.Log(101.0/100), 1e-12))
		Expect(table.Vals[1][1]).To(BeNumerically("~", math.Log(99.0/101), 1e-12))
	})

	It("is empty without benchmark prices", func() {
		strategy := dataframe.New([]time.Time{time.Date(2023, 3, 2, 0, 0, 0, 0, time.UTC)}, portfolio.StrategyColumn)
		strategy.Vals[0] = []float64{0.01}

		table := portfolio.CompareBenchmark(strategy, dataframe.New([]time.Time{}), "QQQ Buy&Hold")
		Expect(table.Len()).To(Equal(0))
		Expect(table.ColNames).To(Equal([]string{portfolio.StrategyColumn, "QQQ Buy&Hold"}))
	})
})
