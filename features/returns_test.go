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
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/features"
)

var _ = Describe("Multi-horizon returns", func() {
	It("compounds a constant growth rate back to the monthly rate", func() {
		df := enrichedMonthlyRows(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 24, 1, 0.01)
		res := features.AddReturns(dataframe.Map{"AAA": df}, features.DefaultSettings())

		out := res["AAA"]
		Expect(out.Len()).To(Equal(12))
		for _, lag := range []int{1, 2, 3, 6, 9, 12} {
			for _, v := range out.Column(features.ReturnColumn(lag)) {
				Expect(v).To(BeNumerically("~", 0.01, 1e-12))
			}
		}
	})

	It("clips each horizon to its own tail quantiles", func() {
		prices := make([]float64, 300)
		prices[0] = 100
		for ii := 1; ii < len(prices); ii++ {
			prices[ii] = prices[ii-1] * (1 + 0.01*math.Sin(float64(ii)))
		}
		prices[150] = prices[149] * 3

		pct := dataframe.PctChange(prices, 1)
		hi := dataframe.Quantile(pct, 0.995)
		lo := dataframe.Quantile(pct, 0.005)

		res := features.AnnualizedReturn(prices, 1, 0.005)
		Expect(math.IsNaN(res[0])).To(BeTrue())
		Expect(res[150]).To(BeNumerically("~", hi, 1e-12))
		for _, v := range res[1:] {
			Expect(v).To(BeNumerically("<=", hi+1e-12))
			Expect(v).To(BeNumerically(">=", lo-1e-12))
		}
	})

	It("annualizes the clipped multi-month return geometrically", func() {
		prices := []float64{100, 110, 121, 133.1}
		res := features.AnnualizedReturn(prices, 2, 0)
		Expect(res[2]).To(BeNumerically("~", 0.1, 1e-12))
		Expect(res[3]).To(BeNumerically("~", 0.1, 1e-12))
	})

	It("drops tickers that have no complete rows", func() {
		df := enrichedMonthlyRows(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), 10, 1, 0.01)
		res := features.AddReturns(dataframe.Map{"AAA": df}, features.DefaultSettings())
		Expect(res).To(BeEmpty())
	})
})
