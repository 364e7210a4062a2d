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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/pv-cluster/cluster"
	"github.com/penny-vault/pv-cluster/portfolio"
)

var _ = Describe("Universe", func() {
	var assignments cluster.Assignments

	BeforeEach(func() {
		assignments = cluster.Assignments{
			time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC): {"MSFT": 3, "AAPL": 3, "XOM": 1},
			time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC): {"XOM": 3, "AAPL": 0},
			time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC): {"MSFT": 3},
			time.Date(2023, 4, 30, 0, 0, 0, 0, time.UTC): {"NVDA": 3},
		}
	})

	It("shifts a month end to the first of the next month", func() {
		Expect(portfolio.ShiftForward(time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC))).To(Equal(time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)))
		Expect(portfolio.ShiftForward(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))).To(Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	})

	It("selects the target cluster dated at the next month and sorted", func() {
		u := portfolio.BuildUniverse(assignments, 3, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
		Expect(u.Dates()).To(Equal([]time.Time{
			time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		}))
		Expect(u[time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)]).To(Equal([]string{"AAPL", "MSFT"}))
		Expect(u.Tickers()).To(Equal([]string{"AAPL", "MSFT", "NVDA", "XOM"}))
	})

	It("excludes rebalances at or after the cutoff", func() {
		cutoff := portfolio.Cutoff(time.Date(2023, 5, 17, 0, 0, 0, 0, time.UTC))
		Expect(cutoff).To(Equal(time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)))

		u := portfolio.BuildUniverse(assignments, 3, cutoff)
		Expect(u).To(HaveLen(3))
		Expect(u).ToNot(HaveKey(time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)))
	})

	It("spans the lookback before the first rebalance through the last month", func() {
		u := portfolio.BuildUniverse(assignments, 3, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
		begin, end := u.PriceWindow(12, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
		Expect(begin).To(Equal(time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC)))
		Expect(end).To(Equal(time.Date(2023, 5, 31, 0, 0, 0, 0, time.UTC)))

		_, capped := u.PriceWindow(12, time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC))
		Expect(capped).To(Equal(time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC)))
	})
})
