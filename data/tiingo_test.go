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

package data_test

import (
	"context"
	"net/http"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/pv-cluster/data"
)

const aaplJSON = `[
{"date":"2022-01-03T00:00:00.000Z","close":182.01,"high":182.88,"low":177.71,"open":177.83,"volume":104487900,"adjClose":180.434,"adjHigh":181.3,"adjLow":176.17,"adjOpen":176.29,"adjVolume":104487900,"divCash":0.0,"splitFactor":1.0},
{"date":"2022-01-04T00:00:00.000Z","close":179.7,"high":182.94,"low":179.12,"open":182.63,"volume":99310400,"adjClose":178.144,"adjHigh":181.36,"adjLow":177.57,"adjOpen":181.05,"adjVolume":99310400,"divCash":0.0,"splitFactor":1.0},
{"date":"2022-01-05T00:00:00.000Z","close":174.92,"high":180.17,"low":174.64,"open":179.61,"volume":94537600,"adjClose":173.405,"adjHigh":178.61,"adjLow":173.13,"adjOpen":178.06,"adjVolume":94537600,"divCash":0.0,"splitFactor":1.0}
]`

var _ = Describe("Tiingo", func() {
	var (
		ctx    context.Context
		tiingo *data.Tiingo
		begin  time.Time
		end    time.Time
	)

	BeforeEach(func() {
		httpmock.Activate()
		ctx = context.Background()
		tiingo = data.NewTiingo("TEST", data.WithConcurrency(2), data.WithRateLimit(0, 0))
		begin = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
		end = time.Date(2022, 1, 5, 0, 0, 0, 0, time.UTC)
	})

	AfterEach(func() {
		httpmock.DeactivateAndReset()
	})

	Context("when downloading prices", func() {
		It("parses the daily price json", func() {
			httpmock.RegisterResponder("GET", "https://api.tiingo.com/tiingo/daily/AAPL/prices?startDate=2022-01-01&endDate=2022-01-05&token=TEST",
				httpmock.NewStringResponder(200, aaplJSON))

			res, err := tiingo.FetchPrices(ctx, []string{"aapl"}, begin, end)
			Expect(err).To(BeNil())
			Expect(res).To(HaveKey("AAPL"))

			df := res["AAPL"]
			Expect(df.Len()).To(Equal(3))
			Expect(df.Dates[0]).To(Equal(time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)))
			Expect(df.Column(data.MetricAdjustedClose)[2]).To(BeNumerically("~", 173.405, 1e-9))
			Expect(df.Column(data.MetricHigh)[1]).To(BeNumerically("~", 182.94, 1e-9))
			Expect(df.Column(data.MetricVolume)[0]).To(BeNumerically("~", 104487900, 1e-9))
		})

		It("omits tickers that tiingo does not know", func() {
			httpmock.RegisterResponder("GET", `=~^https://api\.tiingo\.com/tiingo/daily/AAPL/prices`,
				httpmock.NewStringResponder(200, aaplJSON))
			httpmock.RegisterResponder("GET", `=~^https://api\.tiingo\.com/tiingo/daily/NOPE/prices`,
				httpmock.NewStringResponder(http.StatusNotFound, `{"detail":"Error: Ticker 'NOPE' not found"}`))
			httpmock.RegisterResponder("GET", `=~^https://api\.tiingo\.com/tiingo/daily/EMPTY/prices`,
				httpmock.NewStringResponder(200, `[]`))

			res, err := tiingo.FetchPrices(ctx, []string{"AAPL", "NOPE", "EMPTY"}, begin, end)
			Expect(err).To(BeNil())
			Expect(res.Tickers()).To(Equal([]string{"AAPL"}))
		})

		It("returns an error when every ticker fails", func() {
			httpmock.RegisterResponder("GET", `=~^https://api\.tiingo\.com/tiingo/daily/`,
				httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

			_, err := tiingo.FetchPrices(ctx, []string{"AAPL", "MSFT"}, begin, end)
			Expect(err).To(MatchError(data.ErrHTTPStatus))
		})

		It("uses an overridden base url", func() {
			custom := data.NewTiingo("KEY", data.WithTiingoURL("http://localhost:9999/"))
			httpmock.RegisterResponder("GET", "http://localhost:9999/tiingo/daily/AAPL/prices?startDate=2022-01-01&endDate=2022-01-05&token=KEY",
				httpmock.NewStringResponder(200, aaplJSON))

			res, err := custom.FetchPrices(ctx, []string{"AAPL"}, begin, end)
			Expect(err).To(BeNil())
			Expect(res["AAPL"].Len()).To(Equal(3))
			Expect(httpmock.GetTotalCallCount()).To(Equal(1))
		})
	})
})
