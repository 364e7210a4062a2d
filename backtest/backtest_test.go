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

package backtest_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/pv-cluster/backtest"
	"github.com/penny-vault/pv-cluster/cluster"
	"github.com/penny-vault/pv-cluster/features"
	"github.com/penny-vault/pv-cluster/portfolio"
	"github.com/spf13/viper"
)

var _ = Describe("Backtest", func() {
	var (
		ctx       context.Context
		cfg       *backtest.Config
		prices    *syntheticPrices
		providers backtest.Providers
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = backtest.DefaultConfig()
		cfg.Tickers = tickerNames(12)
		cfg.Years = 2
		cfg.WarmupYears = 4
		cfg.End = "2022-12-30"
		cfg.Features.LiquidityFraction = 1.0

		prices = &syntheticPrices{}
		providers = backtest.Providers{Prices: prices, Factors: syntheticFactors{}}
	})

	Describe("configuration", func() {
		It("defaults to six years of the S&P 500 with two warm up years", func() {
			def := backtest.DefaultConfig()
			Expect(def.Index).To(Equal("S&P 500"))
			Expect(def.Years).To(Equal(6))
			Expect(def.WarmupYears).To(Equal(2))
			Expect(def.Provider).To(Equal(backtest.ProviderTiingo))
			Expect(def.Features.LiquidityFraction).To(Equal(0.3))
			Expect(def.Cluster.K).To(Equal(4))
			Expect(def.Portfolio.MaxWeight).To(Equal(0.1))
			Expect(def.Validate()).To(Succeed())
			Expect(def.BenchmarkTicker()).To(Equal("SPY"))
		})

		It("computes the run window in 365 day years", func() {
			cfg.Years = 6
			cfg.WarmupYears = 2
			window, err := cfg.Window(time.Now())
			Expect(err).To(BeNil())
			Expect(window.End).To(Equal(time.Date(2022, 12, 30, 0, 0, 0, 0, time.UTC)))
			Expect(window.Begin).To(Equal(window.End.AddDate(0, 0, -2190)))
			Expect(window.FeatureBegin).To(Equal(window.Begin.AddDate(0, 0, -730)))
		})

		It("uses today when no end date is set", func() {
			cfg.End = ""
			now := time.Date(2024, 5, 6, 15, 4, 5, 0, time.UTC)
			window, err := cfg.Window(now)
			Expect(err).To(BeNil())
			Expect(window.End).To(Equal(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)))
		})

		DescribeTable("rejects invalid settings",
			func(mutate func(*backtest.Config)) {
				mutate(cfg)
				Expect(errors.Is(cfg.Validate(), backtest.ErrInvalidConfig)).To(BeTrue())
			},
			Entry("unknown provider", func(c *backtest.Config) { c.Provider = "yahoo" }),
			Entry("bad end date", func(c *backtest.Config) { c.End = "12/30/2022" }),
			Entry("unknown index", func(c *backtest.Config) { c.Tickers = nil; c.Index = "FTSE 100" }),
			Entry("target outside K", func(c *backtest.Config) { c.Cluster.Target = 4 }),
			Entry("zero years", func(c *backtest.Config) { c.Years = 0 }),
		)

		It("reads sections from viper over the defaults", func() {
			defer viper.Reset()
			viper.Set("backtest.years", 3)
			viper.Set("backtest.index", "Dow Jones")
			viper.Set("features.liquidity_fraction", 0.5)
			viper.Set("cluster.target", 1)
			viper.Set("portfolio.max_weight", 0.2)

			loaded, err := backtest.ConfigFromViper()
			Expect(err).To(BeNil())
			Expect(loaded.Years).To(Equal(3))
			Expect(loaded.WarmupYears).To(Equal(2))
			Expect(loaded.Index).To(Equal("Dow Jones"))
			Expect(loaded.BenchmarkTicker()).To(Equal("DIA"))
			Expect(loaded.Features.LiquidityFraction).To(Equal(0.5))
			Expect(loaded.Features.DollarVolumeWindow).To(Equal(60))
			Expect(loaded.Cluster.Target).To(Equal(1))
			Expect(loaded.Cluster.K).To(Equal(4))
			Expect(loaded.Portfolio.MaxWeight).To(Equal(0.2))
			Expect(loaded.Portfolio.RiskFreeRate).To(Equal(0.02))
		})

		It("rejects invalid viper settings", func() {
			defer viper.Reset()
			viper.Set("backtest.provider", "yahoo")
			_, err := backtest.ConfigFromViper()
			Expect(err).To(MatchError(backtest.ErrInvalidConfig))
		})

		It("normalizes explicit tickers", func() {
			cfg.Tickers = []string{"msft", " aapl", "MSFT"}
			tickers, err := cfg.Universe()
			Expect(err).To(BeNil())
			Expect(tickers).To(Equal([]string{"AAPL", "MSFT"}))
		})

		It("maps the benchmark from the index", func() {
			cfg.Index = "NASDAQ 100"
			Expect(cfg.BenchmarkTicker()).To(Equal("QQQ"))
			cfg.Benchmark = "VTI"
			Expect(cfg.BenchmarkTicker()).To(Equal("VTI"))
		})
	})

	Describe("building the panel", func() {
		It("produces complete monthly feature rows", func() {
			panel, err := backtest.BuildPanel(ctx, cfg, providers)
			Expect(err).To(BeNil())
			for _, df := range panel.Features {
				Expect(df.ColNames).To(Equal(features.Columns()))
			}
		})

		It("keeps tickers ranked strictly below the liquidity count", func() {
			// int(12 * 1.0) is 12 and rank < 12 drops the least liquid ticker
			panel, err := backtest.BuildPanel(ctx, cfg, providers)
			Expect(err).To(BeNil())
			Expect(len(panel.Features)).To(BeNumerically(">=", 11))
			Expect(len(panel.Features)).To(BeNumerically("<=", 12))

			perMonth := map[time.Time]int{}
			for _, df := range panel.Features {
				for _, dt := range df.Dates {
					perMonth[dt]++
				}
			}
			Expect(perMonth).NotTo(BeEmpty())
			counts := []int{}
			for _, cnt := range perMonth {
				Expect(cnt).To(BeNumerically("<=", 11))
				counts = append(counts, cnt)
			}
			Expect(counts).To(ContainElement(11))
		})

		It("stops when no prices are returned", func() {
			prices.missing = map[string]bool{}
			for _, ticker := range cfg.Tickers {
				prices.missing[ticker] = true
			}
			_, err := backtest.BuildPanel(ctx, cfg, providers)
			Expect(err).To(MatchError(backtest.ErrNoData))
		})
	})

	Describe("running", func() {
		It("runs every stage and compares with the benchmark", func() {
			assigner := &constantAssigner{label: cfg.Cluster.Target}
			res, err := backtest.Run(ctx, cfg, providers, assigner)
			Expect(err).To(BeNil())

			for _, df := range assigner.panel {
				Expect(df.ColNames).To(Equal(features.Columns()))
			}

			cutoff := time.Date(2022, 12, 1, 0, 0, 0, 0, time.UTC)
			Expect(res.Universe).NotTo(BeEmpty())
			for _, dt := range res.Universe.Dates() {
				Expect(dt.Before(cutoff)).To(BeTrue())
				Expect(dt.Day()).To(Equal(1))
				Expect(res.Universe[dt]).NotTo(BeEmpty())
				Expect(len(res.Universe[dt])).To(BeNumerically("<=", 11))
			}

			Expect(res.Backtest.Periods).To(HaveLen(len(res.Universe)))
			Expect(res.Backtest.Skipped).To(BeEmpty())

			Expect(res.Benchmark).To(Equal("SPY"))
			Expect(res.Comparison.ColNames).To(Equal([]string{portfolio.StrategyColumn, "SPY Buy&Hold"}))
			Expect(res.Comparison.Len()).To(BeNumerically(">", 400))
			Expect(res.Comparison.Start().After(res.Window.Begin)).To(BeTrue())
			Expect(res.Comparison.End().Before(cutoff)).To(BeTrue())

			Expect(res.Summaries).To(HaveLen(2))
			for _, df := range res.Labeled {
				Expect(df.ColNames).To(ContainElement(cluster.ColCluster))
			}

			// index, universe and benchmark
			Expect(prices.calls).To(Equal(3))
		})

		It("has no holdings when the target cluster is never assigned", func() {
			assigner := &constantAssigner{label: 0}
			res, err := backtest.Run(ctx, cfg, providers, assigner)
			Expect(err).To(BeNil())
			Expect(res.Universe).To(BeEmpty())
			Expect(res.Backtest.Periods).To(BeEmpty())
			Expect(res.Comparison.Len()).To(Equal(0))
		})

		It("returns assigner errors", func() {
			boom := errors.New("boom")
			_, err := backtest.Run(ctx, cfg, providers, &constantAssigner{err: boom})
			Expect(err).To(MatchError(boom))
		})

		It("clusters with k-means by default", func() {
			res, err := backtest.Run(ctx, cfg, providers, nil)
			Expect(err).To(BeNil())
			Expect(res.Assignments).NotTo(BeEmpty())
			for _, labels := range res.Assignments {
				for _, label := range labels {
					Expect(label).To(BeNumerically(">=", 0))
					Expect(label).To(BeNumerically("<", cfg.Cluster.K))
				}
			}
		})
	})
})
