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

// Package backtest runs the research pipeline end to end: daily prices to
// indicators, the monthly feature panel, cluster assignments, the monthly
// max-Sharpe rebalance and the benchmark comparison.
package backtest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/penny-vault/pv-cluster/cluster"
	"github.com/penny-vault/pv-cluster/data"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/features"
	"github.com/penny-vault/pv-cluster/indicators"
	"github.com/penny-vault/pv-cluster/observability/opentelemetry"
	"github.com/penny-vault/pv-cluster/portfolio"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrNoData        = errors.New("no data to run the backtest on")
	ErrInvalidConfig = errors.New("invalid backtest configuration")
)

// Providers are the data sources of a run
type Providers struct {
	Prices  data.PriceProvider
	Factors data.FactorProvider
}

// Panel is the monthly feature panel along with the dates it covers
type Panel struct {
	RunID  uuid.UUID
	Window Window
	// Features has one frame per ticker with the feature columns
	Features dataframe.Map
}

type Result struct {
	*Panel

	Benchmark   string
	Assignments cluster.Assignments
	// Labeled is Features with a cluster column
	Labeled  dataframe.Map
	Universe portfolio.Universe
	Backtest *portfolio.Backtest
	// Comparison holds the strategy and benchmark daily log returns
	Comparison *dataframe.DataFrame
	Summaries  []*portfolio.Summary
}

// BuildPanel fetches index prices and factor returns and computes the
// monthly feature panel
func BuildPanel(ctx context.Context, cfg *Config, providers Providers) (*Panel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return buildPanel(ctx, cfg, providers, uuid.New(), time.Now())
}

func buildPanel(ctx context.Context, cfg *Config, providers Providers, runID uuid.UUID, now time.Time) (*Panel, error) {
	window, err := cfg.Window(now)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "backtest.BuildPanel")
	defer span.End()
	span.SetAttributes(opentelemetry.RunAttributes(runID.String(), cfg.Index, window.Begin, window.End)...)

	subLog := log.With().Str("RunID", runID.String()).Str("Index", cfg.Index).Logger()

	tickers, err := cfg.Universe()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown universe")
		return nil, err
	}

	subLog.Info().Time("FeatureBegin", window.FeatureBegin).Time("Begin", window.Begin).Time("End", window.End).Int("NumTickers", len(tickers)).Msg("fetching index prices")

	prices, err := providers.Prices.FetchPrices(ctx, tickers, window.FeatureBegin, window.End)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "price fetch failed")
		subLog.Error().Err(err).Msg("could not fetch index prices")
		return nil, err
	}
	if len(prices) == 0 {
		span.SetStatus(codes.Error, ErrNoData.Error())
		subLog.Error().Msg("no prices returned for any index constituent")
		return nil, ErrNoData
	}

	factors, err := providers.Factors.FetchFactorReturns(ctx, window.FeatureBegin)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "factor fetch failed")
		subLog.Error().Err(err).Msg("could not fetch factor returns")
		return nil, err
	}

	daily := indicators.Compute(prices, cfg.Indicators)
	panel, err := features.Build(ctx, daily, factors, len(tickers), cfg.Features)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "feature panel failed")
		return nil, err
	}
	if panel.Len() == 0 {
		span.SetStatus(codes.Error, ErrNoData.Error())
		subLog.Error().Msg("feature panel is empty after removing incomplete rows")
		return nil, ErrNoData
	}

	span.SetAttributes(attribute.Int("PanelRows", panel.Len()))
	return &Panel{RunID: runID, Window: window, Features: panel}, nil
}

// Run executes the full pipeline. A nil assigner uses k-means built from
// cfg.Cluster over the feature columns.
func Run(ctx context.Context, cfg *Config, providers Providers, assigner cluster.Assigner) (*Result, error) {
	return run(ctx, cfg, providers, assigner, time.Now())
}

func run(ctx context.Context, cfg *Config, providers Providers, assigner cluster.Assigner, now time.Time) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New()
	subLog := log.With().Str("RunID", runID.String()).Str("Index", cfg.Index).Logger()

	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "backtest.Run")
	defer span.End()

	if assigner == nil {
		clusterCfg, err := cfg.Cluster.Config(cfg.Features.Columns())
		if err != nil {
			return nil, err
		}
		if assigner, err = cluster.New(clusterCfg); err != nil {
			return nil, err
		}
	}

	panel, err := buildPanel(ctx, cfg, providers, runID, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "could not build panel")
		return nil, err
	}
	span.SetAttributes(opentelemetry.RunAttributes(runID.String(), cfg.Index, panel.Window.Begin, panel.Window.End)...)

	assignments, err := assigner.Assign(ctx, panel.Features)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cluster assignment failed")
		subLog.Error().Err(err).Msg("could not assign clusters")
		return nil, err
	}

	res := &Result{
		Panel:       panel,
		Benchmark:   cfg.BenchmarkTicker(),
		Assignments: assignments,
		Labeled:     cluster.Label(panel.Features, assignments),
	}

	res.Universe = portfolio.BuildUniverse(assignments, cfg.Cluster.Target, portfolio.Cutoff(panel.Window.End))
	subLog.Info().Int("Rebalances", len(res.Universe)).Int("Target", cfg.Cluster.Target).Msg("built fixed date universe")

	holdings, err := fetchUniversePrices(ctx, providers.Prices, res.Universe, cfg.Portfolio.LookbackMonths, panel.Window.End, subLog)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "universe price fetch failed")
		return nil, err
	}

	res.Backtest, err = portfolio.Rebalance(ctx, res.Universe, holdings, cfg.Portfolio)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rebalance failed")
		return nil, err
	}

	benchmark, err := fetchBenchmark(ctx, providers.Prices, res.Benchmark, panel.Window, subLog)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "benchmark fetch failed")
		return nil, err
	}

	res.Comparison = portfolio.CompareBenchmark(res.Backtest.Returns, benchmark, portfolio.BenchmarkColumn(res.Benchmark))
	res.Summaries = portfolio.Summarize(res.Comparison, cfg.Portfolio.RiskFreeRate, cfg.Portfolio.TradingDays)

	span.SetAttributes(
		attribute.Int("Periods", len(res.Backtest.Periods)),
		attribute.Int("Skipped", len(res.Backtest.Skipped)),
	)
	subLog.Info().
		Int("Periods", len(res.Backtest.Periods)).
		Int("Skipped", len(res.Backtest.Skipped)).
		Int("Days", res.Comparison.Len()).
		Str("Benchmark", res.Benchmark).
		Msg("backtest complete")

	return res, nil
}

// fetchUniversePrices loads adjusted closes for every ticker that is ever held,
// over the lookback of the first rebalance through the last holding month
func fetchUniversePrices(ctx context.Context, provider data.PriceProvider, universe portfolio.Universe, lookbackMonths int, end time.Time, subLog zerolog.Logger) (*dataframe.DataFrame, error) {
	tickers := universe.Tickers()
	if len(tickers) == 0 {
		subLog.Warn().Msg("target cluster is empty in every month")
		return dataframe.New([]time.Time{}), nil
	}

	begin, last := universe.PriceWindow(lookbackMonths, end)
	prices, err := provider.FetchPrices(ctx, tickers, begin, last)
	if err != nil {
		subLog.Error().Err(err).Msg("could not fetch universe prices")
		return nil, err
	}
	return prices.Wide(data.MetricAdjustedClose), nil
}

// fetchBenchmark returns the benchmark's adjusted close over the displayed
// window. A benchmark without prices gives an empty frame.
func fetchBenchmark(ctx context.Context, provider data.PriceProvider, ticker string, window Window, subLog zerolog.Logger) (*dataframe.DataFrame, error) {
	prices, err := provider.FetchPrices(ctx, []string{ticker}, window.Begin, window.End)
	if err != nil {
		subLog.Error().Err(err).Str("Benchmark", ticker).Msg("could not fetch benchmark prices")
		return nil, err
	}

	df, ok := prices[ticker]
	if !ok {
		subLog.Warn().Str("Benchmark", ticker).Msg("no benchmark prices; comparison will be empty")
		return dataframe.New([]time.Time{}), nil
	}

	return df.Select(data.MetricAdjustedClose)
}
