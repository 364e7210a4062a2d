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

package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/penny-vault/pv-cluster/common"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// StrategyColumn names the strategy's daily return column
const StrategyColumn = "Strategy Return"

var (
	ErrTickerNotPriced = errors.New("selected ticker has no prices")
	ErrNoReturns       = errors.New("no returns in holding period")
)

// Period records one rebalance
type Period struct {
	Start   time.Time
	End     time.Time
	Tickers []string
	Weights Weights
	// Fallback is set when the optimizer failed and equal weights were used
	Fallback bool
	Reason   FailureReason
}

// SkippedPeriod is a rebalance that contributed no returns
type SkippedPeriod struct {
	Start time.Time
	Err   error
}

// Backtest is the outcome of the rebalancing loop
type Backtest struct {
	// Returns has a single StrategyColumn of daily weighted log returns
	Returns *dataframe.DataFrame
	Periods []*Period
	Skipped []*SkippedPeriod
}

// Rebalance walks the universe in date order. For each start date D the
// optimizer sees prices from D minus the lookback through the day before D;
// the resulting weights are applied to daily log returns from D through the
// end of D's month. Each day's return is the weighted sum over tickers with a
// return that day. A failed optimization falls back to equal weights; a
// period whose tickers are not all priced, or that has no returns, is
// skipped. Returns are stacked in date order keeping the first value for any
// repeated date. Duplicates are matched on date only, so distinct days with
// equal returns are all kept.
func Rebalance(ctx context.Context, universe Universe, prices *dataframe.DataFrame, s OptimizerSettings) (*Backtest, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "portfolio.Rebalance")
	defer span.End()

	logRets := prices.Log().Diff()
	result := &Backtest{}
	segments := make([]*dataframe.DataFrame, 0, len(universe))

	for _, start := range universe.Dates() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tickers := universe[start]
		period, segment, err := rebalancePeriod(start, tickers, prices, logRets, s)
		if err != nil {
			log.Warn().Err(err).Time("Start", start).Strs("Tickers", tickers).Msg("skipping rebalance period")
			result.Skipped = append(result.Skipped, &SkippedPeriod{Start: start, Err: err})
			continue
		}

		result.Periods = append(result.Periods, period)
		segments = append(segments, segment)
	}

	if len(segments) == 0 {
		result.Returns = dataframe.New([]time.Time{}, StrategyColumn)
		result.Returns.Vals[0] = []float64{}
	} else {
		result.Returns = dataframe.Concat(segments...)
	}

	span.SetAttributes(
		attribute.Int("Periods", len(result.Periods)),
		attribute.Int("Skipped", len(result.Skipped)),
		attribute.Int("Days", result.Returns.Len()),
	)
	log.Info().Int("Periods", len(result.Periods)).Int("Skipped", len(result.Skipped)).Int("Days", result.Returns.Len()).Msg("rebalancing complete")

	return result, nil
}

func rebalancePeriod(start time.Time, tickers []string, prices, logRets *dataframe.DataFrame, s OptimizerSettings) (*Period, *dataframe.DataFrame, error) {
	end := common.MonthEnd(start)
	optBegin := common.AddMonths(start, -s.LookbackMonths)
	optEnd := start.AddDate(0, 0, -1)

	window, err := prices.Trim(optBegin, optEnd).Select(tickers...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTickerNotPriced, err)
	}

	period := &Period{Start: start, End: end, Tickers: tickers}

	weights, err := MaxSharpe(window, LowerBound(len(tickers)), s.MaxWeight, s)
	if err != nil {
		var solveErr *SolveError
		if errors.As(err, &solveErr) {
			period.Reason = solveErr.Reason
		}
		log.Warn().Err(err).Time("Start", start).Int("NumTickers", len(tickers)).Msg("max sharpe optimization failed; continuing with equal weights")
		weights = EqualWeights(tickers)
		period.Fallback = true
	}
	period.Weights = weights

	held, err := logRets.Trim(start, end).Select(tickers...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTickerNotPriced, err)
	}

	segment := dataframe.New([]time.Time{}, StrategyColumn)
	segment.Vals[0] = []float64{}
	for row, dt := range held.Dates {
		total := 0.0
		priced := false
		for colIdx, ticker := range held.ColNames {
			r := held.Vals[colIdx][row]
			if math.IsNaN(r) {
				continue
			}
			total += weights[ticker] * r
			priced = true
		}
		if priced {
			segment.InsertRow(dt, total)
		}
	}

	if segment.Len() == 0 {
		return nil, nil, ErrNoReturns
	}

	return period, segment, nil
}
