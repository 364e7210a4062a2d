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

package data

import (
	"context"
	"time"

	"github.com/penny-vault/pv-cluster/common"
	"github.com/penny-vault/pv-cluster/data/database"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const eodQuery = "SELECT ticker, event_date, open, high, low, close, adj_close, volume FROM eod WHERE ticker = ANY($1) AND event_date BETWEEN $2 AND $3 ORDER BY ticker, event_date"

// PvDb reads end-of-day prices from a penny-vault database
type PvDb struct {
	db database.Querier
}

// NewPvDb Create a new PVDB data provider
func NewPvDb(db database.Querier) *PvDb {
	return &PvDb{db: db}
}

// FetchPrices loads every ticker with a single query
func (p *PvDb) FetchPrices(ctx context.Context, tickers []string, begin, end time.Time) (dataframe.Map, error) {
	ctx, span := otel.Tracer(opentelemetry.Name).Start(ctx, "pvdb.FetchPrices")
	defer span.End()

	subLog := log.With().Int("NumTickers", len(tickers)).Time("Begin", begin).Time("End", end).Logger()

	if end.Before(begin) {
		span.SetStatus(codes.Error, ErrBeginAfterEnd.Error())
		subLog.Warn().Stack().Msg("end before begin in call to FetchPrices")
		return nil, ErrBeginAfterEnd
	}

	symbols := append([]string{}, tickers...)
	common.ArrToUpper(symbols)
	symbols = common.UniqueSorted(symbols)
	if len(symbols) == 0 {
		return nil, ErrNoTickers
	}

	span.SetAttributes(attribute.Int("NumTickers", len(symbols)))

	rows, err := p.db.Query(ctx, eodQuery, symbols, begin, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "database query failed")
		subLog.Error().Stack().Err(err).Msg("could not query eod prices")
		return nil, err
	}
	defer rows.Close()

	res := make(dataframe.Map, len(symbols))
	for rows.Next() {
		var (
			ticker                                   string
			dt                                       time.Time
			open, high, low, closePrice, adj, volume float64
		)
		if err := rows.Scan(&ticker, &dt, &open, &high, &low, &closePrice, &adj, &volume); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "could not scan row")
			subLog.Error().Stack().Err(err).Msg("could not SCAN DB result")
			return nil, err
		}

		df, ok := res[ticker]
		if !ok {
			df = newPriceFrame(252)
			res[ticker] = df
		}

		if !appendPriceRow(df, common.Date(dt), open, high, low, closePrice, adj, volume) {
			subLog.Debug().Str("Ticker", ticker).Time("Date", dt).Msg("skipping duplicate eod row")
		}
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "row iteration failed")
		return nil, err
	}

	for _, symbol := range symbols {
		if _, ok := res[symbol]; !ok {
			subLog.Warn().Str("Ticker", symbol).Msg("no price data for ticker")
		}
	}

	subLog.Info().Int("Loaded", len(res)).Msg("loaded prices from database")
	return res, nil
}
