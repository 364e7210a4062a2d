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

package features

import (
	"context"

	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Build runs the monthly stages over enriched daily frames: aggregation and
// liquidity filter, multi-horizon returns, factor betas and the final
// completeness filter. Every frame of the result holds the feature columns
// in Settings.Columns order, one row per month end.
func Build(ctx context.Context, daily dataframe.Map, factors *dataframe.DataFrame, indexSize int, s Settings) (dataframe.Map, error) {
	_, span := otel.Tracer(opentelemetry.Name).Start(ctx, "features.Build")
	defer span.End()

	if factors == nil || factors.Len() == 0 {
		span.SetStatus(codes.Error, ErrNoFactorData.Error())
		return nil, ErrNoFactorData
	}

	monthly := Aggregate(daily, indexSize, s)
	withReturns := AddReturns(monthly, s)
	betas := EstimateBetas(withReturns, factors, s)
	joined := JoinBetas(withReturns, betas)

	cols := s.Columns()
	panel := make(dataframe.Map, len(joined))
	for ticker, df := range joined {
		ordered, err := df.Select(cols...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "panel is missing a feature column")
			return nil, err
		}
		panel[ticker] = ordered
	}

	span.SetAttributes(attribute.Int("Tickers", len(panel)), attribute.Int("Rows", panel.Len()))
	log.Info().
		Int("MonthlyTickers", len(monthly)).
		Int("BetaTickers", len(betas)).
		Int("PanelTickers", len(panel)).
		Int("PanelRows", panel.Len()).
		Msg("built feature panel")

	return panel, nil
}
