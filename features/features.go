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

// Package features turns enriched daily prices into the monthly feature
// panel: month-end aggregation, the dollar-volume liquidity filter,
// multi-horizon returns and rolling Fama-French factor betas.
package features

import (
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/penny-vault/pv-cluster/data"
	"github.com/penny-vault/pv-cluster/indicators"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoFactorData = errors.New("no factor returns available")
)

// Settings controls the monthly aggregation and beta estimation
type Settings struct {
	LiquidityFraction      float64 `mapstructure:"liquidity_fraction" default:"0.3" validate:"gt=0,lte=1"`
	DollarVolumeWindow     int     `mapstructure:"dollar_volume_window" default:"60" validate:"min=1"`
	DollarVolumeMinPeriods int     `mapstructure:"dollar_volume_min_periods" default:"12" validate:"min=1,ltefield=DollarVolumeWindow"`
	ReturnLags             []int   `mapstructure:"return_lags" default:"[1,2,3,6,9,12]" validate:"min=1,dive,min=1"`
	OutlierCutoff          float64 `mapstructure:"outlier_cutoff" default:"0.005" validate:"gte=0,lt=0.5"`
	BetaWindow             int     `mapstructure:"beta_window" default:"24" validate:"min=1"`
	BetaMinObservations    int     `mapstructure:"beta_min_observations" default:"10" validate:"min=1"`
	Expanding              bool    `mapstructure:"expanding"`
}

// DefaultSettings returns a 30% liquidity filter over a 60 month dollar
// volume mean (12 months minimum), returns at 1, 2, 3, 6, 9 and 12 months
// clipped at the 0.5% tails and a 24 month beta window
func DefaultSettings() Settings {
	var s Settings
	if err := defaults.Set(&s); err != nil {
		log.Panic().Err(err).Msg("invalid feature defaults")
	}
	return s
}

// ReturnColumn names the annualized return feature for a lag in months
func ReturnColumn(lag int) string {
	return fmt.Sprintf("return_%dm", lag)
}

// Columns lists the panel's feature columns in the order the clusterer
// consumes them
func (s Settings) Columns() []string {
	cols := append([]string{}, indicators.Columns...)
	for _, lag := range s.ReturnLags {
		cols = append(cols, ReturnColumn(lag))
	}
	return append(cols, data.FactorColumns...)
}

// Columns is the feature order for the default settings
func Columns() []string {
	return DefaultSettings().Columns()
}
