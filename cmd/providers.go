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

package cmd

import (
	"context"
	"errors"

	"github.com/penny-vault/pv-cluster/backtest"
	"github.com/penny-vault/pv-cluster/data"
	"github.com/penny-vault/pv-cluster/data/database"
	"github.com/spf13/viper"
)

var ErrMissingToken = errors.New("tiingo token is required; set --tiingo-token or TIINGO_TOKEN")

func init() {
	viper.SetDefault("tiingo.rate_limit", 0)
	viper.SetDefault("tiingo.burst", 1)
	viper.SetDefault("tiingo.concurrency", 10)
	viper.SetDefault("famafrench.url", "")
}

// newProviders creates the price provider named in the configuration and the
// Fama-French factor provider
func newProviders(ctx context.Context, cfg *backtest.Config) (backtest.Providers, error) {
	providers := backtest.Providers{
		Factors: data.NewFamaFrench(viper.GetString("famafrench.url")),
	}

	switch cfg.Provider {
	case backtest.ProviderPvDb:
		if err := database.Connect(ctx, viper.GetString("database.url")); err != nil {
			return providers, err
		}
		pool, err := database.Pool()
		if err != nil {
			return providers, err
		}
		providers.Prices = data.NewPvDb(pool)
	default:
		token := viper.GetString("tiingo.token")
		if token == "" {
			return providers, ErrMissingToken
		}
		providers.Prices = data.NewTiingo(token,
			data.WithRateLimit(viper.GetFloat64("tiingo.rate_limit"), viper.GetInt("tiingo.burst")),
			data.WithConcurrency(viper.GetInt("tiingo.concurrency")),
		)
	}

	return providers, nil
}
