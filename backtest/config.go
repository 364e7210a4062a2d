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

package backtest

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/penny-vault/pv-cluster/cluster"
	"github.com/penny-vault/pv-cluster/common"
	"github.com/penny-vault/pv-cluster/data"
	"github.com/penny-vault/pv-cluster/features"
	"github.com/penny-vault/pv-cluster/indicators"
	"github.com/penny-vault/pv-cluster/portfolio"
	"github.com/spf13/viper"
)

const (
	ProviderTiingo = "tiingo"
	ProviderPvDb   = "pvdb"
)

// Config is the full configuration of a research run. The viper sections
// backtest, indicators, features, cluster and portfolio each decode into the
// matching field.
type Config struct {
	Index       string `mapstructure:"index" default:"S&P 500" validate:"required"`
	Years       int    `mapstructure:"years" default:"6" validate:"min=1"`
	WarmupYears int    `mapstructure:"warmup_years" default:"2" validate:"min=0"`
	Provider    string `mapstructure:"provider" default:"tiingo" validate:"oneof=tiingo pvdb"`
	// End is YYYY-MM-DD; empty means today
	End string `mapstructure:"end" validate:"omitempty,datetime=2006-01-02"`
	// Tickers replaces the index constituents when set
	Tickers []string `mapstructure:"tickers"`
	// Benchmark replaces the index benchmark when set
	Benchmark string `mapstructure:"benchmark"`

	Indicators indicators.Settings         `mapstructure:"indicators"`
	Features   features.Settings           `mapstructure:"features"`
	Cluster    cluster.Settings            `mapstructure:"cluster"`
	Portfolio  portfolio.OptimizerSettings `mapstructure:"portfolio"`
}

// Window is the date range of a run. Features are computed from
// FeatureBegin so the indicators and rolling estimates are warm by Begin.
type Window struct {
	FeatureBegin time.Time
	Begin        time.Time
	End          time.Time
}

var validate = validator.New()

// DefaultConfig returns the configuration of the reference study: the S&P
// 500 over six years with two warm up years
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// ConfigFromViper decodes the run configuration from viper over the defaults
// and validates it
func ConfigFromViper() (*Config, error) {
	cfg := DefaultConfig()
	sections := map[string]interface{}{
		"backtest":   cfg,
		"indicators": &cfg.Indicators,
		"features":   &cfg.Features,
		"cluster":    &cfg.Cluster,
		"portfolio":  &cfg.Portfolio,
	}
	// AllSettings includes values bound to flags and environment variables,
	// which UnmarshalKey on a parent key does not see
	settings := viper.AllSettings()
	for key, target := range sections {
		section, ok := settings[key].(map[string]interface{})
		if !ok {
			continue
		}
		sub := viper.New()
		if err := sub.MergeConfigMap(section); err != nil {
			return nil, fmt.Errorf("read %s config: %w", key, err)
		}
		if err := sub.Unmarshal(target); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", key, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field tag of the configuration
func (cfg *Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Tickers == nil {
		if _, err := data.LookupIndex(cfg.Index); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Window computes the run dates relative to now when End is empty. Years are
// counted as 365 days.
func (cfg *Config) Window(now time.Time) (Window, error) {
	end := common.Date(now)
	if cfg.End != "" {
		dt, err := time.Parse("2006-01-02", cfg.End)
		if err != nil {
			return Window{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		end = dt
	}

	begin := end.AddDate(0, 0, -365*cfg.Years)
	return Window{
		FeatureBegin: begin.AddDate(0, 0, -365*cfg.WarmupYears),
		Begin:        begin,
		End:          end,
	}, nil
}

// Universe returns the tickers to research and the index size used by the
// liquidity filter
func (cfg *Config) Universe() ([]string, error) {
	if cfg.Tickers != nil {
		tickers := append([]string{}, cfg.Tickers...)
		common.ArrToUpper(tickers)
		return common.UniqueSorted(tickers), nil
	}

	idx, err := data.LookupIndex(cfg.Index)
	if err != nil {
		return nil, err
	}
	return append([]string{}, idx.Tickers...), nil
}

// BenchmarkTicker is Benchmark when set, otherwise the index's benchmark
func (cfg *Config) BenchmarkTicker() string {
	if cfg.Benchmark != "" {
		return cfg.Benchmark
	}
	return data.BenchmarkTicker(cfg.Index)
}
