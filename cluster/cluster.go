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

// Package cluster assigns tickers to momentum regimes by running k-means
// independently on each month's cross section of the feature panel.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/indicators"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidConfig  = errors.New("invalid cluster configuration")
	ErrMissingFeature = errors.New("panel is missing a feature column")
)

// ColCluster is the column added by Label
const ColCluster = "cluster"

// Assignments maps month end -> ticker -> cluster label
type Assignments map[time.Time]map[string]int

// Assigner labels every (month, ticker) row of a feature panel
type Assigner interface {
	Assign(ctx context.Context, panel dataframe.Map) (Assignments, error)
}

// Settings are the user facing knobs; Config is built from them
type Settings struct {
	K             int       `mapstructure:"k" default:"4" validate:"min=1"`
	Seed          int64     `mapstructure:"seed"`
	MaxIterations int       `mapstructure:"max_iterations" default:"300" validate:"min=1"`
	Tolerance     float64   `mapstructure:"tolerance" default:"0.0001" validate:"gte=0"`
	Target        int       `mapstructure:"target" default:"3" validate:"gte=0,ltfield=K"`
	RSICentroids  []float64 `mapstructure:"rsi_centroids" default:"[30,45,55,75]"`
}

// Config fully determines a clustering run
type Config struct {
	K        int
	Features []string
	// InitialCentroids has K rows of len(Features) values; when nil the
	// centroids are seeded with k-means++ from Seed
	InitialCentroids [][]float64
	Seed             int64
	MaxIterations    int
	// Tolerance is relative to the mean per-feature variance of the month
	Tolerance float64
}

// DefaultSettings returns four clusters seeded at RSI 30, 45, 55 and 75
func DefaultSettings() Settings {
	var s Settings
	if err := defaults.Set(&s); err != nil {
		log.Panic().Err(err).Msg("invalid cluster defaults")
	}
	return s
}

// Config builds a clustering configuration over features. Every initial
// centroid is zero except its RSI coordinate, taken from RSICentroids.
func (s Settings) Config(features []string) (Config, error) {
	cfg := Config{
		K:             s.K,
		Features:      append([]string{}, features...),
		Seed:          s.Seed,
		MaxIterations: s.MaxIterations,
		Tolerance:     s.Tolerance,
	}

	if len(s.RSICentroids) == 0 {
		return cfg, nil
	}

	if len(s.RSICentroids) != s.K {
		return cfg, fmt.Errorf("%w: %d RSI centroids for %d clusters", ErrInvalidConfig, len(s.RSICentroids), s.K)
	}

	rsiIdx := -1
	for idx, name := range features {
		if name == indicators.ColRSI {
			rsiIdx = idx
		}
	}
	if rsiIdx == -1 {
		return cfg, fmt.Errorf("%w: %s", ErrMissingFeature, indicators.ColRSI)
	}

	cfg.InitialCentroids = make([][]float64, s.K)
	for ii, rsi := range s.RSICentroids {
		cfg.InitialCentroids[ii] = make([]float64, len(features))
		cfg.InitialCentroids[ii][rsiIdx] = rsi
	}
	return cfg, nil
}

// DefaultConfig is DefaultSettings over the given features
func DefaultConfig(features []string) (Config, error) {
	return DefaultSettings().Config(features)
}

func (cfg Config) validate() error {
	if cfg.K < 1 {
		return fmt.Errorf("%w: K must be positive", ErrInvalidConfig)
	}
	if len(cfg.Features) == 0 {
		return fmt.Errorf("%w: no features", ErrInvalidConfig)
	}
	if cfg.MaxIterations < 1 {
		return fmt.Errorf("%w: MaxIterations must be positive", ErrInvalidConfig)
	}
	if cfg.InitialCentroids != nil {
		if len(cfg.InitialCentroids) != cfg.K {
			return fmt.Errorf("%w: %d initial centroids for %d clusters", ErrInvalidConfig, len(cfg.InitialCentroids), cfg.K)
		}
		for _, c := range cfg.InitialCentroids {
			if len(c) != len(cfg.Features) {
				return fmt.Errorf("%w: centroid has %d values for %d features", ErrInvalidConfig, len(c), len(cfg.Features))
			}
		}
	}
	return nil
}

// Label returns a copy of the panel with a cluster column; rows without an
// assignment are NaN
func Label(panel dataframe.Map, assignments Assignments) dataframe.Map {
	res := make(dataframe.Map, len(panel))
	for ticker, df := range panel {
		out := df.Copy()
		col := dataframe.NaNs(out.Len())
		for idx, dt := range out.Dates {
			if label, ok := assignments[dt][ticker]; ok {
				col[idx] = float64(label)
			}
		}
		out.Set(ColCluster, col)
		res[ticker] = out
	}
	return res
}
