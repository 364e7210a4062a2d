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

package indicators

import (
	"math"

	"github.com/creasty/defaults"
	"github.com/penny-vault/pv-cluster/data"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/rs/zerolog/log"
)

const (
	ColGarmanKlass  = "garman_klass_vol"
	ColRSI          = "rsi"
	ColBBLow        = "bb_low"
	ColBBMid        = "bb_mid"
	ColBBHigh       = "bb_high"
	ColATR          = "atr"
	ColMACD         = "macd"
	ColDollarVolume = "dollar_volume"
)

// Columns are the indicator columns produced by Compute, in order
var Columns = []string{ColGarmanKlass, ColRSI, ColBBLow, ColBBMid, ColBBHigh, ColATR, ColMACD}

// Settings holds the indicator windows
type Settings struct {
	RSIPeriod       int     `mapstructure:"rsi_period" default:"20" validate:"min=2"`
	BandsPeriod     int     `mapstructure:"bands_period" default:"20" validate:"min=2"`
	BandsDeviations float64 `mapstructure:"bands_deviations" default:"2" validate:"gt=0"`
	ATRPeriod       int     `mapstructure:"atr_period" default:"14" validate:"min=1"`
	MACDFast        int     `mapstructure:"macd_fast" default:"12" validate:"min=1"`
	MACDSlow        int     `mapstructure:"macd_slow" default:"26" validate:"gtfield=MACDFast"`
	MACDSignal      int     `mapstructure:"macd_signal" default:"20" validate:"min=1"`
}

// DefaultSettings returns the standard windows: RSI 20, bands 20 x 2, ATR 14
// and MACD 12/26 with a 20 period signal line
func DefaultSettings() Settings {
	var s Settings
	if err := defaults.Set(&s); err != nil {
		log.Panic().Err(err).Msg("invalid indicator defaults")
	}
	return s
}

// Compute enriches each ticker's daily prices. The result for a ticker holds
// adj_close, the indicator Columns and dollar_volume; the raw open, high,
// low, close and volume columns are not carried forward. Tickers are
// independent of one another.
func Compute(prices dataframe.Map, s Settings) dataframe.Map {
	res := make(dataframe.Map, len(prices))
	for ticker, df := range prices {
		enriched := computeTicker(df, s)
		if enriched == nil {
			log.Warn().Str("Ticker", ticker).Msg("price frame is missing required columns; skipping")
			continue
		}
		res[ticker] = enriched
	}
	return res
}

func computeTicker(df *dataframe.DataFrame, s Settings) *dataframe.DataFrame {
	open := df.Column(data.MetricOpen)
	high := df.Column(data.MetricHigh)
	low := df.Column(data.MetricLow)
	closePrice := df.Column(data.MetricClose)
	adj := df.Column(data.MetricAdjustedClose)
	volume := df.Column(data.MetricVolume)
	if open == nil || high == nil || low == nil || closePrice == nil || adj == nil || volume == nil {
		return nil
	}

	logAdj := make([]float64, len(adj))
	for idx, v := range adj {
		logAdj[idx] = math.Log1p(v)
	}
	bbLow, bbMid, bbHigh := BollingerBands(logAdj, s.BandsPeriod, s.BandsDeviations)

	dates := append(df.Dates[:0:0], df.Dates...)
	out := &dataframe.DataFrame{Dates: dates}
	out.Set(data.MetricAdjustedClose, append([]float64{}, adj...))
	out.Set(ColGarmanKlass, GarmanKlass(high, low, open, adj))
	out.Set(ColRSI, RSI(adj, s.RSIPeriod))
	out.Set(ColBBLow, bbLow)
	out.Set(ColBBMid, bbMid)
	out.Set(ColBBHigh, bbHigh)
	out.Set(ColATR, dataframe.ZScore(ATR(high, low, closePrice, s.ATRPeriod)))
	out.Set(ColMACD, dataframe.ZScore(MACDSignal(adj, s.MACDFast, s.MACDSlow, s.MACDSignal)))
	out.Set(ColDollarVolume, DollarVolume(adj, volume))
	return out
}
