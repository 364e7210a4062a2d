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

// Package indicators computes per-ticker technical indicators over daily
// price series. Every function returns a slice the same length as its input
// with NaN wherever the indicator's window is not yet satisfied.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/penny-vault/pv-cluster/dataframe"
)

// GarmanKlass estimates daily volatility from the high/low range and the
// open to adjusted close move
func GarmanKlass(high, low, open, adjClose []float64) []float64 {
	res := make([]float64, len(adjClose))
	k := 2*math.Log(2) - 1
	for ii := range res {
		hl := math.Log(high[ii]) - math.Log(low[ii])
		co := math.Log(adjClose[ii]) - math.Log(open[ii])
		res[ii] = hl*hl/2 - k*co*co
	}
	return res
}

// RSI is Wilder's relative strength index
func RSI(close []float64, period int) []float64 {
	if len(close) <= period {
		return dataframe.NaNs(len(close))
	}
	return mask(talib.Rsi(close, period), period)
}

// BollingerBands returns the lower, middle and upper bands of a simple moving
// average plus/minus nbDev population standard deviations
func BollingerBands(close []float64, period int, nbDev float64) (lower, middle, upper []float64) {
	if len(close) < period {
		return dataframe.NaNs(len(close)), dataframe.NaNs(len(close)), dataframe.NaNs(len(close))
	}
	upper, middle, lower = talib.BBands(close, period, nbDev, nbDev, talib.SMA)
	return mask(lower, period-1), mask(middle, period-1), mask(upper, period-1)
}

// ATR is Wilder's average true range
func ATR(high, low, close []float64, period int) []float64 {
	if len(close) <= period {
		return dataframe.NaNs(len(close))
	}
	return mask(talib.Atr(high, low, close, period), period)
}

// EMA is an exponential moving average seeded with the simple average of the
// first period values
func EMA(in []float64, period int) []float64 {
	if len(in) < period {
		return dataframe.NaNs(len(in))
	}
	return mask(talib.Ema(in, period), period-1)
}

// MACDSignal returns the signal line of the moving average convergence
// divergence oscillator: an EMA over signal periods of the fast EMA minus the
// slow EMA
func MACDSignal(close []float64, fast, slow, signal int) []float64 {
	res := dataframe.NaNs(len(close))
	start := slow - 1
	if len(close) < start+signal {
		return res
	}

	fastEMA := EMA(close, fast)
	slowEMA := EMA(close, slow)

	line := make([]float64, len(close)-start)
	for ii := range line {
		line[ii] = fastEMA[start+ii] - slowEMA[start+ii]
	}

	copy(res[start:], EMA(line, signal))
	return res
}

// DollarVolume is adjusted close times volume, in millions
func DollarVolume(adjClose, volume []float64) []float64 {
	res := make([]float64, len(adjClose))
	for ii := range res {
		res[ii] = adjClose[ii] * volume[ii] / 1e6
	}
	return res
}

// mask replaces the warmup values talib fills with zero
func mask(vals []float64, lookback int) []float64 {
	for ii := 0; ii < lookback && ii < len(vals); ii++ {
		vals[ii] = math.NaN()
	}
	return vals
}
