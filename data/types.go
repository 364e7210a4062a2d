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

// Metric names a column of a per-ticker price frame
type Metric = string

const (
	MetricOpen          Metric = "open"
	MetricHigh          Metric = "high"
	MetricLow           Metric = "low"
	MetricClose         Metric = "close"
	MetricAdjustedClose Metric = "adj_close"
	MetricVolume        Metric = "volume"
)

// PriceColumns is the column order of every frame returned by a PriceProvider
var PriceColumns = []string{
	MetricOpen,
	MetricHigh,
	MetricLow,
	MetricClose,
	MetricAdjustedClose,
	MetricVolume,
}

const (
	FactorMarket        = "Mkt-RF"
	FactorSize          = "SMB"
	FactorValue         = "HML"
	FactorProfitability = "RMW"
	FactorInvestment    = "CMA"
)

// FactorColumns is the column order of the frame returned by a FactorProvider
var FactorColumns = []string{
	FactorMarket,
	FactorSize,
	FactorValue,
	FactorProfitability,
	FactorInvestment,
}
