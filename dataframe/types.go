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

package dataframe

import (
	"errors"
	"time"
)

// DataFrame stores a table of values organized by date
// the vals array is column major - e.g.,
// DATE        adj_close  volume
// 2024-01-02  1          4
// 2024-01-03  2          5
// 2024-01-04  3          6
//
// Vals[0][0] = 1
// Vals[0][1] = 2
//
// Missing observations are NaN; dates are strictly increasing.
type DataFrame struct {
	Dates    []time.Time
	ColNames []string
	Vals     [][]float64
}

// Map holds one dataframe per ticker
type Map map[string]*DataFrame

// Aggregation selects how rows are collapsed when resampling
type Aggregation int

const (
	// Last takes the last non-NaN observation in the period
	Last Aggregation = iota
	// Mean averages the non-NaN observations in the period
	Mean
)

var (
	ErrDateIndexNotAligned = errors.New("date index does not align")
	ErrColumnNotFound      = errors.New("column not found")
)
