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
	_ "embed"
	"fmt"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

// DefaultBenchmark is used for any index without an explicit benchmark
const DefaultBenchmark = "SPY"

//go:embed indexes.toml
var indexDefinitions []byte

// Index is a stock index whose constituents form the research universe
type Index struct {
	Name      string   `toml:"name"`
	Benchmark string   `toml:"benchmark"`
	Tickers   []string `toml:"tickers"`
}

var (
	indexes     []*Index
	indexesOnce sync.Once
)

func loadIndexes() {
	var doc struct {
		Index []*Index `toml:"index"`
	}
	if err := toml.Unmarshal(indexDefinitions, &doc); err != nil {
		log.Panic().Err(err).Msg("embedded index definitions are invalid")
	}
	indexes = doc.Index
}

// Indexes returns every supported index in definition order
func Indexes() []*Index {
	indexesOnce.Do(loadIndexes)
	return indexes
}

// LookupIndex finds an index by name
func LookupIndex(name string) (*Index, error) {
	for _, idx := range Indexes() {
		if idx.Name == name {
			return idx, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownIndex, name)
}

// BenchmarkTicker maps an index name to the ETF used as its buy-and-hold
// benchmark: QQQ for the NASDAQ 100, DIA for the Dow Jones and SPY otherwise.
func BenchmarkTicker(name string) string {
	idx, err := LookupIndex(name)
	if err != nil || idx.Benchmark == "" {
		return DefaultBenchmark
	}
	return idx.Benchmark
}
