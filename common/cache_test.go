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

package common_test

import (
	"bytes"
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/pv-cluster/common"
	"github.com/spf13/viper"
)

var _ = Describe("Cache", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		viper.Set("cache.redis", false)
		viper.Set("cache.local_size", 8)
		Expect(common.SetupCache()).To(Succeed())
	})

	It("returns what was stored", func() {
		payload := bytes.Repeat([]byte("date,close\n2021-01-04,729.77\n"), 50)
		key := common.CacheKey("tiingo", "TSLA", "2021-01-04", "2021-01-05")

		Expect(common.CacheSet(ctx, key, payload)).To(Succeed())
		got, err := common.CacheGet(ctx, key)
		Expect(err).To(BeNil())
		Expect(got).To(Equal(payload))
	})

	It("reports a miss for unknown keys", func() {
		_, err := common.CacheGet(ctx, common.CacheKey("nothing"))
		Expect(err).To(MatchError(common.ErrCacheMiss))
	})

	It("hashes distinct parts to distinct keys", func() {
		Expect(common.CacheKey("a", "bc")).ToNot(Equal(common.CacheKey("ab", "c")))
		Expect(common.CacheKey("a", "bc")).To(Equal(common.CacheKey("a", "bc")))
	})
})
