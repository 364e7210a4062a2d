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
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/penny-vault/pv-cluster/data"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(indexesCmd)
}

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "List the supported stock indexes",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Index", "Benchmark", "Constituents"})
		table.SetBorder(false)
		for _, idx := range data.Indexes() {
			table.Append([]string{idx.Name, data.BenchmarkTicker(idx.Name), fmt.Sprintf("%d", len(idx.Tickers))})
		}
		table.Render()
	},
}
