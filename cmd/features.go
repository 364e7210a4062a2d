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
	"fmt"

	"github.com/penny-vault/pv-cluster/backtest"
	"github.com/penny-vault/pv-cluster/export"
	"github.com/spf13/cobra"
)

var (
	featuresOut    string
	featuresTicker string
)

func init() {
	rootCmd.AddCommand(featuresCmd)

	featuresCmd.Flags().StringVar(&featuresOut, "out", "", "write the monthly panel to a parquet file")
	featuresCmd.Flags().StringVar(&featuresTicker, "ticker", "", "print the panel rows of a single ticker")
}

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Compute the monthly feature panel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, err := backtest.ConfigFromViper()
		if err != nil {
			return err
		}

		providers, err := newProviders(ctx, cfg)
		if err != nil {
			return err
		}

		panel, err := backtest.BuildPanel(ctx, cfg, providers)
		if err != nil {
			return err
		}

		fmt.Printf("Panel: %d tickers, %d rows, %s to %s\n", len(panel.Features), panel.Features.Len(),
			panel.Window.FeatureBegin.Format("2006-01-02"), panel.Window.End.Format("2006-01-02"))

		if featuresTicker != "" {
			df, ok := panel.Features[featuresTicker]
			if !ok {
				return fmt.Errorf("%s is not in the panel", featuresTicker)
			}
			fmt.Println(df.Table())
		}

		if featuresOut != "" {
			return export.WritePanel(featuresOut, panel.Features)
		}
		return nil
	},
}
