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
	"math"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/penny-vault/pv-cluster/backtest"
	"github.com/penny-vault/pv-cluster/dataframe"
	"github.com/penny-vault/pv-cluster/export"
	"github.com/penny-vault/pv-cluster/portfolio"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	showWeights bool
	panelOut    string
	reportOut   string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&showWeights, "show-weights", false, "print the weights of every rebalance")
	runCmd.Flags().StringVar(&panelOut, "panel-out", "", "write the labeled monthly panel to a parquet file")
	runCmd.Flags().StringVar(&reportOut, "report-out", "", "write returns, weights and summary to an xlsx file")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the clustering backtest",
	Long: `Compute monthly features for the index constituents, cluster them, hold a
max Sharpe portfolio of the target cluster each month and compare the result
with the index benchmark.`,
	Args: cobra.NoArgs,
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

		res, err := backtest.Run(ctx, cfg, providers, nil)
		if err != nil {
			log.Error().Err(err).Msg("backtest failed")
			return err
		}

		monthly := portfolio.CumulativeReturns(res.Comparison).ResampleMonthly(nil, dataframe.Last)
		fmt.Printf("Cumulative returns %s to %s\n", res.Window.Begin.Format("2006-01-02"), res.Window.End.Format("2006-01-02"))
		fmt.Println(monthly.Table())

		if showWeights {
			fmt.Println(weightsTable(res.Backtest))
		}

		fmt.Println(summaryTable(res.Summaries))

		if panelOut != "" {
			if err := export.WritePanel(panelOut, res.Labeled); err != nil {
				return err
			}
		}

		if reportOut != "" {
			fh, err := os.Create(reportOut)
			if err != nil {
				return err
			}
			defer fh.Close()

			report := &export.Report{
				Comparison: res.Comparison,
				Periods:    res.Backtest.Periods,
				Skipped:    res.Backtest.Skipped,
				Summaries:  res.Summaries,
			}
			if err := export.WriteReport(fh, report); err != nil {
				return err
			}
		}

		return nil
	},
}

func percent(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

func weightsTable(bt *portfolio.Backtest) string {
	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader([]string{"Start", "Weights", "Fallback"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for _, period := range bt.Periods {
		parts := make([]string, 0, len(period.Weights))
		for _, ticker := range period.Weights.Tickers() {
			parts = append(parts, fmt.Sprintf("%s:%.4f", ticker, period.Weights[ticker]))
		}
		fallback := ""
		if period.Fallback {
			fallback = period.Reason.String()
		}
		table.Append([]string{period.Start.Format("2006-01-02"), strings.Join(parts, " "), fallback})
	}
	for _, skipped := range bt.Skipped {
		table.Append([]string{skipped.Start.Format("2006-01-02"), "skipped", skipped.Err.Error()})
	}

	table.Render()
	return s.String()
}

func summaryTable(summaries []*portfolio.Summary) string {
	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader([]string{"", "Days", "Total Return", "CAGR", "Volatility", "Sharpe", "Max Drawdown"})
	table.SetBorder(false)

	for _, summary := range summaries {
		dd := "-"
		if summary.MaxDrawDown != nil {
			dd = fmt.Sprintf("%s (%s - %s)", percent(summary.MaxDrawDown.LossPercent),
				summary.MaxDrawDown.Begin.Format("2006-01-02"), summary.MaxDrawDown.End.Format("2006-01-02"))
		}
		sharpe := "-"
		if !math.IsNaN(summary.Sharpe) {
			sharpe = fmt.Sprintf("%.2f", summary.Sharpe)
		}
		table.Append([]string{
			summary.Name,
			fmt.Sprintf("%d", summary.Days),
			percent(summary.TotalReturn),
			percent(summary.CAGR),
			percent(summary.Volatility),
			sharpe,
			dd,
		})
	}

	table.Render()
	return s.String()
}
