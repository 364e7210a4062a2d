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
	"os"

	"github.com/penny-vault/pv-cluster/common"
	"github.com/penny-vault/pv-cluster/observability/opentelemetry"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var shutdownTracing func(context.Context) error

// bindFlag registers a persistent string flag that is bound to a viper key
// and, when env is not empty, an environment variable
func bindFlag(key, flag, env, value, usage string) {
	rootCmd.PersistentFlags().String(flag, value, usage)
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		log.Panic().Err(err).Str("Flag", flag).Msg("could not bind flag")
	}
	if env != "" {
		if err := viper.BindEnv(key, env); err != nil {
			log.Panic().Err(err).Str("Env", env).Msg("could not bind environment variable")
		}
	}
}

func init() {
	// Research run
	bindFlag("backtest.index", "index", "PVCLUSTER_INDEX", "S&P 500", "Stock index whose constituents form the universe")
	bindFlag("backtest.end", "end", "PVCLUSTER_END", "", "Last date of the run as YYYY-MM-DD; defaults to today")
	bindFlag("backtest.provider", "provider", "PVCLUSTER_PROVIDER", "tiingo", "Price provider, one of: tiingo, pvdb")
	bindFlag("backtest.benchmark", "benchmark", "PVCLUSTER_BENCHMARK", "", "Benchmark ticker; defaults to the index benchmark")

	// Data providers
	bindFlag("tiingo.token", "tiingo-token", "TIINGO_TOKEN", "", "Tiingo API token")
	bindFlag("database.url", "database-url", "DATABASE_URL", "", "PostgreSQL connection string")

	// Logging configuration
	bindFlag("log.level", "log-level", "PVCLUSTER_LOG_LEVEL", "warning", "Logging level")
	bindFlag("log.output", "log-output", "PVCLUSTER_LOG_OUTPUT", "stderr", "Write logs to specified output one of: file path, `stdout`, or `stderr`")

	rootCmd.PersistentFlags().Bool("log-pretty", true, "Write human readable logs")
	if err := viper.BindPFlag("log.pretty", rootCmd.PersistentFlags().Lookup("log-pretty")); err != nil {
		log.Panic().Err(err).Msg("could not bind flag")
	}
}

var rootCmd = &cobra.Command{
	Use:     common.ProgramName,
	Version: common.CurrentVersion.String(),
	Short:   "Cluster based momentum research",
	Long: `Cluster stocks of an index by technical and factor features every month
and backtest a monthly rebalanced max Sharpe portfolio of the selected cluster
against the index's buy and hold benchmark.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		common.SetupLogging()

		if err := common.SetupCache(); err != nil {
			return err
		}

		var err error
		shutdownTracing, err = opentelemetry.Setup()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if shutdownTracing == nil {
			return
		}
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("could not flush traces")
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
