package main

import (
	"github.com/spf13/cobra"
)

var (
	flagConfigDir string
	flagLogLevel  string
	flagEnv       string
)

// rootCmd is the base command; its tree (run, topics create, health) stays
// deliberately minimal, with no interactive menu beyond these three
// commands.
var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Exchange ingestion gateway",
	Long: `gateway ingests ticker and orderbook streams from exchange venues across
the Korea, Asia, and NE regions, normalizes and batches them per exchange,
and publishes to a partitioned Kafka-compatible bus. A REST poller provides
a consolidated per-region snapshot and a failover path when a venue's
socket goes unhealthy.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "configs", "directory containing per-region and bus configuration files")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagEnv, "env", "auto", "logging environment: dev (console), prod (json), or auto (detect TTY)")
}
