// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/s2onet/internal/config"
	"firestige.xyz/s2onet/internal/log"
	"firestige.xyz/s2onet/internal/metrics"
)

var (
	// Global flags
	configFile string

	cfg           *config.Config
	metricsServer *metrics.Server
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "s2onet",
	Short: "s2onet - packet capture and parsing over a native capture driver",
	Long: `s2onet captures packets through a dynamically loaded capture driver
(WinDivert by default), keeps them in a bounded in-memory store and decodes
Ethernet/IPv4 headers into TCP, UDP, ICMP, IGMP and other IP protocol records.

Features:
  - Driver ABI table: library and export names come from configuration
  - Bounded store: oldest frames are evicted, sequence numbers expose drops
  - Clean shutdown: stop closes the driver handle and joins the worker
  - Adapter throughput sampling and a keyboard menu`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// The metrics server is stopped whether or not the command failed.
func Execute() error {
	defer teardown()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(speedCmd)
	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(configCmd)
}

// setup loads configuration, initializes logging and starts the metrics server.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = loaded

	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := metricsServer.Start(cmd.Context()); err != nil {
			log.GetLogger().WithError(err).Warn("metrics server disabled")
			metricsServer = nil
		}
	}
	return nil
}

func teardown() {
	if metricsServer == nil {
		return
	}
	if err := metricsServer.Stop(context.Background()); err != nil {
		log.GetLogger().WithError(err).Warn("metrics server stop failed")
	}
	metricsServer = nil
}
