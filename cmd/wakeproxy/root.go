package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "wakeproxy",
	Short: "On-demand reverse proxy for containerized and virtualized workloads",
	Long: `wakeproxy proxies HTTP and WebSocket traffic to backend workloads,
starting them on first request and stopping them once idle. Backends
may be Docker containers or Proxmox LXC instances, individually or
grouped, with optional weekly start/stop schedules.`,
	RunE: runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", envOr("CONFIG_PATH", "./config.json"), "configuration document path")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
