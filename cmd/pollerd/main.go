// Package main is the entry point for the pollerd daemon.
//
// pollerd polls HTTP endpoints listed in a YAML file, each on its own
// self-rescheduling poller with retries, backoff and an optional daily window.
//
// Usage:
//
//	pollerd run -c pollerd.yaml      # Start polling
//	pollerd validate -c pollerd.yaml # Validate configuration
//	pollerd version                  # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "pollerd",
	Short: "Windowed HTTP endpoint poller",
	Long: `pollerd polls HTTP endpoints at configurable intervals.

Each endpoint gets its own poller: failures back off exponentially and count
against a retry budget, and an optional "HH:mm" window confines polling to
part of the day. A control API can pause, resume and stop pollers and show
their recent history.

Example config:
  pollers:
    - name: orders
      url: https://orders.internal/health
      interval: 10s
      window: { start: "09:00", end: "18:00" }
      restart: "55 8 * * *"`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pollerd %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
