package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahmed-com/poller/config"
)

// validateCmd validates a config file without starting any poller.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a pollerd configuration file without starting any poller.

The YAML is parsed, environment variables are expanded and every poller
entry is merged onto the preset and checked.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Preset:   %s\n", cfg.Preset)
	fmt.Fprintf(out, "  Timezone: %s\n", cfg.Location())
	fmt.Fprintf(out, "  Pollers:  %d\n", len(cfg.Pollers))
	for _, p := range cfg.Pollers {
		opts, err := config.BuildOptions[Response](cfg, p)
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		window := "always"
		if opts.TimeRange != nil {
			window = opts.TimeRange.String()
		}
		fmt.Fprintf(out, "    - %s: %s %s every %s, window %s\n", p.Name, p.Method, p.URL, opts.Interval, window)
	}
	return nil
}
