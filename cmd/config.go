package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var validateMode string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and merge settings for every tenant",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(validateMode); err != nil {
			return err
		}
		if err := validateMergeConfigs(); err != nil {
			return err
		}

		tenants := make([]string, 0, len(cfg.Tenants))
		for name := range cfg.Tenants {
			tenants = append(tenants, name)
		}
		sort.Strings(tenants)

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "config ok (mode=%s, driver=%s)\n", validateMode, cfg.Store.Driver) //nolint:errcheck
		for _, name := range tenants {
			m := cfg.MergeConfigFor(name)
			fmt.Fprintf(w, "  tenant %s: auto_merge=%.2f review=%.2f min=%.2f\n", //nolint:errcheck
				name, m.AutoMergeThreshold, m.ReviewThreshold, m.MinMatchScore)
		}
		return nil
	},
}

func init() {
	configValidateCmd.Flags().StringVar(&validateMode, "mode", "serve", "command mode to validate (resolve, import, serve, migrate)")
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
