package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tracerank/internal/config"
	"tracerank/internal/paths"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tracerank configuration",
	Long:  "View and manage the configuration stored in .tracerank/config.json",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration after defaults and TRACERANK_* environment
overrides are applied.

Examples:
  tracerank config show
  tracerank config show --format yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing configuration file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// The config has no human renderer, so human falls back to JSON.
	return printResponse(cmd.OutOrStdout(), current.cfg)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	a := current
	path := paths.ConfigPath(a.workDir)
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists; use --force to overwrite", paths.Relative(a.workDir, path))
	}
	if err := config.DefaultConfig().Save(a.workDir); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", paths.Relative(a.workDir, path))
	return err
}
