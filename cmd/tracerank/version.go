package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tracerank/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if formatFlag == string(FormatHuman) {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		}
		return printResponse(cmd.OutOrStdout(), &info)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
