package main

import (
	"fmt"
	"os"

	"tracerank/internal/errors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if msg := errorMessage(err); msg != "" {
			fmt.Fprintln(os.Stderr, "Error:", msg)
			for _, fix := range errors.GetSuggestedFixes(errors.CodeOf(err)) {
				fmt.Fprintf(os.Stderr, "  hint: %s\n        %s\n", fix.Description, fix.Command)
			}
		}
		os.Exit(exitCode(err))
	}
}
