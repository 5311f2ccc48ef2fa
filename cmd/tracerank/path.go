package main

import (
	"github.com/spf13/cobra"

	"tracerank/internal/depgraph"
	"tracerank/internal/errors"
	"tracerank/internal/paths"
)

var pathTrace string

var pathCmd = &cobra.Command{
	Use:   "path <value-id>...",
	Short: "Print the access path of values in a recorded trace",
	Long: `Print the access path of each value, such as "this.cart.items.size",
following the longest chain of dependencies back to a root value.

Examples:
  tracerank path 'size#88'
  tracerank path --trace failing.trace 'size#88' 'total#42'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPath,
}

func init() {
	pathCmd.Flags().StringVar(&pathTrace, "trace", "", "Trace file (default .tracerank/trace.bin)")
	rootCmd.AddCommand(pathCmd)
}

// ValuePath is the access path of one value.
type ValuePath struct {
	ID   string `json:"id" yaml:"id"`
	Path string `json:"path" yaml:"path"`
	// Rooted is false when no root value can be reached; Path is then the
	// bare variable name.
	Rooted bool `json:"rooted" yaml:"rooted"`
}

// PathResponseCLI is the output of the path command.
type PathResponseCLI struct {
	TracePath string      `json:"tracePath" yaml:"tracePath"`
	Paths     []ValuePath `json:"paths" yaml:"paths"`
}

func runPath(cmd *cobra.Command, args []string) error {
	a := current
	var traceArgs []string
	if pathTrace != "" {
		traceArgs = []string{pathTrace}
	}
	tracePath, trace, err := loadTrace(a, traceArgs)
	if err != nil {
		return err
	}
	g, _ := depgraph.Build(trace)

	resp := &PathResponseCLI{TracePath: paths.Relative(a.workDir, tracePath)}
	for _, id := range args {
		if _, ok := g.Index(id); !ok {
			return errors.New(errors.NodeNotFound, "value "+id+" is not in the trace", nil).WithDetails(id)
		}
		p, rooted := g.VariablePath(id)
		resp.Paths = append(resp.Paths, ValuePath{ID: id, Path: p, Rooted: rooted})
	}
	return printResponse(cmd.OutOrStdout(), resp)
}
