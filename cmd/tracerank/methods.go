package main

import (
	"github.com/spf13/cobra"

	"tracerank/internal/methodindex"
	"tracerank/internal/paths"
)

var methodsResolve []string

var methodsCmd = &cobra.Command{
	Use:   "methods [dir]",
	Short: "List the method ids declared in Java sources",
	Long: `Parse the Java sources under a directory and list every declared method and
constructor as a method id (Class.method.startLine), the form accepted by
--include-method and the inclusiveMethodIds setting.

Examples:
  tracerank methods src/main/java
  tracerank methods --resolve Cart.add --resolve com.shop.Order.total src/main/java`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMethods,
}

func init() {
	methodsCmd.Flags().StringSliceVar(&methodsResolve, "resolve", nil, "Resolve these patterns to method ids instead of listing")
	rootCmd.AddCommand(methodsCmd)
}

// MethodsResponseCLI is the output of the methods command.
type MethodsResponseCLI struct {
	Root       string                  `json:"root" yaml:"root"`
	Methods    []methodindex.Method    `json:"methods,omitempty" yaml:"methods,omitempty"`
	Resolution *methodindex.Resolution `json:"resolution,omitempty" yaml:"resolution,omitempty"`
}

func runMethods(cmd *cobra.Command, args []string) error {
	a := current
	root := a.workDir
	if len(args) == 1 {
		root = paths.Resolve(a.workDir, args[0])
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	methods, err := methodindex.NewIndexer().IndexDir(ctx, root)
	if err != nil {
		return err
	}
	a.logger.Debug("Indexed Java sources", "root", root, "methods", len(methods))

	resp := &MethodsResponseCLI{Root: paths.Relative(a.workDir, root)}
	if len(methodsResolve) > 0 {
		res := methodindex.Resolve(methods, methodsResolve)
		resp.Resolution = &res
	} else {
		methodindex.SortMethods(methods)
		resp.Methods = methods
	}
	return printResponse(cmd.OutOrStdout(), resp)
}
