// Package cli wires the engine's exported entry points behind a thin
// cobra command tree: run, list, cache {list,clear}, and version. It holds
// no pipeline logic of its own.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the pipeline-runner command tree. version is baked in
// at link time by cmd/pipeline-runner/main.go (or "dev" when unset).
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "pipeline-runner",
		Short:         "Run Bitbucket Pipelines-style CI pipelines locally against a container engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newVersionCmd(version))

	return root
}
