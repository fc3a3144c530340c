package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localci/pipeline-runner/internal/specparse"
)

func newListCmd() *cobra.Command {
	var (
		projectDir    string
		pipelinesFile string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the pipelines declared in the project's pipelines file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(projectDir, pipelinesFile, nil, nil, nil)
			if err != nil {
				return err
			}
			spec, err := loadSpec(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, path := range specparse.GetAvailablePipelines(spec) {
				fmt.Fprintln(out, path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectDir, "project-directory", "p", "", "project directory (default: current directory)")
	cmd.Flags().StringVarP(&pipelinesFile, "file", "f", "", "path to the pipelines YAML file")

	return cmd
}
