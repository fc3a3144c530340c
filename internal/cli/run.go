package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/moby/term"
	"github.com/spf13/cobra"

	"github.com/localci/pipeline-runner/internal/cierr"
	"github.com/localci/pipeline-runner/internal/containerrt"
	"github.com/localci/pipeline-runner/internal/imageauth"
	"github.com/localci/pipeline-runner/internal/metadata"
	"github.com/localci/pipeline-runner/internal/oidc"
	"github.com/localci/pipeline-runner/internal/pipeline"
	"github.com/localci/pipeline-runner/internal/pipelinelog"
	"github.com/localci/pipeline-runner/internal/repoinspect"
	"github.com/localci/pipeline-runner/internal/specmodel"
	"github.com/localci/pipeline-runner/internal/specparse"
)

func newRunCmd() *cobra.Command {
	var (
		projectDir    string
		pipelinesFile string
		stepNames     []string
		stageNames    []string
		envFiles      []string
		noColor       bool
	)

	cmd := &cobra.Command{
		Use:   "run [pipeline]",
		Short: "Run a pipeline by its dotted path (default: \"default\")",
		Long: `Runs the named pipeline (e.g. "default", "custom.lint", "branches.main")
against the project's bitbucket-pipelines.yml, driving each step through the
local container engine. With no argument, runs "default".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "default"
			if len(args) == 1 {
				path = args[0]
			}

			cfg, err := loadConfig(projectDir, pipelinesFile, stepNames, stageNames, envFiles)
			if err != nil {
				return err
			}
			if noColor {
				cfg.Color = false
			}

			spec, err := loadSpec(cfg)
			if err != nil {
				return err
			}

			pl, err := specparse.GetPipeline(spec, path)
			if err != nil {
				return err
			}

			repo, err := repoinspect.Inspect(cfg.ProjectDirectory)
			if err != nil {
				return &cierr.PipelineFatalError{Message: "inspecting repository", Cause: err}
			}

			project, err := metadata.LoadProject(cfg.DataDir, cfg.ProjectDirectory)
			if err != nil {
				return err
			}
			workspace, err := metadata.LoadWorkspace(cfg.DataDir)
			if err != nil {
				return err
			}

			diagLog := pipelinelog.NewDiagnostic(cfg.DataDir, project.PathSlug)

			docker, err := containerrt.NewDockerClient()
			if err != nil {
				return &cierr.PipelineFatalError{Message: "connecting to the container engine", Cause: err}
			}

			auth := imageauth.NewOIDCMinter(oidc.Config{Issuer: cfg.OIDC.Issuer, Audience: cfg.OIDC.Audience})
			cacheDir := filepath.Join(cfg.CacheDir, project.PathSlug, "caches")
			engine := pipeline.New(cfg, docker, diagLog, cacheDir, auth)

			run := &specmodel.PipelineRunContext{
				PipelineName:      path,
				Pipeline:          pl,
				EffectiveCaches:   spec.Caches,
				EffectiveServices: spec.Services,
				EffectiveClone:    spec.Clone,
				DefaultImage:      spec.Image,
				Workspace:         workspace,
				Project:           project,
				Repository:        repo,
				EnvVars:           loadEnvFiles(cfg.EnvFiles),
				SelectedSteps:     cfg.SelectedSteps,
				SelectedStages:    cfg.SelectedStages,
				PipelineUUID:      uuid.New(),
			}

			_, isTTY := term.GetFdInfo(os.Stdout)

			result, err := engine.Run(cmd.Context(), run, os.Stdin, cmd.OutOrStdout(), isTTY)
			if err != nil {
				return err
			}
			if !result.OK() {
				fmt.Fprintf(os.Stderr, "pipeline %q failed with exit code %d\n", path, result.ExitCode)
				os.Exit(result.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectDir, "project-directory", "p", "", "project directory (default: current directory)")
	cmd.Flags().StringVarP(&pipelinesFile, "file", "f", "", "path to the pipelines YAML file")
	cmd.Flags().StringSliceVarP(&stepNames, "step", "s", nil, "run only this step (may be repeated)")
	cmd.Flags().StringSliceVar(&stageNames, "stage", nil, "run only this stage (may be repeated)")
	cmd.Flags().StringSliceVarP(&envFiles, "env-file", "e", nil, "load environment variables from a file (may be repeated)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}
