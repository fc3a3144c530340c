package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/localci/pipeline-runner/internal/cierr"
	"github.com/localci/pipeline-runner/internal/config"
	"github.com/localci/pipeline-runner/internal/specmodel"
	"github.com/localci/pipeline-runner/internal/specparse"
)

// loadConfig applies command-line overrides on top of config.Load's
// environment/defaults resolution.
func loadConfig(projectDir, pipelinesFile string, steps, stages, envFiles []string) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if projectDir != "" {
		abs, err := filepath.Abs(projectDir)
		if err != nil {
			return nil, fmt.Errorf("resolving project directory: %w", err)
		}
		cfg.ProjectDirectory = abs
		cfg.PipelinesFile = filepath.Join(abs, "bitbucket-pipelines.yml")
	}
	if pipelinesFile != "" {
		cfg.PipelinesFile = pipelinesFile
	}
	if len(steps) > 0 {
		cfg.SelectedSteps = steps
	}
	if len(stages) > 0 {
		cfg.SelectedStages = stages
	}
	if len(envFiles) > 0 {
		cfg.EnvFiles = envFiles
	}
	return cfg, nil
}

// loadSpec reads and parses cfg.PipelinesFile, surfacing a UsageError
// (rather than a bare os.ReadFile error) when the file is simply absent —
// the common case of running the tool outside a pipelines-enabled repo.
func loadSpec(cfg *config.Config) (*specmodel.PipelineSpec, error) {
	if _, err := os.Stat(cfg.PipelinesFile); err != nil {
		return nil, cierr.NewPipelinesFileNotFoundError(cfg.PipelinesFile)
	}

	data, err := os.ReadFile(cfg.PipelinesFile)
	if err != nil {
		return nil, fmt.Errorf("reading pipelines file %s: %w", cfg.PipelinesFile, err)
	}

	return specparse.Parse(data, specparse.Options{
		OIDCEnabled:     cfg.OIDC.Enabled,
		DefaultCaches:   cfg.DefaultCaches,
		DefaultServices: cfg.DefaultServices,
		DefaultImage:    cfg.DefaultImage,
	})
}

// loadEnvFiles reads each file with godotenv in a best-effort,
// warn-and-continue style: a missing or malformed env file shouldn't abort
// the run.
func loadEnvFiles(paths []string) map[string]string {
	merged := map[string]string{}
	for _, p := range paths {
		vars, err := godotenv.Read(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot read env file %q: %v\n", p, err)
			continue
		}
		for k, v := range vars {
			merged[k] = v
		}
	}
	return merged
}
