// Package pipeline implements the Pipeline, Step, Parallel, and Stage
// Runners: it wires together every other component
// (Container Runner, Services Manager, Repository Cloner, Cache/Artifact
// Managers, OIDC Token Issuer, Image Authenticator) into the single
// end-to-end execution of one pipeline run.
package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/docker/docker/client"
	"github.com/sirupsen/logrus"

	"github.com/localci/pipeline-runner/internal/artifactmgr"
	"github.com/localci/pipeline-runner/internal/cachemgr"
	"github.com/localci/pipeline-runner/internal/clonert"
	"github.com/localci/pipeline-runner/internal/config"
	"github.com/localci/pipeline-runner/internal/imageauth"
	"github.com/localci/pipeline-runner/internal/servicesrt"
	"github.com/localci/pipeline-runner/internal/specmodel"
)

// Engine owns the Docker client and every per-run manager, and drives a
// single pipeline execution end to end.
type Engine struct {
	cfg    *config.Config
	docker *client.Client
	log    *logrus.Logger

	caches    *cachemgr.Manager
	artifacts *artifactmgr.Manager
	services  *servicesrt.Manager
	cloner    *clonert.Cloner
	auth      imageauth.OIDCMinter
}

// New wires every manager against the same Docker client and diagnostic
// logger. cacheDir is the project's cache root
// (<user-cache-dir>/<path_slug>/caches), already scoped by the caller.
func New(cfg *config.Config, docker *client.Client, log *logrus.Logger, cacheDir string, auth imageauth.OIDCMinter) *Engine {
	return &Engine{
		cfg:       cfg,
		docker:    docker,
		log:       log,
		caches:    cachemgr.New(cacheDir, log),
		artifacts: artifactmgr.New(log),
		services:  servicesrt.New(docker, log),
		cloner:    clonert.New(docker, log),
		auth:      auth,
	}
}

// runDir is the per-run persisted directory: <data>/<path_slug>/pipelines/<build#>-<pipeline_uuid>.
func (e *Engine) runDir(run *specmodel.PipelineRunContext) string {
	return filepath.Join(e.cfg.DataDir, run.Project.PathSlug, "pipelines",
		fmt.Sprintf("%d-%s", run.Project.BuildNumber, run.PipelineUUID.String()))
}

func (e *Engine) logsDir(run *specmodel.PipelineRunContext) string {
	return filepath.Join(e.runDir(run), "logs")
}

func (e *Engine) artifactsDir(run *specmodel.PipelineRunContext) string {
	return filepath.Join(e.runDir(run), "artifacts")
}
