package pipeline

import (
	"strconv"

	"github.com/localci/pipeline-runner/internal/config"
	"github.com/localci/pipeline-runner/internal/specmodel"
)

// buildStepEnv assembles the BITBUCKET_* base environment variables, plus
// DOCKER_HOST when the docker service is active, pipeline-level env vars,
// and pipeline variables. oidcToken is the empty string when the step
// doesn't request one.
func buildStepEnv(ctx *specmodel.StepRunContext, dockerServiceActive bool, oidcToken string) map[string]string {
	run := ctx.Run
	step := ctx.Step

	env := map[string]string{
		"CI":                       "true",
		"BUILD_DIR":                config.RemoteWorkspaceDir,
		"BITBUCKET_CLONE_DIR":      config.RemoteWorkspaceDir,
		"BITBUCKET_BRANCH":         run.Repository.Branch,
		"BITBUCKET_COMMIT":         run.Repository.Commit,
		"BITBUCKET_BUILD_NUMBER":   strconv.Itoa(run.Project.BuildNumber),
		"BITBUCKET_PIPELINE_UUID":  run.PipelineUUID.String(),
		"BITBUCKET_STEP_UUID":      ctx.StepUUID.String(),
		"BITBUCKET_PROJECT_KEY":    run.Project.Key,
		"BITBUCKET_PROJECT_UUID":   run.Project.ProjectUUID.String(),
		"BITBUCKET_REPO_SLUG":      run.Project.Slug,
		"BITBUCKET_REPO_UUID":      run.Project.RepoUUID.String(),
		"BITBUCKET_REPO_FULL_NAME": run.Project.Slug + "/" + run.Project.Slug,
		"BITBUCKET_REPO_OWNER":     run.Project.Slug,
		"BITBUCKET_REPO_OWNER_UUID": run.Workspace.OwnerUUID.String(),
		"BITBUCKET_REPO_IS_PRIVATE": "true",
		"BITBUCKET_WORKSPACE":      run.Project.Slug,
	}

	if ctx.IsParallel() {
		env["BITBUCKET_PARALLEL_STEP"] = strconv.Itoa(*ctx.ParallelStepIndex)
		env["BITBUCKET_PARALLEL_STEP_COUNT"] = strconv.Itoa(*ctx.ParallelStepCount)
	}
	if step.Deployment != "" {
		env["BITBUCKET_DEPLOYMENT_ENVIRONMENT"] = step.Deployment
	}
	if oidcToken != "" {
		env["BITBUCKET_STEP_OIDC_TOKEN"] = oidcToken
	}
	if dockerServiceActive {
		env["DOCKER_HOST"] = "tcp://localhost:2375"
	}

	for k, v := range run.EnvVars {
		env[k] = v
	}
	for k, v := range run.Variables {
		env[k] = v
	}

	return env
}
