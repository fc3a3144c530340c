package pipeline

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

func newTestStepCtx() *specmodel.StepRunContext {
	run := &specmodel.PipelineRunContext{
		PipelineUUID: uuid.New(),
		Workspace:    &specmodel.WorkspaceMetadata{OwnerUUID: uuid.New(), WorkspaceUUID: uuid.New()},
		Project: &specmodel.ProjectMetadata{
			Name: "app", Slug: "app", Key: "APP",
			ProjectUUID: uuid.New(), RepoUUID: uuid.New(), BuildNumber: 3,
		},
		Repository: &specmodel.Repository{Path: "/repo", Branch: "main", Commit: "abc123"},
	}
	return &specmodel.StepRunContext{
		Step:     &specmodel.Step{Name: "build"},
		Run:      run,
		StepUUID: uuid.New(),
	}
}

func TestBuildStepEnvIncludesBaseVariables(t *testing.T) {
	env := buildStepEnv(newTestStepCtx(), false, "")
	assert.Equal(t, "true", env["CI"])
	assert.Equal(t, "/opt/atlassian/pipelines/agent/build", env["BUILD_DIR"])
	assert.Equal(t, "main", env["BITBUCKET_BRANCH"])
	assert.Equal(t, "abc123", env["BITBUCKET_COMMIT"])
	assert.Equal(t, "3", env["BITBUCKET_BUILD_NUMBER"])
	_, hasOIDC := env["BITBUCKET_STEP_OIDC_TOKEN"]
	assert.False(t, hasOIDC)
	_, hasDockerHost := env["DOCKER_HOST"]
	assert.False(t, hasDockerHost)
}

func TestBuildStepEnvSetsDockerHostWhenActive(t *testing.T) {
	env := buildStepEnv(newTestStepCtx(), true, "")
	assert.Equal(t, "tcp://localhost:2375", env["DOCKER_HOST"])
}

func TestBuildStepEnvIncludesOIDCTokenWhenProvided(t *testing.T) {
	env := buildStepEnv(newTestStepCtx(), false, "token-value")
	assert.Equal(t, "token-value", env["BITBUCKET_STEP_OIDC_TOKEN"])
}

func TestBuildStepEnvIncludesParallelVariablesOnlyWhenParallel(t *testing.T) {
	ctx := newTestStepCtx()
	env := buildStepEnv(ctx, false, "")
	_, hasParallel := env["BITBUCKET_PARALLEL_STEP"]
	assert.False(t, hasParallel)

	idx, count := 1, 3
	ctx.ParallelStepIndex = &idx
	ctx.ParallelStepCount = &count
	env = buildStepEnv(ctx, false, "")
	assert.Equal(t, "1", env["BITBUCKET_PARALLEL_STEP"])
	assert.Equal(t, "3", env["BITBUCKET_PARALLEL_STEP_COUNT"])
}
