package specparse

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		DefaultImage:    "atlassian/default-image:4",
		DefaultServices: []string{"docker"},
		DefaultCaches:   map[string]string{"node": "node_modules"},
	}
}

func TestParse_SimpleStep(t *testing.T) {
	yml := []byte(`
pipelines:
  default:
    - step:
        name: build
        script:
          - echo hi
`)
	spec, err := Parse(yml, testOptions())
	require.NoError(t, err)
	require.NotNil(t, spec.Pipelines.Default)
	units := spec.Pipelines.Default.RunUnits()
	require.Len(t, units, 1)
	assert.Equal(t, "build", units[0].Step.Name)
	assert.Equal(t, "echo hi", units[0].Step.Script[0].Raw)
}

func TestParse_DefaultCachesAlwaysPresent(t *testing.T) {
	spec, err := Parse([]byte(`pipelines: {default: [{step: {script: ["true"]}}]}`), testOptions())
	require.NoError(t, err)
	_, ok := spec.Caches["node"]
	assert.True(t, ok)
}

func TestParse_DockerServiceAlwaysPresent(t *testing.T) {
	spec, err := Parse([]byte(`pipelines: {default: [{step: {script: ["true"]}}]}`), testOptions())
	require.NoError(t, err)
	_, ok := spec.Services["docker"]
	assert.True(t, ok)
}

func TestParse_ParallelRequiresTwoSteps(t *testing.T) {
	yml := []byte(`
pipelines:
  default:
    - parallel:
        - step:
            script: ["true"]
`)
	_, err := Parse(yml, testOptions())
	assert.Error(t, err)
}

func TestParse_ParallelBareListAndWrappedObjectEquivalent(t *testing.T) {
	bare := []byte(`
pipelines:
  default:
    - parallel:
        - step: {script: ["true"]}
        - step: {script: ["true"]}
`)
	wrapped := []byte(`
pipelines:
  default:
    - parallel:
        steps:
          - step: {script: ["true"]}
          - step: {script: ["true"]}
        fail-fast: true
`)
	s1, err := Parse(bare, testOptions())
	require.NoError(t, err)
	s2, err := Parse(wrapped, testOptions())
	require.NoError(t, err)
	assert.Len(t, s1.Pipelines.Default.Elements[0].Parallel.Steps, 2)
	assert.Len(t, s2.Pipelines.Default.Elements[0].Parallel.Steps, 2)
	assert.True(t, s2.Pipelines.Default.Elements[0].Parallel.FailFast)
}

func TestParse_VariablesMustBeFirstElement(t *testing.T) {
	yml := []byte(`
pipelines:
  default:
    - step: {script: ["true"]}
    - variables:
        - name: FOO
`)
	_, err := Parse(yml, testOptions())
	assert.Error(t, err)
}

func TestParse_AllowedValuesRequiresDefault(t *testing.T) {
	yml := []byte(`
pipelines:
  default:
    - variables:
        - name: ENV
          allowed-values: ["prod", "staging"]
`)
	_, err := Parse(yml, testOptions())
	assert.Error(t, err)
}

func TestExpandEnvVars_MissingVarFails(t *testing.T) {
	os.Unsetenv("DOES_NOT_EXIST_VAR")
	yml := []byte(`
image:
  name: node:18
  username: "$DOES_NOT_EXIST_VAR"
pipelines:
  default:
    - step: {script: ["true"]}
`)
	_, err := Parse(yml, testOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing envvars")
}

func TestExpandEnvVars_ResolvesFromEnvironment(t *testing.T) {
	t.Setenv("DOCKERHUB_USER", "alice")
	yml := []byte(`
image:
  name: node:18
  username: "$DOCKERHUB_USER"
pipelines:
  default:
    - step: {script: ["true"]}
`)
	spec, err := Parse(yml, testOptions())
	require.NoError(t, err)
	assert.Equal(t, "alice", spec.Image.Username)
}

func TestParse_AtlassianPipeRewrittenToBitbucketPipelines(t *testing.T) {
	yml := []byte(`
pipelines:
  default:
    - step:
        script:
          - pipe: atlassian/aws-s3-deploy:1.0.0
`)
	spec, err := Parse(yml, testOptions())
	require.NoError(t, err)
	line := spec.Pipelines.Default.Elements[0].Step.Script[0]
	require.NotNil(t, line.Pipe)
	assert.Equal(t, "bitbucketpipelines/aws-s3-deploy:1.0.0", line.Pipe.Pipe)
}

func TestGetPipeline_BranchGlobFallback(t *testing.T) {
	yml := []byte(`
pipelines:
  branches:
    'release/*':
      - step: {script: ["true"]}
`)
	spec, err := Parse(yml, testOptions())
	require.NoError(t, err)
	p, err := GetPipeline(spec, "branches.release/1.0")
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestGetPipeline_UnknownPipelineErrors(t *testing.T) {
	spec, err := Parse([]byte(`pipelines: {default: [{step: {script: ["true"]}}]}`), testOptions())
	require.NoError(t, err)
	_, err = GetPipeline(spec, "custom.nope")
	assert.Error(t, err)
}

func TestParse_AWSOIDCRoleRejectedWhenOIDCDisabled(t *testing.T) {
	yml := []byte(`
image:
  name: aws/codebuild/amazonlinux2-x86_64-standard:4.0
  aws:
    oidc-role: arn:aws:iam::123456789012:role/deploy
pipelines:
  default:
    - step: {script: ["true"]}
`)
	opts := testOptions()
	opts.OIDCEnabled = false
	_, err := Parse(yml, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aws oidc-role not supported")
}

func TestParse_AWSOIDCRoleAcceptedWhenOIDCEnabled(t *testing.T) {
	yml := []byte(`
image:
  name: aws/codebuild/amazonlinux2-x86_64-standard:4.0
  aws:
    oidc-role: arn:aws:iam::123456789012:role/deploy
pipelines:
  default:
    - step: {script: ["true"]}
`)
	opts := testOptions()
	opts.OIDCEnabled = true
	spec, err := Parse(yml, opts)
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:iam::123456789012:role/deploy", spec.Image.AWS.OIDCRole)
}
