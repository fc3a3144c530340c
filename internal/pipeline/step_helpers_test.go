package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/localci/pipeline-runner/internal/config"
	"github.com/localci/pipeline-runner/internal/servicesrt"
	"github.com/localci/pipeline-runner/internal/specmodel"
)

func TestMergeDockerServiceIfNeededAddsImplicitDependency(t *testing.T) {
	step := &specmodel.Step{
		Script: []specmodel.Line{{Pipe: &specmodel.Pipe{Pipe: "atlassian/some-pipe:1.0.0"}}},
	}
	requested := mergeDockerServiceIfNeeded(step)
	assert.Contains(t, requested, servicesrt.DockerServiceName)
}

func TestMergeDockerServiceIfNeededLeavesExplicitListAlone(t *testing.T) {
	step := &specmodel.Step{
		Script:   []specmodel.Line{specmodel.RawLine("echo hi")},
		Services: []string{"mysql"},
	}
	requested := mergeDockerServiceIfNeeded(step)
	assert.Equal(t, []string{"mysql"}, requested)
}

func TestSumServiceMemoryUsesDefaultWhenUnset(t *testing.T) {
	cfg := &config.Config{ServiceContainerDefaultMemory: 512}
	effective := map[string]specmodel.Service{
		"redis": {Memory: 0},
		"mysql": {Memory: 256},
	}
	total := sumServiceMemory([]string{"redis", "mysql"}, effective, cfg)
	assert.Equal(t, 768, total)
}

func TestSumServiceMemoryIgnoresUnknownNames(t *testing.T) {
	cfg := &config.Config{ServiceContainerDefaultMemory: 512}
	effective := map[string]specmodel.Service{"redis": {Memory: 128}}
	total := sumServiceMemory([]string{"redis", "nope"}, effective, cfg)
	assert.Equal(t, 128, total)
}
