package specparse

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/localci/pipeline-runner/internal/cierr"
	"github.com/localci/pipeline-runner/internal/specmodel"
)

// GetPipeline resolves a dotted pipeline path such as "default",
// "custom.lint", or "branches.main" against the parsed pipeline set. Glob groups
// (branches/tags/pull-requests/bookmarks) fall back to pattern matching
// against the literal key when there is no exact match, picking the first
// match in lexicographic key order on ties.
func GetPipeline(spec *specmodel.PipelineSpec, path string) (*specmodel.Pipeline, error) {
	if path == "default" {
		if spec.Pipelines.Default == nil {
			return nil, cierr.NewInvalidPipelineError(path, GetAvailablePipelines(spec))
		}
		return spec.Pipelines.Default, nil
	}

	group, name, ok := strings.Cut(path, ".")
	if !ok {
		return nil, cierr.NewInvalidPipelineError(path, GetAvailablePipelines(spec))
	}

	var m map[string]specmodel.Pipeline
	switch group {
	case "branches":
		m = spec.Pipelines.Branches
	case "pull-requests":
		m = spec.Pipelines.PullRequests
	case "tags":
		m = spec.Pipelines.Tags
	case "bookmarks":
		m = spec.Pipelines.Bookmarks
	case "custom":
		m = spec.Pipelines.Custom
	default:
		return nil, cierr.NewInvalidPipelineError(path, GetAvailablePipelines(spec))
	}

	if p, ok := m[name]; ok {
		return &p, nil
	}

	if group == "custom" {
		return nil, cierr.NewInvalidPipelineError(path, GetAvailablePipelines(spec))
	}

	for _, key := range SortedGroupNames(m) {
		if matched, _ := filepath.Match(key, name); matched {
			p := m[key]
			return &p, nil
		}
	}

	return nil, cierr.NewInvalidPipelineError(path, GetAvailablePipelines(spec))
}

// GetAvailablePipelines enumerates every concrete dotted path declared,
// sorted for deterministic CLI output.
func GetAvailablePipelines(spec *specmodel.PipelineSpec) []string {
	var paths []string
	if spec.Pipelines.Default != nil {
		paths = append(paths, "default")
	}
	for group, m := range map[string]map[string]specmodel.Pipeline{
		"branches":      spec.Pipelines.Branches,
		"pull-requests": spec.Pipelines.PullRequests,
		"tags":          spec.Pipelines.Tags,
		"bookmarks":     spec.Pipelines.Bookmarks,
		"custom":        spec.Pipelines.Custom,
	} {
		for name := range m {
			paths = append(paths, group+"."+name)
		}
	}
	sort.Strings(paths)
	return paths
}
