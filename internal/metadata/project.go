package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

// LoadProject reads <dataDir>/<path_slug>/meta.json, synthesizing a fresh
// record on first use, then increments and persists build_number.
func LoadProject(dataDir, repoPath string) (*specmodel.ProjectMetadata, error) {
	name := filepath.Base(filepath.Clean(repoPath))
	pathSlug := PathSlug(name, repoPath)
	metaPath := filepath.Join(dataDir, pathSlug, "meta.json")

	meta, err := readProjectMetadata(metaPath)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		slug := Slugify(name)
		meta = &specmodel.ProjectMetadata{
			Name:        name,
			Slug:        slug,
			Key:         KeyFromSlug(slug),
			PathSlug:    pathSlug,
			ProjectUUID: uuid.New(),
			RepoUUID:    uuid.New(),
			BuildNumber: 0,
		}
	}

	meta.BuildNumber++

	if err := persistProjectMetadata(metaPath, meta); err != nil {
		return nil, err
	}

	return meta, nil
}

func readProjectMetadata(path string) (*specmodel.ProjectMetadata, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading project metadata: %w", err)
	}
	var meta specmodel.ProjectMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing project metadata %s: %w", path, err)
	}
	return &meta, nil
}

func persistProjectMetadata(path string, meta *specmodel.ProjectMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding project metadata: %w", err)
	}
	return writeFileAtomic(path, data, 0o644)
}
