package cachemgr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

func TestComputeCacheKeyStableUnderPermutation(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(a, []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("world"), 0o644))

	k1, err := ComputeCacheKey([]string{a, b})
	require.NoError(t, err)
	k2, err := ComputeCacheKey([]string{b, a})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
}

func TestComputeCacheKeyChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(f, []byte("X"), 0o644))
	k1, err := ComputeCacheKey([]string{f})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(f, []byte("Y"), 0o644))
	k2, err := ComputeCacheKey([]string{f})
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
}

func TestArchivePathMemoizesPerCache(t *testing.T) {
	projectDir := t.TempDir()
	keyFile := filepath.Join(projectDir, "custom-cache-key")
	require.NoError(t, os.WriteFile(keyFile, []byte("X"), 0o644))

	m := New(t.TempDir(), logrus.New())
	c := specmodel.Cache{Name: "custom", Path: "/tmp/custom", KeyFiles: []string{"custom-cache-key"}}

	p1, err := m.archivePath(c, projectDir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(keyFile, []byte("Y"), 0o644))
	p2, err := m.archivePath(c, projectDir)
	require.NoError(t, err)

	assert.Equal(t, p1, p2, "memoized path must not change within a run even if the key file changes afterward")
}

func TestArchivePathVariesWithKeyContent(t *testing.T) {
	projectDir := t.TempDir()
	keyFile := filepath.Join(projectDir, "custom-cache-key")
	c := specmodel.Cache{Name: "custom", Path: "/tmp/custom", KeyFiles: []string{"custom-cache-key"}}

	require.NoError(t, os.WriteFile(keyFile, []byte("X"), 0o644))
	m1 := New(t.TempDir(), logrus.New())
	p1, err := m1.archivePath(c, projectDir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(keyFile, []byte("Y"), 0o644))
	m2 := New(t.TempDir(), logrus.New())
	p2, err := m2.archivePath(c, projectDir)
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
}

func TestArchivePathMissingKeyFileIsInvalidCacheKey(t *testing.T) {
	projectDir := t.TempDir()
	m := New(t.TempDir(), logrus.New())
	c := specmodel.Cache{Name: "custom", Path: "/tmp/custom", KeyFiles: []string{"missing-file"}}

	_, err := m.archivePath(c, projectDir)
	require.Error(t, err)
}

func TestTargetDirExpandsTilde(t *testing.T) {
	assert.Equal(t, "$HOME/.composer/cache", targetDir("~/.composer/cache"))
	assert.Equal(t, "node_modules", targetDir("node_modules"))
	assert.Equal(t, "$HOME", targetDir("~"))
}

func TestUploadDockerCacheNameRoutesToDockerSpecialization(t *testing.T) {
	m := New(t.TempDir(), logrus.New())
	// No local images.tar yet: uploadDocker must hit its own
	// not-found-skip path without ever touching the runner, proving
	// Upload dispatches a Cache named "docker" to the image-load
	// specialization rather than the plain directory round-trip (which
	// would panic dereferencing a nil runner).
	stale, err := m.Upload(nil, nil, specmodel.Cache{Name: DockerCacheName}, t.TempDir())
	require.NoError(t, err)
	assert.False(t, stale)
}
