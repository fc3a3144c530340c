package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "my-cool-app", Slugify("My Cool App!!"))
	assert.Equal(t, "a-b", Slugify("  A_B  "))
}

func TestKeyFromSlug(t *testing.T) {
	assert.Equal(t, "MCA", KeyFromSlug("my-cool-app"))
	assert.Equal(t, "PRJ", KeyFromSlug(""))
}

func TestPathSlug_DeterministicPerPath(t *testing.T) {
	a := PathSlug("app", "/home/dev/app")
	b := PathSlug("app", "/home/dev/app")
	c := PathSlug("app", "/home/dev/app2")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestLoadProject_CreatesThenIncrementsBuildNumber(t *testing.T) {
	dataDir := t.TempDir()
	repoPath := t.TempDir()

	first, err := LoadProject(dataDir, repoPath)
	require.NoError(t, err)
	assert.Equal(t, 1, first.BuildNumber)

	second, err := LoadProject(dataDir, repoPath)
	require.NoError(t, err)
	assert.Equal(t, 2, second.BuildNumber)
	assert.Equal(t, first.ProjectUUID, second.ProjectUUID)
}

func TestLoadWorkspace_PersistsAcrossCalls(t *testing.T) {
	dataDir := t.TempDir()

	first, err := LoadWorkspace(dataDir)
	require.NoError(t, err)
	require.NotEmpty(t, first.OIDCPrivateKeyPEM)

	second, err := LoadWorkspace(dataDir)
	require.NoError(t, err)
	assert.Equal(t, first.WorkspaceUUID, second.WorkspaceUUID)
	assert.Equal(t, first.OIDCPrivateKeyPEM, second.OIDCPrivateKeyPEM)
}
