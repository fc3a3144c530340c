package repoinspect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepoWithCommit(t *testing.T, branch string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	filePath := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(filePath, []byte("hello"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com"},
	})
	require.NoError(t, err)

	return dir
}

func TestInspect_ReturnsBranchAndCommit(t *testing.T) {
	dir := initRepoWithCommit(t, "master")

	repo, err := Inspect(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, repo.Branch)
	assert.Len(t, repo.Commit, 40)
}

func TestInspect_FailsOnNonRepo(t *testing.T) {
	_, err := Inspect(t.TempDir())
	assert.Error(t, err)
}
