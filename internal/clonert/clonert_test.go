package clonert

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func TestBuildScriptDefaultShallowClone(t *testing.T) {
	script := buildScript(Options{
		Branch: "main",
		Commit: "abc123",
		Clone:  specmodel.DefaultCloneSettings(),
	})

	assert.Contains(t, script, "GIT_LFS_SKIP_SMUDGE=1")
	assert.Contains(t, script, "--branch 'main'")
	assert.Contains(t, script, "--depth '50'")
	assert.Contains(t, script, "git reset --hard 'abc123'")
	assert.Contains(t, script, "git config user.name 'pipelines'")
	assert.Contains(t, script, ".bitbucket/pipelines/generated")
}

func TestBuildScriptFullHistorySkipsDepthFlag(t *testing.T) {
	script := buildScript(Options{
		Clone: specmodel.CloneSettings{Depth: intPtr(0), LFS: boolPtr(false), Enabled: boolPtr(true)},
	})
	assert.False(t, strings.Contains(script, "--depth"))
}

func TestBuildScriptLFSEnabledOmitsSkipSmudge(t *testing.T) {
	script := buildScript(Options{
		Clone: specmodel.CloneSettings{Depth: intPtr(50), LFS: boolPtr(true), Enabled: boolPtr(true)},
	})
	assert.NotContains(t, script, "GIT_LFS_SKIP_SMUDGE")
}

func TestBuildScriptCustomGitIdentity(t *testing.T) {
	script := buildScript(Options{
		Clone:        specmodel.DefaultCloneSettings(),
		GitUserName:  "Ada Lovelace",
		GitUserEmail: "ada@example.com",
	})
	assert.Contains(t, script, "git config user.name 'Ada Lovelace'")
	assert.Contains(t, script, "git config user.email 'ada@example.com'")
}
