package artifactmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildFindExpression(t *testing.T) {
	expr := buildFindExpression([]string{"file-name", "valid-folder/**"})
	assert.Equal(t, `find . -type f \( -path './file-name' -o -path './valid-folder/**' \)`, expr)
}

func TestBuildFindExpressionStripsLeadingSlash(t *testing.T) {
	expr := buildFindExpression([]string{"/abs/path"})
	assert.Equal(t, `find . -type f \( -path './abs/path' \)`, expr)
}
