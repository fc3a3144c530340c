package containerrt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeShellString(t *testing.T) {
	assert.Equal(t, "plain", EscapeShellString("plain"))
	assert.Equal(t, "a\\x24b", EscapeShellString("a$b"))
	assert.Equal(t, "\\x22quoted\\x22", EscapeShellString(`"quoted"`))
	assert.Equal(t, "\\x5cpath", EscapeShellString(`\path`))
}
