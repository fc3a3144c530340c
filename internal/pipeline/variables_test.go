package pipeline

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

func TestPromptVariablesEmptyInputKeepsDefault(t *testing.T) {
	vars := []specmodel.Variable{{Name: "ENVIRONMENT", Default: "staging"}}
	values, err := promptVariables(bufio.NewReader(strings.NewReader("\n")), &bytes.Buffer{}, false, vars)
	require.NoError(t, err)
	assert.Equal(t, "staging", values["ENVIRONMENT"])
}

func TestPromptVariablesOverridesDefault(t *testing.T) {
	vars := []specmodel.Variable{{Name: "ENVIRONMENT", Default: "staging"}}
	values, err := promptVariables(bufio.NewReader(strings.NewReader("production\n")), &bytes.Buffer{}, false, vars)
	require.NoError(t, err)
	assert.Equal(t, "production", values["ENVIRONMENT"])
}

func TestPromptVariablesRejectsDisallowedValue(t *testing.T) {
	vars := []specmodel.Variable{{Name: "ENVIRONMENT", Default: "staging", AllowedValues: []string{"staging", "production"}}}
	values, err := promptVariables(bufio.NewReader(strings.NewReader("bogus\nproduction\n")), &bytes.Buffer{}, false, vars)
	require.NoError(t, err)
	assert.Equal(t, "production", values["ENVIRONMENT"])
}

func TestPromptVariablesThenManualTriggerShareReader(t *testing.T) {
	// Regression test: promptVariables and a later manual-trigger read
	// must consume the same underlying reader, or input piped ahead of
	// time (common for non-interactive runs) gets silently dropped.
	vars := []specmodel.Variable{{Name: "ENVIRONMENT", Default: "staging"}}
	reader := bufio.NewReader(strings.NewReader("production\ncontinue-line\n"))

	values, err := promptVariables(reader, &bytes.Buffer{}, false, vars)
	require.NoError(t, err)
	assert.Equal(t, "production", values["ENVIRONMENT"])

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "continue-line\n", line)
}
