package specparse

import (
	"os"
	"regexp"
	"strings"

	"github.com/localci/pipeline-runner/internal/cierr"
)

// varPattern matches both $VAR and ${VAR} forms.
var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars substitutes $VAR / ${VAR} references against the process
// environment. Unlike shell expansion, an unresolved reference is left
// untouched rather than replaced with an empty string — the caller then
// rejects any leftover "$" as a "Missing envvars" validation error.
func expandEnvVars(value string) (string, error) {
	if !strings.Contains(value, "$") {
		return value, nil
	}
	expanded := varPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := strings.TrimPrefix(strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}"), "$")
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
	if strings.Contains(expanded, "$") {
		return "", cierr.NewMissingEnvVarsError(value)
	}
	return expanded, nil
}

func expandOptional(value string) (string, error) {
	if value == "" {
		return value, nil
	}
	return expandEnvVars(value)
}
