package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

// promptVariables prompts for each pipeline variable on stdin, falling
// back to a plain line read when stdin isn't a terminal. Empty input
// keeps the variable's default; variables with allowed_values reject
// anything outside the set and re-prompt. reader is shared with the
// pipeline's later manual-trigger prompts so bytes buffered ahead of a
// newline during variable prompting aren't dropped.
func promptVariables(reader *bufio.Reader, out io.Writer, isTTY bool, vars []specmodel.Variable) (map[string]string, error) {
	values := make(map[string]string, len(vars))

	for _, v := range vars {
		for {
			prompt := fmt.Sprintf("%s [%s]: ", v.Name, v.Default)
			if v.HasAllowedValues() {
				prompt = fmt.Sprintf("%s (%s) [%s]: ", v.Name, strings.Join(v.AllowedValues, ", "), v.Default)
			}
			if isTTY {
				fmt.Fprint(out, prompt)
			}

			line, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("reading variable %s: %w", v.Name, err)
			}
			line = strings.TrimSpace(line)

			value := v.Default
			if line != "" {
				value = line
			}
			if !v.IsAllowed(value) {
				fmt.Fprintf(out, "%q is not one of the allowed values for %s\n", value, v.Name)
				continue
			}
			values[v.Name] = value
			break
		}
	}
	return values, nil
}
