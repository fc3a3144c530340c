package containerrt

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

// RunScript joins lines with newlines, echoing each raw line (prefixed
// "+ ") to out before executing, rewriting Pipe lines into `docker run`
// invocations, and execs the joined text directly as `sh -e -c "<cmd>"`
// so the script aborts on the first failing command. It returns the
// script's exit code.
//
// The assembled text is passed straight to execAndStream's exec args
// rather than through RunCommand's own "sh -c" layer: nesting it inside
// a second shell would mean that outer shell expands any `$VAR` or
// command substitution in the script text while building its own -c
// argument, before the inner shell the script is meant to run in ever
// sees it.
func (r *Runner) RunScript(ctx context.Context, lines []specmodel.Line, env map[string]string, out io.Writer) (int, error) {
	var b strings.Builder
	for _, line := range lines {
		rendered := renderLine(line)
		fmt.Fprintf(out, "+ %s\n", rendered)
		b.WriteString(rendered)
		b.WriteString("\n")
	}

	envSlice := make([]string, 0, len(env))
	for k, v := range env {
		envSlice = append(envSlice, k+"="+v)
	}
	return execAndStream(ctx, r.client, r.containerID, []string{"sh", "-e", "-c", strings.TrimRight(b.String(), "\n")}, envSlice, out)
}

// RunCommand execs a single already-assembled shell command and streams
// its combined output to out.
func (r *Runner) RunCommand(ctx context.Context, cmd string, env map[string]string, out io.Writer) (int, error) {
	envSlice := make([]string, 0, len(env))
	for k, v := range env {
		envSlice = append(envSlice, k+"="+v)
	}
	return execAndStream(ctx, r.client, r.containerID, []string{"sh", "-c", cmd}, envSlice, out)
}

// RunCommandCapture execs a shell command and returns its exit code and
// combined stdout/stderr as a string, for callers that need to parse the
// output (e.g. the docker-cache specialization listing image names)
// rather than stream it to a step log.
func (r *Runner) RunCommandCapture(ctx context.Context, cmd string) (int, string, error) {
	exitCode, out, err := r.execCapture(ctx, []string{"sh", "-c", cmd}, nil)
	return exitCode, string(out), err
}

// renderLine turns a script Line into the literal text that gets echoed
// and executed: a raw shell string verbatim, or a Pipe rewritten into a
// `docker run --rm` invocation with its variables shell-escaped.
func renderLine(line specmodel.Line) string {
	if !line.IsPipe() {
		return line.Raw
	}
	var b strings.Builder
	b.WriteString("docker run --rm")
	for k, v := range line.Pipe.Variables {
		fmt.Fprintf(&b, " -e %s=%q", k, EscapeShellString(v))
	}
	fmt.Fprintf(&b, " %s", line.Pipe.Pipe)
	return b.String()
}
