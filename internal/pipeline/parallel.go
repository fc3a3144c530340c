package pipeline

import (
	"bufio"
	"context"
	"io"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

// runParallel implements the Parallel Step Runner: its
// steps execute sequentially, each tagged with its parallel index/count,
// and the group's exit code is the last non-zero one seen (0 if every
// step succeeds).
func (e *Engine) runParallel(ctx context.Context, run *specmodel.PipelineRunContext, group *specmodel.ParallelStep, stageName string, terminal io.Writer, stdin *bufio.Reader) (int, error) {
	count := len(group.Steps)
	exitCode := 0

	for i := range group.Steps {
		idx := i
		stepCtx := &specmodel.StepRunContext{
			Step:              &group.Steps[i],
			Run:               run,
			ParallelStepIndex: &idx,
			ParallelStepCount: &count,
		}

		result, err := e.runStep(ctx, stepCtx, terminal, stdin)
		if err != nil {
			return exitCode, err
		}
		if result.Skipped {
			continue
		}
		if result.ExitCode != 0 {
			exitCode = result.ExitCode
			if group.FailFast {
				break
			}
		}
	}
	return exitCode, nil
}
