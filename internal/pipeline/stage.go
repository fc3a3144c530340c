package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

// runStage implements the Stage Runner: selection by
// stage name, an optional manual trigger gating the whole stage, and
// stopping at the first failing step.
func (e *Engine) runStage(ctx context.Context, run *specmodel.PipelineRunContext, stage *specmodel.Stage, terminal io.Writer, stdin *bufio.Reader) (int, error) {
	if !run.IsStageSelected(stage.Name) {
		return 0, nil
	}

	if stage.Trigger == specmodel.TriggerManual {
		fmt.Fprintf(terminalOr(terminal), "Stage %q is manual. Press Enter to continue...\n", stage.Name)
		if _, err := stdin.ReadString('\n'); err != nil && err != io.EOF {
			return 0, fmt.Errorf("waiting for manual trigger: %w", err)
		}
	}

	for i := range stage.Steps {
		stepCtx := &specmodel.StepRunContext{Step: &stage.Steps[i], Run: run}
		result, err := e.runStep(ctx, stepCtx, terminal, stdin)
		if err != nil {
			return 0, err
		}
		if result.Skipped {
			continue
		}
		if result.ExitCode != 0 {
			return result.ExitCode, nil
		}
	}
	return 0, nil
}
