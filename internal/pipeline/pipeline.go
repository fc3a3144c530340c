package pipeline

import (
	"bufio"
	"context"
	"io"

	"github.com/localci/pipeline-runner/internal/specmodel"
)

// Run implements the Pipeline Runner: prompt for
// pipeline variables, then dispatch each top-level element to a stage,
// step, or parallel runner in order, stopping at the first non-zero exit
// code.
func (e *Engine) Run(ctx context.Context, run *specmodel.PipelineRunContext, stdin io.Reader, terminal io.Writer, isTTY bool) (specmodel.PipelineResult, error) {
	reader := bufio.NewReader(stdin)

	vars, err := promptVariables(reader, terminalOr(terminal), isTTY, run.Pipeline.Variables())
	if err != nil {
		return specmodel.PipelineResult{}, err
	}
	if run.Variables == nil {
		run.Variables = map[string]string{}
	}
	for k, v := range vars {
		run.Variables[k] = v
	}

	exitCode := 0

	for _, el := range run.Pipeline.Elements {
		switch el.Kind() {
		case "step":
			stepCtx := &specmodel.StepRunContext{Step: el.Step, Run: run}
			result, err := e.runStep(ctx, stepCtx, terminal, reader)
			if err != nil {
				return specmodel.PipelineResult{PipelineUUID: run.PipelineUUID, BuildNumber: run.Project.BuildNumber}, err
			}
			if !result.Skipped && result.ExitCode != 0 {
				exitCode = result.ExitCode
			}
		case "parallel":
			code, err := e.runParallel(ctx, run, el.Parallel, "", terminal, reader)
			if err != nil {
				return specmodel.PipelineResult{PipelineUUID: run.PipelineUUID, BuildNumber: run.Project.BuildNumber}, err
			}
			exitCode = code
		case "stage":
			code, err := e.runStage(ctx, run, el.Stage, terminal, reader)
			if err != nil {
				return specmodel.PipelineResult{PipelineUUID: run.PipelineUUID, BuildNumber: run.Project.BuildNumber}, err
			}
			exitCode = code
		default:
			continue
		}

		if exitCode != 0 {
			break
		}
	}

	return specmodel.PipelineResult{
		ExitCode:     exitCode,
		BuildNumber:  run.Project.BuildNumber,
		PipelineUUID: run.PipelineUUID,
	}, nil
}
