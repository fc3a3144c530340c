package containerrt

import (
	"bytes"
	"context"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// execAndCapture runs cmd to completion inside containerID and returns its
// exit code plus combined stdout+stderr, for internal probes that don't
// need live streaming.
func execAndCapture(ctx context.Context, cli *client.Client, containerID string, cmd []string, env []string) (int, []byte, error) {
	created, err := cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		Env:          env,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return 0, nil, err
	}

	attached, err := cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return 0, nil, err
	}
	defer attached.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, attached.Reader); err != nil && err != io.EOF {
		return 0, nil, err
	}

	inspect, err := cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return 0, out.Bytes(), err
	}
	return inspect.ExitCode, out.Bytes(), nil
}

// execAndStream runs cmd inside containerID, writing demultiplexed
// stdout/stderr to out as it arrives, and returns the final exit code.
// Cancelling ctx (a step's max-time deadline, or a caller-triggered
// interrupt) closes the hijacked connection so the blocking StdCopy read
// unblocks with an error rather than running forever.
func execAndStream(ctx context.Context, cli *client.Client, containerID string, cmd []string, env []string, out io.Writer) (int, error) {
	created, err := cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		Env:          env,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return 0, err
	}

	attached, err := cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return 0, err
	}
	defer attached.Close()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			attached.Close()
		case <-watchDone:
		}
	}()

	if _, err := stdcopy.StdCopy(out, out, attached.Reader); err != nil && err != io.EOF {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	inspect, err := cli.ContainerExecInspect(context.Background(), created.ID)
	if err != nil {
		return 0, err
	}
	return inspect.ExitCode, nil
}
