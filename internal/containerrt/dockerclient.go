package containerrt

import (
	"context"
	"fmt"
	"io"
)

// InstallDockerClientIfNeeded probes the build image for a `docker`
// binary and, if the docker service is active but the binary is
// missing, copies a cached static binary into /usr/bin/docker. binary
// is the static docker client tar content, or nil when none is cached;
// this package does not fetch it (internal/pipeline opens it from the
// host cache directory when present).
func (r *Runner) InstallDockerClientIfNeeded(ctx context.Context, dockerServiceActive bool, binary io.Reader) error {
	if !dockerServiceActive {
		return nil
	}

	exitCode, _, err := r.execCapture(ctx, []string{"sh", "-c", "command -v docker"}, nil)
	if err != nil {
		return fmt.Errorf("probing for docker binary: %w", err)
	}
	if exitCode == 0 {
		return nil
	}

	if binary == nil {
		return fmt.Errorf("docker service requested but no static docker client binary available")
	}
	if err := r.PutArchive(ctx, "/usr/bin", binary); err != nil {
		return fmt.Errorf("installing docker client: %w", err)
	}
	return nil
}
