// Package artifactmgr implements the Artifact Manager:
// uploading artifacts restored from a prior step into the build
// container before the script runs, and extracting the patterns declared
// by `artifacts:` back out to the host after it finishes, using
// tarutil.SafeExtract so a crafted tar member can never land outside the
// target directory.
package artifactmgr

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/localci/pipeline-runner/internal/cierr"
	"github.com/localci/pipeline-runner/internal/containerrt"
	"github.com/localci/pipeline-runner/internal/dockerio"
	"github.com/localci/pipeline-runner/internal/humanize"
	"github.com/localci/pipeline-runner/internal/tarutil"
)

// Manager drives artifact upload/download for one step.
type Manager struct {
	log *logrus.Logger
}

// New builds an artifact manager.
func New(log *logrus.Logger) *Manager {
	return &Manager{log: log}
}

// Upload walks hostDir (the run's artifact directory) and streams every
// regular file it contains into the build container at remoteDir,
// preserving relative paths, mode, and size. A directory that doesn't
// exist yet (no prior step has produced artifacts) is treated as empty,
// not an error.
func (m *Manager) Upload(ctx context.Context, runner *containerrt.Runner, hostDir, remoteDir string) error {
	if _, err := os.Stat(hostDir); os.IsNotExist(err) {
		return nil
	}

	files, err := tarutil.WalkFiles(hostDir)
	if err != nil {
		return &cierr.ArtifactManagementError{Message: "walking artifact directory", Cause: err}
	}
	if len(files) == 0 {
		return nil
	}

	pr, pw := io.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- tarutil.BuildTar(pw, hostDir, files)
		pw.Close()
	}()

	if err := runner.PutArchive(ctx, remoteDir, pr); err != nil {
		return &cierr.ArtifactManagementError{Message: "uploading artifacts", Cause: err}
	}
	if err := <-errCh; err != nil {
		return &cierr.ArtifactManagementError{Message: "building artifact tar", Cause: err}
	}
	return nil
}

// Download evaluates the step's artifact glob patterns inside the
// container via `find`, tars the matches, streams them back, and safely
// extracts them into hostDir. An empty match set is a no-op, not an
// error — a step that declares artifacts it never produced simply
// collects nothing.
func (m *Manager) Download(ctx context.Context, runner *containerrt.Runner, remoteWorkdir, stepUUID string, patterns []string, hostDir string) error {
	if len(patterns) == 0 {
		return nil
	}

	remoteTar := fmt.Sprintf("/tmp/artifacts-%s.tar", stepUUID)
	findExpr := buildFindExpression(patterns)
	script := fmt.Sprintf("cd %s && %s | tar cf %s -T - 2>/dev/null; true", remoteWorkdir, findExpr, remoteTar)
	if _, err := runner.RunCommand(ctx, script, nil, io.Discard); err != nil {
		return &cierr.ArtifactManagementError{Message: "collecting artifacts in container", Cause: err}
	}

	exists, err := runner.PathExists(ctx, remoteTar)
	if err != nil {
		return &cierr.ArtifactManagementError{Message: "checking artifact archive", Cause: err}
	}
	if !exists {
		return nil
	}

	reader, _, err := runner.GetArchive(ctx, remoteTar)
	if err != nil {
		return &cierr.ArtifactManagementError{Message: "downloading artifact archive", Cause: err}
	}
	defer reader.Close()

	if err := os.MkdirAll(hostDir, 0o755); err != nil {
		return &cierr.ArtifactManagementError{Message: "creating artifact directory", Cause: err}
	}

	start := time.Now()
	// GetArchive wraps the requested path in a tar entry named after its
	// basename (artifacts-<uuid>.tar); unwrap that single member before
	// extracting its contents, since it is itself a tar stream.
	inner, n, err := unwrapSingleFileArchive(reader)
	if err != nil {
		return &cierr.ArtifactManagementError{Message: "unwrapping artifact archive", Cause: err}
	}

	if err := tarutil.SafeExtract(inner, hostDir); err != nil {
		return err
	}
	m.log.Infof("Downloaded artifacts: %s in %.3fs", humanize.Size(n), time.Since(start).Seconds())
	return nil
}

// buildFindExpression renders artifact glob patterns into the
// `find . -type f \( -path './p1' -o -path './p2' … \)` expression, so
// matches are resolved inside the container rather than against the
// host's view of the workspace.
func buildFindExpression(patterns []string) string {
	var parts []string
	for _, p := range patterns {
		p = strings.TrimPrefix(p, "/")
		parts = append(parts, fmt.Sprintf("-path './%s'", p))
	}
	return fmt.Sprintf("find . -type f \\( %s \\)", strings.Join(parts, " -o "))
}

// unwrapSingleFileArchive drains a CopyFromContainer stream (itself a tar
// containing exactly one regular file member: the artifacts-<uuid>.tar
// we asked the container to build) and returns a reader over that
// member's bytes plus its size.
func unwrapSingleFileArchive(r io.Reader) (io.Reader, int64, error) {
	buffered := dockerio.NewChunkReader(dockerio.FromReader(r, 32*1024))
	return extractFirstMember(buffered)
}

// extractFirstMember reads the first regular-file tar member from r and
// buffers its content, returning it alongside its declared size.
func extractFirstMember(r io.Reader) (io.Reader, int64, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return bytes.NewReader(nil), 0, nil
		}
		if err != nil {
			return nil, 0, fmt.Errorf("reading archive wrapper: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		var buf bytes.Buffer
		n, err := io.Copy(&buf, tr)
		if err != nil {
			return nil, 0, fmt.Errorf("reading archive member %s: %w", hdr.Name, err)
		}
		return &buf, n, nil
	}
}
