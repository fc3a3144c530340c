// Package clonert implements the repository cloner: a one-shot alpine/git
// side container that clones the read-only host workspace bind into the
// shared data volume, joined to the build container's network namespace
// so the two never need a routable network between them.
package clonert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/moby/term"
	"github.com/sirupsen/logrus"

	"github.com/localci/pipeline-runner/internal/cierr"
	"github.com/localci/pipeline-runner/internal/config"
	"github.com/localci/pipeline-runner/internal/specmodel"
)

// Image is the side container the clone runs in.
const Image = "alpine/git:latest"

// Options configures one clone.
type Options struct {
	BuildContainerID string // network namespace to join: container:<id>
	ProjectDir       string // host project dir, bound read-only for this container only
	DataVolume       string // shared data volume, bound at config.RemotePipelineDir
	Branch           string
	Commit           string // BITBUCKET_COMMIT; empty means "leave HEAD at clone tip"
	Clone            specmodel.CloneSettings
	GitUserName      string
	GitUserEmail     string
}

// Cloner drives the one-shot git side container.
type Cloner struct {
	client *client.Client
	log    *logrus.Logger
}

// New wraps an already-configured Docker SDK client.
func New(cli *client.Client, log *logrus.Logger) *Cloner {
	return &Cloner{client: cli, log: log}
}

// Clone is a no-op when opts.Clone.Enabled is false. Otherwise it runs the
// clone script to completion and returns nil on success; a non-zero exit
// or any Docker error is returned as an error.
func (c *Cloner) Clone(ctx context.Context, opts Options) error {
	if opts.Clone.Enabled != nil && !*opts.Clone.Enabled {
		return nil
	}

	if err := c.pullImage(ctx); err != nil {
		return fmt.Errorf("pulling %s: %w", Image, err)
	}

	script := buildScript(opts)

	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode("container:" + opts.BuildContainerID),
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: opts.ProjectDir, Target: config.RemoteHostSourceDir, ReadOnly: true},
			{Type: mount.TypeVolume, Source: opts.DataVolume, Target: config.RemotePipelineDir},
		},
	}
	containerConfig := &container.Config{
		Image:      Image,
		Entrypoint: []string{"sh", "-c"},
		Cmd:        []string{script},
	}

	created, err := c.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return &cierr.PipelineFatalError{Message: "creating clone container", Cause: err}
	}
	defer c.client.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})

	if err := c.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return &cierr.PipelineFatalError{Message: "starting clone container", Cause: err}
	}

	statusCh, errCh := c.client.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return &cierr.PipelineFatalError{Message: "waiting on clone container", Cause: err}
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	if exitCode != 0 {
		logs, _ := c.collectLogs(ctx, created.ID)
		return &cierr.PipelineFatalError{Message: fmt.Sprintf("clone failed (exit %d): %s", exitCode, logs)}
	}
	return nil
}

func (c *Cloner) collectLogs(ctx context.Context, containerID string) (string, error) {
	reader, err := c.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", err
	}
	defer reader.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, reader); err != nil && err != io.EOF {
		return "", err
	}
	return out.String(), nil
}

func (c *Cloner) pullImage(ctx context.Context) error {
	reader, err := c.client.ImagePull(ctx, Image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	fd, isTerm := term.GetFdInfo(os.Stdout)
	return jsonmessage.DisplayJSONMessagesStream(reader, os.Stdout, fd, isTerm, nil)
}

// buildScript renders the clone script: configure
// safe.directory, clone from the read-only host bind into the shared
// workspace, reset to the requested commit, rewrite remotes for a
// self-contained local history, and expire the reflog so a shallow clone
// doesn't carry dangling objects forward.
func buildScript(opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "set -e\n")
	fmt.Fprintf(&b, "git config --system --add safe.directory %s\n", shQuote(config.RemoteHostSourceDir))

	cloneEnv := ""
	if opts.Clone.LFS == nil || !*opts.Clone.LFS {
		cloneEnv = "GIT_LFS_SKIP_SMUDGE=1 "
	}

	cloneArgs := []string{"clone"}
	if opts.Branch != "" {
		cloneArgs = append(cloneArgs, "--branch", shQuote(opts.Branch))
	}
	if opts.Clone.Depth != nil && *opts.Clone.Depth > 0 {
		cloneArgs = append(cloneArgs, "--depth", shQuote(strconv.Itoa(*opts.Clone.Depth)))
	}
	cloneArgs = append(cloneArgs, shQuote("file://"+config.RemoteHostSourceDir), shQuote(config.RemoteWorkspaceDir))

	fmt.Fprintf(&b, "%sgit %s\n", cloneEnv, strings.Join(cloneArgs, " "))
	fmt.Fprintf(&b, "cd %s\n", shQuote(config.RemoteWorkspaceDir))

	if opts.Commit != "" {
		fmt.Fprintf(&b, "git reset --hard %s\n", shQuote(opts.Commit))
	}

	userName := opts.GitUserName
	if userName == "" {
		userName = "pipelines"
	}
	userEmail := opts.GitUserEmail
	if userEmail == "" {
		userEmail = "commits-noreply@bitbucket.org"
	}
	fmt.Fprintf(&b, "git config user.name %s\n", shQuote(userName))
	fmt.Fprintf(&b, "git config user.email %s\n", shQuote(userEmail))
	fmt.Fprintf(&b, "git config push.default current\n")
	fmt.Fprintf(&b, "git remote set-url origin file://%s\n", shQuote(config.RemoteHostSourceDir))
	fmt.Fprintf(&b, "git reflog expire --expire=now --all\n")
	fmt.Fprintf(&b, "echo .bitbucket/pipelines/generated >> .git/info/exclude\n")
	return b.String()
}

func quoteAll(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = shQuote(a)
	}
	return out
}

func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
