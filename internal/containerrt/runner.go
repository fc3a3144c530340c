// Package containerrt owns the single build container for a step: image
// pull, creation with the right mounts/env/limits, script execution with
// live output, archive put/get, and teardown.
package containerrt

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/moby/term"
	"github.com/sirupsen/logrus"

	"github.com/localci/pipeline-runner/internal/imageauth"
	"github.com/localci/pipeline-runner/internal/specmodel"
)

// Mounts bundles the host/volume paths a build container needs bound in.
// The shared data volume is always mounted at RemotePipeline, which covers
// RemoteWorkspace (a subdirectory of it) once the Repository Cloner has
// populated it. When CloneEnabled is false there is no cloned tree to rely
// on, so ProjectDir is instead bound read-only directly over
// RemoteWorkspace, shadowing that subdirectory for this container only.
type Mounts struct {
	ProjectDir      string // host project dir; used only when CloneEnabled is false
	DataVolume      string // named volume, bound at RemotePipeline
	RemoteWorkspace string
	RemotePipeline  string
	CloneEnabled    bool
	DockerSock      string // host docker.sock path, empty to skip
	SSHAgentSock    string // resolved host SSH agent socket, empty to skip
}

// StartOptions configures container creation.
type StartOptions struct {
	Name          string
	Image         *specmodel.Image
	Auth          *imageauth.Credentials
	Env           map[string]string
	NetworkName   string
	Mounts        Mounts
	CPULimits     bool
	CPUMultiplier int // step.Size
	MemLimitBytes int64
}

// Runner drives one build container end to end.
type Runner struct {
	client *client.Client
	log    *logrus.Logger

	containerID string
	name        string
}

// New wraps an already-configured Docker SDK client.
func New(cli *client.Client, log *logrus.Logger) *Runner {
	return &Runner{client: cli, log: log}
}

// Start pulls the image (authenticating if needed) and creates and starts
// the container detached, with entrypoint sh and tty enabled so script
// output streams line-buffered.
func (r *Runner) Start(ctx context.Context, opts StartOptions) error {
	r.name = opts.Name

	if err := r.pullImage(ctx, opts.Image.Name, opts.Auth); err != nil {
		return fmt.Errorf("pulling image %s: %w", opts.Image.Name, err)
	}

	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	hostConfig := &container.HostConfig{
		Mounts:      buildMounts(opts.Mounts),
		NetworkMode: container.NetworkMode(opts.NetworkName),
	}
	if opts.CPULimits {
		mult := opts.CPUMultiplier
		if mult == 0 {
			mult = 1
		}
		hostConfig.Resources = container.Resources{
			CPUPeriod: 100_000,
			CPUQuota:  int64(100_000 * mult),
			CPUShares: int64(1024 * mult),
		}
	}
	if opts.MemLimitBytes > 0 {
		hostConfig.Resources.Memory = opts.MemLimitBytes
	}

	containerConfig := &container.Config{
		Image:      opts.Image.Name,
		Entrypoint: []string{"sh"},
		Tty:        true,
		WorkingDir: opts.Mounts.RemoteWorkspace,
		Env:        env,
		User:       opts.Image.RunAsUser,
	}

	created, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, opts.Name)
	if err != nil {
		return fmt.Errorf("creating container %s: %w", opts.Name, err)
	}
	r.containerID = created.ID

	if err := r.client.ContainerStart(ctx, r.containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("starting container %s: %w", opts.Name, err)
	}
	return nil
}

func buildMounts(m Mounts) []mount.Mount {
	mounts := []mount.Mount{
		{Type: mount.TypeVolume, Source: m.DataVolume, Target: m.RemotePipeline},
	}
	if !m.CloneEnabled {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: m.ProjectDir, Target: m.RemoteWorkspace, ReadOnly: true})
	}
	if m.DockerSock != "" {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: m.DockerSock, Target: "/var/run/docker.sock"})
	}
	if m.SSHAgentSock != "" {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: m.SSHAgentSock, Target: "/ssh-agent"})
	}
	return mounts
}

func (r *Runner) pullImage(ctx context.Context, imageName string, auth *imageauth.Credentials) error {
	opts := image.PullOptions{}
	if auth != nil {
		encoded, err := encodeRegistryAuth(auth)
		if err != nil {
			return err
		}
		opts.RegistryAuth = encoded
	}

	reader, err := r.client.ImagePull(ctx, imageName, opts)
	if err != nil {
		return err
	}
	defer reader.Close()

	fd, isTerm := term.GetFdInfo(os.Stdout)
	return jsonmessage.DisplayJSONMessagesStream(reader, os.Stdout, fd, isTerm, nil)
}

// PathExists runs `[ -e "<path>" ]` in the container and reports whether
// it exited zero.
func (r *Runner) PathExists(ctx context.Context, path string) (bool, error) {
	exitCode, _, err := r.execCapture(ctx, []string{"sh", "-c", fmt.Sprintf("[ -e %s ]", shellQuote(path))}, nil)
	if err != nil {
		return false, err
	}
	return exitCode == 0, nil
}

// Stop removes the container along with its anonymous volumes.
func (r *Runner) Stop(ctx context.Context) error {
	if r.containerID == "" {
		return nil
	}
	return r.client.ContainerRemove(ctx, r.containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

// ContainerID returns the running build container's ID, used by the
// Repository Cloner to join its network namespace (`container:<id>`).
func (r *Runner) ContainerID() string { return r.containerID }

// Name returns the container's assigned name.
func (r *Runner) Name() string { return r.name }

func encodeRegistryAuth(creds *imageauth.Credentials) (string, error) {
	return encodeAuthJSON(creds.Username, creds.Password)
}

func shellQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// execCapture runs a command to completion and returns its exit code and
// combined stdout/stderr, without streaming to a logger. Used for
// internal probes (path_exists, `command -v docker`) rather than the
// user-visible script execution path — see RunScript for that.
func (r *Runner) execCapture(ctx context.Context, cmd []string, env []string) (int, []byte, error) {
	return execAndCapture(ctx, r.client, r.containerID, cmd, env)
}
