// Package servicesrt implements the Services Manager: it
// starts the side-car service containers a step requests (the "docker"
// service gets the privileged dind specialization), enforces the memory
// budget before doing so, and tears them down — running an in-container
// teardown script for the docker service first.
package servicesrt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

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
	"github.com/localci/pipeline-runner/internal/imageauth"
	"github.com/localci/pipeline-runner/internal/specmodel"
)

// DockerServiceName is the reserved service name that gets the
// privileged dind specialization instead of a plain container.
const DockerServiceName = "docker"

// dockerTeardownScript kills running containers and prunes containers
// and volumes inside the dind service before it is removed, so a stale
// dind data directory doesn't accumulate unreachable layers across runs.
const dockerTeardownScript = `docker kill $(docker ps -q) 2>/dev/null; docker container prune -f 2>/dev/null; docker volume prune -f 2>/dev/null; true`

// Handle is a started service container.
type Handle struct {
	Name        string
	ContainerID string
	IsDocker    bool
}

// Manager starts and stops a step's side-car services on a shared
// network.
type Manager struct {
	client *client.Client
	log    *logrus.Logger
}

// New wraps an already-configured Docker SDK client.
func New(cli *client.Client, log *logrus.Logger) *Manager {
	return &Manager{client: cli, log: log}
}

// CheckMemoryBudget enforces the invariant: the sum of
// requested services' memory must not exceed
// total_memory_limit*step.size - build_container_minimum_memory.
func CheckMemoryBudget(requested map[string]specmodel.Service, cfg *config.Config, stepSize specmodel.StepSize) error {
	budget := cfg.TotalMemoryLimit*stepSize.AsInt() - cfg.BuildContainerMinimumMemory
	var total int
	for _, svc := range requested {
		mem := svc.Memory
		if mem == 0 {
			mem = cfg.ServiceContainerDefaultMemory
		}
		total += mem
	}
	if total > budget {
		return fmt.Errorf("services request %d MiB but only %d MiB is available (total_memory_limit=%d x step.size=%s - build_container_minimum_memory=%d)",
			total, budget, cfg.TotalMemoryLimit, stepSize, cfg.BuildContainerMinimumMemory)
	}
	return nil
}

// StartOptions configures starting one step's full set of services.
type StartOptions struct {
	Requested      []string // names the step asked for
	Effective      map[string]specmodel.Service
	NetworkName    string
	ProjectSlug    string
	PipelineCache  string // host path, for the docker service's /var/lib/docker bind
	DataVolume     string
	Auth           imageauth.OIDCMinter
	StepCtx        *specmodel.StepRunContext
	DefaultDockerImage string
}

// StartAll starts every requested service, looking each up in the
// effective service map and failing with an Invalid service usage error
// when a name isn't declared.
func (m *Manager) StartAll(ctx context.Context, opts StartOptions) ([]*Handle, error) {
	var handles []*Handle
	for _, name := range opts.Requested {
		svc, ok := opts.Effective[name]
		if !ok {
			return handles, cierr.NewInvalidServiceError(name)
		}

		h, err := m.start(ctx, name, svc, opts)
		if err != nil {
			return handles, fmt.Errorf("starting service %q: %w", name, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func (m *Manager) start(ctx context.Context, name string, svc specmodel.Service, opts StartOptions) (*Handle, error) {
	containerName := fmt.Sprintf("%s-service-%s", opts.ProjectSlug, name)

	isDocker := name == DockerServiceName
	imageName := opts.DefaultDockerImage
	if svc.Image != nil && svc.Image.Name != "" {
		imageName = svc.Image.Name
	}

	env := make([]string, 0, len(svc.Variables)+1)
	for k, v := range svc.Variables {
		env = append(env, k+"="+v)
	}

	hostConfig := &container.HostConfig{NetworkMode: container.NetworkMode(opts.NetworkName)}
	containerConfig := &container.Config{Image: imageName, Env: env}

	if isDocker {
		containerConfig.Cmd = []string{"--tls=false"}
		containerConfig.Env = append(containerConfig.Env, "DOCKER_TLS_CERTDIR=")
		hostConfig.Privileged = true
		hostConfig.Mounts = []mount.Mount{
			{Type: mount.TypeBind, Source: opts.PipelineCache + "/docker", Target: "/var/lib/docker"},
			{Type: mount.TypeVolume, Source: opts.DataVolume, Target: config.RemotePipelineDir},
		}
	} else if len(svc.Command) > 0 {
		containerConfig.Cmd = svc.Command
	}

	var auth *imageauth.Credentials
	if svc.Image != nil && opts.Auth != nil {
		a, err := imageauth.Authenticate(ctx, opts.StepCtx, opts.Auth, svc.Image)
		if err != nil {
			return nil, fmt.Errorf("authenticating service image: %w", err)
		}
		auth = a
	}
	if err := pullImage(ctx, m.client, imageName, auth); err != nil {
		return nil, fmt.Errorf("pulling image %s: %w", imageName, err)
	}

	created, err := m.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("creating service container: %w", err)
	}
	if err := m.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("starting service container: %w", err)
	}

	return &Handle{Name: name, ContainerID: created.ID, IsDocker: isDocker}, nil
}

// StopAll tears down every handle, running the docker teardown script
// inside any dind service before removing it.
func (m *Manager) StopAll(ctx context.Context, handles []*Handle) error {
	var firstErr error
	for _, h := range handles {
		if h.IsDocker {
			if err := m.runTeardownScript(ctx, h.ContainerID); err != nil {
				m.log.Warnf("service %q: teardown script failed: %v", h.Name, err)
			}
		}
		if err := m.client.ContainerRemove(ctx, h.ContainerID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			m.log.Warnf("service %q: removing container: %v", h.Name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Manager) runTeardownScript(ctx context.Context, containerID string) error {
	created, err := m.client.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          []string{"sh", "-c", dockerTeardownScript},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return err
	}
	attached, err := m.client.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return err
	}
	defer attached.Close()
	_, _ = stdcopy.StdCopy(discard{}, discard{}, attached.Reader)
	return nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func pullImage(ctx context.Context, cli *client.Client, imageName string, auth *imageauth.Credentials) error {
	opts := image.PullOptions{}
	if auth != nil {
		data, err := json.Marshal(struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}{auth.Username, auth.Password})
		if err != nil {
			return err
		}
		opts.RegistryAuth = base64.URLEncoding.EncodeToString(data)
	}

	reader, err := cli.ImagePull(ctx, imageName, opts)
	if err != nil {
		return err
	}
	defer reader.Close()

	fd, isTerm := term.GetFdInfo(os.Stdout)
	return jsonmessage.DisplayJSONMessagesStream(reader, os.Stdout, fd, isTerm, nil)
}
