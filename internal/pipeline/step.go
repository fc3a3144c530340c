package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/localci/pipeline-runner/internal/cachemgr"
	"github.com/localci/pipeline-runner/internal/cierr"
	"github.com/localci/pipeline-runner/internal/clonert"
	"github.com/localci/pipeline-runner/internal/config"
	"github.com/localci/pipeline-runner/internal/containerrt"
	"github.com/localci/pipeline-runner/internal/imageauth"
	"github.com/localci/pipeline-runner/internal/metadata"
	"github.com/localci/pipeline-runner/internal/oidc"
	"github.com/localci/pipeline-runner/internal/pipelinelog"
	"github.com/localci/pipeline-runner/internal/servicesrt"
	"github.com/localci/pipeline-runner/internal/specmodel"
)

// StepResult is the outcome of one step's execution.
type StepResult struct {
	Skipped  bool
	ExitCode int
}

// runStep drives the full lifecycle of a single step. terminal, when
// non-nil, tees the step's script output to
// the caller's console in addition to its log file.
func (e *Engine) runStep(ctx context.Context, stepCtx *specmodel.StepRunContext, terminal io.Writer, stdin *bufio.Reader) (StepResult, error) {
	run := stepCtx.Run
	step := stepCtx.Step

	if !run.IsStepSelected(step.Name) {
		return StepResult{Skipped: true}, nil
	}

	if step.Trigger == specmodel.TriggerManual {
		fmt.Fprintf(terminalOr(terminal), "Step %q is manual. Press Enter to continue...\n", step.Name)
		if _, err := stdin.ReadString('\n'); err != nil && err != io.EOF {
			return StepResult{}, fmt.Errorf("waiting for manual trigger: %w", err)
		}
	}

	stepUUID := uuid.New()
	stepCtx.StepUUID = stepUUID
	stepCtx.Slug = metadata.Slugify(step.Name)

	containerName := fmt.Sprintf("%s-step-%s", run.Project.Slug, shortUUID(stepUUID))
	networkName := fmt.Sprintf("%s-network", run.Project.Slug)
	dataVolumeName := fmt.Sprintf("%s-data-%s", run.Project.Slug, shortUUID(stepUUID))

	requestedServices := mergeDockerServiceIfNeeded(step)
	dockerActive := containsString(requestedServices, servicesrt.DockerServiceName)

	if err := checkServiceBudget(requestedServices, run.EffectiveServices, e.cfg, step.Size); err != nil {
		return StepResult{}, fmt.Errorf("service memory budget: %w", err)
	}

	logDir := e.logsDir(run)
	out, err := pipelinelog.NewStepOutput(logDir, containerName, terminal)
	if err != nil {
		return StepResult{}, &cierr.PipelineFatalError{Message: "opening step log", Cause: err}
	}
	defer out.Close()

	var oidcToken string
	if step.OIDC {
		oidcToken, err = oidc.Mint(oidc.Config{Issuer: e.cfg.OIDC.Issuer, Audience: e.cfg.OIDC.Audience}, stepCtx, time.Now())
		if err != nil {
			return StepResult{}, fmt.Errorf("minting OIDC token: %w", err)
		}
	}
	env := buildStepEnv(stepCtx, dockerActive, oidcToken)

	if _, err := ensureNetwork(ctx, e.docker, networkName); err != nil {
		return StepResult{}, err
	}
	defer func() {
		if err := removeNetwork(context.Background(), e.docker, networkName); err != nil {
			e.log.Warnf("step %q: %v", step.Name, err)
		}
	}()

	if _, err := ensureVolume(ctx, e.docker, dataVolumeName); err != nil {
		return StepResult{}, err
	}
	defer func() {
		if err := removeVolume(context.Background(), e.docker, dataVolumeName); err != nil {
			e.log.Warnf("step %q: %v", step.Name, err)
		}
	}()

	serviceHandles, err := e.services.StartAll(ctx, buildServiceStartOptions(stepCtx, requestedServices, networkName, dataVolumeName, e.cfg, e.auth))
	if err != nil {
		return StepResult{}, &cierr.PipelineFatalError{Message: "starting services", Cause: err}
	}
	defer func() {
		if err := e.services.StopAll(context.Background(), serviceHandles); err != nil {
			e.log.Warnf("step %q: stopping services: %v", step.Name, err)
		}
	}()

	image := step.Image
	if image == nil {
		image = run.DefaultImage
	}
	auth, err := imageauth.Authenticate(ctx, stepCtx, e.auth, image)
	if err != nil {
		return StepResult{}, fmt.Errorf("authenticating build image: %w", err)
	}

	clone := specmodel.EffectiveClone(step.Clone, run.EffectiveClone)
	cloneEnabled := clone.Enabled == nil || *clone.Enabled

	servicesMem := sumServiceMemory(requestedServices, run.EffectiveServices, e.cfg)
	startOpts := containerrt.StartOptions{
		Name:          containerName,
		Image:         image,
		Auth:          auth,
		Env:           env,
		NetworkName:   networkName,
		CPULimits:     e.cfg.CPULimits,
		CPUMultiplier: step.Size.AsInt(),
		Mounts: containerrt.Mounts{
			ProjectDir:      run.Repository.Path,
			DataVolume:      dataVolumeName,
			RemoteWorkspace: config.RemoteWorkspaceDir,
			RemotePipeline:  config.RemotePipelineDir,
			CloneEnabled:    cloneEnabled,
			SSHAgentSock:    sshAgentSocketPath(ctx, e.docker, e.log),
		},
	}
	if budget := e.cfg.TotalMemoryLimit*step.Size.AsInt() - servicesMem; budget > 0 {
		startOpts.MemLimitBytes = int64(budget) * 1024 * 1024
	}

	runner := containerrt.New(e.docker, e.log)
	if err := runner.Start(ctx, startOpts); err != nil {
		return StepResult{}, &cierr.PipelineFatalError{Message: "starting build container", Cause: err}
	}
	defer func() {
		if err := runner.Stop(context.Background()); err != nil {
			e.log.Warnf("step %q: stopping container: %v", step.Name, err)
		}
	}()

	if err := runner.InstallDockerClientIfNeeded(ctx, dockerActive, e.dockerClientBinary()); err != nil {
		e.log.Warnf("step %q: %v", step.Name, err)
	}

	if cloneEnabled {
		cloneOpts := clonert.Options{
			BuildContainerID: runner.ContainerID(),
			ProjectDir:       run.Repository.Path,
			DataVolume:       dataVolumeName,
			Branch:           run.Repository.Branch,
			Commit:           run.Repository.Commit,
			Clone:            clone,
		}
		if err := e.cloner.Clone(ctx, cloneOpts); err != nil {
			return StepResult{}, err
		}
	}

	if err := e.artifacts.Upload(ctx, runner, e.artifactsDir(run), config.RemoteWorkspaceDir); err != nil {
		return StepResult{}, err
	}

	staleCache := map[string]bool{}
	for _, name := range step.Caches {
		c, ok := run.EffectiveCaches[name]
		if !ok && name != cachemgr.DockerCacheName {
			continue
		}
		if name == cachemgr.DockerCacheName {
			c = specmodel.Cache{Name: name}
		}
		stale, err := e.caches.Upload(ctx, runner, c, run.Repository.Path)
		if err != nil {
			return StepResult{}, err
		}
		staleCache[name] = stale
	}

	out.Printf("Using image: %s", image.Name)

	scriptCtx := ctx
	if step.MaxTime > 0 {
		var cancel context.CancelFunc
		scriptCtx, cancel = context.WithTimeout(ctx, time.Duration(step.MaxTime)*time.Minute)
		defer cancel()
	}

	exitCode, err := runner.RunScript(scriptCtx, step.Script, env, out.Writer())
	if err != nil {
		if scriptCtx.Err() == context.DeadlineExceeded {
			out.Printf("Step exceeded max-time of %d minute(s); stopping container", step.MaxTime)
			if stopErr := runner.Stop(context.Background()); stopErr != nil {
				e.log.Warnf("step %q: stopping timed-out container: %v", step.Name, stopErr)
			}
			exitCode = 124
		} else {
			return StepResult{}, &cierr.PipelineFatalError{Message: "running script", Cause: err}
		}
	}

	if len(step.AfterScript) > 0 {
		afterEnv := make(map[string]string, len(env)+1)
		for k, v := range env {
			afterEnv[k] = v
		}
		afterEnv["BITBUCKET_EXIT_CODE"] = fmt.Sprintf("%d", exitCode)
		if _, err := runner.RunScript(ctx, step.AfterScript, afterEnv, out.Writer()); err != nil {
			e.log.Warnf("step %q: after_script: %v", step.Name, err)
		}
	}

	if exitCode == 0 {
		for _, name := range step.Caches {
			c, ok := run.EffectiveCaches[name]
			if !ok && name != cachemgr.DockerCacheName {
				continue
			}
			if name == cachemgr.DockerCacheName {
				c = specmodel.Cache{Name: name}
			}
			if err := e.caches.Download(ctx, runner, c, run.Repository.Path, staleCache[name]); err != nil {
				e.log.Warnf("step %q: downloading cache %q: %v", step.Name, name, err)
			}
		}
	}

	if err := e.artifacts.Download(ctx, runner, config.RemoteWorkspaceDir, stepUUID.String(), step.Artifacts, e.artifactsDir(run)); err != nil {
		return StepResult{ExitCode: exitCode}, err
	}

	return StepResult{ExitCode: exitCode}, nil
}

func terminalOr(w io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return os.Stdout
}

func shortUUID(id uuid.UUID) string { return id.String()[:8] }

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// dockerClientBinary opens the cached static docker client binary, if the
// runner has fetched one, for InstallDockerClientIfNeeded. Returning nil
// is fine — the installer only errors when the docker service is active
// and the build image truly lacks a client.
func (e *Engine) dockerClientBinary() io.Reader {
	f, err := os.Open(fmt.Sprintf("%s/docker-client-static.tar", e.cfg.CacheDir))
	if err != nil {
		return nil
	}
	return f
}
