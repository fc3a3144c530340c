package pipeline

import (
	"github.com/localci/pipeline-runner/internal/config"
	"github.com/localci/pipeline-runner/internal/imageauth"
	"github.com/localci/pipeline-runner/internal/servicesrt"
	"github.com/localci/pipeline-runner/internal/specmodel"
)

// mergeDockerServiceIfNeeded adds the docker service to a step's requested
// services when a Pipe line in script or after_script implies an
// undeclared dependency on it.
func mergeDockerServiceIfNeeded(step *specmodel.Step) []string {
	requested := append([]string(nil), step.Services...)
	if step.UsesPipe() && !containsString(requested, servicesrt.DockerServiceName) {
		requested = append(requested, servicesrt.DockerServiceName)
	}
	return requested
}

func requestedServiceMap(requested []string, effective map[string]specmodel.Service) map[string]specmodel.Service {
	out := make(map[string]specmodel.Service, len(requested))
	for _, name := range requested {
		if svc, ok := effective[name]; ok {
			out[name] = svc
		}
	}
	return out
}

func checkServiceBudget(requested []string, effective map[string]specmodel.Service, cfg *config.Config, size specmodel.StepSize) error {
	return servicesrt.CheckMemoryBudget(requestedServiceMap(requested, effective), cfg, size)
}

func sumServiceMemory(requested []string, effective map[string]specmodel.Service, cfg *config.Config) int {
	total := 0
	for _, name := range requested {
		svc, ok := effective[name]
		if !ok {
			continue
		}
		mem := svc.Memory
		if mem == 0 {
			mem = cfg.ServiceContainerDefaultMemory
		}
		total += mem
	}
	return total
}

func buildServiceStartOptions(stepCtx *specmodel.StepRunContext, requested []string, networkName, dataVolume string, cfg *config.Config, auth imageauth.OIDCMinter) servicesrt.StartOptions {
	return servicesrt.StartOptions{
		Requested:          requested,
		Effective:          stepCtx.Run.EffectiveServices,
		NetworkName:        networkName,
		ProjectSlug:        stepCtx.Run.Project.Slug,
		PipelineCache:      cfg.CacheDir,
		DataVolume:         dataVolume,
		Auth:               auth,
		StepCtx:            stepCtx,
		DefaultDockerImage: config.DefaultDockerServiceImage,
	}
}
