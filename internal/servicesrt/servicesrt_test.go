package servicesrt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/localci/pipeline-runner/internal/config"
	"github.com/localci/pipeline-runner/internal/specmodel"
)

func TestCheckMemoryBudgetWithinLimit(t *testing.T) {
	cfg := &config.Config{TotalMemoryLimit: 4096, BuildContainerMinimumMemory: 1024, ServiceContainerDefaultMemory: 1024}
	requested := map[string]specmodel.Service{
		"docker": {Memory: 1024},
	}
	assert.NoError(t, CheckMemoryBudget(requested, cfg, specmodel.Size1x))
}

func TestCheckMemoryBudgetExceeded(t *testing.T) {
	cfg := &config.Config{TotalMemoryLimit: 2048, BuildContainerMinimumMemory: 1024, ServiceContainerDefaultMemory: 1024}
	requested := map[string]specmodel.Service{
		"docker":    {Memory: 512},
		"mysql":     {Memory: 512},
		"redis":     {Memory: 256},
	}
	assert.Error(t, CheckMemoryBudget(requested, cfg, specmodel.Size1x))
}

func TestCheckMemoryBudgetScalesWithStepSize(t *testing.T) {
	cfg := &config.Config{TotalMemoryLimit: 2048, BuildContainerMinimumMemory: 1024, ServiceContainerDefaultMemory: 1024}
	requested := map[string]specmodel.Service{"docker": {Memory: 1536}}
	assert.Error(t, CheckMemoryBudget(requested, cfg, specmodel.Size1x))
	assert.NoError(t, CheckMemoryBudget(requested, cfg, specmodel.Size2x))
}

func TestCheckMemoryBudgetDefaultsMemory(t *testing.T) {
	cfg := &config.Config{TotalMemoryLimit: 4096, BuildContainerMinimumMemory: 1024, ServiceContainerDefaultMemory: 1024}
	requested := map[string]specmodel.Service{"docker": {}}
	assert.NoError(t, CheckMemoryBudget(requested, cfg, specmodel.Size1x))
}
