package specmodel

import "github.com/google/uuid"

// ProjectMetadata is the per-project persisted record described in §3,
// stored as <data-dir>/<path_slug>/meta.json.
type ProjectMetadata struct {
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Key         string    `json:"key"`
	PathSlug    string    `json:"path_slug"`
	ProjectUUID uuid.UUID `json:"project_uuid"`
	RepoUUID    uuid.UUID `json:"repo_uuid"`
	BuildNumber int       `json:"build_number"`
}

// WorkspaceMetadata is the per-user persisted record at
// <data-dir>/workspace.json.
type WorkspaceMetadata struct {
	OwnerUUID         uuid.UUID `json:"owner_uuid"`
	WorkspaceUUID     uuid.UUID `json:"workspace_uuid"`
	OIDCPrivateKeyPEM []byte    `json:"oidc_private_key"`
}

// Repository is the minimal view of the host working copy the runner
// needs: its filesystem path and the branch/commit the Repository
// Inspector resolved.
type Repository struct {
	Path   string
	Branch string
	Commit string
}

// PipelineRunContext is the root of a single pipeline execution.
type PipelineRunContext struct {
	PipelineName      string
	Pipeline          *Pipeline
	EffectiveCaches   map[string]Cache
	EffectiveServices map[string]Service
	EffectiveClone    CloneSettings
	DefaultImage      *Image
	Workspace         *WorkspaceMetadata
	Project           *ProjectMetadata
	Repository        *Repository
	EnvVars           map[string]string
	SelectedSteps     []string
	SelectedStages    []string
	PipelineUUID      uuid.UUID
	Variables         map[string]string
}

// IsStepSelected reports whether a step should run given SelectedSteps
// (empty means "all steps run").
func (c *PipelineRunContext) IsStepSelected(stepName string) bool {
	if len(c.SelectedSteps) == 0 {
		return true
	}
	for _, s := range c.SelectedSteps {
		if s == stepName {
			return true
		}
	}
	return false
}

// IsStageSelected reports whether a stage should run given
// SelectedStages (empty means "all stages run").
func (c *PipelineRunContext) IsStageSelected(stageName string) bool {
	if len(c.SelectedStages) == 0 {
		return true
	}
	for _, s := range c.SelectedStages {
		if s == stageName {
			return true
		}
	}
	return false
}

// StepRunContext is a single step's execution context: the step itself,
// its parent pipeline context, and (for parallel members) its index.
type StepRunContext struct {
	Step              *Step
	Run               *PipelineRunContext
	StepUUID          uuid.UUID
	ParallelStepIndex *int
	ParallelStepCount *int
	Slug              string
}

// IsParallel reports whether this step is a member of a parallel group.
func (c *StepRunContext) IsParallel() bool { return c.ParallelStepIndex != nil }

// PipelineResult is the terminal outcome of a pipeline run.
type PipelineResult struct {
	ExitCode     int
	BuildNumber  int
	PipelineUUID uuid.UUID
}

// OK reports whether the pipeline completed successfully.
func (r PipelineResult) OK() bool { return r.ExitCode == 0 }
