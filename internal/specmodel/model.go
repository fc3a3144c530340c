// Package specmodel holds the typed, validated in-memory representation of a
// pipeline specification file. Values in this package never talk to YAML
// directly — see internal/specparse for that — so the model stays easy to
// construct by hand in tests.
package specmodel

import "fmt"

// StepSize is the Bitbucket-style container size multiplier.
type StepSize int

const (
	Size1x StepSize = 1
	Size2x StepSize = 2
	Size4x StepSize = 4
	Size8x StepSize = 8
)

// AsInt returns the multiplier as a plain int, for memory/CPU math.
func (s StepSize) AsInt() int {
	if s == 0 {
		return int(Size1x)
	}
	return int(s)
}

func (s StepSize) String() string {
	switch s {
	case Size1x:
		return "1x"
	case Size2x:
		return "2x"
	case Size4x:
		return "4x"
	case Size8x:
		return "8x"
	default:
		return fmt.Sprintf("%dx", int(s))
	}
}

// Trigger controls whether a step/stage runs automatically or waits on input.
type Trigger int

const (
	TriggerAutomatic Trigger = iota
	TriggerManual
)

func (t Trigger) String() string {
	if t == TriggerManual {
		return "manual"
	}
	return "automatic"
}

// CloneSettings is a sparse override: nil fields mean "inherit". Effective
// values are resolved by EffectiveClone against the chain
// step -> pipeline -> DefaultCloneSettings().
type CloneSettings struct {
	Depth   *int  // 0 means "full history"
	LFS     *bool
	Enabled *bool
}

// DefaultCloneSettings is the baseline applied when nothing else overrides
// it.
func DefaultCloneSettings() CloneSettings {
	depth := 50
	lfs := false
	enabled := true
	return CloneSettings{Depth: &depth, LFS: &lfs, Enabled: &enabled}
}

// EffectiveClone resolves depth/lfs/enabled by walking step, then pipeline,
// then the hard-coded default, taking the first non-nil value at each field.
func EffectiveClone(step, pipeline CloneSettings) CloneSettings {
	def := DefaultCloneSettings()
	return CloneSettings{
		Depth:   firstNonNilInt(step.Depth, pipeline.Depth, def.Depth),
		LFS:     firstNonNilBool(step.LFS, pipeline.LFS, def.LFS),
		Enabled: firstNonNilBool(step.Enabled, pipeline.Enabled, def.Enabled),
	}
}

func firstNonNilInt(vs ...*int) *int {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstNonNilBool(vs ...*bool) *bool {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

// AWSCredentials is exclusive: either AccessKeyID/SecretAccessKey or
// OIDCRole is set, never both.
type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	OIDCRole        string
}

func (a *AWSCredentials) IsOIDC() bool {
	return a != nil && a.OIDCRole != ""
}

func (a *AWSCredentials) IsStatic() bool {
	return a != nil && a.AccessKeyID != "" && a.SecretAccessKey != ""
}

// Image describes a container image plus the credentials needed to pull it.
type Image struct {
	Name       string
	Username   string
	Password   string
	Email      string
	RunAsUser  string
	AWS        *AWSCredentials
}

// Service is a side-car container definition, keyed by name in the
// PipelineSpec.Services map.
type Service struct {
	Name      string
	Image     *Image
	Variables map[string]string
	Memory    int // MiB
	Command   []string
}

// Cache is a named host<->container directory persisted as a tar archive.
type Cache struct {
	Name     string
	Path     string
	KeyFiles []string // globs; if non-empty, the cache is content-addressed
}

func (c Cache) HasKey() bool { return len(c.KeyFiles) > 0 }

// Pipe is a `{pipe: "...", variables: {...}}` script line, later rewritten
// into a `docker run` invocation by the container runner.
type Pipe struct {
	Pipe      string
	Variables map[string]string
}

// Line is either a raw shell string or a Pipe invocation.
type Line struct {
	Raw string
	Pipe *Pipe
}

func (l Line) IsPipe() bool { return l.Pipe != nil }

func RawLine(s string) Line { return Line{Raw: s} }

// Variable is a pipeline-level prompt-for-value declaration.
type Variable struct {
	Name          string
	Default       string
	AllowedValues []string
}

func (v Variable) HasAllowedValues() bool { return len(v.AllowedValues) > 0 }

func (v Variable) IsAllowed(value string) bool {
	if !v.HasAllowedValues() {
		return true
	}
	for _, a := range v.AllowedValues {
		if a == value {
			return true
		}
	}
	return false
}

// Step is a single unit of container execution.
type Step struct {
	Name              string
	Script            []Line
	Image             *Image
	Caches            []string
	Services          []string
	Artifacts         []string
	AfterScript       []Line
	Size              StepSize
	Clone             CloneSettings
	Deployment        string
	Trigger           Trigger
	MaxTime           int // minutes, 0 = unbounded
	Condition         string
	OIDC              bool
}

// UsesPipe reports whether any script or after_script line is a Pipe, which
// implies an implicit dependency on the docker service.
func (s Step) UsesPipe() bool {
	for _, l := range s.Script {
		if l.IsPipe() {
			return true
		}
	}
	for _, l := range s.AfterScript {
		if l.IsPipe() {
			return true
		}
	}
	return false
}

// ParallelStep groups steps specified to execute together; this runner
// executes them sequentially but preserves distinct
// parallel_step_index/parallel_step_count bookkeeping.
type ParallelStep struct {
	Steps    []Step
	FailFast bool
}

// Stage wraps an ordered list of steps under an optional shared trigger.
type Stage struct {
	Name    string
	Trigger Trigger
	Steps   []Step
}

// PipelineElement is a tagged union: exactly one of Variables, Step,
// Parallel, Stage is set. Variables may only appear as the first element of
// a pipeline (enforced by the parser).
type PipelineElement struct {
	Variables []Variable
	Step      *Step
	Parallel  *ParallelStep
	Stage     *Stage
}

func (e PipelineElement) Kind() string {
	switch {
	case e.Variables != nil:
		return "variables"
	case e.Step != nil:
		return "step"
	case e.Parallel != nil:
		return "parallel"
	case e.Stage != nil:
		return "stage"
	default:
		return "empty"
	}
}

// Pipeline is an ordered sequence of elements addressed by a dotted path
// such as "default", "custom.lint", "branches.main".
type Pipeline struct {
	Path     string
	Name     string
	Elements []PipelineElement
}

// Variables returns the pipeline-level variable declarations, which by
// invariant only ever appear in the first element.
func (p Pipeline) Variables() []Variable {
	if len(p.Elements) == 0 {
		return nil
	}
	return p.Elements[0].Variables
}

// RunUnit is a step or a parallel group, in execution order, with stage
// bookkeeping attached for selection purposes.
type RunUnit struct {
	Step      *Step
	Parallel  *ParallelStep
	StageName string // empty if not inside a stage
}

// RunUnits flattens a Pipeline's elements (stages included) into the
// sequence the Pipeline Runner executes.
func (p Pipeline) RunUnits() []RunUnit {
	var units []RunUnit
	for _, el := range p.Elements {
		switch {
		case el.Step != nil:
			units = append(units, RunUnit{Step: el.Step})
		case el.Parallel != nil:
			units = append(units, RunUnit{Parallel: el.Parallel})
		case el.Stage != nil:
			for i := range el.Stage.Steps {
				units = append(units, RunUnit{Step: &el.Stage.Steps[i], StageName: el.Stage.Name})
			}
		}
	}
	return units
}

// Pipelines is the root's `pipelines:` section.
type Pipelines struct {
	Default       *Pipeline
	Branches      map[string]Pipeline
	PullRequests  map[string]Pipeline
	Tags          map[string]Pipeline
	Bookmarks     map[string]Pipeline
	Custom        map[string]Pipeline
}

// PipelineSpec is the root parsed object.
type PipelineSpec struct {
	Image     *Image
	Caches    map[string]Cache
	Services  map[string]Service
	Clone     CloneSettings
	Pipelines Pipelines
}
