package specparse

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/localci/pipeline-runner/internal/cierr"
	"github.com/localci/pipeline-runner/internal/specmodel"
)

// Options carries the parser inputs that come from outside the pipeline
// YAML itself: whether OIDC is globally enabled (gates `aws.oidc-role`) and the
// default caches/services to merge in, taken from Config.
type Options struct {
	OIDCEnabled     bool
	DefaultCaches   map[string]string
	DefaultServices []string
	DefaultImage    string
}

var validTrigger = map[string]specmodel.Trigger{
	"":          specmodel.TriggerAutomatic,
	"automatic": specmodel.TriggerAutomatic,
	"manual":    specmodel.TriggerManual,
}

var validStepSize = map[string]specmodel.StepSize{
	"":   specmodel.Size1x,
	"1x": specmodel.Size1x,
	"2x": specmodel.Size2x,
	"4x": specmodel.Size4x,
	"8x": specmodel.Size8x,
}

var validGroups = map[string]bool{
	"default": true, "branches": true, "pull-requests": true,
	"tags": true, "bookmarks": true, "custom": true,
}

// Parse reads a YAML pipeline specification and returns the validated,
// env-expanded model. opts supplies the default-cache/service merge data
// and whether OIDC is globally enabled.
func Parse(data []byte, opts Options) (*specmodel.PipelineSpec, error) {
	var raw rawSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &cierr.ValidationError{Message: "parsing pipelines file", Cause: err}
	}

	spec := &specmodel.PipelineSpec{
		Caches:   map[string]specmodel.Cache{},
		Services: map[string]specmodel.Service{},
		Clone:    specmodel.DefaultCloneSettings(),
	}

	if raw.Image != nil {
		img, err := convertImage(raw.Image, opts)
		if err != nil {
			return nil, err
		}
		spec.Image = img
	} else {
		spec.Image = &specmodel.Image{Name: opts.DefaultImage}
	}

	if raw.Clone != nil {
		spec.Clone = mergeCloneOverride(spec.Clone, raw.Clone)
	}

	if err := convertDefinitions(&raw.Definitions, spec, opts); err != nil {
		return nil, err
	}

	pipelines, err := convertPipelines(&raw.Pipelines, spec.Clone, opts)
	if err != nil {
		return nil, err
	}
	spec.Pipelines = *pipelines

	return spec, nil
}

func mergeCloneOverride(base specmodel.CloneSettings, raw *rawCloneSettings) specmodel.CloneSettings {
	out := base
	if raw.Depth != nil {
		d := raw.Depth.Value
		out.Depth = &d
	}
	if raw.LFS != nil {
		out.LFS = raw.LFS
	}
	if raw.Enabled != nil {
		out.Enabled = raw.Enabled
	}
	return out
}

func convertImage(r *rawImage, opts Options) (*specmodel.Image, error) {
	username, err := expandOptional(r.Username)
	if err != nil {
		return nil, err
	}
	password, err := expandOptional(r.Password)
	if err != nil {
		return nil, err
	}
	email, err := expandOptional(r.Email)
	if err != nil {
		return nil, err
	}
	img := &specmodel.Image{
		Name:      r.Name,
		Username:  username,
		Password:  password,
		Email:     email,
		RunAsUser: r.RunAsUser,
	}
	if r.AWS != nil {
		aws, err := convertAWS(r.AWS, opts.OIDCEnabled)
		if err != nil {
			return nil, err
		}
		img.AWS = aws
	}
	return img, nil
}

func convertAWS(r *rawAWS, oidcEnabled bool) (*specmodel.AWSCredentials, error) {
	accessKey, err := expandOptional(r.AccessKeyID)
	if err != nil {
		return nil, err
	}
	secretKey, err := expandOptional(r.SecretAccessKey)
	if err != nil {
		return nil, err
	}
	oidcRole, err := expandOptional(r.OIDCRole)
	if err != nil {
		return nil, err
	}
	if oidcRole != "" && !oidcEnabled {
		return nil, &cierr.ValidationError{Message: "aws oidc-role not supported"}
	}
	if oidcRole != "" && (accessKey != "" || secretKey != "") {
		return nil, &cierr.ValidationError{Message: "aws credentials must be either access keys or an oidc-role, not both"}
	}
	return &specmodel.AWSCredentials{AccessKeyID: accessKey, SecretAccessKey: secretKey, OIDCRole: oidcRole}, nil
}

func convertDefinitions(r *rawDefinitions, spec *specmodel.PipelineSpec, opts Options) error {
	for name, path := range opts.DefaultCaches {
		spec.Caches[name] = specmodel.Cache{Name: name, Path: path}
	}
	for name, raw := range r.Caches {
		c := specmodel.Cache{Name: name, Path: raw.Path}
		if raw.Key != nil {
			c.KeyFiles = raw.Key.Files
		}
		spec.Caches[name] = c
	}

	for _, name := range opts.DefaultServices {
		spec.Services[name] = specmodel.Service{Name: name}
	}
	for name, raw := range r.Services {
		svc, err := convertService(name, &raw, opts)
		if err != nil {
			return err
		}
		spec.Services[name] = *svc
	}

	// Every declared-or-defaulted service must end up with an image after
	// the merge; the "docker" service gets its fallback wired in by the
	// services manager rather than here, since that value lives in config
	// defaults, not the pipeline's own defaults map.
	for name, svc := range spec.Services {
		if svc.Image == nil && name != "docker" {
			return &cierr.ValidationError{Message: fmt.Sprintf("service %q has no image", name)}
		}
	}

	return nil
}

func convertService(name string, r *rawService, opts Options) (*specmodel.Service, error) {
	svc := &specmodel.Service{Name: name, Memory: r.Memory, Command: r.Command}
	if r.Image != nil {
		img, err := convertImage(r.Image, opts)
		if err != nil {
			return nil, err
		}
		svc.Image = img
	}
	if len(r.Variables) > 0 {
		svc.Variables = map[string]string{}
		for k, v := range r.Variables {
			ev, err := expandEnvVars(v)
			if err != nil {
				return nil, err
			}
			svc.Variables[k] = ev
		}
	}
	return svc, nil
}

func convertPipelines(r *rawPipelines, defaultClone specmodel.CloneSettings, opts Options) (*specmodel.Pipelines, error) {
	out := &specmodel.Pipelines{
		Branches:     map[string]specmodel.Pipeline{},
		PullRequests: map[string]specmodel.Pipeline{},
		Tags:         map[string]specmodel.Pipeline{},
		Bookmarks:    map[string]specmodel.Pipeline{},
		Custom:       map[string]specmodel.Pipeline{},
	}

	if r.Default != nil {
		p, err := convertPipeline("default", r.Default, opts)
		if err != nil {
			return nil, err
		}
		out.Default = p
	}

	groups := []struct {
		name string
		raw  map[string]rawPipeline
		dst  map[string]specmodel.Pipeline
	}{
		{"branches", r.Branches, out.Branches},
		{"pull-requests", r.PullRequests, out.PullRequests},
		{"tags", r.Tags, out.Tags},
		{"bookmarks", r.Bookmarks, out.Bookmarks},
		{"custom", r.Custom, out.Custom},
	}
	for _, g := range groups {
		for name, raw := range g.raw {
			p, err := convertPipeline(fmt.Sprintf("%s.%s", g.name, name), raw, opts)
			if err != nil {
				return nil, err
			}
			g.dst[name] = *p
		}
	}

	return out, nil
}

func convertPipeline(path string, raw rawPipeline, opts Options) (*specmodel.Pipeline, error) {
	p := &specmodel.Pipeline{Path: path, Name: path}
	for i, el := range raw {
		converted, err := convertElement(&el, opts)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q element %d: %w", path, i, err)
		}
		if converted.Kind() == "variables" && i != 0 {
			return nil, &cierr.ValidationError{Message: fmt.Sprintf("pipeline %q: variables must be the first element", path)}
		}
		p.Elements = append(p.Elements, *converted)
	}
	return p, nil
}

func convertElement(raw *rawElement, opts Options) (*specmodel.PipelineElement, error) {
	switch {
	case raw.Variables != nil:
		vars, err := convertVariables(raw.Variables)
		if err != nil {
			return nil, err
		}
		return &specmodel.PipelineElement{Variables: vars}, nil
	case raw.Step != nil:
		s, err := convertStep(raw.Step, opts)
		if err != nil {
			return nil, err
		}
		return &specmodel.PipelineElement{Step: s}, nil
	case raw.Parallel != nil:
		if len(raw.Parallel.Steps) < 2 {
			return nil, &cierr.ValidationError{Message: "parallel step group must have at least 2 steps"}
		}
		ps := &specmodel.ParallelStep{FailFast: raw.Parallel.FailFast}
		for _, sw := range raw.Parallel.Steps {
			s, err := convertStep(&sw.Step, opts)
			if err != nil {
				return nil, err
			}
			ps.Steps = append(ps.Steps, *s)
		}
		return &specmodel.PipelineElement{Parallel: ps}, nil
	case raw.Stage != nil:
		trigger, ok := validTrigger[raw.Stage.Trigger]
		if !ok {
			return nil, &cierr.ValidationError{Message: fmt.Sprintf("invalid trigger %q", raw.Stage.Trigger)}
		}
		st := &specmodel.Stage{Name: raw.Stage.Name, Trigger: trigger}
		for _, sw := range raw.Stage.Steps {
			s, err := convertStep(&sw.Step, opts)
			if err != nil {
				return nil, err
			}
			st.Steps = append(st.Steps, *s)
		}
		return &specmodel.PipelineElement{Stage: st}, nil
	}
	return nil, &cierr.ValidationError{Message: "empty pipeline element"}
}

func convertVariables(raw []rawVariable) ([]specmodel.Variable, error) {
	var out []specmodel.Variable
	for _, v := range raw {
		if len(v.AllowedValues) > 0 && v.Default == "" {
			return nil, &cierr.ValidationError{Message: fmt.Sprintf("variable %q: allowed-values requires a default", v.Name)}
		}
		variable := specmodel.Variable{Name: v.Name, Default: v.Default, AllowedValues: v.AllowedValues}
		if variable.HasAllowedValues() && !variable.IsAllowed(variable.Default) {
			return nil, &cierr.ValidationError{Message: fmt.Sprintf("variable %q: default %q not in allowed-values", v.Name, v.Default)}
		}
		out = append(out, variable)
	}
	return out, nil
}

func convertStep(raw *rawStep, opts Options) (*specmodel.Step, error) {
	size, ok := validStepSize[raw.Size]
	if !ok {
		return nil, &cierr.ValidationError{Message: fmt.Sprintf("invalid step size %q", raw.Size)}
	}
	trigger, ok := validTrigger[raw.Trigger]
	if !ok {
		return nil, &cierr.ValidationError{Message: fmt.Sprintf("invalid trigger %q", raw.Trigger)}
	}
	if raw.MaxTime < 0 {
		return nil, cierr.NewNegativeIntegerError("max-time", raw.MaxTime)
	}

	step := &specmodel.Step{
		Name:        raw.Name,
		Caches:      raw.Caches,
		Services:    raw.Services,
		Artifacts:   raw.Artifacts,
		Size:        size,
		Deployment:  raw.Deployment,
		Trigger:     trigger,
		MaxTime:     raw.MaxTime,
		OIDC:        raw.OIDC,
	}

	script, err := convertLines(raw.Script)
	if err != nil {
		return nil, err
	}
	step.Script = script

	afterScript, err := convertLines(raw.AfterScript)
	if err != nil {
		return nil, err
	}
	step.AfterScript = afterScript

	if raw.Image != nil {
		img, err := convertImage(raw.Image, opts)
		if err != nil {
			return nil, err
		}
		step.Image = img
	}

	if raw.Clone != nil {
		step.Clone = mergeCloneOverride(specmodel.CloneSettings{}, raw.Clone)
	}

	if raw.Condition != nil {
		step.Condition = formatCondition(raw.Condition)
	}

	return step, nil
}

// formatCondition carries a condition's changeset include-paths through as
// a comma-joined string. The runner never evaluates conditions against the
// actual changeset; this exists so the value survives
// parsing for callers that want to display or log it.
func formatCondition(r *rawCondition) string {
	paths, ok := r.Changesets["includePaths"]
	if !ok {
		return ""
	}
	list, ok := paths.([]interface{})
	if !ok {
		return ""
	}
	strs := make([]string, 0, len(list))
	for _, p := range list {
		if s, ok := p.(string); ok {
			strs = append(strs, s)
		}
	}
	return strings.Join(strs, ",")
}

// convertLines rewrites Pipe references whose image owner is literally
// "atlassian" to the "bitbucketpipelines" owner. Raw shell
// lines and pipe variable values are left for the shell/container to
// expand — the parser only expands the whitelisted image/service fields.
func convertLines(raw []rawLine) ([]specmodel.Line, error) {
	var out []specmodel.Line
	for _, l := range raw {
		if l.Pipe == nil {
			out = append(out, specmodel.RawLine(l.Raw))
			continue
		}
		out = append(out, specmodel.Line{Pipe: &specmodel.Pipe{
			Pipe:      rewritePipeImage(l.Pipe.Pipe),
			Variables: l.Pipe.Variables,
		}})
	}
	return out, nil
}

func rewritePipeImage(ref string) string {
	const atlassianPrefix = "atlassian/"
	if len(ref) > len(atlassianPrefix) && ref[:len(atlassianPrefix)] == atlassianPrefix {
		return "bitbucketpipelines/" + ref[len(atlassianPrefix):]
	}
	return ref
}

// SortedGroupNames returns a stable, lexicographically sorted view of a
// pipeline group's keys, used for glob-matching tie-breaking.
func SortedGroupNames(m map[string]specmodel.Pipeline) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
