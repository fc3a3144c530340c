package specparse

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// The raw* types mirror the on-disk YAML shapes, including the places
// where Bitbucket's schema accepts more than one literal form for the
// same concept (an image as a bare string or a mapping, a parallel block
// as a bare list or a wrapped object, a cache as a bare path or a mapping
// with a key block). Each such type carries its own UnmarshalYAML.

type rawAWS struct {
	AccessKeyID     string `yaml:"access-key,omitempty"`
	SecretAccessKey string `yaml:"secret-key,omitempty"`
	OIDCRole        string `yaml:"oidc-role,omitempty"`
}

type rawImage struct {
	Name      string  `yaml:"name"`
	Username  string  `yaml:"username,omitempty"`
	Password  string  `yaml:"password,omitempty"`
	Email     string  `yaml:"email,omitempty"`
	RunAsUser string  `yaml:"run-as-user,omitempty"`
	AWS       *rawAWS `yaml:"aws,omitempty"`
}

func (r *rawImage) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Name = node.Value
		return nil
	}
	type plain rawImage
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = rawImage(p)
	return nil
}

type rawCacheKey struct {
	Files []string `yaml:"files,omitempty"`
}

type rawCache struct {
	Path string       `yaml:"path,omitempty"`
	Key  *rawCacheKey `yaml:"key,omitempty"`
}

func (r *rawCache) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Path = node.Value
		return nil
	}
	type plain rawCache
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = rawCache(p)
	return nil
}

type rawService struct {
	Image     *rawImage         `yaml:"image,omitempty"`
	Variables map[string]string `yaml:"variables,omitempty"`
	Memory    int               `yaml:"memory,omitempty"`
	Command   []string          `yaml:"command,omitempty"`
}

type rawDefinitions struct {
	Caches   map[string]rawCache   `yaml:"caches,omitempty"`
	Services map[string]rawService `yaml:"services,omitempty"`
}

// rawDepth accepts either the literal string "full" (meaning unlimited
// history, modeled as depth 0) or a positive integer.
type rawDepth struct {
	Value int
}

func (r *rawDepth) UnmarshalYAML(node *yaml.Node) error {
	if node.Value == "full" {
		r.Value = 0
		return nil
	}
	return node.Decode(&r.Value)
}

type rawCloneSettings struct {
	Depth   *rawDepth `yaml:"depth,omitempty"`
	LFS     *bool     `yaml:"lfs,omitempty"`
	Enabled *bool     `yaml:"enabled,omitempty"`
}

type rawVariable struct {
	Name          string   `yaml:"name"`
	Default       string   `yaml:"default,omitempty"`
	AllowedValues []string `yaml:"allowed-values,omitempty"`
}

type rawVariablesBlock struct {
	Variables []rawVariable `yaml:"variables"`
}

type rawPipe struct {
	Pipe      string            `yaml:"pipe"`
	Variables map[string]string `yaml:"variables,omitempty"`
}

// rawLine is either a bare shell string or a {pipe: ..., variables: ...}
// mapping.
type rawLine struct {
	Raw  string
	Pipe *rawPipe
}

func (r *rawLine) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Raw = node.Value
		return nil
	}
	var p rawPipe
	if err := node.Decode(&p); err != nil {
		return err
	}
	r.Pipe = &p
	return nil
}

type rawStep struct {
	Name        string    `yaml:"name,omitempty"`
	Script      []rawLine `yaml:"script"`
	Image       *rawImage `yaml:"image,omitempty"`
	Caches      []string  `yaml:"caches,omitempty"`
	Services    []string  `yaml:"services,omitempty"`
	Artifacts   []string  `yaml:"artifacts,omitempty"`
	AfterScript []rawLine `yaml:"after-script,omitempty"`
	Size        string    `yaml:"size,omitempty"`
	Clone       *rawCloneSettings `yaml:"clone,omitempty"`
	Deployment  string    `yaml:"deployment,omitempty"`
	Trigger     string    `yaml:"trigger,omitempty"`
	MaxTime     int       `yaml:"max-time,omitempty"`
	Condition   *rawCondition `yaml:"condition,omitempty"`
	OIDC        bool      `yaml:"oidc,omitempty"`
}

// rawCondition is kept as an opaque changeset expression; the spec only
// requires it to be carried through, not evaluated by this core.
type rawCondition struct {
	Changesets map[string]interface{} `yaml:"changesets,omitempty"`
}

type rawStepWrapper struct {
	Step rawStep `yaml:"step"`
}

type rawParallel struct {
	Steps    []rawStepWrapper
	FailFast bool
}

func (r *rawParallel) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&r.Steps)
	}
	var wrapped struct {
		Steps    []rawStepWrapper `yaml:"steps"`
		FailFast bool             `yaml:"fail-fast,omitempty"`
	}
	if err := node.Decode(&wrapped); err != nil {
		return err
	}
	r.Steps = wrapped.Steps
	r.FailFast = wrapped.FailFast
	return nil
}

type rawParallelWrapper struct {
	Parallel rawParallel `yaml:"parallel"`
}

type rawStage struct {
	Name    string           `yaml:"name,omitempty"`
	Trigger string           `yaml:"trigger,omitempty"`
	Steps   []rawStepWrapper `yaml:"steps"`
}

type rawStageWrapper struct {
	Stage rawStage `yaml:"stage"`
}

// rawElement is a tagged union over the four shapes a pipeline element may
// take: {variables:[...]}, {step:{...}}, {parallel:...}, {stage:{...}}.
type rawElement struct {
	Variables []rawVariable
	Step      *rawStep
	Parallel  *rawParallel
	Stage     *rawStage
}

func (r *rawElement) UnmarshalYAML(node *yaml.Node) error {
	var probe map[string]yaml.Node
	if err := node.Decode(&probe); err != nil {
		return fmt.Errorf("pipeline element must be a mapping: %w", err)
	}
	if n, ok := probe["variables"]; ok {
		var v rawVariablesBlock
		v.Variables = nil
		var vars []rawVariable
		if err := n.Decode(&vars); err != nil {
			return fmt.Errorf("decoding variables: %w", err)
		}
		r.Variables = vars
		return nil
	}
	if n, ok := probe["step"]; ok {
		var s rawStep
		if err := n.Decode(&s); err != nil {
			return fmt.Errorf("decoding step: %w", err)
		}
		r.Step = &s
		return nil
	}
	if n, ok := probe["parallel"]; ok {
		var p rawParallel
		if err := n.Decode(&p); err != nil {
			return fmt.Errorf("decoding parallel: %w", err)
		}
		r.Parallel = &p
		return nil
	}
	if n, ok := probe["stage"]; ok {
		var s rawStage
		if err := n.Decode(&s); err != nil {
			return fmt.Errorf("decoding stage: %w", err)
		}
		r.Stage = &s
		return nil
	}
	return fmt.Errorf("pipeline element has none of variables/step/parallel/stage")
}

type rawPipeline []rawElement

type rawPipelines struct {
	Default      rawPipeline            `yaml:"default,omitempty"`
	Branches     map[string]rawPipeline `yaml:"branches,omitempty"`
	PullRequests map[string]rawPipeline `yaml:"pull-requests,omitempty"`
	Tags         map[string]rawPipeline `yaml:"tags,omitempty"`
	Bookmarks    map[string]rawPipeline `yaml:"bookmarks,omitempty"`
	Custom       map[string]rawPipeline `yaml:"custom,omitempty"`
}

type rawSpec struct {
	Image       *rawImage        `yaml:"image,omitempty"`
	Definitions rawDefinitions   `yaml:"definitions,omitempty"`
	Clone       *rawCloneSettings `yaml:"clone,omitempty"`
	Pipelines   rawPipelines     `yaml:"pipelines"`
}
