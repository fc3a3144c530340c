// Package cierr holds the error taxonomy shared across the engine's
// packages, so any layer can raise a classified error without importing
// the orchestration package.
package cierr

import "fmt"

// The error kinds below use a sentinel-per-kind shape rather than a
// single generic error type, so callers can type-switch on the failure
// class to decide whether teardown or a plain exit applies.

// UsageError is a user-visible mistake that requires no teardown: a
// missing pipelines file, an unknown pipeline name, an unknown step.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

func NewInvalidPipelineError(path string, available []string) *UsageError {
	return &UsageError{Message: fmt.Sprintf("invalid pipeline: %q, available pipelines: %v", path, available)}
}

func NewInvalidServiceError(name string) *UsageError {
	return &UsageError{Message: fmt.Sprintf("invalid service: %q", name)}
}

func NewPipelinesFileNotFoundError(path string) *UsageError {
	return &UsageError{Message: fmt.Sprintf("pipelines file not found: %s", path)}
}

// ValidationError wraps a schema or semantic problem found before
// execution begins: malformed YAML, an unresolved env var, a negative
// integer field.
type ValidationError struct {
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return e.Cause }

func NewMissingEnvVarsError(value string) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf("Missing envvars: %s", value)}
}

func NewNegativeIntegerError(field string, value int) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf("%s must not be negative, got %d", field, value)}
}

// InvalidCacheKeyError is a recoverable runtime warning: a custom cache's
// key files could not be found on the host. The cache is skipped, not
// fatal to the pipeline.
type InvalidCacheKeyError struct {
	CacheName string
	Cause     error
}

func (e *InvalidCacheKeyError) Error() string {
	return fmt.Sprintf("invalid cache key for %q: %v", e.CacheName, e.Cause)
}

func (e *InvalidCacheKeyError) Unwrap() error { return e.Cause }

// ArtifactManagementError surfaces a pipeline-fatal failure in the
// Artifact Manager (upload/download).
type ArtifactManagementError struct {
	Message string
	Cause   error
}

func (e *ArtifactManagementError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("artifact management error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("artifact management error: %s", e.Message)
}

func (e *ArtifactManagementError) Unwrap() error { return e.Cause }

// PathTraversalError is raised when a tar member would extract outside its
// target directory.
type PathTraversalError struct {
	Member string
	Target string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("tar member %q escapes target directory %q", e.Member, e.Target)
}

// PipelineFatalError marks a failure in setup/teardown infrastructure —
// network or volume creation, the Repository Cloner — that aborts the
// whole pipeline run rather than just the current step.
type PipelineFatalError struct {
	Message string
	Cause   error
}

func (e *PipelineFatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PipelineFatalError) Unwrap() error { return e.Cause }

// StepFailedError wraps a non-zero step script exit code as an error
// value. The step runner reports exit codes through its result instead,
// and no package in this module currently returns a StepFailedError.
type StepFailedError struct {
	StepName string
	ExitCode int
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("step %q failed with exit code %d", e.StepName, e.ExitCode)
}
