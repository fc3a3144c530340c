// Package pipelinelog sets up the two log streams the engine writes to: a
// package-level diagnostic logger for the runner's own bookkeeping, and a
// per-step output logger that fans a step's script output out to a file
// under the run's log directory and, optionally, the terminal.
package pipelinelog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewDiagnostic builds the process-wide diagnostic logger, rotated under
// <dataDir>/<pathSlug>/pipeline-runner.log via lumberjack the way
// Gizzahub-gzh-cli wires a rotating file sink behind its CLI logger.
func NewDiagnostic(dataDir, pathSlug string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(&lumberjack.Logger{
		Filename:   filepath.Join(dataDir, pathSlug, "pipeline-runner.log"),
		MaxSize:    10, // MiB
		MaxBackups: 3,
		MaxAge:     28, // days
	})
	return logger
}

// StepOutput is a single step's script-output logger: it always writes to
// a log file under the run's log directory, and optionally tees to an
// extra writer (the terminal) when one is supplied.
type StepOutput struct {
	*log.Logger
	file *os.File
}

// NewStepOutput opens <logDir>/<containerName>.txt and returns a
// log.New(writer, "", 0)-style logger scoped to that one step. terminal
// may be nil to suppress interactive echo, in which case output goes only
// to the file.
func NewStepOutput(logDir, containerName string, terminal io.Writer) (*StepOutput, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory %s: %w", logDir, err)
	}
	path := filepath.Join(logDir, containerName+".txt")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening step log %s: %w", path, err)
	}

	var w io.Writer = f
	if terminal != nil {
		w = io.MultiWriter(f, terminal)
	}
	return &StepOutput{Logger: log.New(w, "", 0), file: f}, nil
}

// Close flushes and closes the underlying log file.
func (s *StepOutput) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Writer exposes the logger as a plain io.Writer, for callers (like the
// Container Runner's script streaming) that need io.Writer rather than
// log.Logger's Print family.
func (s *StepOutput) Writer() io.Writer {
	return stepOutputWriter{s}
}

type stepOutputWriter struct{ s *StepOutput }

func (w stepOutputWriter) Write(p []byte) (int, error) {
	w.s.Logger.Print(string(p))
	return len(p), nil
}
