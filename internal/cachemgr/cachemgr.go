// Package cachemgr implements the Cache Manager: upload
// of a cache archive into the build container before the step runs,
// extraction of the (possibly modified) directory back out after it, the
// custom key-file hashing that content-addresses a cache's archive name,
// age-based refresh suppression, and the docker-image cache
// specialization.
package cachemgr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/localci/pipeline-runner/internal/cierr"
	"github.com/localci/pipeline-runner/internal/config"
	"github.com/localci/pipeline-runner/internal/containerrt"
	"github.com/localci/pipeline-runner/internal/dockerio"
	"github.com/localci/pipeline-runner/internal/humanize"
	"github.com/localci/pipeline-runner/internal/specmodel"
)

// refreshAge is the age (7 days) below which a local cache archive
// suppresses its own download refresh; it is uploaded at any age.
const refreshAge = 7 * 24 * time.Hour

// DockerCacheName is the reserved cache name that triggers the
// docker-image-load/save specialization instead of a plain directory
// round-trip.
const DockerCacheName = "docker"

// Manager drives cache upload/download for a single pipeline run. It
// memoizes each cache's resolved archive path for the lifetime of the run.
type Manager struct {
	cacheDir string // <user-cache-dir>/<path_slug>/caches
	log      *logrus.Logger

	mu    sync.Mutex
	paths map[string]string
}

// New builds a cache manager rooted at cacheDir (already scoped to the
// project's path_slug by the caller).
func New(cacheDir string, log *logrus.Logger) *Manager {
	return &Manager{cacheDir: cacheDir, log: log, paths: map[string]string{}}
}

// ComputeCacheKey hashes the concatenation of every file's bytes, in
// sorted order so permuting the glob expansion never changes the
// result, and returns the first 64 hex characters (the full SHA-256
// digest, expressed as hex, as specified).
func ComputeCacheKey(files []string) (string, error) {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, f := range sorted {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("reading key file %s: %w", f, err)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))[:64], nil
}

// archivePath resolves and memoizes the local archive path for cache c,
// expanding its key-file globs (relative to projectDir) when it declares
// a custom key. Returns cierr.InvalidCacheKeyError when key files can't
// be resolved — callers treat that as "skip this cache", not fatal.
func (m *Manager) archivePath(c specmodel.Cache, projectDir string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.paths[c.Name]; ok {
		return p, nil
	}

	name := c.Name
	if c.HasKey() {
		files, err := expandKeyFiles(c.KeyFiles, projectDir)
		if err != nil {
			return "", &cierr.InvalidCacheKeyError{CacheName: c.Name, Cause: err}
		}
		if len(files) == 0 {
			return "", &cierr.InvalidCacheKeyError{CacheName: c.Name, Cause: fmt.Errorf("no files matched key globs %v", c.KeyFiles)}
		}
		hash, err := ComputeCacheKey(files)
		if err != nil {
			return "", &cierr.InvalidCacheKeyError{CacheName: c.Name, Cause: err}
		}
		name = fmt.Sprintf("%s-%s", c.Name, hash)
	}

	path := filepath.Join(m.cacheDir, name+".tar")
	m.paths[c.Name] = path
	return path, nil
}

func expandKeyFiles(globs []string, projectDir string) ([]string, error) {
	var out []string
	for _, g := range globs {
		matches, err := filepath.Glob(filepath.Join(projectDir, g))
		if err != nil {
			return nil, fmt.Errorf("expanding key glob %q: %w", g, err)
		}
		out = append(out, matches...)
	}
	return out, nil
}

func targetDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		return "$HOME/" + strings.TrimPrefix(path, "~/")
	}
	if path == "~" {
		return "$HOME"
	}
	return path
}

// Upload stages cache c into the build container before the step script
// runs. A missing local archive is logged and skipped, not an error, per
// the recoverable-runtime class. Returns whether the archive is
// old enough that Download should refresh it.
func (m *Manager) Upload(ctx context.Context, runner *containerrt.Runner, c specmodel.Cache, projectDir string) (stale bool, err error) {
	if c.Name == DockerCacheName {
		return m.uploadDocker(ctx, runner)
	}

	path, err := m.archivePath(c, projectDir)
	if err != nil {
		m.log.Warnf("cache %q: %v", c.Name, err)
		return false, nil
	}

	info, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		m.log.Infof("Cache %q: Not found: Skipping", c.Name)
		return false, nil
	}
	if statErr != nil {
		return false, fmt.Errorf("statting cache archive %s: %w", path, statErr)
	}
	stale = time.Since(info.ModTime()) > refreshAge

	f, err := os.Open(path)
	if err != nil {
		return stale, fmt.Errorf("opening cache archive %s: %w", path, err)
	}
	defer f.Close()

	start := time.Now()
	if err := runner.PutArchive(ctx, config.RemoteCachesDir, f); err != nil {
		return stale, fmt.Errorf("uploading cache %q: %w", c.Name, err)
	}

	remoteStaged := config.RemoteCachesDir + "/" + c.Name
	dir := targetDir(c.Path)
	script := fmt.Sprintf(
		"if [ -e %q ]; then rm -rf %q; fi\nmkdir -p \"$(dirname %q)\"\nmv %q %q\n",
		dir, dir, dir, remoteStaged, dir,
	)
	if exitCode, runErr := runner.RunCommand(ctx, script, nil, io.Discard); runErr != nil {
		return stale, fmt.Errorf("restoring cache %q: %w", c.Name, runErr)
	} else if exitCode != 0 {
		return stale, fmt.Errorf("restoring cache %q: exit code %d", c.Name, exitCode)
	}

	m.log.Infof("Cache %q: Uploaded %s in %.3fs", c.Name, humanize.Size(info.Size()), time.Since(start).Seconds())
	return stale, nil
}

// Download extracts cache c's directory back out of the build container
// after a successful step, skipping when a fresh-enough local archive
// already exists. Callers only invoke it on exit code 0.
func (m *Manager) Download(ctx context.Context, runner *containerrt.Runner, c specmodel.Cache, projectDir string, stale bool) error {
	if c.Name == DockerCacheName {
		return m.downloadDocker(ctx, runner)
	}

	path, err := m.archivePath(c, projectDir)
	if err != nil {
		m.log.Warnf("cache %q: %v", c.Name, err)
		return nil
	}

	if info, statErr := os.Stat(path); statErr == nil && !stale && time.Since(info.ModTime()) < refreshAge {
		m.log.Infof("You already have a %q cache", c.Name)
		return nil
	}

	remoteStaged := config.RemoteCachesDir + "/" + c.Name
	dir := targetDir(c.Path)
	moveScript := fmt.Sprintf("if [ -e %q ]; then mkdir -p %q; mv %q %q; fi\n", dir, filepath.Dir(remoteStaged), dir, remoteStaged)
	if exitCode, runErr := runner.RunCommand(ctx, moveScript, nil, io.Discard); runErr != nil {
		return fmt.Errorf("staging cache %q for download: %w", c.Name, runErr)
	} else if exitCode != 0 {
		return nil
	}

	exists, err := runner.PathExists(ctx, remoteStaged)
	if err != nil {
		return fmt.Errorf("checking staged cache %q: %w", c.Name, err)
	}
	if !exists {
		return nil
	}

	return m.streamArchiveToDisk(ctx, runner, remoteStaged, path, c.Name)
}

func (m *Manager) streamArchiveToDisk(ctx context.Context, runner *containerrt.Runner, remotePath, localPath, name string) error {
	reader, _, err := runner.GetArchive(ctx, remotePath)
	if err != nil {
		return fmt.Errorf("downloading cache %q: %w", name, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".tmp-cache-*")
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}
	tmpPath := tmp.Name()

	start := time.Now()
	n, copyErr := io.Copy(tmp, dockerio.NewChunkReader(dockerio.FromReader(reader, 32*1024)))
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("streaming cache %q to disk: %w", name, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp archive: %w", closeErr)
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalizing cache archive %s: %w", localPath, err)
	}

	m.log.Infof("Cache %q: Downloaded %s in %.3fs", name, humanize.Size(n), time.Since(start).Seconds())
	return nil
}

// uploadDocker restores a previously saved docker-image tarball by
// loading it inside the build container — the upload-side specialization
// for the reserved "docker" cache name.
func (m *Manager) uploadDocker(ctx context.Context, runner *containerrt.Runner) (bool, error) {
	path := filepath.Join(m.cacheDir, DockerCacheName, "images.tar")
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		m.log.Infof("Cache %q: Not found: Skipping", DockerCacheName)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("statting docker cache: %w", err)
	}
	stale := time.Since(info.ModTime()) > refreshAge

	f, err := os.Open(path)
	if err != nil {
		return stale, fmt.Errorf("opening docker cache: %w", err)
	}
	defer f.Close()

	if err := runner.PutArchive(ctx, config.RemoteCachesDir, f); err != nil {
		return stale, fmt.Errorf("uploading docker cache: %w", err)
	}

	// PutArchive wraps the single file in a tar entry named after its
	// basename, so it lands directly under RemoteCachesDir.
	script := fmt.Sprintf("docker image load < %s/images.tar; rm %s/images.tar",
		config.RemoteCachesDir, config.RemoteCachesDir)
	if exitCode, err := runner.RunCommand(ctx, script, nil, io.Discard); err != nil {
		return stale, fmt.Errorf("loading docker cache: %w", err)
	} else if exitCode != 0 {
		return stale, fmt.Errorf("loading docker cache: exit code %d", exitCode)
	}
	return stale, nil
}

// downloadDocker saves every named image the build produced back into the
// docker cache archive.
func (m *Manager) downloadDocker(ctx context.Context, runner *containerrt.Runner) error {
	exitCode, out, err := runner.RunCommandCapture(ctx, "docker image ls -a --format '{{.Repository}}:{{.Tag}}'")
	if err != nil {
		return fmt.Errorf("listing docker images: %w", err)
	}
	if exitCode != 0 {
		return nil
	}

	var refs []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "<none>") {
			continue
		}
		refs = append(refs, line)
	}
	if len(refs) == 0 {
		return nil
	}

	remoteTar := config.RemoteCachesDir + "/" + DockerCacheName + "/images.tar"
	script := fmt.Sprintf("mkdir -p %s/%s && docker image save %s -o %s",
		config.RemoteCachesDir, DockerCacheName, strings.Join(refs, " "), remoteTar)
	if exitCode, err := runner.RunCommand(ctx, script, nil, io.Discard); err != nil {
		return fmt.Errorf("saving docker images: %w", err)
	} else if exitCode != 0 {
		return nil
	}

	localDir := filepath.Join(m.cacheDir, DockerCacheName)
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return fmt.Errorf("creating docker cache directory: %w", err)
	}
	return m.streamArchiveToDisk(ctx, runner, remoteTar, filepath.Join(localDir, "images.tar"), DockerCacheName)
}
