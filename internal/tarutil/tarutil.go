// Package tarutil provides tar-building and tar-extraction helpers:
// building a tar of a host directory via moby/go-archive, building a tar
// of a list of host files for the Artifact Manager's upload, and safely
// extracting a tar stream back onto the host without ever writing
// outside the target directory.
package tarutil

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	archive "github.com/moby/go-archive"

	"github.com/localci/pipeline-runner/internal/cierr"
)

// TarDirectory wraps moby/go-archive's TarWithOptions to produce a tar
// stream of dir's contents with paths relative to dir.
func TarDirectory(dir string) (io.ReadCloser, error) {
	return archive.TarWithOptions(dir, &archive.TarOptions{})
}

// SafeExtract extracts a tar stream into destDir, verifying that every
// member's resolved path stays within destDir. Any member that would
// escape aborts extraction with a PathTraversalError before anything is
// written for that member. Members are extracted in stream order, so
// files and directories written for members before the escaping one
// remain in destDir.
func SafeExtract(r io.Reader, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating extraction target %s: %w", destDir, err)
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar stream: %w", err)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("creating directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("creating parent directory for %s: %w", target, err)
			}
			if err := writeRegularFile(target, tr, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink, tar.TypeLink:
			// Skip links: a link target is itself an avenue for escape and
			// only regular files need to land inside the target directory.
			continue
		default:
			continue
		}
	}
}

// safeJoin joins destDir and name, rejecting any result that normalizes
// outside destDir — this is the realpath(target/dir, member.name) check
// required before a single byte is written.
func safeJoin(destDir, name string) (string, error) {
	cleanDest, err := filepath.Abs(destDir)
	if err != nil {
		return "", fmt.Errorf("resolving target directory: %w", err)
	}
	joined := filepath.Join(cleanDest, name)
	if joined != cleanDest && !strings.HasPrefix(joined, cleanDest+string(filepath.Separator)) {
		return "", &cierr.PathTraversalError{Member: name, Target: destDir}
	}
	return joined, nil
}

func writeRegularFile(path string, r io.Reader, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("writing file %s: %w", path, err)
	}
	return nil
}

// BuildTar streams the given files (concrete host paths under root) into
// a tar, naming each entry by its path relative to root and preserving
// mode and size. Used by the Artifact Manager to upload a host artifact
// directory into the build container.
func BuildTar(w io.Writer, root string, files []string) error {
	tw := tar.NewWriter(w)
	defer tw.Close()

	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			return fmt.Errorf("computing relative path for %s: %w", f, err)
		}
		info, err := os.Stat(f)
		if err != nil {
			return fmt.Errorf("statting %s: %w", f, err)
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("building tar header for %s: %w", f, err)
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing tar header for %s: %w", f, err)
		}
		if err := copyFileInto(tw, f); err != nil {
			return err
		}
	}
	return nil
}

func copyFileInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

// WalkFiles returns every regular file under root, for callers that want
// to feed BuildTar the full set rather than a glob subset.
func WalkFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}
