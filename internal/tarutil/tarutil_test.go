package tarutil

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTar(t *testing.T, entries map[string]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, body := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body))}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return &buf
}

func TestSafeExtractWritesRegularFiles(t *testing.T) {
	dest := t.TempDir()
	buf := writeTar(t, map[string]string{
		"a.txt":        "A",
		"sub/b.txt":    "B",
		"sub/sub2/c.txt": "C",
	})

	require.NoError(t, SafeExtract(buf, dest))

	a, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "A", string(a))

	c, err := os.ReadFile(filepath.Join(dest, "sub", "sub2", "c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "C", string(c))
}

func TestSafeExtractRejectsPathTraversal(t *testing.T) {
	dest := t.TempDir()
	buf := writeTar(t, map[string]string{
		"../../escape.txt": "evil",
	})

	err := SafeExtract(buf, dest)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(filepath.Dir(dest)), "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuildTarAndWalkFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "valid-folder", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "file-name"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "valid-folder", "a"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "valid-folder", "sub", "c"), []byte("c"), 0o644))

	files, err := WalkFiles(root)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	var buf bytes.Buffer
	require.NoError(t, BuildTar(&buf, root, files))

	tr := tar.NewReader(&buf)
	names := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names[hdr.Name] = true
	}
	assert.True(t, names["file-name"])
	assert.True(t, names["valid-folder/a"])
	assert.True(t, names["valid-folder/sub/c"])
}
