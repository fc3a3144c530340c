package containerrt

import (
	"context"
	"io"

	"github.com/docker/docker/api/types/container"
)

// PutArchive uploads a tar stream into the container at path, the way
// cache/artifact upload stage their content before an in-container mv.
func (r *Runner) PutArchive(ctx context.Context, path string, tarStream io.Reader) error {
	return r.client.CopyToContainer(ctx, r.containerID, path, tarStream, container.CopyToContainerOptions{})
}

// GetArchive downloads path as a tar stream plus its stat info, the
// counterpart used by cache/artifact download.
func (r *Runner) GetArchive(ctx context.Context, path string) (io.ReadCloser, container.PathStat, error) {
	return r.client.CopyFromContainer(ctx, r.containerID, path)
}
