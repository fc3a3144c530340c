package containerrt

import (
	"fmt"

	"github.com/docker/docker/client"
)

// NewDockerClient builds a Docker SDK client from the ambient environment
// (DOCKER_HOST, DOCKER_CERT_PATH, …), negotiating the API version with the
// daemon.
func NewDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return cli, nil
}
