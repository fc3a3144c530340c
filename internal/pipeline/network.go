package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"

	"github.com/localci/pipeline-runner/internal/cierr"
)

// ensureNetwork creates a bridge network named name if one doesn't
// already exist, returning its ID either way.
func ensureNetwork(ctx context.Context, cli *client.Client, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("network name required")
	}
	list, err := cli.NetworkList(ctx, network.ListOptions{Filters: filters.NewArgs(filters.Arg("name", name))})
	if err != nil {
		return "", &cierr.PipelineFatalError{Message: "listing networks", Cause: err}
	}
	for _, n := range list {
		if n.Name == name {
			return n.ID, nil
		}
	}
	resp, err := cli.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"})
	if err != nil {
		return "", &cierr.PipelineFatalError{Message: "creating network " + name, Cause: err}
	}
	return resp.ID, nil
}

func removeNetwork(ctx context.Context, cli *client.Client, name string) error {
	if err := cli.NetworkRemove(ctx, name); err != nil {
		return fmt.Errorf("removing network %s: %w", name, err)
	}
	return nil
}

// ensureVolume creates a named volume to back a single step's shared data
// mount (the build container and the Repository Cloner both mount it).
func ensureVolume(ctx context.Context, cli *client.Client, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("volume name required")
	}
	list, err := cli.VolumeList(ctx, volume.ListOptions{Filters: filters.NewArgs(filters.Arg("name", name))})
	if err != nil {
		return "", &cierr.PipelineFatalError{Message: "listing volumes", Cause: err}
	}
	for _, v := range list.Volumes {
		if v.Name == name {
			return v.Name, nil
		}
	}
	resp, err := cli.VolumeCreate(ctx, volume.CreateOptions{Name: name})
	if err != nil {
		return "", &cierr.PipelineFatalError{Message: "creating volume " + name, Cause: err}
	}
	return resp.Name, nil
}

func removeVolume(ctx context.Context, cli *client.Client, name string) error {
	if err := cli.VolumeRemove(ctx, name, true); err != nil {
		return fmt.Errorf("removing volume %s: %w", name, err)
	}
	return nil
}
