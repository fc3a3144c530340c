package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/docker/docker/client"
	"github.com/sirupsen/logrus"
)

// dockerDesktopSSHSocket is the well-known path Docker Desktop exposes the
// host's ssh-agent at inside the Linux VM it runs containers in.
const dockerDesktopSSHSocket = "/run/host-services/ssh-auth.sock"

// sshAgentSocketPath resolves the ssh-agent socket to forward into the
// build container: prefer Docker Desktop's well-known bind, else resolve
// $SSH_AUTH_SOCK, else nil (no agent forwarded).
func sshAgentSocketPath(ctx context.Context, cli *client.Client, log *logrus.Logger) string {
	info, err := cli.ServerVersion(ctx)
	if err == nil && strings.HasPrefix(info.Platform.Name, "Docker Desktop") {
		if runtime.GOOS == "windows" {
			log.Warn("Docker Desktop for Windows does not expose ssh-agent forwarding; skipping")
			return ""
		}
		return dockerDesktopSSHSocket
	}

	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return ""
	}
	expanded, err := expandUser(sock)
	if err != nil {
		log.Warnf("resolving SSH_AUTH_SOCK: %v", err)
		return ""
	}
	resolved, err := filepath.EvalSymlinks(expanded)
	if err != nil {
		log.Warnf("resolving SSH_AUTH_SOCK %s: %v", expanded, err)
		return ""
	}
	return resolved
}

func expandUser(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
