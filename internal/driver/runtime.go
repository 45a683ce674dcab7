package driver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/sirupsen/logrus"
)

// LocalSocketPath is the well-known path whose presence enables the
// local control-CLI path, per spec.md §6 "Runtime detection".
const LocalSocketPath = "/var/run/docker.sock"

// RuntimeDriver drives Docker (or a Docker-API-compatible runtime)
// containers, either through the remote HTTP daemon or by shelling
// out to the local docker CLI. When both are available the remote
// path is preferred, mirroring the teacher's own dockerclient-backed
// worker in worker.go, generalized to the two transports spec.md
// describes.
type RuntimeDriver struct {
	logger *logrus.Logger
	remote *dockerclient.Client
	local  bool
}

// NewRuntimeDriver builds a driver from the environment: dockerProxyURL
// (from DOCKER_PROXY_URL, already normalized to http://…) selects the
// remote transport; otherwise the presence of the local control socket
// enables the CLI fallback.
func NewRuntimeDriver(dockerProxyURL string, logger *logrus.Logger) (*RuntimeDriver, error) {
	d := &RuntimeDriver{logger: logger}

	if dockerProxyURL != "" {
		cli, err := dockerclient.NewClientWithOpts(
			dockerclient.WithHost(dockerProxyURL),
			dockerclient.WithAPIVersionNegotiation(),
		)
		if err != nil {
			return nil, fmt.Errorf("driver: connecting to remote docker daemon: %w", err)
		}
		d.remote = cli
		logger.WithField("url", dockerProxyURL).Info("runtime driver using remote docker daemon")
		return d, nil
	}

	if _, err := os.Stat(LocalSocketPath); err == nil {
		d.local = true
		logger.WithField("socket", LocalSocketPath).Info("runtime driver using local docker CLI")
		return d, nil
	}

	return nil, fmt.Errorf("driver: no docker runtime available (set DOCKER_PROXY_URL or run with %s mounted)", LocalSocketPath)
}

func (d *RuntimeDriver) IsRunning(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, StatusDeadline)
	defer cancel()

	if d.remote != nil {
		info, err := d.remote.ContainerInspect(ctx, name)
		if err != nil {
			return false, err
		}
		return info.State != nil && info.State.Running, nil
	}

	out, err := d.exec(ctx, "inspect", "-f", "{{.State.Running}}", name)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "true", nil
}

func (d *RuntimeDriver) Start(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, ActionInitDeadline)
	defer cancel()

	if d.remote != nil {
		err := d.remote.ContainerStart(ctx, name, container.StartOptions{})
		if err != nil && errdefs.IsNotModified(err) {
			return nil
		}
		return err
	}

	_, err := d.exec(ctx, "start", name)
	return err
}

func (d *RuntimeDriver) Stop(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, ActionInitDeadline)
	defer cancel()

	if d.remote != nil {
		timeout := 10
		err := d.remote.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout})
		if err != nil && errdefs.IsNotModified(err) {
			return nil
		}
		return err
	}

	_, err := d.exec(ctx, "stop", "-t", "10", name)
	return err
}

func (d *RuntimeDriver) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, StatusDeadline)
	defer cancel()

	if d.remote != nil {
		containers, err := d.remote.ContainerList(ctx, container.ListOptions{All: true})
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(containers))
		for _, c := range containers {
			for _, n := range c.Names {
				names = append(names, strings.TrimPrefix(n, "/"))
			}
		}
		return names, nil
	}

	out, err := d.exec(ctx, "ps", "-a", "--format", "{{.Names}}")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func (d *RuntimeDriver) StartedAt(ctx context.Context, name string) (time.Time, bool) {
	ctx, cancel := context.WithTimeout(ctx, StatusDeadline)
	defer cancel()

	if d.remote != nil {
		info, err := d.remote.ContainerInspect(ctx, name)
		if err != nil || info.State == nil || info.State.StartedAt == "" {
			return time.Time{}, false
		}
		t, err := time.Parse(time.RFC3339Nano, info.State.StartedAt)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}

	out, err := d.exec(ctx, "inspect", "-f", "{{.State.StartedAt}}", name)
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(out))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (d *RuntimeDriver) exec(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

// NormalizeDockerProxyURL converts DOCKER_PROXY_URL's tcp:// scheme
// (as documented and consumed by the daemon-facing tooling this proxy
// talks to) into the http:// scheme the docker client library expects.
func NormalizeDockerProxyURL(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "tcp://") {
		return "http://" + strings.TrimPrefix(raw, "tcp://")
	}
	return raw
}
