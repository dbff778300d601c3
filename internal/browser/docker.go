package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"

	"github.com/shehryarbajwa/testbed/internal/wait"
)

const (
	// DefaultImage is the container image used when none is configured.
	DefaultImage = "browserless/chrome:latest"

	cdpPort = nat.Port("3000/tcp")

	readyTimeout  = 30 * time.Second
	readyInterval = 500 * time.Millisecond
	stopTimeout   = 10 // seconds
)

// DockerLauncher runs each session's Chrome in its own container and
// attaches to it over CDP. Only Chrome is supported.
type DockerLauncher struct {
	client *client.Client
	image  string
	pw     *PlaywrightLauncher
	log    *slog.Logger
}

// NewDockerLauncher connects to the Docker daemon described by the
// environment. pw is used to attach to the containerized browsers.
func NewDockerLauncher(imageName string, pw *PlaywrightLauncher) (*DockerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if imageName == "" {
		imageName = DefaultImage
	}

	return &DockerLauncher{
		client: cli,
		image:  imageName,
		pw:     pw,
		log:    slog.Default().With("component", "docker-launcher"),
	}, nil
}

// Launch creates and starts a container, waits for its CDP endpoint and
// attaches. Closing the returned Driver stops and removes the container.
func (l *DockerLauncher) Launch(ctx context.Context, opts LaunchOptions) (Driver, error) {
	if opts.Kind != Chrome && opts.Kind != "" {
		return nil, fmt.Errorf("docker launcher supports chrome only, got %q", opts.Kind)
	}

	id := uuid.New().String()

	containerConfig := &container.Config{
		Image: l.image,
		Labels: map[string]string{
			"session-id": id,
			"managed-by": "testbed",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",        // sessions end on Release, not on idle
			"MAX_CONCURRENT_SESSIONS=1",    // one worker per container
			"PREBOOT_CHROME=true",          // faster first connect
			"EXIT_ON_HEALTH_FAILURE=false", // teardown is ours
		},
		ExposedPorts: nat.PortSet{
			cdpPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			cdpPort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
	}

	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName(id))
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := resp.ID

	// From here on a failure must not leak the container.
	fail := func(err error) (Driver, error) {
		l.removeContainer(containerID)
		return nil, err
	}

	if err := l.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fail(fmt.Errorf("failed to start container: %w", err))
	}

	inspect, err := l.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return fail(fmt.Errorf("failed to inspect container: %w", err))
	}
	if inspect.NetworkSettings == nil || len(inspect.NetworkSettings.Ports[cdpPort]) == 0 {
		return fail(fmt.Errorf("container %s has no binding for %s", containerID[:12], cdpPort))
	}
	port := inspect.NetworkSettings.Ports[cdpPort][0].HostPort

	endpoint := endpointURL(port, opts)
	if err := waitForEndpoint(ctx, endpoint, l.log); err != nil {
		return fail(fmt.Errorf("browser failed to become ready: %w", err))
	}

	drv, err := l.pw.ConnectCDP(ctx, endpoint, opts.Timeout, func() error {
		return l.stopContainer(containerID)
	})
	if err != nil {
		return fail(err)
	}

	l.log.Debug("container browser ready", "container", containerID[:12], "port", port)
	return drv, nil
}

// EnsureImage pulls the configured image unless it is already present.
func (l *DockerLauncher) EnsureImage(ctx context.Context) error {
	images, err := l.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == l.image {
				return nil
			}
		}
	}

	reader, err := l.client.ImagePull(ctx, l.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close releases the Docker client and the Playwright driver.
func (l *DockerLauncher) Close() error {
	if err := l.pw.Close(); err != nil {
		l.log.Warn("failed to stop playwright", "error", err)
	}
	return l.client.Close()
}

func (l *DockerLauncher) stopContainer(containerID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	timeout := stopTimeout
	if err := l.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	if err := l.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

func (l *DockerLauncher) removeContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		l.log.Warn("failed to remove container", "container", containerID, "error", err)
	}
}

func containerName(sessionID string) string {
	return fmt.Sprintf("testbed-%s", sessionID[:8])
}

// endpointURL builds the browserless websocket URL. Launch flags and the
// headless switch travel as query parameters.
func endpointURL(port string, opts LaunchOptions) string {
	q := url.Values{}
	for _, flag := range opts.Flags {
		q.Add(flag, "")
	}
	if !opts.Headless {
		q.Set("headless", "false")
	}

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, RawQuery: q.Encode()}
	return u.String()
}

// waitForEndpoint polls the CDP websocket until it accepts a connection.
// Dial failures are expected while Chrome boots and only count once they
// outlast readyTimeout.
func waitForEndpoint(ctx context.Context, endpoint string, log *slog.Logger) error {
	_, err := wait.Poll(ctx, wait.PollOptions{
		Timeout:   readyTimeout,
		Interval:  readyInterval,
		Ignore:    []error{errProbe},
		Condition: "cdp-ready",
		Target:    endpoint,
		Logger:    log,
	}, func(ctx context.Context) (struct{}, bool, error) {
		return struct{}{}, true, probeCDP(ctx, endpoint)
	})
	return err
}
