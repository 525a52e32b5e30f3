// Package docker implements the runtime client: timeout-bounded operations
// against a single Docker-compatible endpoint, with failures translated
// into the typed codes of pkg/dockererr.
package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"stevedore/pkg/dockererr"
	"stevedore/pkg/runtime"
)

// stopGraceSeconds is how long the engine lets a container shut down before
// killing it on stop/restart.
const stopGraceSeconds = 30

// Client drives one container runtime endpoint. The underlying connection
// is established once at construction and reused for the Client's lifetime.
// Client holds no other state; concurrent operations on the same container
// name are not serialized here.
type Client struct {
	api      engineAPI
	timeouts Timeouts
	dataDir  string
}

var _ runtime.Runtime = (*Client)(nil)

type options struct {
	host     string
	dataDir  string
	timeouts Timeouts
}

// Option configures a Client.
type Option func(*options)

// WithHost pins the runtime endpoint instead of auto-detecting one.
func WithHost(host string) Option {
	return func(o *options) { o.host = host }
}

// WithDataDir sets the base directory for per-container persistent data.
func WithDataDir(dir string) Option {
	return func(o *options) { o.dataDir = dir }
}

// WithTimeouts overrides the per-operation timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(o *options) { o.timeouts = t }
}

// NewClient connects to the container runtime and returns a ready-to-use
// client. Without options it auto-detects the endpoint from the environment
// and the conventional socket locations.
func NewClient(opts ...Option) (*Client, error) {
	o := options{
		dataDir:  DefaultDataDir(),
		timeouts: DefaultTimeouts(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	cli, host, err := connect(o.host)
	if err != nil {
		return nil, dockererr.Wrap(err, dockererr.CodeDockerUnavailable,
			"could not connect to a container runtime", dockererr.Meta{Operation: "connect"})
	}

	log.Debug("container runtime connected", "host", host, "data_dir", o.dataDir)
	return &Client{api: cli, timeouts: o.timeouts, dataDir: o.dataDir}, nil
}

// connect builds the SDK client. An explicit host is used as-is; otherwise
// the environment settings are tried first, then the usual socket paths,
// taking the first endpoint that answers a ping.
func connect(host string) (*client.Client, string, error) {
	if host != "" {
		cli, err := client.NewClientWithOpts(client.WithHost(host), client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, "", err
		}
		if err := probe(cli); err != nil {
			cli.Close()
			return nil, "", fmt.Errorf("runtime at %s did not respond: %w", host, err)
		}
		return cli, host, nil
	}

	if cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation()); err == nil {
		if err := probe(cli); err == nil {
			return cli, cli.DaemonHost(), nil
		}
		cli.Close()
	}

	candidates := defaultSocketPaths()
	for _, candidate := range candidates {
		cli, err := client.NewClientWithOpts(client.WithHost(candidate), client.WithAPIVersionNegotiation())
		if err != nil {
			continue
		}
		if err := probe(cli); err == nil {
			return cli, candidate, nil
		}
		cli.Close()
	}

	return nil, "", fmt.Errorf("no container runtime found, tried: %s", strings.Join(candidates, ", "))
}

func probe(cli *client.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := cli.Ping(ctx)
	return err
}

// defaultSocketPaths lists the socket locations to try, Docker first, then
// Podman root and rootless.
func defaultSocketPaths() []string {
	paths := []string{
		"unix:///var/run/docker.sock",
		"unix:///run/podman/podman.sock",
	}
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		paths = append(paths, "unix://"+filepath.Join(xdg, "podman", "podman.sock"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, "unix://"+filepath.Join(home, ".docker", "run", "docker.sock"))
	}
	return paths
}

// DefaultDataDir returns the platform-appropriate base directory for
// per-container persistent data.
func DefaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "stevedore")
	}
	return "./data"
}

// Ping verifies the runtime endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := await(ctx, c.timeouts.Ping, "runtime ping", func(ctx context.Context) (types.Ping, error) {
		return c.api.Ping(ctx)
	})
	if err != nil {
		return dockererr.Wrap(err, dockererr.CodeDockerUnavailable,
			"container runtime is not reachable", dockererr.Meta{Operation: "ping"})
	}
	return nil
}

// ImageExists reports whether the image is present locally. Best-effort:
// any inspection failure reads as "does not exist".
func (c *Client) ImageExists(ctx context.Context, imageRef string) bool {
	_, err := await(ctx, c.timeouts.Inspect, "image inspect", func(ctx context.Context) (image.InspectResponse, error) {
		resp, _, err := c.api.ImageInspectWithRaw(ctx, imageRef)
		return resp, err
	})
	return err == nil
}

// PullImage ensures the image is present locally. Already-present images
// are not pulled again. A pull that errors but leaves the image present
// anyway counts as success; the net effect is what matters.
func (c *Client) PullImage(ctx context.Context, imageRef string) error {
	if c.ImageExists(ctx, imageRef) {
		return nil
	}

	pullErr := c.pull(ctx, imageRef)
	if c.ImageExists(ctx, imageRef) {
		return nil
	}
	if pullErr == nil {
		pullErr = fmt.Errorf("image %s not present after pull", imageRef)
	}
	return dockererr.Wrap(pullErr, dockererr.CodePullFailed,
		"failed to pull image", dockererr.Meta{Operation: "pull", Image: imageRef})
}

func (c *Client) pull(ctx context.Context, imageRef string) error {
	_, err := await(ctx, c.timeouts.Pull, "image pull", func(ctx context.Context) (struct{}, error) {
		stream, err := c.api.ImagePull(ctx, imageRef, image.PullOptions{})
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, drainPull(stream)
	})
	return err
}

// CreateContainer creates a container from opts. The per-name persistent
// data directory is always bound at containerDataPath ahead of any
// caller-supplied volumes, and the managed label is always applied.
func (c *Client) CreateContainer(ctx context.Context, opts runtime.RunContainerOptions) (string, error) {
	if err := validateName(opts.Name); err != nil {
		return "", err
	}

	dataDir, err := provisionDataDir(c.dataDir, opts.Name)
	if err != nil {
		return "", dockererr.Wrap(err, dockererr.CodeCreateFailed,
			"failed to provision data directory",
			dockererr.Meta{Operation: "create", ContainerName: opts.Name, Image: opts.Image})
	}

	binds := make([]string, 0, len(opts.Volumes)+1)
	binds = append(binds, bindSpec(runtime.VolumeSpec{HostPath: dataDir, ContainerPath: containerDataPath}))
	for _, v := range opts.Volumes {
		binds = append(binds, bindSpec(v))
	}

	exposed, bindings := portMaps(opts.Ports)
	cfg := &container.Config{
		Image:        opts.Image,
		Env:          encodeEnv(opts.Env),
		ExposedPorts: exposed,
		Cmd:          opts.Args,
		Labels:       map[string]string{ManagedLabelKey: ManagedLabelValue},
	}
	hostCfg := &container.HostConfig{
		Binds:         binds,
		PortBindings:  bindings,
		RestartPolicy: restartPolicy(opts.RestartPolicy),
	}

	resp, err := await(ctx, c.timeouts.Create, "container create", func(ctx context.Context) (container.CreateResponse, error) {
		return c.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, opts.Name)
	})
	if err != nil {
		return "", dockererr.Wrap(err, dockererr.CodeCreateFailed,
			"failed to create container",
			dockererr.Meta{Operation: "create", ContainerName: opts.Name, Image: opts.Image})
	}
	return resp.ID, nil
}

// StartContainer starts the named container.
func (c *Client) StartContainer(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	_, err := await(ctx, c.timeouts.Start, "container start", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.ContainerStart(ctx, name, container.StartOptions{})
	})
	if err != nil {
		return dockererr.Wrap(err, dockererr.CodeStartFailed,
			"failed to start container", dockererr.Meta{Operation: "start", ContainerName: name})
	}
	return nil
}

// StopContainer stops the named container, giving it the stop grace period
// to shut down.
func (c *Client) StopContainer(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	grace := stopGraceSeconds
	_, err := await(ctx, c.timeouts.Stop, "container stop", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.ContainerStop(ctx, name, container.StopOptions{Timeout: &grace})
	})
	if err != nil {
		return dockererr.Wrap(err, dockererr.CodeStopFailed,
			"failed to stop container", dockererr.Meta{Operation: "stop", ContainerName: name})
	}
	return nil
}

// RestartContainer restarts the named container.
func (c *Client) RestartContainer(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	grace := stopGraceSeconds
	_, err := await(ctx, c.timeouts.Restart, "container restart", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.ContainerRestart(ctx, name, container.StopOptions{Timeout: &grace})
	})
	if err != nil {
		return dockererr.Wrap(err, dockererr.CodeRestartFailed,
			"failed to restart container", dockererr.Meta{Operation: "restart", ContainerName: name})
	}
	return nil
}

// RemoveContainer force-removes the named container regardless of state.
func (c *Client) RemoveContainer(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	_, err := await(ctx, c.timeouts.Remove, "container remove", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.api.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	})
	if err != nil {
		return dockererr.Wrap(err, dockererr.CodeRemoveFailed,
			"failed to remove container", dockererr.Meta{Operation: "remove", ContainerName: name})
	}
	return nil
}

// InspectContainer fetches and normalizes the state of the named container.
// A name the engine does not know yields StatusNotFound with no error;
// only transport failures raise INSPECT_FAILED.
func (c *Client) InspectContainer(ctx context.Context, name string) (*runtime.ContainerStateInfo, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	resp, err := await(ctx, c.timeouts.Inspect, "container inspect", func(ctx context.Context) (container.InspectResponse, error) {
		return c.api.ContainerInspect(ctx, name)
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return &runtime.ContainerStateInfo{
				Name:   name,
				Status: runtime.StatusNotFound,
				Labels: map[string]string{},
			}, nil
		}
		return nil, dockererr.Wrap(err, dockererr.CodeInspectFailed,
			"failed to inspect container", dockererr.Meta{Operation: "inspect", ContainerName: name})
	}
	return normalizeInspect(name, resp), nil
}

// normalizeInspect collapses the engine's inspect payload into the closed
// ContainerStateInfo shape. Anything missing or unrecognized degrades to
// the null value of its field rather than escaping raw.
func normalizeInspect(name string, resp container.InspectResponse) *runtime.ContainerStateInfo {
	info := &runtime.ContainerStateInfo{
		Name:   name,
		Status: runtime.StatusNotFound,
		Labels: map[string]string{},
	}

	if base := resp.ContainerJSONBase; base != nil {
		info.ID = base.ID
		if base.Name != "" {
			info.Name = strings.TrimPrefix(base.Name, "/")
		}
		if base.State != nil {
			info.Status = runtime.NormalizeStatus(base.State.Status)
			info.StartedAt = parseStateTime(base.State.StartedAt)
			info.FinishedAt = parseStateTime(base.State.FinishedAt)
			exitCode := base.State.ExitCode
			info.ExitCode = &exitCode
		}
	}
	if resp.Config != nil && resp.Config.Labels != nil {
		info.Labels = resp.Config.Labels
	}
	if resp.NetworkSettings != nil {
		info.Ports = decodePorts(resp.NetworkSettings.Ports)
	}
	return info
}

// parseStateTime turns the engine's state timestamps into *time.Time,
// treating the zero sentinel and unparseable values as absent.
func parseStateTime(raw string) *time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil || t.IsZero() {
		return nil
	}
	return &t
}

// decodePorts flattens the engine's "port/proto" binding map. When several
// host bindings exist for one port, the first wins; an unbound port keeps a
// nil host side. Output is ordered by container port for determinism.
func decodePorts(ports nat.PortMap) []runtime.PortBinding {
	if len(ports) == 0 {
		return nil
	}
	out := make([]runtime.PortBinding, 0, len(ports))
	for portProto, bindings := range ports {
		containerPort, err := strconv.Atoi(portProto.Port())
		if err != nil {
			continue
		}
		pb := runtime.PortBinding{Container: containerPort, Protocol: portProto.Proto()}
		if len(bindings) > 0 && bindings[0].HostPort != "" {
			if host, err := strconv.Atoi(bindings[0].HostPort); err == nil {
				pb.Host = &host
			}
		}
		out = append(out, pb)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Container != out[j].Container {
			return out[i].Container < out[j].Container
		}
		return out[i].Protocol < out[j].Protocol
	})
	return out
}
