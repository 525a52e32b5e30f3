package docker

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stevedore/internal/testutils"
	"stevedore/pkg/dockererr"
	"stevedore/pkg/runtime"
)

// notFoundErr mimics the SDK's not-found errors, which are detected through
// the NotFound marker method.
type notFoundErr struct{}

func (notFoundErr) Error() string { return "no such container" }
func (notFoundErr) NotFound()     {}

// fakeEngine is a hand-rolled engineAPI that counts calls and replays
// canned responses.
type fakeEngine struct {
	pingErr error

	imagePresent bool
	inspectImage int

	pullErr       error
	pullStream    string
	pullCalls     int
	pullFlipsInto bool // after a pull, the image reads as present

	createResp  container.CreateResponse
	createErr   error
	createCalls int
	gotConfig   *container.Config
	gotHost     *container.HostConfig
	gotName     string

	startErr   error
	startCalls int

	stopErr  error
	gotStop  container.StopOptions
	stopped  int
	restErr  error
	restarts int

	removeErr  error
	gotRemove  container.RemoveOptions
	removed    int

	inspectResp  container.InspectResponse
	inspectErr   error
	inspectCalls int
}

func (f *fakeEngine) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{}, f.pingErr
}

func (f *fakeEngine) ImageInspectWithRaw(ctx context.Context, imageRef string) (image.InspectResponse, []byte, error) {
	f.inspectImage++
	if f.imagePresent {
		return image.InspectResponse{ID: "sha256:abc"}, nil, nil
	}
	return image.InspectResponse{}, nil, notFoundErr{}
}

func (f *fakeEngine) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	f.pullCalls++
	if f.pullFlipsInto {
		f.imagePresent = true
	}
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	stream := f.pullStream
	if stream == "" {
		stream = `{"status":"Pull complete"}`
	}
	return io.NopCloser(strings.NewReader(stream)), nil
}

func (f *fakeEngine) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.createCalls++
	f.gotConfig = config
	f.gotHost = hostConfig
	f.gotName = containerName
	return f.createResp, f.createErr
}

func (f *fakeEngine) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	f.startCalls++
	return f.startErr
}

func (f *fakeEngine) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	f.stopped++
	f.gotStop = options
	return f.stopErr
}

func (f *fakeEngine) ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error {
	f.restarts++
	return f.restErr
}

func (f *fakeEngine) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.removed++
	f.gotRemove = options
	return f.removeErr
}

func (f *fakeEngine) ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error) {
	f.inspectCalls++
	return f.inspectResp, f.inspectErr
}

func newTestClient(t *testing.T, engine *fakeEngine) *Client {
	t.Helper()
	return &Client{api: engine, timeouts: DefaultTimeouts(), dataDir: t.TempDir()}
}

func TestClient_Ping_WrapsUnavailable(t *testing.T) {
	ctx := testutils.TestContext(t)
	engine := &fakeEngine{pingErr: errors.New("connection refused")}
	c := newTestClient(t, engine)

	err := c.Ping(ctx)
	require.Error(t, err)
	assert.True(t, dockererr.HasCode(err, dockererr.CodeDockerUnavailable))
}

func TestClient_PullImage_SkipsWhenPresent(t *testing.T) {
	ctx := testutils.TestContext(t)
	engine := &fakeEngine{imagePresent: true}
	c := newTestClient(t, engine)

	require.NoError(t, c.PullImage(ctx, "nginx:latest"))
	assert.Equal(t, 0, engine.pullCalls)
}

func TestClient_PullImage_PullsWhenMissing(t *testing.T) {
	ctx := testutils.TestContext(t)
	engine := &fakeEngine{pullFlipsInto: true}
	c := newTestClient(t, engine)

	require.NoError(t, c.PullImage(ctx, "nginx:latest"))
	assert.Equal(t, 1, engine.pullCalls)
}

func TestClient_PullImage_ToleratesFailedPullIfImageArrived(t *testing.T) {
	ctx := testutils.TestContext(t)
	engine := &fakeEngine{
		pullFlipsInto: true,
		pullStream:    `{"errorDetail":{"message":"flaky layer"}}`,
	}
	c := newTestClient(t, engine)

	assert.NoError(t, c.PullImage(ctx, "nginx:latest"))
}

func TestClient_PullImage_FailureIsTyped(t *testing.T) {
	ctx := testutils.TestContext(t)
	engine := &fakeEngine{pullErr: errors.New("manifest unknown")}
	c := newTestClient(t, engine)

	err := c.PullImage(ctx, "ghost:latest")
	require.Error(t, err)
	assert.True(t, dockererr.HasCode(err, dockererr.CodePullFailed))

	var typed *dockererr.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, "ghost:latest", typed.Meta.Image)
	assert.Equal(t, "pull", typed.Meta.Operation)
}

func TestClient_CreateContainer_RejectsBadNameBeforeAnyCall(t *testing.T) {
	ctx := testutils.TestContext(t)
	engine := &fakeEngine{}
	c := newTestClient(t, engine)

	_, err := c.CreateContainer(ctx, runtime.RunContainerOptions{Name: "bad name!", Image: "nginx"})
	require.Error(t, err)
	assert.True(t, dockererr.HasCode(err, dockererr.CodeInvalidArgument))
	assert.Equal(t, 0, engine.createCalls)
}

func TestClient_CreateContainer_WiresConfig(t *testing.T) {
	ctx := testutils.TestContext(t)
	engine := &fakeEngine{createResp: container.CreateResponse{ID: "cid-1"}}
	c := newTestClient(t, engine)

	id, err := c.CreateContainer(ctx, runtime.RunContainerOptions{
		Name:  "web",
		Image: "nginx:latest",
		Ports: []runtime.PortSpec{{Host: 8080, Container: 80}},
		Env:   map[string]string{"MODE": "prod"},
		Volumes: []runtime.VolumeSpec{
			{HostPath: "/srv/static", ContainerPath: "/usr/share/nginx/html", ReadOnly: true},
		},
		RestartPolicy: runtime.RestartAlways,
	})
	require.NoError(t, err)
	assert.Equal(t, "cid-1", id)
	assert.Equal(t, "web", engine.gotName)

	require.NotNil(t, engine.gotConfig)
	assert.Equal(t, "nginx:latest", engine.gotConfig.Image)
	assert.Equal(t, ManagedLabelValue, engine.gotConfig.Labels[ManagedLabelKey])
	assert.Contains(t, engine.gotConfig.Env, "MODE=prod")
	assert.Contains(t, engine.gotConfig.ExposedPorts, nat.Port("80/tcp"))

	require.NotNil(t, engine.gotHost)
	require.Len(t, engine.gotHost.Binds, 2)
	// The persistent data directory is always the first bind.
	assert.True(t, strings.HasSuffix(engine.gotHost.Binds[0], ":"+containerDataPath))
	assert.Contains(t, engine.gotHost.Binds[0], "containers/web")
	assert.Equal(t, "/srv/static:/usr/share/nginx/html:ro", engine.gotHost.Binds[1])
	assert.Equal(t, container.RestartPolicyAlways, engine.gotHost.RestartPolicy.Name)
}

func TestClient_CreateContainer_FailureIsTyped(t *testing.T) {
	ctx := testutils.TestContext(t)
	engine := &fakeEngine{createErr: errors.New("no such image")}
	c := newTestClient(t, engine)

	_, err := c.CreateContainer(ctx, runtime.RunContainerOptions{Name: "web", Image: "ghost:latest"})
	require.Error(t, err)
	assert.True(t, dockererr.HasCode(err, dockererr.CodeCreateFailed))

	var typed *dockererr.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, "ghost:latest", typed.Meta.Image)
}

func TestClient_StopContainer_UsesGracePeriodAndWraps(t *testing.T) {
	ctx := testutils.TestContext(t)
	engine := &fakeEngine{}
	c := newTestClient(t, engine)

	require.NoError(t, c.StopContainer(ctx, "web"))
	require.NotNil(t, engine.gotStop.Timeout)
	assert.Equal(t, stopGraceSeconds, *engine.gotStop.Timeout)

	engine.stopErr = errors.New("cannot stop")
	err := c.StopContainer(ctx, "web")
	assert.True(t, dockererr.HasCode(err, dockererr.CodeStopFailed))
}

func TestClient_RestartContainer_FailureIsTyped(t *testing.T) {
	ctx := testutils.TestContext(t)
	engine := &fakeEngine{restErr: errors.New("cannot restart")}
	c := newTestClient(t, engine)

	err := c.RestartContainer(ctx, "web")
	assert.True(t, dockererr.HasCode(err, dockererr.CodeRestartFailed))
	assert.Equal(t, 1, engine.restarts)
}

func TestClient_RemoveContainer_Forces(t *testing.T) {
	ctx := testutils.TestContext(t)
	engine := &fakeEngine{}
	c := newTestClient(t, engine)

	require.NoError(t, c.RemoveContainer(ctx, "web"))
	assert.True(t, engine.gotRemove.Force)
}

func TestClient_InspectContainer_NotFoundIsNotAnError(t *testing.T) {
	ctx := testutils.TestContext(t)
	engine := &fakeEngine{inspectErr: notFoundErr{}}
	c := newTestClient(t, engine)

	info, err := c.InspectContainer(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, runtime.StatusNotFound, info.Status)
	assert.Equal(t, "ghost", info.Name)
	assert.Empty(t, info.ID)
}

func TestClient_InspectContainer_TransportFailureIsTyped(t *testing.T) {
	ctx := testutils.TestContext(t)
	engine := &fakeEngine{inspectErr: errors.New("connection reset")}
	c := newTestClient(t, engine)

	_, err := c.InspectContainer(ctx, "web")
	require.Error(t, err)
	assert.True(t, dockererr.HasCode(err, dockererr.CodeInspectFailed))
}

func TestClient_InspectContainer_NormalizesRunningContainer(t *testing.T) {
	ctx := testutils.TestContext(t)
	host := "8080"
	engine := &fakeEngine{
		inspectResp: container.InspectResponse{
			ContainerJSONBase: &container.ContainerJSONBase{
				ID:   "cid-1",
				Name: "/web",
				State: &container.State{
					Status:     "running",
					StartedAt:  "2026-08-23T10:00:00.000000000Z",
					FinishedAt: "0001-01-01T00:00:00Z",
					ExitCode:   0,
				},
			},
			Config: &container.Config{
				Labels: map[string]string{ManagedLabelKey: ManagedLabelValue},
			},
			NetworkSettings: &container.NetworkSettings{
				NetworkSettingsBase: container.NetworkSettingsBase{
					Ports: nat.PortMap{
						"80/tcp":  []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: host}},
						"443/tcp": nil,
					},
				},
			},
		},
	}
	c := newTestClient(t, engine)

	info, err := c.InspectContainer(ctx, "web")
	require.NoError(t, err)
	assert.Equal(t, "web", info.Name)
	assert.Equal(t, "cid-1", info.ID)
	assert.Equal(t, runtime.StatusRunning, info.Status)
	require.NotNil(t, info.StartedAt)
	assert.Nil(t, info.FinishedAt) // zero sentinel reads as absent
	assert.Equal(t, ManagedLabelValue, info.Labels[ManagedLabelKey])

	require.Len(t, info.Ports, 2)
	assert.Equal(t, 80, info.Ports[0].Container)
	require.NotNil(t, info.Ports[0].Host)
	assert.Equal(t, 8080, *info.Ports[0].Host)
	assert.Equal(t, 443, info.Ports[1].Container)
	assert.Nil(t, info.Ports[1].Host)
}

func TestClient_InspectContainer_UnknownRawStatusCollapses(t *testing.T) {
	ctx := testutils.TestContext(t)
	engine := &fakeEngine{
		inspectResp: container.InspectResponse{
			ContainerJSONBase: &container.ContainerJSONBase{
				ID:    "cid-2",
				Name:  "/odd",
				State: &container.State{Status: "levitating"},
			},
		},
	}
	c := newTestClient(t, engine)

	info, err := c.InspectContainer(ctx, "odd")
	require.NoError(t, err)
	assert.Equal(t, runtime.StatusNotFound, info.Status)
}
