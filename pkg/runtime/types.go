// Package runtime defines the contract between the lifecycle service and
// container runtime implementations.
package runtime

import (
	"context"
	"regexp"
	"time"
)

// Status is the normalized container state reported by inspection. It is a
// closed set: anything the runtime reports outside of it collapses to
// StatusNotFound.
type Status string

const (
	StatusCreated  Status = "created"
	StatusRunning  Status = "running"
	StatusExited   Status = "exited"
	StatusPaused   Status = "paused"
	StatusDead     Status = "dead"
	StatusRemoving Status = "removing"
	StatusNotFound Status = "not-found"
)

// NormalizeStatus maps a raw runtime status string onto the closed Status
// set. Unrecognized or empty input maps to StatusNotFound.
func NormalizeStatus(raw string) Status {
	switch Status(raw) {
	case StatusCreated, StatusRunning, StatusExited, StatusPaused, StatusDead, StatusRemoving:
		return Status(raw)
	default:
		return StatusNotFound
	}
}

// containerNameRe is the engine's container naming rule.
var containerNameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]+$`)

// ValidName reports whether name satisfies the runtime's container naming
// rule. Operations reject invalid names before any runtime call is made.
func ValidName(name string) bool {
	return containerNameRe.MatchString(name)
}

// RestartPolicy mirrors the runtime-enforced restart behavior of a container.
type RestartPolicy string

const (
	RestartNo            RestartPolicy = "no"
	RestartAlways        RestartPolicy = "always"
	RestartOnFailure     RestartPolicy = "on-failure"
	RestartUnlessStopped RestartPolicy = "unless-stopped"
)

// ValidRestartPolicy reports whether p is one of the supported policies.
// The empty string is valid and means RestartNo.
func ValidRestartPolicy(p RestartPolicy) bool {
	switch p {
	case "", RestartNo, RestartAlways, RestartOnFailure, RestartUnlessStopped:
		return true
	default:
		return false
	}
}

// PortSpec publishes one container port on the host.
type PortSpec struct {
	Host      int
	Container int
	Protocol  string // tcp or udp, defaults to tcp when empty
}

// VolumeSpec binds a host directory into the container.
type VolumeSpec struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// RunContainerOptions is the caller-supplied description of a container to
// run. It is immutable once passed to an operation.
type RunContainerOptions struct {
	Name          string
	Image         string
	Ports         []PortSpec
	Env           map[string]string
	Volumes       []VolumeSpec
	RestartPolicy RestartPolicy
	Args          []string
}

// PortBinding is one published port as observed on a container. Host is nil
// when the port is exposed but not bound on the host.
type PortBinding struct {
	Container int
	Host      *int
	Protocol  string
}

// ContainerStateInfo is a point-in-time snapshot of a container produced by
// inspection. It is never mutated, only replaced by a fresh inspection.
type ContainerStateInfo struct {
	Name       string
	ID         string // empty when the runtime did not assign one
	Status     Status
	StartedAt  *time.Time
	FinishedAt *time.Time
	ExitCode   *int
	Ports      []PortBinding
	Labels     map[string]string
}

// ActionResult reports the outcome of a stop/restart/remove operation.
type ActionResult struct {
	Status  Status
	Message string
}

// RunContainerResult is the state of a freshly started container plus any
// non-fatal notices collected along the way.
type RunContainerResult struct {
	ContainerStateInfo
	Warnings []string
}

// Runtime is the operational contract a container runtime client fulfills.
// Every call is bounded by an operation-specific timeout and returns a typed
// error on failure; see pkg/dockererr for the failure codes.
type Runtime interface {
	// Ping verifies the runtime endpoint is reachable.
	Ping(ctx context.Context) error

	// ImageExists reports whether the image is present locally. It is
	// best-effort: inspection failures read as "does not exist".
	ImageExists(ctx context.Context, image string) bool

	// PullImage ensures the image is present locally, pulling it if needed.
	PullImage(ctx context.Context, image string) error

	// CreateContainer creates a container from opts and returns the
	// runtime-assigned id.
	CreateContainer(ctx context.Context, opts RunContainerOptions) (string, error)

	StartContainer(ctx context.Context, name string) error
	StopContainer(ctx context.Context, name string) error
	RestartContainer(ctx context.Context, name string) error

	// RemoveContainer force-removes the container regardless of state.
	RemoveContainer(ctx context.Context, name string) error

	// InspectContainer returns a normalized snapshot of the container. A
	// name the runtime does not know yields StatusNotFound, not an error.
	InspectContainer(ctx context.Context, name string) (*ContainerStateInfo, error)
}
