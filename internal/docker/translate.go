package docker

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"

	"stevedore/pkg/dockererr"
	"stevedore/pkg/runtime"
)

const (
	// ManagedLabelKey marks containers owned by stevedore. Every container
	// created here carries it.
	ManagedLabelKey   = "stevedore.managed"
	ManagedLabelValue = "true"

	// containerDataPath is the fixed in-container mount point for the
	// per-container persistent data directory.
	containerDataPath = "/var/lib/stevedore/data"
)

// validateName rejects names the engine would refuse, before any runtime
// call is made.
func validateName(name string) error {
	if !runtime.ValidName(name) {
		return dockererr.New(dockererr.CodeInvalidArgument,
			fmt.Sprintf("invalid container name %q", name),
			dockererr.Meta{ContainerName: name})
	}
	return nil
}

// encodeEnv flattens an environment mapping into KEY=VALUE entries.
func encodeEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// portMaps translates port specs into the engine's exposed-port set and
// host binding map, keyed "<containerPort>/<protocol>". Specs sharing a
// container port accumulate host bindings instead of replacing each other.
func portMaps(ports []runtime.PortSpec) (nat.PortSet, nat.PortMap) {
	exposed := make(nat.PortSet, len(ports))
	bindings := make(nat.PortMap, len(ports))
	for _, p := range ports {
		proto := p.Protocol
		if proto == "" {
			proto = "tcp"
		}
		port := nat.Port(fmt.Sprintf("%d/%s", p.Container, proto))
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{
			HostIP:   "0.0.0.0",
			HostPort: strconv.Itoa(p.Host),
		})
	}
	return exposed, bindings
}

// bindSpec renders a volume spec in the engine's bind string syntax.
func bindSpec(v runtime.VolumeSpec) string {
	spec := v.HostPath + ":" + v.ContainerPath
	if v.ReadOnly {
		spec += ":ro"
	}
	return spec
}

// dataDirFor derives the host directory holding a container's persistent
// data. It is a pure function of the name, so recreating a container under
// the same name reattaches the same data.
func dataDirFor(baseDir, name string) string {
	return filepath.Join(baseDir, "containers", name)
}

// provisionDataDir ensures the per-container data directory exists.
// Create-if-absent only: existing content is never touched.
func provisionDataDir(baseDir, name string) (string, error) {
	dir := dataDirFor(baseDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return dir, nil
}

// restartPolicy maps the public policy onto the engine's enum.
func restartPolicy(p runtime.RestartPolicy) container.RestartPolicy {
	switch p {
	case runtime.RestartAlways:
		return container.RestartPolicy{Name: container.RestartPolicyAlways}
	case runtime.RestartOnFailure:
		return container.RestartPolicy{Name: container.RestartPolicyOnFailure}
	case runtime.RestartUnlessStopped:
		return container.RestartPolicy{Name: container.RestartPolicyUnlessStopped}
	default:
		return container.RestartPolicy{Name: container.RestartPolicyDisabled}
	}
}
