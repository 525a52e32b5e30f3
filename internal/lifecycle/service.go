// Package lifecycle orchestrates container operations on top of a runtime
// client: it sequences the runtime calls, owns the create-pull-retry flow,
// and shapes results for callers.
package lifecycle

import (
	"context"
	"fmt"

	"stevedore/pkg/dockererr"
	"stevedore/pkg/runtime"
)

// Service coordinates container lifecycle operations. It is stateless; all
// state lives in the runtime.
type Service struct {
	rt runtime.Runtime
}

// NewService returns a Service driving the given runtime.
func NewService(rt runtime.Runtime) *Service {
	return &Service{rt: rt}
}

// RunContainer creates and starts a container from opts and returns its
// fresh state. When the initial create fails, the image is pulled and the
// create is retried exactly once; a second failure is final. The result
// carries a warning for the retry so callers can tell the slow path was
// taken.
func (s *Service) RunContainer(ctx context.Context, opts runtime.RunContainerOptions) (*runtime.RunContainerResult, error) {
	if !runtime.ValidName(opts.Name) {
		return nil, dockererr.New(dockererr.CodeInvalidArgument,
			fmt.Sprintf("invalid container name %q", opts.Name),
			dockererr.Meta{Operation: "run", ContainerName: opts.Name})
	}
	if opts.Image == "" {
		return nil, dockererr.New(dockererr.CodeInvalidArgument,
			"image reference is required", dockererr.Meta{Operation: "run", ContainerName: opts.Name})
	}
	if !runtime.ValidRestartPolicy(opts.RestartPolicy) {
		return nil, dockererr.New(dockererr.CodeInvalidArgument,
			fmt.Sprintf("unknown restart policy %q", opts.RestartPolicy),
			dockererr.Meta{Operation: "run", ContainerName: opts.Name})
	}

	if err := s.rt.Ping(ctx); err != nil {
		return nil, err
	}

	var warnings []string
	_, err := s.rt.CreateContainer(ctx, opts)
	if err != nil && dockererr.HasCode(err, dockererr.CodeCreateFailed) {
		if pullErr := s.rt.PullImage(ctx, opts.Image); pullErr != nil {
			return nil, pullErr
		}
		warnings = append(warnings, fmt.Sprintf("image %s was pulled after the initial create failed", opts.Image))
		_, err = s.rt.CreateContainer(ctx, opts)
	}
	if err != nil {
		return nil, err
	}

	if err := s.rt.StartContainer(ctx, opts.Name); err != nil {
		return nil, err
	}

	info, err := s.rt.InspectContainer(ctx, opts.Name)
	if err != nil {
		return nil, err
	}
	return &runtime.RunContainerResult{ContainerStateInfo: *info, Warnings: warnings}, nil
}

// GetState returns the current snapshot of the named container. Unknown
// names report StatusNotFound rather than failing.
func (s *Service) GetState(ctx context.Context, name string) (*runtime.ContainerStateInfo, error) {
	return s.rt.InspectContainer(ctx, name)
}

// Stop stops the named container and reports its observed state afterwards.
func (s *Service) Stop(ctx context.Context, name string) (*runtime.ActionResult, error) {
	if err := s.rt.StopContainer(ctx, name); err != nil {
		return nil, err
	}
	return s.observe(ctx, name, "stopped")
}

// Restart restarts the named container and reports its observed state
// afterwards.
func (s *Service) Restart(ctx context.Context, name string) (*runtime.ActionResult, error) {
	if err := s.rt.RestartContainer(ctx, name); err != nil {
		return nil, err
	}
	return s.observe(ctx, name, "restarted")
}

// Remove force-removes the named container. On success the container no
// longer exists, so the result is fixed rather than re-inspected.
func (s *Service) Remove(ctx context.Context, name string) (*runtime.ActionResult, error) {
	if err := s.rt.RemoveContainer(ctx, name); err != nil {
		return nil, err
	}
	return &runtime.ActionResult{Status: runtime.StatusNotFound, Message: "removed"}, nil
}

// observe re-inspects after a successful action so the result reflects what
// the runtime actually settled on, not what the action implies.
func (s *Service) observe(ctx context.Context, name, message string) (*runtime.ActionResult, error) {
	info, err := s.rt.InspectContainer(ctx, name)
	if err != nil {
		return nil, err
	}
	return &runtime.ActionResult{Status: info.Status, Message: message}, nil
}
