package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Timeouts bounds each runtime call. A hung endpoint can stall a single
// operation for at most its entry here.
type Timeouts struct {
	Ping    time.Duration
	Pull    time.Duration
	Create  time.Duration
	Start   time.Duration
	Stop    time.Duration
	Restart time.Duration
	Remove  time.Duration
	Inspect time.Duration
}

// DefaultTimeouts returns the per-operation defaults. Stop and restart
// leave headroom over the in-container stop grace period.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Ping:    5 * time.Second,
		Pull:    2 * time.Minute,
		Create:  30 * time.Second,
		Start:   30 * time.Second,
		Stop:    40 * time.Second,
		Restart: 70 * time.Second,
		Remove:  30 * time.Second,
		Inspect: 10 * time.Second,
	}
}

type opResult[T any] struct {
	value T
	err   error
}

// await races op against the timeout; label names the operation in the
// error. If op settles first its result is returned as-is; otherwise the
// error says whether the deadline elapsed or the caller's context was
// cancelled. The operation may still complete at the runtime level after
// the caller has moved on; no attempt is made to undo it.
func await[T any](ctx context.Context, timeout time.Duration, label string, op func(context.Context) (T, error)) (T, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan opResult[T], 1)
	go func() {
		value, err := op(opCtx)
		ch <- opResult[T]{value: value, err: err}
	}()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-opCtx.Done():
		var zero T
		if errors.Is(opCtx.Err(), context.Canceled) {
			return zero, fmt.Errorf("%s cancelled: %w", label, opCtx.Err())
		}
		return zero, fmt.Errorf("%s timed out after %s: %w", label, timeout, opCtx.Err())
	}
}

// pullMessage is the subset of the engine's pull progress payload we care
// about. A populated errorDetail marks the pull as failed.
type pullMessage struct {
	Status string `json:"status"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// drainPull consumes an image pull progress stream until it signals
// completion or reports an error. End-of-stream, clean or truncated, counts
// as completion; the stream is always closed so a timed-out pull does not
// leak its reader.
func drainPull(stream io.ReadCloser) error {
	defer stream.Close()

	dec := json.NewDecoder(stream)
	for {
		var msg pullMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("failed to read pull progress: %w", err)
		}
		if msg.Error != nil {
			return fmt.Errorf("pull reported an error: %s", msg.Error.Message)
		}
	}
}
