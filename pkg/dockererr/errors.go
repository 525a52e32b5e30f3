// Package dockererr defines the closed failure taxonomy for container
// runtime operations and the wrapper that carries diagnostic metadata
// across layers.
package dockererr

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies one failure class. The set is closed; callers switch on
// codes instead of matching message text.
type Code string

const (
	CodeDockerUnavailable Code = "DOCKER_UNAVAILABLE"
	CodePullFailed        Code = "PULL_FAILED"
	CodeCreateFailed      Code = "CREATE_FAILED"
	CodeStartFailed       Code = "START_FAILED"
	CodeStopFailed        Code = "STOP_FAILED"
	CodeRestartFailed     Code = "RESTART_FAILED"
	CodeRemoveFailed      Code = "REMOVE_FAILED"
	CodeInspectFailed     Code = "INSPECT_FAILED"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
)

// Meta carries diagnostic context for a failure. Fields are optional;
// wrapping merges rather than overwrites them.
type Meta struct {
	Operation     string
	ContainerName string
	Image         string
	Details       map[string]string
}

// Error is a typed runtime failure. It is immutable once constructed:
// Wrap returns a new value instead of mutating.
type Error struct {
	Code    Code
	Message string
	Meta    Meta
	cause   error
}

// New constructs a typed error with no underlying cause.
func New(code Code, message string, meta Meta) *Error {
	return &Error{Code: code, Message: message, Meta: meta}
}

// Wrap turns err into a typed error. An untyped err becomes the cause of a
// new error carrying code and message. An already-typed err keeps its
// original code, message and cause; the new metadata is merged onto the
// existing metadata, with existing fields winning on collision so that
// context accumulated closer to the failure is never lost.
func Wrap(err error, code Code, message string, meta Meta) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return &Error{
			Code:    typed.Code,
			Message: typed.Message,
			Meta:    mergeMeta(typed.Meta, meta),
			cause:   typed.cause,
		}
	}
	return &Error{Code: code, Message: message, Meta: meta, cause: err}
}

func mergeMeta(existing, added Meta) Meta {
	out := existing
	if out.Operation == "" {
		out.Operation = added.Operation
	}
	if out.ContainerName == "" {
		out.ContainerName = added.ContainerName
	}
	if out.Image == "" {
		out.Image = added.Image
	}
	if len(added.Details) > 0 {
		merged := make(map[string]string, len(existing.Details)+len(added.Details))
		for k, v := range added.Details {
			merged[k] = v
		}
		for k, v := range existing.Details {
			merged[k] = v
		}
		out.Details = merged
	}
	return out
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Meta.Operation != "" {
		fmt.Fprintf(&b, " (op=%s", e.Meta.Operation)
		if e.Meta.ContainerName != "" {
			fmt.Fprintf(&b, " container=%s", e.Meta.ContainerName)
		}
		if e.Meta.Image != "" {
			fmt.Fprintf(&b, " image=%s", e.Meta.Image)
		}
		b.WriteString(")")
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf extracts the failure code from err, if it carries one.
func CodeOf(err error) (Code, bool) {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code, true
	}
	return "", false
}

// HasCode reports whether err is a typed error with the given code.
func HasCode(err error, code Code) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}
