package faults

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind is the structured tag attached to an error at its point of origin.
type Kind int

const (
	Unknown Kind = iota
	GraphicsContextLoss
	NetworkTransient
	ClientRequest
	TimeoutExceeded
	StaleUIMismatch
	DataRefresh
	Aborted
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case GraphicsContextLoss:
		return "graphics_context_loss"
	case NetworkTransient:
		return "network_transient"
	case ClientRequest:
		return "client_request"
	case TimeoutExceeded:
		return "timeout_exceeded"
	case StaleUIMismatch:
		return "stale_ui_mismatch"
	case DataRefresh:
		return "data_refresh"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Kinded is implemented by errors that carry their own Kind marker.
type Kinded interface {
	FaultKind() Kind
}

// Error is a tagged error.
type Error struct {
	Kind   Kind
	Status int    // HTTP status when the failure came from a response
	Op     string // operation that failed, optional
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, "status %d", e.Status)
		if e.Err != nil {
			b.WriteString(": ")
		}
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else if e.Status == 0 {
		b.WriteString(e.Kind.String())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FaultKind implements Kinded.
func (e *Error) FaultKind() Kind {
	return e.Kind
}

// New creates a tagged error with a message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// HTTP tags a non-success response status. 4xx is ClientRequest, everything
// else is NetworkTransient.
func HTTP(op string, status int) error {
	kind := NetworkTransient
	if status >= 400 && status < 500 {
		kind = ClientRequest
	}
	return &Error{Kind: kind, Op: op, Status: status, Err: errors.New(http.StatusText(status))}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}

// KindOf resolves the kind of err. Structured tags win; the stdlib context
// and net signals come next; message heuristics are the last resort.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}

	var kinded Kinded
	if errors.As(err, &kinded) {
		return kinded.FaultKind()
	}

	switch {
	case errors.Is(err, context.Canceled):
		return Aborted
	case errors.Is(err, context.DeadlineExceeded):
		return TimeoutExceeded
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return TimeoutExceeded
		}
		return NetworkTransient
	}

	return kindFromMessage(err.Error())
}
