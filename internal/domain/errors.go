package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors used across layers.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyActive      = errors.New("capture already active")
	ErrJobConsumed        = errors.New("job already run")
	ErrUnavailableOffline = errors.New("not available while the voice store is offline")
	// ErrStaleResult marks a superseded preview result. It never leaves the
	// preview scheduler.
	ErrStaleResult = errors.New("stale result")
)

// RejectReason classifies a failed pre-flight check.
type RejectReason string

const (
	ReasonTooLarge        RejectReason = "TooLarge"
	ReasonUnsupportedType RejectReason = "UnsupportedType"
	ReasonMissing         RejectReason = "Missing"
)

// ValidationError is a file that failed size or type checks.
type ValidationError struct {
	Reason RejectReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Reason, e.Detail)
}

// DeviceError is a microphone that could not be acquired or read.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string { return fmt.Sprintf("device %s: %v", e.Op, e.Err) }
func (e *DeviceError) Unwrap() error { return e.Err }

// NetworkError is a request that never produced an HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: network: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError is a structured non-success response. Detail is the
// server's message, kept verbatim for display.
type ServiceError struct {
	Status int
	Detail string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error %d: %s", e.Status, e.Detail)
}

// PipelineError tags a job failure with the phase it happened in.
type PipelineError struct {
	Phase Phase
	Err   error
}

func (e *PipelineError) Error() string { return fmt.Sprintf("%s failed: %v", e.Phase, e.Err) }
func (e *PipelineError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is ErrNotFound or a 404 from the
// backend.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var se *ServiceError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
