package survey

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFloorPlan is returned when an operation needs a loaded floor plan
	ErrNoFloorPlan = errors.New("no floor plan loaded")

	// ErrNotFound is returned when the backend has no resource at the path
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when an operation is not legal in the current phase
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrQueueFull is returned when a measurement is in flight and another is already pending
	ErrQueueFull = errors.New("measurement already queued")

	// ErrSuperseded is returned when the session was reset while a request was in flight
	ErrSuperseded = errors.New("session reset while request was in flight")

	// ErrInvalidSession is returned for a saved session that is not JSON
	ErrInvalidSession = errors.New("saved session is not valid JSON")
)

// StatusError is a non-2xx backend response
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %s %s: status %d", e.Method, e.Path, e.Code)
}

// SignalError is a platform signal read that carried no usable RSSI
type SignalError struct {
	Reason string
}

func (e *SignalError) Error() string {
	return e.Reason
}
