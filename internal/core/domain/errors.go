package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned when a longitude or latitude lies outside WGS84 limits.
	ErrOutOfRange = errors.New("coordinate out of range")
	// ErrDegenerateBox is returned when west >= east or south >= north.
	ErrDegenerateBox = errors.New("degenerate bounding box")
	// ErrBBoxTooLarge is returned when a box exceeds the configured scan area.
	ErrBBoxTooLarge = errors.New("bounding box too large")

	ErrTaskNotFound  = errors.New("task not found")
	ErrRunNotFound   = errors.New("scan run not found")
	ErrUnknownSource = errors.New("unknown footprint source")
)

// ValidationError describes a rejected bounding box. It is fatal for a scan.
type ValidationError struct {
	Field string
	Value float64
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s=%v", e.Err, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// GeometryError records one footprint that was skipped during a scan.
type GeometryError struct {
	FootprintID string `json:"footprint_id"`
	Reason      string `json:"reason"`
}

func (e GeometryError) Error() string {
	return fmt.Sprintf("footprint %q: %s", e.FootprintID, e.Reason)
}

// UpstreamError wraps a failure of an external service (footprint source, task resolver).
type UpstreamError struct {
	Service string
	Status  int
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s returned HTTP %d: %v", e.Service, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
