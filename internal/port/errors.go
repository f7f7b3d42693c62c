package port

import (
	"errors"
	"fmt"
)

// Sentinel errors used across ports.
var (
	ErrCacheMiss      = errors.New("score cache miss")
	ErrNoMatch        = errors.New("subject not found in similarity results")
	ErrAmbiguousMatch = errors.New("subject matched more than one similarity row")
	ErrUnknownOrigin  = errors.New("unknown erp origin")
	ErrEmptyFilter    = errors.New("filter needs at least one value")
	ErrNoPredictions  = errors.New("vision service returned no predictions")
	ErrBadEntryName   = errors.New("archive entry name does not encode origin and product id")
)

// TransportError means the remote call could not complete.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: transport: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ServiceError means the remote service answered with a non-success status.
type ServiceError struct {
	Op      string
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: status code %d - %s", e.Op, e.Status, e.Message)
}

// DecodeError means the response body did not match the expected schema.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("%s: decode: %v", e.Op, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// StagingError covers download, upload and rename failures.
type StagingError struct {
	Source string
	Err    error
}

func (e *StagingError) Error() string { return fmt.Sprintf("stage %s: %v", e.Source, e.Err) }
func (e *StagingError) Unwrap() error { return e.Err }

// PackagingError covers comparison archive write and compression faults.
type PackagingError struct {
	Path string
	Err  error
}

func (e *PackagingError) Error() string { return fmt.Sprintf("package %s: %v", e.Path, e.Err) }
func (e *PackagingError) Unwrap() error { return e.Err }
