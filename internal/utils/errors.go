package utils

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCancelled           = errors.New("download cancelled")
	ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")
	ErrUnknownTask         = errors.New("unknown task")
	ErrTaskRunning         = errors.New("task is still running")
	ErrNoCandidates        = errors.New("no candidate urls")
)

// MetadataFetchError means the manifest, a descriptor or the asset index
// could not be retrieved from any source. Fatal for the batch.
type MetadataFetchError struct {
	Resource string
	Attempts []error
}

func (e *MetadataFetchError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("fetching %s: no sources available", e.Resource)
	}
	msgs := make([]string, 0, len(e.Attempts))
	for _, err := range e.Attempts {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("fetching %s failed on all sources: %s", e.Resource, strings.Join(msgs, "; "))
}

func (e *MetadataFetchError) Unwrap() []error {
	return e.Attempts
}

type VersionNotFoundError struct {
	VersionID string
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("version %q not found in manifest", e.VersionID)
}

// IntegrityError is a size or hash mismatch of a downloaded file.
type IntegrityError struct {
	Path     string
	Reason   string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	if e.Expected == "" && e.Actual == "" {
		return fmt.Sprintf("integrity check failed for %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("integrity check failed for %s: %s (expected %s, got %s)", e.Path, e.Reason, e.Expected, e.Actual)
}

// TransferError is a network failure or an unexpected HTTP status.
type TransferError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string {
	if e.StatusCode != 0 && e.Err == nil {
		return fmt.Sprintf("transfer from %s failed: status %d", e.URL, e.StatusCode)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("transfer from %s failed: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transfer from %s failed: %v", e.URL, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

type CancelledError struct {
	Path string
}

func (e *CancelledError) Error() string {
	if e.Path == "" {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCancelled, e.Path)
}

func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
