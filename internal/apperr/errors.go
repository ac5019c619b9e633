// Package apperr defines the error taxonomy shared by the Ansuz core and
// its tool-layer consumers.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrSectionNotFound = errors.New("section not found")
	ErrConflict        = errors.New("conflict")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrNotATask        = errors.New("not a task")
	ErrMaxDepth        = errors.New("max heading depth exceeded")
	ErrReadFailed      = errors.New("document read failed")
	ErrInvalidArgument = errors.New("invalid argument")
)

// InvalidAddressError reports a malformed document, section, or task
// reference. These indicate a contract violation by the caller and are
// never retried.
type InvalidAddressError struct {
	Input  string
	Reason string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Input, e.Reason)
}

func (e *InvalidAddressError) Is(target error) bool { return target == ErrInvalidAddress }

// SectionNotFoundError reports a missing section along with the slugs that
// do exist in the document, so callers can surface alternatives.
type SectionNotFoundError struct {
	Document  string
	Slug      string
	Available []string
}

func (e *SectionNotFoundError) Error() string {
	return fmt.Sprintf("section %q not found in %s", e.Slug, e.Document)
}

func (e *SectionNotFoundError) Is(target error) bool { return target == ErrSectionNotFound }

// ConflictError reports a failed optimistic write: the file on disk changed
// between snapshot and commit. Callers retry by taking a fresh snapshot.
type ConflictError struct {
	Path          string
	SnapshotMtime time.Time
	CurrentMtime  time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s modified since snapshot", e.Path)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Code maps an error to the stable code string surfaced in structured
// error payloads.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ErrSectionNotFound):
		return "section_not_found"
	case errors.Is(err, ErrNotATask):
		return "not_a_task"
	case errors.Is(err, ErrNotFound):
		return "document_not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrMaxDepth):
		return "max_depth_exceeded"
	case errors.Is(err, ErrReadFailed):
		return "document_read_error"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "internal"
	}
}
