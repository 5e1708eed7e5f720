package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout           = errors.New("request timed out")
	ErrDuplicate         = errors.New("duplicate article")
	ErrNotFound          = errors.New("not found")
	ErrEmptyResponse     = errors.New("empty response body")
	ErrInvalidURL        = errors.New("invalid URL")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrSourceDisabled    = errors.New("news source is disabled")
	ErrNoFetcher         = errors.New("no fetcher available for request")
	ErrRewriteDisabled   = errors.New("rewrite model is not configured")
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError wraps errors that occur during parsing.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur in a persistence backend.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("storage error (%s %s): %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors raised by a candidate middleware.
type PipelineError struct {
	Stage     string
	Candidate *Candidate
	Err       error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// RewriteError reports a failed call to the external rewrite model.
type RewriteError struct {
	Provider string
	Err      error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("rewrite via %s failed: %v", e.Provider, e.Err)
}

func (e *RewriteError) Unwrap() error { return e.Err }
