package schemas

import (
	"errors"
	"fmt"
	"time"
)

// SessionStartError reports that a fresh browser-driver instance could not be
// started within its bounded timeout. It is fatal for the attempt that needed
// the session; the manager discards the half-started instance.
type SessionStartError struct {
	Err error
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("failed to start browser session: %v", e.Err)
}

func (e *SessionStartError) Unwrap() error { return e.Err }

// NavigationTimeout reports that a page load did not reach its ready
// condition within the load timeout.
type NavigationTimeout struct {
	URL     string
	Timeout time.Duration
}

func (e *NavigationTimeout) Error() string {
	return fmt.Sprintf("page %q did not become ready within %s", e.URL, e.Timeout)
}

// NavigationError reports a hard driver-level failure during navigation,
// such as a refused connection or a detached target.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %q failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ElementNotFound reports that a locator resolved to zero elements even
// after the bounded re-lookup backoff.
type ElementNotFound struct {
	Selector string
	Attempts int
}

func (e *ElementNotFound) Error() string {
	return fmt.Sprintf("no element matched %q after %d attempts", e.Selector, e.Attempts)
}

// StaleElementError reports that an element reference became invalid
// mid-action because the page re-rendered underneath it.
type StaleElementError struct {
	Selector string
}

func (e *StaleElementError) Error() string {
	return fmt.Sprintf("element reference for %q went stale", e.Selector)
}

// MissingRequiredField reports that a schema field marked required matched
// zero elements. This is a schema/data mismatch, never retried.
type MissingRequiredField struct {
	Field    string
	Selector string
}

func (e *MissingRequiredField) Error() string {
	return fmt.Sprintf("required field %q: no element matched %q", e.Field, e.Selector)
}

// SchemaConfigError reports invalid extraction-schema or task configuration
// detected at startup. It is fatal for the whole run.
type SchemaConfigError struct {
	Detail string
}

func (e *SchemaConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Detail)
}

// ErrCancelled marks tasks that were in flight when the run was cancelled.
var ErrCancelled = errors.New("task cancelled")

// Retryable classifies an error from the navigator or extractor as a
// transient fault worth a fresh task attempt. Everything else, including
// schema mismatches and session start failures, is fatal for the task.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var (
		navTimeout *NavigationTimeout
		navErr     *NavigationError
		notFound   *ElementNotFound
		stale      *StaleElementError
	)
	switch {
	case errors.As(err, &navTimeout),
		errors.As(err, &navErr),
		errors.As(err, &notFound),
		errors.As(err, &stale):
		return true
	}
	return false
}
