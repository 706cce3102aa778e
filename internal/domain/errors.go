package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a unit failure for the failure log and metrics.
type ErrorKind string

const (
	KindNotAvailable ErrorKind = "not_available"
	KindTransient    ErrorKind = "transient"
	KindParse        ErrorKind = "parse"
	KindValidation   ErrorKind = "validation"
	KindInternal     ErrorKind = "internal"
)

// NotAvailableError reports that the archive has no file for a work unit.
// Most stations lack most dataset-years, so absence is an expected outcome:
// the coordinator skips the unit without a failure record or an output file.
type NotAvailableError struct {
	Source string
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("not available: %s", e.Source)
}

// TransientError reports a fetch that failed after exhausting its retry
// budget. The unit is recorded as failed and may succeed on a later run.
type TransientError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.Source, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ParseError reports a structurally invalid payload: truncated fixed-width
// lines, a missing CSV header, non-numeric text where a number is required.
// Line is 1-based; zero when the defect is not line-addressable.
type ParseError struct {
	Dataset Dataset
	Line    int
	Reason  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Dataset, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Dataset, e.Reason)
}

// ValidationError reports parsed content that is semantically impossible,
// such as a calendar date that does not exist for its stated year. It
// guards against corrupt fixed-width offsets reading garbage as data.
type ValidationError struct {
	StationID string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("station %s: %s", e.StationID, e.Reason)
}

// KindOf classifies an error into the failure-log taxonomy. Unrecognized
// errors are internal: a bug or an environmental problem, not a data issue.
func KindOf(err error) ErrorKind {
	var notAvailable *NotAvailableError
	if errors.As(err, &notAvailable) {
		return KindNotAvailable
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return KindTransient
	}
	var parse *ParseError
	if errors.As(err, &parse) {
		return KindParse
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return KindValidation
	}
	return KindInternal
}

// IsNotAvailable reports whether err means the data legitimately does not
// exist, as opposed to a failure retrieving it.
func IsNotAvailable(err error) bool {
	var notAvailable *NotAvailableError
	return errors.As(err, &notAvailable)
}
