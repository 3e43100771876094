package sources

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a provider call failed.
type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindPayload   ErrorKind = "payload"
	KindRateLimit ErrorKind = "rate_limit"
	KindStatus    ErrorKind = "status"
	KindRobots    ErrorKind = "robots"
)

// SourceError is the typed failure of one adapter run. It is isolated to
// its source: the run continues with zero signals from that provider.
type SourceError struct {
	Source     string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("source %s: %s (status %d): %v", e.Source, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("source %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func newError(source string, kind ErrorKind, err error) *SourceError {
	return &SourceError{Source: source, Kind: kind, Err: err}
}

func payloadError(source string, format string, args ...any) *SourceError {
	return newError(source, KindPayload, fmt.Errorf(format, args...))
}

// KindOf returns the kind of a SourceError anywhere in err's chain, or ""
// for other errors.
func KindOf(err error) ErrorKind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
