package sources

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an outbound source call failed, so callers can
// tell "station not found" from "service down" from "malformed response".
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindDecode         ErrorKind = "decode"
	KindBadStatus      ErrorKind = "bad_status"
	KindPrecondition   ErrorKind = "precondition_failed"
	KindRateLimited    ErrorKind = "rate_limited"
	KindCircuitOpen    ErrorKind = "circuit_open"
	KindNoStation      ErrorKind = "no_station"
	KindIncompleteData ErrorKind = "incomplete_data"
	KindNotFound       ErrorKind = "not_found"
)

// SourceError tags a failure with the upstream source name and an ErrorKind.
type SourceError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

func sourceErr(source string, kind ErrorKind, err error) *SourceError {
	return &SourceError{Source: source, Kind: kind, Err: err}
}

// IsKind reports whether err carries the given source error kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Kind == kind
}
