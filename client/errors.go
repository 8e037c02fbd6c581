package client

import (
	"errors"
	"fmt"
)

// TransportError reports a failed call to the video platform: network failure,
// timeout, exhausted quota, rejected credential or malformed response. Callers
// treat every TransportError the same way: rotate to the next credential.
type TransportError struct {
	Op         string // "search", "details", "statistics"
	StatusCode int    // HTTP status when the platform answered, 0 otherwise
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("youtube %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("youtube %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DataError reports a response that arrived but lacked a value the caller needs.
type DataError struct {
	Op      string
	VideoID string
	Field   string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("youtube %s: video %s: missing %s", e.Op, e.VideoID, e.Field)
}

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsData reports whether err is, or wraps, a DataError.
func IsData(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}
