package domain

import "fmt"

// RequestError reports an HTTP-level or body-parse failure on the
// explanation endpoint. It halts only the static half of the aggregate.
type RequestError struct {
	// StatusCode is the HTTP status, or 0 for transport/parse failures.
	StatusCode int
	Detail     string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("explanation request failed (status %d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("explanation request failed: %s", e.Detail)
}

func (e *RequestError) Unwrap() error { return e.Err }

// StreamTransportError reports a reasoning stream that dropped before a
// clean close. Steps accumulated before the drop remain valid.
type StreamTransportError struct {
	Err error
}

func (e *StreamTransportError) Error() string {
	return fmt.Sprintf("reasoning stream interrupted: %v", e.Err)
}

func (e *StreamTransportError) Unwrap() error { return e.Err }

// MalformedEventError reports a single unparseable stream line. It is
// diagnostic only: the stream continues and prior state is kept.
type MalformedEventError struct {
	Line string
	Err  error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed stream event %q: %v", e.Line, e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }
