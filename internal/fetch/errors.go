package fetch

import "fmt"

// TransportError is returned when the request never produced a response
// (DNS, connection reset, timeout).
type TransportError struct {
	Source string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request %s: %v", e.Source, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is returned for any non-200 response.
type StatusError struct {
	Source     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s returned status %d", e.Source, e.URL, e.StatusCode)
}

// ParseError is returned when a payload cannot be decoded or lacks a
// required field.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
