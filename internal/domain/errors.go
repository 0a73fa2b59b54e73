package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain operations
var (
	// ErrVideoNotFound indicates the requested video does not exist
	ErrVideoNotFound = errors.New("video not found")

	// ErrServerOffline indicates the backend is unreachable
	ErrServerOffline = errors.New("tag-flow server is unreachable")

	// ErrNotConnected indicates a realtime action was attempted without a live socket
	ErrNotConnected = errors.New("realtime connection is not established")

	// ErrBulkPartial indicates some items of a bulk mutation failed
	ErrBulkPartial = errors.New("bulk operation partially failed")
)

// ErrorKind classifies fetch failures so the UI can pick a retry affordance
type ErrorKind string

const (
	KindNetwork ErrorKind = "network" // Transport failure or timeout
	KindServer  ErrorKind = "server"  // Non-2xx response
	KindParse   ErrorKind = "parse"   // Malformed JSON or unexpected shape
	KindStale   ErrorKind = "stale"   // Response superseded by a newer request; not user-visible
)

// FetchError is the typed failure returned by the API client and pagination store
type FetchError struct {
	Kind   ErrorKind
	Status int    // HTTP status for KindServer
	Body   string // Response body for KindServer
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindServer:
		if e.Body != "" {
			return fmt.Sprintf("server error %d: %s", e.Status, e.Body)
		}
		return fmt.Sprintf("server error %d", e.Status)
	case KindStale:
		return "stale response discarded"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return string(e.Kind) + " error"
}

func (e *FetchError) Unwrap() error { return e.Err }

// NetworkError wraps a transport failure
func NetworkError(err error) *FetchError { return &FetchError{Kind: KindNetwork, Err: err} }

// ServerError describes a non-2xx response
func ServerError(status int, body string) *FetchError {
	return &FetchError{Kind: KindServer, Status: status, Body: body}
}

// ParseError wraps a decoding failure
func ParseError(err error) *FetchError { return &FetchError{Kind: KindParse, Err: err} }

// StaleError marks a response that arrived after its request was superseded
func StaleError() *FetchError { return &FetchError{Kind: KindStale} }

// KindOf returns the FetchError kind of err, or "" when err is not a FetchError
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsStale reports whether err is a discarded stale response
func IsStale(err error) bool { return KindOf(err) == KindStale }

// AsFetchError converts any error into a FetchError, treating unknown errors as network failures
func AsFetchError(err error) *FetchError {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return NetworkError(err)
}
