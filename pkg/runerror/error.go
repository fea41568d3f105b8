package runerror

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindNetwork covers transport failures: timeouts, refused or
	// dropped connections. Retried by the next scheduled run.
	KindNetwork Kind = "network"
	// KindUpstream covers responses the API answered but that can not
	// be trusted: non-2xx status, malformed body, success=false.
	KindUpstream Kind = "upstream"
	// KindDecode covers a single undecodable item payload. Local to
	// one auction, never fatal to a run.
	KindDecode Kind = "decode"
	// KindStorage covers persistence failures. Fatal to the run after
	// a full rollback.
	KindStorage Kind = "storage"
	// KindConflict covers a run blocked by another holder of the run
	// lease.
	KindConflict Kind = "conflict"
	// KindConfig covers missing or invalid configuration.
	KindConfig Kind = "config"
)

// Error is a classified pipeline error.
type Error struct {
	Kind    Kind
	Message string
	// StatusCode carries the HTTP status for upstream errors, 0 otherwise.
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Network creates a transport-level error.
func Network(message string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Err: err}
}

// Upstream creates an upstream-response error.
func Upstream(message string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Err: err}
}

// UpstreamStatus creates an upstream error carrying an HTTP status.
func UpstreamStatus(statusCode int, message string) *Error {
	return &Error{Kind: KindUpstream, Message: message, StatusCode: statusCode}
}

// Decode creates a per-payload decode error.
func Decode(message string, err error) *Error {
	return &Error{Kind: KindDecode, Message: message, Err: err}
}

// Storage creates a persistence error.
func Storage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

// Conflict creates a lease-conflict error.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Config creates a configuration error.
func Config(message string) *Error {
	return &Error{Kind: KindConfig, Message: message}
}

// KindOf returns the kind of the first classified error in err's
// chain, or "" when none is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err's chain contains a classified error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
