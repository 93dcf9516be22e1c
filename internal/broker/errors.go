package broker

import (
	"errors"
	"fmt"
)

// Kind classifies a terminal broker failure. Kinds are the only error detail
// the front-end ever sees; everything else stays in logs.
type Kind string

const (
	KindInvalidOrigin    Kind = "InvalidOrigin"
	KindInvalidState     Kind = "InvalidState"
	KindReplayDetected   Kind = "ReplayDetected"
	KindUpstreamError    Kind = "UpstreamError"
	KindMalformedRequest Kind = "MalformedRequest"

	// KindNotConnected is returned by the refresh surface when no token set
	// exists for a realm
	KindNotConnected Kind = "NotConnected"

	// KindInternalError marks a local failure, such as state minting, where
	// no upstream was contacted
	KindInternalError Kind = "InternalError"
)

// Error is a terminal failure of one broker request. None of these are
// retried by the broker; the front-end's only remediation is a fresh
// authorization flow.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func failed(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

// KindOf extracts the failure kind from an error, defaulting to
// UpstreamError for anything untyped
func KindOf(err error) Kind {
	var brokerErr *Error
	if errors.As(err, &brokerErr) {
		return brokerErr.Kind
	}
	return KindUpstreamError
}
