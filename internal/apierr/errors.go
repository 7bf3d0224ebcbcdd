// Package apierr defines the error taxonomy shared by the gateway and its
// broker clients. Callers distinguish the categories with errors.Is/As.
package apierr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthenticated marks a missing, unknown or expired session token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotConnected marks an operation that needs a live market data feed.
	ErrNotConnected = errors.New("market data feed is not connected")
)

// ValidationError carries every violation collected by order validation.
// It is never partially applied: the order was rejected before any network
// call was made.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, "; ")
}

// BrokerError is a definitive rejection from the broker. The message is the
// broker's own, passed through verbatim.
type BrokerError struct {
	Message string
}

func (e *BrokerError) Error() string {
	return e.Message
}

// TransportError is a network or timeout failure talking to the broker. It
// carries no accept/reject verdict, which is why it is kept apart from
// BrokerError.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("broker transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
