package transport

import (
	"github.com/cockroachdb/errors"
)

var errInvalidMessage = errors.New("message does not match any JSON-RPC shape")

// IsInvalidMessage reports whether err came from parsing a frame that does
// not match any JSON-RPC shape.
func IsInvalidMessage(err error) bool {
	return errors.Is(err, errInvalidMessage)
}
