package chain

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by calls on a closed Connection.
var ErrClosed = errors.New("chain connection closed")

// ConnectionError reports that the transport to the node is unusable.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("chain connection %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
