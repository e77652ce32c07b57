package serial

import "errors"

var (
	// ErrRequestPending indicates a send_and_wait transaction is already
	// outstanding on the session.
	ErrRequestPending = errors.New("serial: request already pending")

	// ErrClosed indicates the session has been closed.
	ErrClosed = errors.New("serial: session closed")

	// ErrNoPort indicates no candidate port could be opened.
	ErrNoPort = errors.New("serial: no port available")
)
