package registry

import "errors"

var (
	// ErrNotFound indicates no registry entry exists for the port.
	ErrNotFound = errors.New("registry: entry not found")
)
