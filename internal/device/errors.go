package device

import "errors"

// Domain-specific errors for the system catalog.
var (
	// ErrParameterNotFound is returned by Resolve when no parameter carries the name.
	ErrParameterNotFound = errors.New("device: parameter not found")

	// ErrNoSystems is returned when the account exposes no heating system.
	ErrNoSystems = errors.New("device: no systems available")
)
