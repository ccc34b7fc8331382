package transport

import "errors"

// Sentinel errors classifying why Open failed, mirroring the taxonomy in
// spec.md §4.1.
var (
	// ErrNotPresent is returned when name is not among ListPorts.
	ErrNotPresent = errors.New("transport: port not present")
	// ErrAccessDenied is returned when the host OS refuses to open the
	// device (permissions, another exclusive owner at the OS level).
	ErrAccessDenied = errors.New("transport: access denied")
	// ErrInvalidOptions is returned when Options cannot be honored.
	ErrInvalidOptions = errors.New("transport: invalid options")
	// ErrBus wraps a lower-level driver failure not covered above.
	ErrBus = errors.New("transport: bus error")
)
