package session

import "errors"

// Client-visible predicate violations and queue/transport failure kinds,
// per the taxonomy in spec.md §7.
var (
	ErrNotFound       = errors.New("session: port not found")
	ErrAlreadyOpen    = errors.New("session: port already open")
	ErrNotOpen        = errors.New("session: port not open")
	ErrQueueClosed    = errors.New("session: write queue closed")
	ErrListFailed     = errors.New("session: failed to list ports")
)
