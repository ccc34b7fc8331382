// Package store implements the persistence gateway: the durable session
// and packet journal behind the session core, per spec.md §4.6.
package store

import (
	"context"

	"github.com/openserial/portbroker/internal/session"
)

// Store is the persistence gateway's contract. EnsurePortID is an
// idempotent upsert by unique name; UpsertOpenOptions updates the row for
// (port_id, tag) if one exists, else inserts (Open Question (a) resolved:
// last-used options are keyed by the pair, not by name alone);
// AppendPacket is insert-only.
type Store interface {
	EnsurePortID(ctx context.Context, name string) (int64, error)
	UpsertOpenOptions(ctx context.Context, portID int64, tag string, opts session.OpenOptions) (int64, error)
	AppendPacket(ctx context.Context, portID int64, tag string, pkt session.Packet) (int64, error)
	LastUsedOptions(ctx context.Context, name, tag string) (session.OpenOptions, bool, error)
	// LastUsedOptionsForPort returns the most recently upserted options row
	// for name across every tag, for callers (the app façade's snapshot)
	// that need "whatever this port was last configured with" without
	// knowing which tag opened it last.
	LastUsedOptionsForPort(ctx context.Context, name string) (session.OpenOptions, bool, error)
	Close() error
}
