package store

import (
	"context"

	"github.com/openserial/portbroker/internal/session"
)

// Noop discards everything. It backs the Open Question (b) resolution:
// persistence sits behind the Store interface, and a deployment that wants
// it off entirely passes this in instead of SQLite.
type Noop struct{}

func (Noop) EnsurePortID(context.Context, string) (int64, error) { return 0, nil }

func (Noop) UpsertOpenOptions(context.Context, int64, string, session.OpenOptions) (int64, error) {
	return 0, nil
}

func (Noop) AppendPacket(context.Context, int64, string, session.Packet) (int64, error) {
	return 0, nil
}

func (Noop) LastUsedOptions(context.Context, string, string) (session.OpenOptions, bool, error) {
	return session.OpenOptions{}, false, nil
}

func (Noop) LastUsedOptionsForPort(context.Context, string) (session.OpenOptions, bool, error) {
	return session.OpenOptions{}, false, nil
}

func (Noop) Close() error { return nil }
