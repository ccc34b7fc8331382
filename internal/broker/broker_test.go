package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openserial/portbroker/internal/session"
	"github.com/openserial/portbroker/internal/store"
	"github.com/openserial/portbroker/internal/transport"
	"github.com/openserial/portbroker/internal/watch"
)

// fakeStore is a minimal in-memory store.Store double: it records the
// options last upserted per port name (collapsing tags, like
// LastUsedOptionsForPort does) without pulling in the real SQLite schema.
type fakeStore struct {
	mu      sync.Mutex
	nextID  int64
	portIDs map[string]int64
	options map[string]session.OpenOptions
}

func newFakeStore() *fakeStore {
	return &fakeStore{portIDs: make(map[string]int64), options: make(map[string]session.OpenOptions)}
}

func (s *fakeStore) EnsurePortID(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.portIDs[name]; ok {
		return id, nil
	}
	s.nextID++
	s.portIDs[name] = s.nextID
	return s.nextID, nil
}

func (s *fakeStore) UpsertOpenOptions(_ context.Context, portID int64, _ string, opts session.OpenOptions) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, id := range s.portIDs {
		if id == portID {
			s.options[name] = opts
		}
	}
	return portID, nil
}

func (s *fakeStore) AppendPacket(context.Context, int64, string, session.Packet) (int64, error) {
	return 0, nil
}

func (s *fakeStore) LastUsedOptions(_ context.Context, name, _ string) (session.OpenOptions, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opts, ok := s.options[name]
	return opts, ok, nil
}

func (s *fakeStore) LastUsedOptionsForPort(ctx context.Context, name string) (session.OpenOptions, bool, error) {
	return s.LastUsedOptions(ctx, name, "")
}

func (s *fakeStore) Close() error { return nil }

func waitForEvent(t *testing.T, ch <-chan Event, pred func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "sink closed while waiting for expected event")
			if pred(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for expected event")
		}
	}
	panic("unreachable")
}

func testOpenOptions(tag string) session.OpenOptions {
	return session.OpenOptions{
		Tag:              tag,
		InitialReadState: session.Read,
		BaudRate:         9600,
		DataBits:         8,
	}
}

func TestOpenPublishesSnapshotAndPacketEvents(t *testing.T) {
	dm := transport.NewDummy()
	dm.SetLoopback("A")
	core := session.New(dm, 0)
	f := New(dm, core, store.Noop{}, watch.NewNoop(), nil)

	_, ch := f.Subscribe()

	require.NoError(t, f.Open(context.Background(), "A", testOpenOptions("default")))

	snap := waitForEvent(t, ch, func(ev Event) bool { return ev.Kind == EventPortsChanged })
	require.Len(t, snap.Snapshot, 1)
	assert.Equal(t, "A", snap.Snapshot[0].Name)

	require.NoError(t, f.WriteOne("A", session.OutgoingPacket{Payload: []byte("hi\n"), Origin: session.Direct}))

	pkt := waitForEvent(t, ch, func(ev Event) bool {
		return ev.Kind == EventPacket && ev.PacketErr == nil && ev.Packet.Direction.Outgoing
	})
	assert.Equal(t, []byte("hi\n"), pkt.Packet.Direction.Payload)

	line := waitForEvent(t, ch, func(ev Event) bool {
		return ev.Kind == EventPacket && ev.PacketErr == nil && ev.Packet.Direction.Incoming
	})
	assert.Equal(t, "hi", string(line.Packet.Direction.Line))

	require.NoError(t, f.Close("A"))
	waitForEvent(t, ch, func(ev Event) bool {
		return ev.Kind == EventPortsChanged && len(ev.Snapshot) == 0
	})
}

func TestScanListsTransportPorts(t *testing.T) {
	dm := transport.NewDummy()
	dm.Seed("A")
	dm.Seed("B")
	core := session.New(dm, 0)
	f := New(dm, core, store.Noop{}, watch.NewNoop(), nil)

	names, err := f.Scan()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, names)
}

// TestListManagedFoldsInPersistedOptionsForClosedPort exercises spec.md
// §4.7's "snapshots fold in the last-used options from PG": once a port is
// closed, the session core no longer carries its OpenOptions, so
// ListManaged must recover them from the store rather than leaving
// LastUsedOptions nil (scenarios S1/S7).
func TestListManagedFoldsInPersistedOptionsForClosedPort(t *testing.T) {
	dm := transport.NewDummy()
	dm.Seed("A")
	core := session.New(dm, 0)
	st := newFakeStore()
	f := New(dm, core, st, watch.NewNoop(), nil)

	require.NoError(t, f.Open(context.Background(), "A", testOpenOptions("t1")))
	require.NoError(t, f.Close("A"))

	snap, err := f.ListManaged(context.Background())
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.False(t, snap[0].Status.Open)
	require.NotNil(t, snap[0].LastUsedOptions)
	assert.Equal(t, "t1", snap[0].LastUsedOptions.Tag)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	dm := transport.NewDummy()
	core := session.New(dm, 0)
	f := New(dm, core, store.Noop{}, watch.NewNoop(), nil)

	id, ch := f.Subscribe()
	f.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)
}
