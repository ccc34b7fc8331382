package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openserial/portbroker/internal/session"
	"github.com/openserial/portbroker/internal/transport"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portbroker.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsurePortIDIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.EnsurePortID(ctx, "COM3")
	require.NoError(t, err)
	id2, err := s.EnsurePortID(ctx, "COM3")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestUpsertOpenOptionsUpdatesExistingRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	portID, err := s.EnsurePortID(ctx, "COM3")
	require.NoError(t, err)

	opts := session.OpenOptions{
		Tag:              "default",
		InitialReadState: session.Read,
		BaudRate:         9600,
		DataBits:         8,
		FlowControl:      transport.FlowControlNone,
		Parity:           transport.ParityNone,
		StopBits:         transport.StopBits1,
		Timeout:          200 * time.Millisecond,
	}
	id1, err := s.UpsertOpenOptions(ctx, portID, opts.Tag, opts)
	require.NoError(t, err)

	opts.BaudRate = 115200
	id2, err := s.UpsertOpenOptions(ctx, portID, opts.Tag, opts)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, ok, err := s.LastUsedOptions(ctx, "COM3", "default")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 115200, got.BaudRate)
	assert.Equal(t, 8, got.DataBits)
	assert.Equal(t, 200*time.Millisecond, got.Timeout)
}

func TestLastUsedOptionsMissingReturnsFalse(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.LastUsedOptions(context.Background(), "ghost", "default")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLastUsedOptionsForPortPicksMostRecentRowAcrossTags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	portID, err := s.EnsurePortID(ctx, "COM3")
	require.NoError(t, err)

	first := session.OpenOptions{Tag: "console", BaudRate: 9600, DataBits: 8}
	_, err = s.UpsertOpenOptions(ctx, portID, first.Tag, first)
	require.NoError(t, err)

	second := session.OpenOptions{Tag: "flash", BaudRate: 115200, DataBits: 8}
	_, err = s.UpsertOpenOptions(ctx, portID, second.Tag, second)
	require.NoError(t, err)

	got, ok, err := s.LastUsedOptionsForPort(ctx, "COM3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "flash", got.Tag)
	assert.Equal(t, 115200, got.BaudRate)
}

func TestLastUsedOptionsForPortMissingReturnsFalse(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.LastUsedOptionsForPort(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestAppendPacketRoundTrips exercises property P7: every field needed to
// reconstruct a packet's direction, origin, port id, tag and bytes survives
// the round trip through the journal.
func TestAppendPacketRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	portID, err := s.EnsurePortID(ctx, "COM3")
	require.NoError(t, err)

	pkt := session.Packet{
		Direction:   session.OutgoingDirection([]byte("hi\n"), session.FromSubscription("COM4")),
		Port:        "COM3",
		TimestampMs: 42,
	}
	_, err = s.AppendPacket(ctx, portID, "default", pkt)
	require.NoError(t, err)

	var (
		incoming, outgoing                       int
		direct, broadcast                        bool
		subscriptionFrom                         string
		data                                     []byte
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT incoming, outgoing, COALESCE(outgoing_direct,0), COALESCE(outgoing_broadcast,0), COALESCE(outgoing_subscription,''), data
		 FROM packet WHERE port_id = ? AND tag = ?`, portID, "default")
	require.NoError(t, row.Scan(&incoming, &outgoing, &direct, &broadcast, &subscriptionFrom, &data))

	assert.Equal(t, 0, incoming)
	assert.Equal(t, 1, outgoing)
	assert.False(t, direct)
	assert.False(t, broadcast)
	assert.Equal(t, "COM4", subscriptionFrom)
	assert.Equal(t, []byte("hi\n"), data)
}
