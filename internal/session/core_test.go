package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openserial/portbroker/internal/transport"
)

func waitFor(t *testing.T, ch <-chan Result, pred func(Result) bool) Result {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case r, ok := <-ch:
			require.True(t, ok, "stream closed while waiting for expected result")
			if pred(r) {
				return r
			}
		case <-deadline:
			t.Fatal("timed out waiting for expected result")
		}
	}
	panic("unreachable")
}

func isOutgoing(r Result) bool { return r.Err == nil && r.Packet.Direction.Outgoing }
func isIncoming(r Result) bool { return r.Err == nil && r.Packet.Direction.Incoming }

// testOpts returns valid transport options (9600/8) with the given read
// state and tag, since transport.Options.Validate rejects the zero value.
func testOpts(state ReadState, tag string) OpenOptions {
	return OpenOptions{
		Tag:              tag,
		InitialReadState: state,
		BaudRate:         9600,
		DataBits:         8,
	}
}

func TestOpenRejectsDuplicate(t *testing.T) {
	core := New(transport.NewDummy(), 0)
	_, err := core.Open("A", testOpts(Read, ""))
	require.NoError(t, err)

	_, err = core.Open("A", testOpts(Read, ""))
	assert.ErrorIs(t, err, ErrAlreadyOpen)

	require.NoError(t, core.Close("A"))
}

func TestCloseRejectsUnopened(t *testing.T) {
	core := New(transport.NewDummy(), 0)
	assert.ErrorIs(t, core.Close("ghost"), ErrNotOpen)
}

func TestWriteOneRejectsUnopened(t *testing.T) {
	core := New(transport.NewDummy(), 0)
	err := core.WriteOne("ghost", OutgoingPacket{Payload: []byte("x")})
	assert.ErrorIs(t, err, ErrNotOpen)
}

// TestDirectWriteEchoesAndDecodes exercises scenario S2: a write on a
// loopback dummy port is visible both as the outgoing packet and, once it
// comes back around through the read side, as a decoded incoming line.
func TestDirectWriteEchoesAndDecodes(t *testing.T) {
	dm := transport.NewDummy()
	dm.SetLoopback("A")
	core := New(dm, 0)

	stream, err := core.Open("A", testOpts(Read, ""))
	require.NoError(t, err)

	require.NoError(t, core.WriteOne("A", OutgoingPacket{Payload: []byte("hello\n"), Origin: Direct}))

	out := waitFor(t, stream, isOutgoing)
	assert.Equal(t, []byte("hello\n"), out.Packet.Direction.Payload)
	assert.Equal(t, Direct, out.Packet.Direction.Origin)

	in := waitFor(t, stream, isIncoming)
	assert.Equal(t, "hello", string(in.Packet.Direction.Line))

	require.NoError(t, core.Close("A"))
}

// TestSubscriptionFanOut exercises scenario S4: bytes read on A, which is
// not itself a loopback, are re-enqueued on B's writer once B subscribes.
func TestSubscriptionFanOut(t *testing.T) {
	dm := transport.NewDummy()
	core := New(dm, 0)

	_, err := core.Open("A", testOpts(Read, ""))
	require.NoError(t, err)
	bStream, err := core.Open("B", testOpts(Read, ""))
	require.NoError(t, err)

	core.Subscribe("A", "B")

	require.True(t, dm.Inject("A", []byte("x\n")))

	out := waitFor(t, bStream, isOutgoing)
	assert.Equal(t, []byte("x\n"), out.Packet.Direction.Payload)
	assert.Equal(t, OriginSubscription, out.Packet.Direction.Origin.Kind)
	assert.Equal(t, "A", out.Packet.Direction.Origin.From)

	require.NoError(t, core.Close("A"))
	require.NoError(t, core.Close("B"))
}

// TestSelfSubscriptionForwardsOnce exercises scenario S6: a port subscribed
// to itself re-enqueues a chunk it read on its own writer exactly once,
// with no feedback loop (A is not a loopback port here).
func TestSelfSubscriptionForwardsOnce(t *testing.T) {
	dm := transport.NewDummy()
	core := New(dm, 0)

	stream, err := core.Open("A", testOpts(Read, ""))
	require.NoError(t, err)

	core.Subscribe("A", "A")
	require.True(t, dm.Inject("A", []byte("x\n")))

	// The outgoing packet comes from A's write task and the incoming line
	// from its read task, so the two can arrive in either order.
	isPacket := func(r Result) bool { return isOutgoing(r) || isIncoming(r) }
	out := waitFor(t, stream, isPacket)
	in := waitFor(t, stream, isPacket)
	if isIncoming(out) {
		out, in = in, out
	}
	assert.Equal(t, OriginSubscription, out.Packet.Direction.Origin.Kind)
	assert.Equal(t, "A", out.Packet.Direction.Origin.From)

	assert.Equal(t, "x", string(in.Packet.Direction.Line))

	// No further outgoing packet should follow: A isn't a loopback, so
	// its write task's Write sinks the payload instead of feeding it back
	// into A's own read side.
	select {
	case r := <-stream:
		t.Fatalf("unexpected extra result after single self-forward: %+v", r)
	case <-time.After(150 * time.Millisecond):
	}

	require.NoError(t, core.Close("A"))
}

func TestToggleReadPausesConsumption(t *testing.T) {
	dm := transport.NewDummy()
	core := New(dm, 0)

	// Opened already paused: the gate's initial state is set before the
	// read task is even spawned, so there is no window where the task's
	// first Read call is already in flight against a toggle still in
	// transit, unlike opening Read and toggling to Stop right after.
	stream, err := core.Open("A", testOpts(Stop, ""))
	require.NoError(t, err)

	require.True(t, dm.Inject("A", []byte("x\n")))

	select {
	case r := <-stream:
		t.Fatalf("unexpected result while paused: %+v", r)
	case <-time.After(150 * time.Millisecond):
	}

	ns, err := core.ToggleRead("A")
	require.NoError(t, err)
	assert.Equal(t, Read, ns)

	in := waitFor(t, stream, isIncoming)
	assert.Equal(t, "x", string(in.Packet.Direction.Line))

	require.NoError(t, core.Close("A"))
}

func TestToggleReadIsOwnInverse(t *testing.T) {
	assert.Equal(t, Stop, Read.Toggle())
	assert.Equal(t, Read, Stop.Toggle())
	assert.Equal(t, Read, Read.Toggle().Toggle())
}

func TestCloseEndsPacketStream(t *testing.T) {
	dm := transport.NewDummy()
	core := New(dm, 0)

	stream, err := core.Open("A", testOpts(Stop, ""))
	require.NoError(t, err)
	require.NoError(t, core.Close("A"))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("packet stream did not close after Close")
		}
	}
}

func TestWriteAllBroadcastsToEveryOpenPort(t *testing.T) {
	dm := transport.NewDummy()
	core := New(dm, 0)

	aStream, err := core.Open("A", testOpts(Read, ""))
	require.NoError(t, err)
	bStream, err := core.Open("B", testOpts(Read, ""))
	require.NoError(t, err)

	n := core.WriteAll([]byte("hi\n"))
	assert.Equal(t, 2, n)

	outA := waitFor(t, aStream, isOutgoing)
	assert.Equal(t, Broadcast, outA.Packet.Direction.Origin)
	outB := waitFor(t, bStream, isOutgoing)
	assert.Equal(t, Broadcast, outB.Packet.Direction.Origin)

	require.NoError(t, core.Close("A"))
	require.NoError(t, core.Close("B"))
}

func TestListManagedReportsTopology(t *testing.T) {
	dm := transport.NewDummy()
	core := New(dm, 0)

	_, err := core.Open("A", testOpts(Read, "t1"))
	require.NoError(t, err)
	_, err = core.Open("B", testOpts(Read, ""))
	require.NoError(t, err)

	core.Subscribe("A", "B")

	list, err := core.ListManaged()
	require.NoError(t, err)

	byName := make(map[string]ManagedPort, len(list))
	for _, m := range list {
		byName[m.Name] = m
	}

	require.Contains(t, byName, "A")
	require.Contains(t, byName, "B")
	assert.True(t, byName["A"].Status.Open)
	assert.ElementsMatch(t, []string{"B"}, byName["A"].Subscriptions)
	assert.ElementsMatch(t, []string{"A"}, byName["B"].SubscribedTo)
	require.NotNil(t, byName["A"].LastUsedOptions)
	assert.Equal(t, "t1", byName["A"].LastUsedOptions.Tag)
	assert.NotEmpty(t, byName["A"].SessionID)
	assert.NotEqual(t, byName["A"].SessionID, byName["B"].SessionID)

	require.NoError(t, core.Close("A"))
	require.NoError(t, core.Close("B"))
}

// TestOpenAssignsFreshSessionIDPerSession verifies that reopening a port
// after closing it produces a new session identity, since the old one no
// longer denotes a live session.
func TestOpenAssignsFreshSessionIDPerSession(t *testing.T) {
	dm := transport.NewDummy()
	core := New(dm, 0)

	_, err := core.Open("A", testOpts(Read, ""))
	require.NoError(t, err)
	list, err := core.ListManaged()
	require.NoError(t, err)
	first := managedByName(list, "A").SessionID
	require.NotEmpty(t, first)

	require.NoError(t, core.Close("A"))

	_, err = core.Open("A", testOpts(Read, ""))
	require.NoError(t, err)
	list, err = core.ListManaged()
	require.NoError(t, err)
	second := managedByName(list, "A").SessionID
	require.NotEmpty(t, second)

	assert.NotEqual(t, first, second)
	require.NoError(t, core.Close("A"))
}

func managedByName(list []ManagedPort, name string) ManagedPort {
	for _, m := range list {
		if m.Name == name {
			return m
		}
	}
	return ManagedPort{}
}

// TestOpenUnseededNameStillSucceeds exercises scenario S5: opening a name
// the watcher never announced still works against the dummy transport.
func TestOpenUnseededNameStillSucceeds(t *testing.T) {
	dm := transport.NewDummy()
	core := New(dm, 0)

	_, err := core.Open("never-seeded", testOpts(Stop, ""))
	require.NoError(t, err)
	require.NoError(t, core.Close("never-seeded"))
}

// TestListManagedReportsClosedSeededPort exercises scenario S1: a port STA
// still lists but that has been closed appears with Status.Open == false
// rather than vanishing from list_managed.
func TestListManagedReportsClosedSeededPort(t *testing.T) {
	dm := transport.NewDummy()
	dm.Seed("COM_A")
	core := New(dm, 0)

	_, err := core.Open("COM_A", testOpts(Read, "t"))
	require.NoError(t, err)
	require.NoError(t, core.Close("COM_A"))

	list, err := core.ListManaged()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "COM_A", list[0].Name)
	assert.False(t, list[0].Status.Open)
}

// TestListManagedSurfacesSubscriptionToUnlistedPort exercises scenario S5:
// subscribing to a name STA has never listed and that was never opened
// still surfaces that name in list_managed, since the edge is visible
// topology even before anything binds to it.
func TestListManagedSurfacesSubscriptionToUnlistedPort(t *testing.T) {
	dm := transport.NewDummy()
	core := New(dm, 0)

	_, err := core.Open("A", testOpts(Read, ""))
	require.NoError(t, err)
	core.Subscribe("A", "C")

	list, err := core.ListManaged()
	require.NoError(t, err)

	byName := make(map[string]ManagedPort, len(list))
	for _, m := range list {
		byName[m.Name] = m
	}
	require.Contains(t, byName, "C")
	assert.False(t, byName["C"].Status.Open)
	assert.ElementsMatch(t, []string{"A"}, byName["C"].SubscribedTo)

	require.NoError(t, core.Close("A"))
}
