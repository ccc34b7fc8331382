package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openserial/portbroker/internal/codec"
	"github.com/openserial/portbroker/internal/transport"
)

// Core is the session core: it owns every open port's read/write tasks and
// the subscription graph between them, per spec.md §4.4. It generalizes the
// teacher's Manager (sessions/sessionsByID maps under one sync.RWMutex) to a
// named from-to forwarding graph instead of a fixed fan-out-to-all-readers
// broadcast.
type Core struct {
	transport     transport.Transport
	maxLineLength int

	mu            sync.RWMutex
	openPorts     map[string]*handle
	subscriptions map[string]map[string]struct{} // from -> set of to
}

// New builds a Core over t. maxLineLength bounds each session's line codec;
// zero selects codec.DefaultMaxLineLength.
func New(t transport.Transport, maxLineLength int) *Core {
	return &Core{
		transport:     t,
		maxLineLength: maxLineLength,
		openPorts:     make(map[string]*handle),
		subscriptions: make(map[string]map[string]struct{}),
	}
}

// handle is the bookkeeping the Core keeps for one open port.
type handle struct {
	name      string
	sessionID string
	port      transport.Port
	opts      OpenOptions

	writeQ *unboundedQueue[OutgoingPacket]
	stream *unboundedQueue[Result]

	gate *readGate

	ctx    context.Context
	cancel context.CancelFunc

	closed    atomic.Bool
	closeOnce sync.Once

	tasks sync.WaitGroup

	statsMu sync.Mutex
	stats   Statistics
}

func (h *handle) emit(r Result) {
	if h.closed.Load() {
		return
	}
	h.stream.Send(r)
}

func (h *handle) addBytesReceived(n int) {
	h.statsMu.Lock()
	h.stats.BytesReceived += uint64(n)
	h.stats.LastActivity = time.Now()
	h.statsMu.Unlock()
}

func (h *handle) addBytesSent(n int) {
	h.statsMu.Lock()
	h.stats.BytesSent += uint64(n)
	h.stats.LastActivity = time.Now()
	h.statsMu.Unlock()
}

func (h *handle) addError() {
	h.statsMu.Lock()
	h.stats.Errors++
	h.statsMu.Unlock()
}

func (h *handle) snapshotStats() Statistics {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return h.stats
}

// Open starts a session for name under opts and returns its PacketStream.
// Per invariant I1, Open fails with ErrAlreadyOpen if name is already in
// OpenPorts.
func (c *Core) Open(name string, opts OpenOptions) (<-chan Result, error) {
	c.mu.Lock()
	if _, exists := c.openPorts[name]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, name)
	}
	// Reserve the slot before releasing the lock so a concurrent Open for
	// the same name observes it immediately, even though the transport
	// Open below may block.
	c.openPorts[name] = nil
	c.mu.Unlock()

	port, err := c.transport.Open(name, opts.toTransportOptions())
	if err != nil {
		c.mu.Lock()
		delete(c.openPorts, name)
		c.mu.Unlock()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		name:      name,
		sessionID: uuid.NewString(),
		port:      port,
		opts:      opts,
		writeQ:    newUnboundedQueue[OutgoingPacket](),
		stream:    newUnboundedQueue[Result](),
		gate:      newReadGate(opts.InitialReadState),
		ctx:       ctx,
		cancel:    cancel,
		stats:     Statistics{OpenedAt: time.Now()},
	}

	c.mu.Lock()
	c.openPorts[name] = h
	c.mu.Unlock()

	h.tasks.Add(2)
	go runReadTask(c, h, codec.New(c.maxLineLength))
	go runWriteTask(c, h)
	go func() {
		h.tasks.Wait()
		h.stream.Close()
	}()

	return h.stream.Out(), nil
}

// Close ends name's session: both tasks are signalled to stop and name is
// removed from OpenPorts. Per invariant I2, Close fails with ErrNotOpen if
// name is not open.
func (c *Core) Close(name string) error {
	c.mu.RLock()
	h, ok := c.openPorts[name]
	c.mu.RUnlock()
	if !ok || h == nil {
		return fmt.Errorf("%w: %s", ErrNotOpen, name)
	}
	c.terminate(h)
	return nil
}

// terminate removes h from OpenPorts (if it is still the current occupant
// of that name) and tears down its port and queues exactly once. Both the
// read task and the write task call this on their own terminal conditions,
// as well as Close, so it must be idempotent and safe to race.
func (c *Core) terminate(h *handle) {
	c.mu.Lock()
	if cur, ok := c.openPorts[h.name]; ok && cur == h {
		delete(c.openPorts, h.name)
	}
	c.mu.Unlock()

	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.cancel()
		h.writeQ.Close()
		h.port.Close()
	})
}

// WriteOne enqueues pkt on name's unbounded write queue. Per invariant I3,
// it fails with ErrNotOpen if name is not open. The send happens while
// c.mu's read lock is still held, matching WriteAll/forwardToSubscribers:
// terminate needs the write lock to delete name from OpenPorts before it
// closes the write queue, so holding the read lock across the send rules
// out a concurrent Close racing us into a send-on-closed-channel panic.
func (c *Core) WriteOne(name string, pkt OutgoingPacket) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.openPorts[name]
	if !ok || h == nil || h.closed.Load() {
		return fmt.Errorf("%w: %s", ErrNotOpen, name)
	}
	h.writeQ.Send(pkt)
	return nil
}

// WriteAll enqueues payload, tagged with the Broadcast origin, on every
// currently open port's write queue. It returns the number of recipients.
func (c *Core) WriteAll(payload []byte) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, h := range c.openPorts {
		if h == nil || h.closed.Load() {
			continue
		}
		h.writeQ.Send(OutgoingPacket{Payload: payload, Origin: Broadcast})
		n++
	}
	return n
}

// Subscribe adds the from->to forwarding edge: bytes read on from are
// re-enqueued on to's writer. Edges are tracked independent of whether
// either name is currently open; forwarding resolves against OpenPorts at
// delivery time (invariant I4).
func (c *Core) Subscribe(from, to string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscriptions[from] == nil {
		c.subscriptions[from] = make(map[string]struct{})
	}
	c.subscriptions[from][to] = struct{}{}
}

// Unsubscribe removes the from->to edge, if present.
func (c *Core) Unsubscribe(from, to string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if set, ok := c.subscriptions[from]; ok {
		delete(set, to)
		if len(set) == 0 {
			delete(c.subscriptions, from)
		}
	}
}

// ToggleRead flips name's read gate between Read and Stop and returns the
// new state (invariant I6). It fails with ErrNotOpen if name is not open.
func (c *Core) ToggleRead(name string) (ReadState, error) {
	c.mu.RLock()
	h, ok := c.openPorts[name]
	c.mu.RUnlock()
	if !ok || h == nil {
		return 0, fmt.Errorf("%w: %s", ErrNotOpen, name)
	}
	return h.gate.Toggle(), nil
}

// ListManaged composes the transport's live enumeration with the OpenPorts
// and Subscriptions snapshots, in STA order, per spec.md §4.4.1. A name STA
// reports but that is not open appears with Status.Open == false (scenario
// S1); a name referenced only by a subscription edge — never listed by STA,
// never opened — still appears so the edge is visible (scenario S5).
func (c *Core) ListManaged() ([]ManagedPort, error) {
	names, err := c.transport.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListFailed, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool, len(names))
	order := make([]string, 0, len(names))
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			order = append(order, n)
		}
	}
	for _, n := range names {
		add(n)
	}
	for n := range c.openPorts {
		add(n)
	}
	for from, tos := range c.subscriptions {
		add(from)
		for to := range tos {
			add(to)
		}
	}

	reverse := make(map[string][]string)
	for from, tos := range c.subscriptions {
		for to := range tos {
			reverse[to] = append(reverse[to], from)
		}
	}

	out := make([]ManagedPort, 0, len(order))
	for _, name := range order {
		var subs []string
		for to := range c.subscriptions[name] {
			subs = append(subs, to)
		}
		mp := ManagedPort{
			Name:          name,
			Subscriptions: subs,
			SubscribedTo:  reverse[name],
		}
		if h := c.openPorts[name]; h != nil {
			mp.Status = Status{Open: true, ReadState: h.gate.Get()}
			mp.SessionID = h.sessionID
			opts := h.opts
			mp.LastUsedOptions = &opts
			mp.Statistics = h.snapshotStats()
		}
		out = append(out, mp)
	}
	return out, nil
}

// forwardToSubscribers delivers a chunk read from `from` onto every port
// currently subscribed to it, tagging each with the subscription origin.
// A send that would hit a closed recipient is silently skipped, per the
// per-peer best-effort fan-out in spec.md §4.4.2.
func (c *Core) forwardToSubscribers(from string, payload []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for to := range c.subscriptions[from] {
		target, ok := c.openPorts[to]
		if !ok || target == nil || target.closed.Load() {
			continue
		}
		target.writeQ.Send(OutgoingPacket{Payload: payload, Origin: FromSubscription(from)})
	}
}
