// Package broker implements the app façade: the thin coordinator combining
// the session core, the persistence gateway, and the hot-plug watcher
// behind one caller-facing event sink, per spec.md §4.7. It generalizes the
// teacher's grpc_server.go composing role without carrying over its
// protobuf-shaped request/response types.
package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/openserial/portbroker/internal/session"
	"github.com/openserial/portbroker/internal/store"
	"github.com/openserial/portbroker/internal/transport"
	"github.com/openserial/portbroker/internal/watch"
)

// sinkBuffer bounds how many undelivered events a slow subscriber tolerates
// before new ones are dropped for it; the facade itself never blocks on a
// subscriber.
const sinkBuffer = 64

// Facade composes a session Core, a persistence Store and a hot-plug
// Watcher, and publishes ManagedPortsSnapshot/Packet/error events to any
// number of subscribers.
type Facade struct {
	core      *session.Core
	store     store.Store
	watcher   watch.Watcher
	transport transport.Transport
	log       *log.Logger

	mu       sync.Mutex
	sinks    map[int]chan Event
	nextSink int
}

// New wires together a Facade. Passing store.Noop{} disables persistence
// entirely (Open Question (b)); passing watch.NewNoop() disables hot-plug
// notification.
func New(t transport.Transport, core *session.Core, st store.Store, w watch.Watcher, logger *log.Logger) *Facade {
	if logger == nil {
		logger = log.Default()
	}
	return &Facade{
		core:      core,
		store:     st,
		watcher:   w,
		transport: t,
		log:       logger,
		sinks:     make(map[int]chan Event),
	}
}

// Run consumes hot-plug events until the watcher closes its Events channel.
// It must be started exactly once, typically from the serve command.
func (f *Facade) Run() {
	for range f.watcher.Events() {
		f.broadcastSnapshot()
	}
}

// Subscribe registers a new event sink and returns its id and channel.
func (f *Facade) Subscribe() (int, <-chan Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSink
	f.nextSink++
	ch := make(chan Event, sinkBuffer)
	f.sinks[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a previously registered sink.
func (f *Facade) Unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.sinks[id]; ok {
		delete(f.sinks, id)
		close(ch)
	}
}

func (f *Facade) broadcast(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.sinks {
		select {
		case ch <- ev:
		default:
			f.log.Warn("broker: dropping event for slow subscriber")
		}
	}
}

func (f *Facade) broadcastError(msg string) {
	f.log.Error(msg)
	f.broadcast(Event{Kind: EventError, Message: msg})
}

func (f *Facade) broadcastSnapshot() {
	snap, err := f.ListManaged(context.Background())
	if err != nil {
		f.broadcastError(fmt.Sprintf("list managed ports: %v", err))
		return
	}
	f.broadcast(Event{Kind: EventPortsChanged, Snapshot: snap})
}

// Scan lists the ports currently present on the transport, wrapping a
// failure in ErrListFailed.
func (f *Facade) Scan() ([]string, error) {
	names, err := f.transport.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrListFailed, err)
	}
	return names, nil
}

// Open records name's options in the persistence gateway, opens the
// session, and starts a consumer that mirrors every emitted packet into the
// gateway under tag, per the sequencing in spec.md §4.7.
func (f *Facade) Open(ctx context.Context, name string, opts session.OpenOptions) error {
	portID, err := f.store.EnsurePortID(ctx, name)
	if err != nil {
		return fmt.Errorf("broker: ensure port id for %s: %w", name, err)
	}
	if _, err := f.store.UpsertOpenOptions(ctx, portID, opts.Tag, opts); err != nil {
		return fmt.Errorf("broker: upsert open options for %s: %w", name, err)
	}

	stream, err := f.core.Open(name, opts)
	if err != nil {
		return err
	}

	go f.forwardPackets(name, opts.Tag, portID, stream)
	f.broadcastSnapshot()
	return nil
}

func (f *Facade) forwardPackets(name, tag string, portID int64, stream <-chan session.Result) {
	ctx := context.Background()
	for r := range stream {
		if r.Err != nil {
			f.broadcast(Event{Kind: EventPacket, PacketErr: r.Err})
			// A codec error is non-fatal and does not change the port
			// topology, so it alone does not warrant a fresh snapshot.
			if r.Err.Kind != session.ErrIncomingCodec {
				f.broadcastSnapshot()
			}
			continue
		}

		if _, err := f.store.AppendPacket(ctx, portID, tag, r.Packet); err != nil {
			f.broadcastError(fmt.Sprintf("append packet for %s: %v", name, err))
		}
		f.broadcast(Event{Kind: EventPacket, Packet: r.Packet})
	}
	// The stream closes once both tasks end, i.e. the session is gone.
	f.broadcastSnapshot()
}

// Close ends name's session.
func (f *Facade) Close(name string) error {
	err := f.core.Close(name)
	if err != nil {
		return err
	}
	f.broadcastSnapshot()
	return nil
}

// WriteOne enqueues pkt on name's writer.
func (f *Facade) WriteOne(name string, pkt session.OutgoingPacket) error {
	return f.core.WriteOne(name, pkt)
}

// WriteAll enqueues payload, tagged Broadcast, on every open port's writer.
func (f *Facade) WriteAll(payload []byte) int {
	return f.core.WriteAll(payload)
}

// SubscribeEdge adds a from->to forwarding edge and refreshes the snapshot.
func (f *Facade) SubscribeEdge(from, to string) {
	f.core.Subscribe(from, to)
	f.broadcastSnapshot()
}

// UnsubscribeEdge removes a from->to forwarding edge and refreshes the snapshot.
func (f *Facade) UnsubscribeEdge(from, to string) {
	f.core.Unsubscribe(from, to)
	f.broadcastSnapshot()
}

// ToggleRead flips name's read gate and refreshes the snapshot.
func (f *Facade) ToggleRead(name string) (session.ReadState, error) {
	st, err := f.core.ToggleRead(name)
	if err != nil {
		return 0, err
	}
	f.broadcastSnapshot()
	return st, nil
}

// ListManaged snapshots every managed port's status and topology (open,
// listed by the transport, or named by a subscription edge), folding in
// each closed-but-listed port's remembered options from the persistence
// gateway (spec.md §4.7: "Snapshots fold in the last-used options from
// PG"). A port that is currently open already carries its live options
// from the session core and is left alone; a lookup failure for one port
// is logged and skipped rather than failing the whole snapshot.
func (f *Facade) ListManaged(ctx context.Context) (ManagedPortsSnapshot, error) {
	managed, err := f.core.ListManaged()
	if err != nil {
		return nil, err
	}
	for i := range managed {
		if managed[i].LastUsedOptions != nil {
			continue
		}
		opts, ok, lookupErr := f.store.LastUsedOptionsForPort(ctx, managed[i].Name)
		if lookupErr != nil {
			f.log.Warn("broker: last used options lookup failed", "port", managed[i].Name, "err", lookupErr)
			continue
		}
		if ok {
			managed[i].LastUsedOptions = &opts
		}
	}
	return ManagedPortsSnapshot(managed), nil
}

// Shutdown shuts the façade's collaborators down: the watcher and the store.
// It does not touch any still-open session; callers should Close each by
// name first if a clean shutdown of live ports is desired.
func (f *Facade) Shutdown() error {
	if err := f.watcher.Close(); err != nil {
		return err
	}
	return f.store.Close()
}
