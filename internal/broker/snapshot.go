package broker

import "github.com/openserial/portbroker/internal/session"

// ManagedPortsSnapshot is the aggregated topology/status view re-published
// whenever HPW fires or the session core's state changes, per spec.md §4.7.
type ManagedPortsSnapshot []session.ManagedPort

// EventKind classifies an Event delivered to a Facade subscriber.
type EventKind int

const (
	EventPortsChanged EventKind = iota
	EventPacket
	EventError
)

// Event is the union type flowing out of a Facade's per-subscriber sink:
// ports_changed, packet, and error from spec.md §6.
type Event struct {
	Kind EventKind

	Snapshot  ManagedPortsSnapshot  // valid when Kind == EventPortsChanged
	Packet    session.Packet        // valid when Kind == EventPacket and PacketErr == nil
	PacketErr *session.PacketError  // valid when Kind == EventPacket and an error occurred
	Message   string                // valid when Kind == EventError
}
