// Package session implements the session core: the state machine that
// tracks open serial ports, their read/write tasks, and the subscription
// graph between them (spec.md §4.4).
package session

import (
	"time"

	"github.com/openserial/portbroker/internal/transport"
)

// ReadState is the per-session read gate.
type ReadState int

const (
	Read ReadState = iota
	Stop
)

// Toggle returns the opposite ReadState. It is its own inverse.
func (r ReadState) Toggle() ReadState {
	if r == Read {
		return Stop
	}
	return Read
}

// OpenOptions configures a session, per spec.md §3.
type OpenOptions struct {
	Tag              string
	InitialReadState ReadState
	BaudRate         int
	DataBits         int
	FlowControl      transport.FlowControl
	Parity           transport.Parity
	StopBits         transport.StopBits
	Timeout          time.Duration
}

// toTransportOptions projects the wire-relevant fields onto transport.Options.
func (o OpenOptions) toTransportOptions() transport.Options {
	return transport.Options{
		BaudRate:    o.BaudRate,
		DataBits:    o.DataBits,
		Parity:      o.Parity,
		StopBits:    o.StopBits,
		FlowControl: o.FlowControl,
		Timeout:     o.Timeout,
	}
}

// PacketOrigin classifies an outgoing packet's cause.
type PacketOrigin struct {
	Kind PacketOriginKind
	From string // populated when Kind == OriginSubscription
}

type PacketOriginKind int

const (
	OriginDirect PacketOriginKind = iota
	OriginBroadcast
	OriginSubscription
)

// Direct is the zero-value, always-available Direct origin.
var Direct = PacketOrigin{Kind: OriginDirect}

// Broadcast is the always-available Broadcast origin.
var Broadcast = PacketOrigin{Kind: OriginBroadcast}

// FromSubscription builds the origin for bytes forwarded from a subscription.
func FromSubscription(from string) PacketOrigin {
	return PacketOrigin{Kind: OriginSubscription, From: from}
}

// Direction tags a Packet as incoming (decoded line) or outgoing (bytes
// accepted by the transport writer).
type Direction struct {
	Incoming bool
	Outgoing bool

	Line    []byte       // valid when Incoming
	Payload []byte       // valid when Outgoing
	Origin  PacketOrigin // valid when Outgoing
}

// IncomingDirection builds a Direction for a decoded line.
func IncomingDirection(line []byte) Direction {
	return Direction{Incoming: true, Line: line}
}

// OutgoingDirection builds a Direction for accepted outbound bytes.
func OutgoingDirection(payload []byte, origin PacketOrigin) Direction {
	return Direction{Outgoing: true, Payload: payload, Origin: origin}
}

// Packet is one observed event on a session's PacketStream.
type Packet struct {
	Direction   Direction
	Port        string
	TimestampMs int64
}

// OutgoingPacket is what callers enqueue via WriteOne, and what WriteAll and
// subscription forwarding enqueue on their behalf.
type OutgoingPacket struct {
	Payload []byte
	Origin  PacketOrigin
}

// Status is a port's open/closed state in a ManagedPort snapshot.
type Status struct {
	Open      bool
	ReadState ReadState // valid when Open
}

// ManagedPort is the external snapshot of one port's status and topology.
type ManagedPort struct {
	Name            string
	Status          Status
	SessionID       string   // valid when Status.Open; identifies this session's lifetime
	Subscriptions   []string // names this port forwards its reads into
	SubscribedTo    []string // names that forward their reads into this port
	LastUsedOptions *OpenOptions
	Statistics      Statistics
}

// Statistics tracks per-session byte/error counters, carried over from the
// teacher's PortStatistics (spec.md §7 supplemented feature).
type Statistics struct {
	BytesSent     uint64
	BytesReceived uint64
	Errors        uint64
	OpenedAt      time.Time
	LastActivity  time.Time
}

// Result is what flows over a session's PacketStream: either a Packet or a
// PacketError, never both.
type Result struct {
	Packet Packet
	Err    *PacketError
}

// PacketErrorKind classifies a PacketError.
type PacketErrorKind int

const (
	ErrIncomingCodec PacketErrorKind = iota
	ErrIncomingIO
	ErrOutgoingIO
)

// PacketError is a non-terminal-stream error surfaced on the PacketStream
// itself, per spec.md §4.4.5.
type PacketError struct {
	Kind PacketErrorKind
	Port string
	Err  error
}

func (e *PacketError) Error() string {
	return e.Err.Error()
}

func (e *PacketError) Unwrap() error {
	return e.Err
}
