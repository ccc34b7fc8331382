package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/openserial/portbroker/internal/broker"
	"github.com/openserial/portbroker/internal/session"
	"github.com/openserial/portbroker/internal/transport"
)

// BrokerServer adapts a *broker.Facade onto the Server interface.
type BrokerServer struct {
	facade *broker.Facade
}

// NewBrokerServer returns a Server backed by facade.
func NewBrokerServer(facade *broker.Facade) *BrokerServer {
	return &BrokerServer{facade: facade}
}

func toOpenOptions(req *OpenRequest) session.OpenOptions {
	return session.OpenOptions{
		Tag:              req.Tag,
		InitialReadState: session.ReadState(req.InitialReadState),
		BaudRate:         req.BaudRate,
		DataBits:         req.DataBits,
		Parity:           transport.Parity(req.Parity),
		StopBits:         transport.StopBits(req.StopBits),
		FlowControl:      transport.FlowControl(req.FlowControl),
		Timeout:          time.Duration(req.TimeoutMs) * time.Millisecond,
	}
}

func (s *BrokerServer) Open(ctx context.Context, req *OpenRequest) (*OpenResponse, error) {
	if err := s.facade.Open(ctx, req.Name, toOpenOptions(req)); err != nil {
		return nil, err
	}
	return &OpenResponse{}, nil
}

func (s *BrokerServer) Close(_ context.Context, req *CloseRequest) (*CloseResponse, error) {
	if err := s.facade.Close(req.Name); err != nil {
		return nil, err
	}
	return &CloseResponse{}, nil
}

func (s *BrokerServer) Write(_ context.Context, req *WriteRequest) (*WriteResponse, error) {
	err := s.facade.WriteOne(req.Name, session.OutgoingPacket{Payload: req.Payload, Origin: session.Direct})
	if err != nil {
		return nil, err
	}
	return &WriteResponse{}, nil
}

func (s *BrokerServer) Broadcast(_ context.Context, req *BroadcastRequest) (*BroadcastResponse, error) {
	n := s.facade.WriteAll(req.Payload)
	return &BroadcastResponse{Recipients: n}, nil
}

func (s *BrokerServer) Subscribe(_ context.Context, req *SubscribeRequest) (*SubscribeResponse, error) {
	s.facade.SubscribeEdge(req.From, req.To)
	return &SubscribeResponse{}, nil
}

func (s *BrokerServer) Unsubscribe(_ context.Context, req *UnsubscribeRequest) (*UnsubscribeResponse, error) {
	s.facade.UnsubscribeEdge(req.From, req.To)
	return &UnsubscribeResponse{}, nil
}

func (s *BrokerServer) Toggle(_ context.Context, req *ToggleRequest) (*ToggleResponse, error) {
	st, err := s.facade.ToggleRead(req.Name)
	if err != nil {
		return nil, err
	}
	return &ToggleResponse{ReadState: int(st)}, nil
}

func (s *BrokerServer) Status(ctx context.Context, _ *StatusRequest) (*StatusResponse, error) {
	managed, err := s.facade.ListManaged(ctx)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{Ports: toManagedPortWire(managed)}, nil
}

func (s *BrokerServer) Scan(context.Context, *ScanRequest) (*ScanResponse, error) {
	names, err := s.facade.Scan()
	if err != nil {
		return nil, err
	}
	return &ScanResponse{Names: names}, nil
}

func (s *BrokerServer) Events(_ *EventsRequest, stream EventsServer) error {
	id, ch := s.facade.Subscribe()
	defer s.facade.Unsubscribe(id)

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(toEventWire(ev)); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

func toManagedPortWire(managed []session.ManagedPort) []ManagedPortWire {
	out := make([]ManagedPortWire, 0, len(managed))
	for _, m := range managed {
		w := ManagedPortWire{
			Name:          m.Name,
			Open:          m.Status.Open,
			SessionID:     m.SessionID,
			ReadState:     int(m.Status.ReadState),
			Subscriptions: m.Subscriptions,
			SubscribedTo:  m.SubscribedTo,
			BytesSent:     m.Statistics.BytesSent,
			BytesReceived: m.Statistics.BytesReceived,
			Errors:        m.Statistics.Errors,
		}
		if m.LastUsedOptions != nil {
			w.LastUsedTag = m.LastUsedOptions.Tag
		}
		out = append(out, w)
	}
	return out
}

func toEventWire(ev broker.Event) *EventWire {
	switch ev.Kind {
	case broker.EventPortsChanged:
		return &EventWire{Kind: "ports_changed", Ports: &StatusResponse{Ports: toManagedPortWire(ev.Snapshot)}}
	case broker.EventPacket:
		return &EventWire{Kind: "packet", Packet: toPacketWire(ev)}
	case broker.EventError:
		return &EventWire{Kind: "error", Message: ev.Message}
	default:
		return &EventWire{Kind: "error", Message: "unknown event kind"}
	}
}

func toPacketWire(ev broker.Event) *PacketWire {
	if ev.PacketErr != nil {
		kind := "incoming_io"
		switch ev.PacketErr.Kind {
		case session.ErrIncomingCodec:
			kind = "incoming_codec"
		case session.ErrOutgoingIO:
			kind = "outgoing_io"
		}
		return &PacketWire{
			Port:      ev.PacketErr.Port,
			Error:     errors.Unwrap(ev.PacketErr).Error(),
			ErrorKind: kind,
		}
	}

	p := ev.Packet
	w := &PacketWire{
		Port:        p.Port,
		TimestampMs: p.TimestampMs,
		Incoming:    p.Direction.Incoming,
		Outgoing:    p.Direction.Outgoing,
		Line:        p.Direction.Line,
		Payload:     p.Direction.Payload,
	}
	if p.Direction.Outgoing {
		switch p.Direction.Origin.Kind {
		case session.OriginDirect:
			w.Origin = "direct"
		case session.OriginBroadcast:
			w.Origin = "broadcast"
		case session.OriginSubscription:
			w.Origin = "subscription"
			w.OriginFrom = p.Direction.Origin.From
		}
	}
	return w
}
