package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a thin wrapper over a *grpc.ClientConn invoking each PortBroker
// RPC with the json content-subtype, so the server resolves jsonCodec
// without any codec negotiation beyond the gRPC header.
type Client struct {
	cc *grpc.ClientConn
}

// NewClient wraps an already-dialed connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	return c.cc.Invoke(ctx, ServiceName+"/"+method, req, resp, grpc.CallContentSubtype(codecName))
}

func (c *Client) Open(ctx context.Context, req *OpenRequest) (*OpenResponse, error) {
	resp := new(OpenResponse)
	if err := c.invoke(ctx, "Open", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Close(ctx context.Context, req *CloseRequest) (*CloseResponse, error) {
	resp := new(CloseResponse)
	if err := c.invoke(ctx, "Close", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Write(ctx context.Context, req *WriteRequest) (*WriteResponse, error) {
	resp := new(WriteResponse)
	if err := c.invoke(ctx, "Write", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Broadcast(ctx context.Context, req *BroadcastRequest) (*BroadcastResponse, error) {
	resp := new(BroadcastResponse)
	if err := c.invoke(ctx, "Broadcast", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Subscribe(ctx context.Context, req *SubscribeRequest) (*SubscribeResponse, error) {
	resp := new(SubscribeResponse)
	if err := c.invoke(ctx, "Subscribe", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Unsubscribe(ctx context.Context, req *UnsubscribeRequest) (*UnsubscribeResponse, error) {
	resp := new(UnsubscribeResponse)
	if err := c.invoke(ctx, "Unsubscribe", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Toggle(ctx context.Context, req *ToggleRequest) (*ToggleResponse, error) {
	resp := new(ToggleResponse)
	if err := c.invoke(ctx, "Toggle", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	resp := new(StatusResponse)
	if err := c.invoke(ctx, "Status", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Scan(ctx context.Context, req *ScanRequest) (*ScanResponse, error) {
	resp := new(ScanResponse)
	if err := c.invoke(ctx, "Scan", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// EventsClient is the client-side handle of the server-streaming Events RPC,
// returned by Events.
type EventsClient interface {
	Recv() (*EventWire, error)
	grpc.ClientStream
}

type eventsClient struct{ grpc.ClientStream }

func (c *eventsClient) Recv() (*EventWire, error) {
	ev := new(EventWire)
	if err := c.ClientStream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Events opens the server-streaming Events RPC.
func (c *Client) Events(ctx context.Context, req *EventsRequest) (EventsClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], ServiceName+"/Events", grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	cs := &eventsClient{stream}
	if err := cs.SendMsg(req); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return cs, nil
}
