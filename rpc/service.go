package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name this module exposes.
const ServiceName = "portbroker.v1.PortBroker"

// Server is the interface a PortBroker implementation must satisfy. It is
// the hand-written equivalent of what protoc-gen-go-grpc would generate
// from a .proto file describing the same RPCs.
type Server interface {
	Open(context.Context, *OpenRequest) (*OpenResponse, error)
	Close(context.Context, *CloseRequest) (*CloseResponse, error)
	Write(context.Context, *WriteRequest) (*WriteResponse, error)
	Broadcast(context.Context, *BroadcastRequest) (*BroadcastResponse, error)
	Subscribe(context.Context, *SubscribeRequest) (*SubscribeResponse, error)
	Unsubscribe(context.Context, *UnsubscribeRequest) (*UnsubscribeResponse, error)
	Toggle(context.Context, *ToggleRequest) (*ToggleResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Scan(context.Context, *ScanRequest) (*ScanResponse, error)
	Events(*EventsRequest, EventsServer) error
}

// EventsServer is the server-streaming handle for the Events RPC.
type EventsServer interface {
	Send(*EventWire) error
	grpc.ServerStream
}

type eventsServer struct{ grpc.ServerStream }

func (s *eventsServer) Send(ev *EventWire) error {
	return s.ServerStream.SendMsg(ev)
}

func unaryHandler[Req any, Resp any](call func(Server, context.Context, *Req) (*Resp, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(Server)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(s, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func _Events_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(EventsRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(Server).Events(m, &eventsServer{stream})
}

// ServiceDesc is the grpc.ServiceDesc a *grpc.Server registers this
// service under, built by hand in place of protoc-gen-go-grpc output.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Open", Handler: unaryHandler((Server).Open)},
		{MethodName: "Close", Handler: unaryHandler((Server).Close)},
		{MethodName: "Write", Handler: unaryHandler((Server).Write)},
		{MethodName: "Broadcast", Handler: unaryHandler((Server).Broadcast)},
		{MethodName: "Subscribe", Handler: unaryHandler((Server).Subscribe)},
		{MethodName: "Unsubscribe", Handler: unaryHandler((Server).Unsubscribe)},
		{MethodName: "Toggle", Handler: unaryHandler((Server).Toggle)},
		{MethodName: "Status", Handler: unaryHandler((Server).Status)},
		{MethodName: "Scan", Handler: unaryHandler((Server).Scan)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Events", Handler: _Events_Handler, ServerStreams: true},
	},
	Metadata: "portbroker.proto",
}

// RegisterServer registers srv on s under ServiceDesc.
func RegisterServer(s *grpc.Server, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}
