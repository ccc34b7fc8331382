// Package rpc exposes the broker over gRPC using a hand-written
// grpc.ServiceDesc (the same shape protoc-gen-go-grpc emits) and a JSON
// wire codec, instead of protobuf-generated message types. See DESIGN.md
// for why this module does not depend on google.golang.org/protobuf.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype every client in this module
// requests via grpc.CallContentSubtype, so the server picks jsonCodec for
// the call without any server-side codec configuration.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
