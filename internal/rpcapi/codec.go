package rpcapi

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype this service speaks
// (application/grpc+json on the wire).
const CodecName = "json"

// jsonCodec marshals RPC messages as JSON. The service keeps its message
// types in pkg/types, shared with the REST adapter, instead of maintaining a
// protobuf schema and a codegen step; registering the codec by name leaves
// the standard proto codec in place for the reflection and health services.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
