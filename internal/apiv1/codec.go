package apiv1

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec implements encoding.Codec over plain JSON instead of protobuf
// wire format. Registering it under the name "proto" (grpc-go's built-in
// default content subtype) makes every call on this process's grpc.Server
// and grpc.ClientConn use JSON without either side ever generating or
// depending on protoc output, per DESIGN.md's rationale for this package.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "proto"
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
