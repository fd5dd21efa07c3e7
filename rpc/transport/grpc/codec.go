package grpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

const (
	codecName   = "gridlock-raw"
	serviceName = "gridlock.rpc.Transport"
	sendMethod  = "/" + serviceName + "/Send"
)

// rawCodec passes already serialized messages through gRPC unchanged.
// The message format is chosen by the rpc serializer, not by protobuf.
type rawCodec struct{}

var _ encoding.Codec = rawCodec{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case *[]byte:
		return *b, nil
	case []byte:
		return b, nil
	default:
		return nil, fmt.Errorf("raw codec: can not marshal %T", v)
	}
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec: can not unmarshal into %T", v)
	}
	// gRPC may reuse data after Unmarshal returns
	*b = append((*b)[:0], data...)
	return nil
}

func (rawCodec) Name() string {
	return codecName
}
