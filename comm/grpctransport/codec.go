package grpctransport

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is registered once, process-wide, as the content-subtype every
// Exchange stream forces via grpc.ForceCodec — there is no .proto schema
// to generate a codec from because the core's payloads are already opaque
// byte records produced by fpid.Codec[T]; the wire format here is exactly
// those bytes, unmodified, carried inside a single grpc message per Frame.
const codecName = "fpmas-raw"

// Frame is the only message type that ever crosses an Exchange stream.
type Frame struct {
	Data []byte
}

// rawCodec implements google.golang.org/grpc/encoding.Codec by treating
// the wire bytes as the Frame's payload directly, with no intermediate
// schema.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*Frame)
	if !ok {
		return nil, fmt.Errorf("grpctransport: rawCodec cannot marshal %T", v)
	}
	return f.Data, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*Frame)
	if !ok {
		return fmt.Errorf("grpctransport: rawCodec cannot unmarshal into %T", v)
	}
	f.Data = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(rawCodec{})
}
