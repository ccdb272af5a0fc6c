// Package protobuf is a rpc/serialize.Serializer backed by
// github.com/golang/protobuf/proto. proto.Message is itself the contract
// protoc-generated types already satisfy, so Serialize/Deserialize only need
// to guard the type assertion; the interesting work is the Message helper
// below, which lets a generated proto type be handed straight to Stub.Call
// without a caller ever constructing a serialize.Bytes by hand.
package protobuf

import (
	"errors"

	"github.com/golang/protobuf/proto"

	"github.com/duplexrpc/rpc/serialize"
)

// ErrWrongValueType is returned when the value passed to Serialize or
// Deserialize does not implement proto.Message.
var ErrWrongValueType = errors.New("struct must be converted to proto.Message")

type Serializer struct{}

func NewSerializer() *Serializer {
	return &Serializer{}
}

func (s *Serializer) Serialize(v interface{}) ([]byte, error) {
	pb, ok := v.(proto.Message)
	if !ok {
		return nil, ErrWrongValueType
	}
	return proto.Marshal(pb)
}

func (s *Serializer) Deserialize(data []byte, v interface{}) error {
	pb, ok := v.(proto.Message)
	if !ok {
		return ErrWrongValueType
	}
	return proto.Unmarshal(data, pb)
}

// Message wraps a proto.Message as an rpc.Message backed by this package's
// Serializer, the protobuf counterpart to json.Message and msgp.Message.
func Message(v proto.Message) *serialize.Bytes {
	return &serialize.Bytes{S: NewSerializer(), V: v}
}
