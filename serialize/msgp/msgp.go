// Package msgp is a rpc/serialize.Serializer backed by
// github.com/tinylib/msgp/msgp, hand-written against the
// MarshalMsg/UnmarshalMsg pair msgp's code generator produces (see
// cluster/rpc/proto_gen.go's generated Request/Response types) rather than
// reusing that now-irrelevant generated code directly.
package msgp

import (
	"errors"

	"github.com/tinylib/msgp/msgp"

	"github.com/duplexrpc/rpc/serialize"
)

// ErrWrongValueType is returned when the value passed to Serialize or
// Deserialize does not implement msgp's generated-code interfaces.
var ErrWrongValueType = errors.New("struct must implement msgp.Marshaler/msgp.Unmarshaler")

type Serializer struct{}

func NewSerializer() *Serializer {
	return &Serializer{}
}

// Serialize appends v's msgp encoding onto a nil buffer and returns it.
func (s *Serializer) Serialize(v interface{}) ([]byte, error) {
	m, ok := v.(msgp.Marshaler)
	if !ok {
		return nil, ErrWrongValueType
	}
	return m.MarshalMsg(nil)
}

// Deserialize decodes data into v, which must consume the entire buffer;
// trailing bytes are treated as a framing error rather than silently
// ignored, since the rpc wire format never appends anything after a
// message's own payload.
func (s *Serializer) Deserialize(data []byte, v interface{}) error {
	u, ok := v.(msgp.Unmarshaler)
	if !ok {
		return ErrWrongValueType
	}
	leftover, err := u.UnmarshalMsg(data)
	if err != nil {
		return err
	}
	if len(leftover) != 0 {
		return errors.New("msgp: trailing bytes after decoding message")
	}
	return nil
}

// Message wraps v (which must implement msgp.Marshaler and msgp.Unmarshaler)
// as an rpc.Message backed by this package's Serializer, the msgp
// counterpart to json.Message and protobuf.Message.
func Message(v interface{}) *serialize.Bytes {
	return &serialize.Bytes{S: NewSerializer(), V: v}
}
