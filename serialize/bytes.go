package serialize

import (
	"fmt"

	"github.com/duplexrpc/rpc"
	"github.com/duplexrpc/rpc/iovec"
)

// Bytes adapts any Serializer and a user value pointer into an rpc.Message,
// so existing json/protobuf/msgp Serializers can be used as Stub.Call's req
// and resp arguments without each one having to grow its own MarshalIOV/
// UnmarshalIOV pair.
type Bytes struct {
	S Serializer
	V interface{}
}

// MarshalIOV serializes b.V with b.S and appends the result as b's single
// variable-length buffer.
func (b *Bytes) MarshalIOV(iov *iovec.BufferList) error {
	data, err := b.S.Serialize(b.V)
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	return iov.Append(data)
}

// UnmarshalIOV decodes iov's bytes with b.S directly into b.V.
func (b *Bytes) UnmarshalIOV(iov *iovec.BufferList) error {
	return b.S.Deserialize(iov.Bytes(), b.V)
}

var _ rpc.Message = (*Bytes)(nil)
