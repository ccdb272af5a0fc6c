// Package json is a rpc/serialize.Serializer backed by encoding/json. Unlike
// protobuf and msgp it has no wire-format opinions of its own to enforce
// beyond "the target is addressable", so Deserialize rejects non-pointer
// targets up front rather than letting encoding/json silently no-op on them.
package json

import (
	"encoding/json"
	"errors"
	"reflect"

	"github.com/duplexrpc/rpc/serialize"
)

// ErrNotAPointer is returned by Deserialize when v is not a pointer;
// encoding/json.Unmarshal would otherwise return a nil error having decoded
// into nothing.
var ErrNotAPointer = errors.New("json: Deserialize target must be a pointer")

type Serializer struct{}

func NewSerializer() *Serializer {
	return &Serializer{}
}

func (s *Serializer) Serialize(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (s *Serializer) Deserialize(data []byte, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return ErrNotAPointer
	}
	return json.Unmarshal(data, v)
}

// Message wraps v (which must be a pointer, json-tagged as needed) as an
// rpc.Message backed by this package's Serializer, so a call site can pass
// json.Message(&req) directly to Stub.Call instead of hand-assembling a
// serialize.Bytes for the common one-struct-one-Serializer case.
func Message[T any](v *T) *serialize.Bytes {
	return &serialize.Bytes{S: NewSerializer(), V: v}
}
