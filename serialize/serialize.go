// Package serialize defines the Serializer contract used by the Bytes
// adapter to turn an arbitrary (de)serialization library into an rpc.Message,
// mirroring the teacher's serialize package convention (one Serializer
// interface, with json/protobuf/msgp implementations providing
// Serialize/Deserialize over interface{}).
package serialize

// Serializer converts between a Go value and its wire bytes. Each
// implementation (json, protobuf, msgp) owns the value's concrete
// representation; Bytes just plugs one into the rpc.Message contract.
type Serializer interface {
	Serialize(v interface{}) ([]byte, error)
	Deserialize(data []byte, v interface{}) error
}
