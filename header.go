// Package rpc implements a lightweight, zero-copy, binary RPC subsystem:
// a wire-framing layer, a multiplexing client Stub, a demultiplexing server
// Skeleton, and an endpoint-keyed StubPool, all running over a caller-supplied
// duplex byte-stream.
package rpc

import (
	"encoding/binary"
	"io"
)

// Magic identifies a valid frame start. Every Header begins with it.
const Magic uint64 = 0x87DE5D02E6AB95C7

// Version is the only wire version this package speaks.
const Version uint32 = 0

// HeaderSize is the fixed, packed size of a Header on the wire.
const HeaderSize = 40

// FunctionID routes a request to a registered Skeleton handler. It is
// logically a pair (interface, method), composed into a single uint64 so
// equality is a plain integer comparison; accessors derive the two halves by
// shift/mask rather than relying on any physical struct overlap.
type FunctionID uint64

// NewFunctionID composes an interface id and a method id into a FunctionID.
func NewFunctionID(iface, method uint32) FunctionID {
	return FunctionID(uint64(iface) | uint64(method)<<32)
}

// Interface returns the low 32 bits of the FunctionID.
func (f FunctionID) Interface() uint32 { return uint32(f) }

// Method returns the high 32 bits of the FunctionID.
func (f FunctionID) Method() uint32 { return uint32(f >> 32) }

// OpID names an RPC operation: the FunctionID it routes through, kept as its
// two logical halves for readability at call sites.
type OpID struct {
	IID uint32
	FID uint32
}

// FunctionID composes the OpID into the wire-level routing key.
func (o OpID) FunctionID() FunctionID { return NewFunctionID(o.IID, o.FID) }

// Header is the fixed 40-byte structure framing every request and response.
// Encoding is little-endian, packed, with no padding beyond what is stated.
type Header struct {
	Magic    uint64
	Version  uint32
	Size     uint32
	Function FunctionID
	Tag      uint64
	Reserved uint64
}

// newHeader builds a well-formed outgoing header for the given function,
// tag and payload size. Reserved is always zero on write.
func newHeader(fn FunctionID, tag uint64, size uint32) Header {
	return Header{Magic: Magic, Version: Version, Size: size, Function: fn, Tag: tag}
}

// Valid reports whether the header's magic and version match what this
// implementation writes. A mismatch on either is fatal for the stream.
func (h Header) Valid() bool {
	return h.Magic == Magic && h.Version == Version
}

// Encode writes the header, little-endian, into buf[:HeaderSize].
func (h Header) Encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], h.Magic)
	binary.LittleEndian.PutUint32(buf[8:12], h.Version)
	binary.LittleEndian.PutUint32(buf[12:16], h.Size)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.Function))
	binary.LittleEndian.PutUint64(buf[24:32], h.Tag)
	binary.LittleEndian.PutUint64(buf[32:40], h.Reserved)
}

// decodeHeader parses a 40-byte little-endian header. Non-zero Reserved on
// read is tolerated, not rejected, to permit forward compatibility (an Open
// Question spec.md leaves ambiguous; this implementation picks the
// tolerant branch — see DESIGN.md).
func decodeHeader(buf []byte) Header {
	return Header{
		Magic:    binary.LittleEndian.Uint64(buf[0:8]),
		Version:  binary.LittleEndian.Uint32(buf[8:12]),
		Size:     binary.LittleEndian.Uint32(buf[12:16]),
		Function: FunctionID(binary.LittleEndian.Uint64(buf[16:24])),
		Tag:      binary.LittleEndian.Uint64(buf[24:32]),
		Reserved: binary.LittleEndian.Uint64(buf[32:40]),
	}
}

// readHeader reads exactly HeaderSize bytes from r and decodes them. A short
// read surfaces as io.ErrUnexpectedEOF via io.ReadFull, which callers treat
// as stream-ended.
func readHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return decodeHeader(buf[:]), nil
}
