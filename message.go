package rpc

import "github.com/duplexrpc/rpc/iovec"

// Message is the capability the core uses polymorphically on every Request
// and Response type. MarshalIOV appends pointers describing the message's
// fields into iov without copying; variable-length fields point to
// caller-owned memory and the core neither copies nor frees it.
//
// UnmarshalIOV decodes iov directly into the receiver. spec.md's original
// describes a two-step "deserialize returns a view, then memcpy into the
// caller's struct" dance; Go has no safe way to hand back an aliased view
// into foreign memory, so that collapses into this one step — see
// SPEC_FULL.md §3 and DESIGN.md for the resolved Open Question.
type Message interface {
	MarshalIOV(iov *iovec.BufferList) error
	UnmarshalIOV(iov *iovec.BufferList) error
}

// ChecksumValidator is an optional capability a Response may implement. When
// present, it is invoked on the full-size receive path (spec.md §4.2); a
// Response without it is trusted as-is.
type ChecksumValidator interface {
	ValidateChecksum(iov *iovec.BufferList) bool
}
