package rpc

import "errors"

// Error kinds surfaced by the core. Stub.Call and CallInto return -1 (or the
// zero value, respectively) alongside one of these, wrapped with context via
// %w so callers can still use errors.Is against the sentinel.
var (
	// ErrInvalidArgument covers request/response marshal and unmarshal
	// failures, a non-empty respIOV passed to CallInto, and an empty method
	// table or nil handler passed to RegisterService. Call does not reject a
	// response larger than the size resp's MarshalIOV reported, and the
	// client does not check FunctionIDs.
	ErrInvalidArgument = errors.New("rpc: invalid argument")

	// ErrNoBufferSpace is returned when a Response's MarshalIOV reports more
	// than one variable-length buffer on the receive path.
	ErrNoBufferSpace = errors.New("rpc: no buffer space")

	// ErrTimeout is returned when a call's deadline is reached before the
	// response header arrives.
	ErrTimeout = errors.New("rpc: timeout")

	// ErrConnectionClosed is returned when the stream ends, or is closed,
	// while a call is pending or in progress.
	ErrConnectionClosed = errors.New("rpc: connection closed")

	// ErrProtocol covers magic/version mismatches; it is always fatal for
	// the stream it was observed on. A truncated frame is reported as
	// ErrConnectionClosed instead.
	ErrProtocol = errors.New("rpc: protocol error")

	// ErrChecksumMismatch is returned when a full-size response fails
	// ValidateChecksum.
	ErrChecksumMismatch = errors.New("rpc: checksum mismatch")

	// ErrUnavailable is returned, wrapped, when a StubPool could not
	// connect. A Skeleton that is shutting down does not return it; it
	// answers new requests with a zero-length response.
	ErrUnavailable = errors.New("rpc: unavailable")
)
