package rpc

import (
	"context"
	"fmt"

	"github.com/duplexrpc/rpc/iovec"
)

// Registrar groups a set of RPC methods under one interface id for bulk
// registration with RegisterService, the way network/rpc/server.go's
// reflection-based Register scans a receiver's exported methods — except
// here the receiver names its own interface id and method table explicitly
// instead of having names inferred from Go method names, since FunctionID
// routing has no room for a string-keyed "Service.Method" lookup on the
// wire.
type Registrar interface {
	// InterfaceID returns the IID all of this Registrar's methods share.
	InterfaceID() uint32
	// Methods returns the method-id -> Handler table to install.
	Methods() map[uint32]Handler
}

// RegisterService adds every method of svc to sk, addressed at
// NewFunctionID(svc.InterfaceID(), methodID) for each entry in svc.Methods().
func RegisterService(sk *Skeleton, svc Registrar) error {
	iid := svc.InterfaceID()
	methods := svc.Methods()
	if len(methods) == 0 {
		return fmt.Errorf("%w: service has no methods", ErrInvalidArgument)
	}
	for mid, handler := range methods {
		if handler == nil {
			return fmt.Errorf("%w: nil handler for method %d", ErrInvalidArgument, mid)
		}
		sk.AddFunction(NewFunctionID(iid, mid), handler)
	}
	return nil
}

// UnregisterService removes every method svc.Methods() names from sk.
func UnregisterService(sk *Skeleton, svc Registrar) {
	iid := svc.InterfaceID()
	for mid := range svc.Methods() {
		sk.RemoveFunction(NewFunctionID(iid, mid))
	}
}

// typedHandler adapts a strongly-typed Go function — func(ctx, Req) (Resp,
// error) — into a Handler, decoding the request with newReq and encoding
// the result with MarshalIOV, the same req/resp marshaling contract Call
// uses. The shape is checked by the compiler at the call site instead of by
// a reflection scan at registration time, the way network/rpc/server.go's
// suitableMethods validates a receiver's methods once at Register.
func typedHandler[Req, Resp Message](newReq func() Req, fn func(ctx context.Context, req Req) (Resp, error)) Handler {
	return func(ctx context.Context, reqBuf *iovec.BufferList, send ResponseSender, stream Stream) error {
		req := newReq()
		if err := req.UnmarshalIOV(reqBuf); err != nil {
			return fmt.Errorf("%w: unmarshal request: %v", ErrInvalidArgument, err)
		}
		resp, err := fn(ctx, req)
		if err != nil {
			return err
		}
		respIOV := iovec.New(0)
		if err := resp.MarshalIOV(respIOV); err != nil {
			return fmt.Errorf("%w: marshal response: %v", ErrInvalidArgument, err)
		}
		return send(respIOV)
	}
}

// NewTypedHandler exports typedHandler for callers assembling a Registrar's
// Methods() table from ordinary Go functions instead of hand-writing the
// iovec plumbing themselves.
func NewTypedHandler[Req, Resp Message](newReq func() Req, fn func(ctx context.Context, req Req) (Resp, error)) Handler {
	return typedHandler(newReq, fn)
}
