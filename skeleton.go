package rpc

import (
	"context"
	"io"
	"sync"

	"github.com/duplexrpc/rpc/iovec"
	"github.com/duplexrpc/rpc/rpclog"
	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize is the worker pool size new Skeletons use when none is
// given, per spec.md §3.
const DefaultPoolSize = 128

// ResponseSender writes a handler's response back to its caller. It is a
// one-shot closure that may outlive the handler's stack frame (a handler
// may hand it off to another goroutine), so everything it captures is owned
// by the closure, not borrowed from the handler.
type ResponseSender func(resp *iovec.BufferList) error

// Handler serves one incoming RPC request. req is the raw request payload;
// handlers that want typed access should decode it with their own Message
// type. The handler may call send either before or after returning (send's
// captured state is self-contained), but must call it exactly once if it
// intends to answer at all — a request that never gets a response is
// dropped silently, matching the server's own shutdown-without-wait
// behavior for consistency.
type Handler func(ctx context.Context, req *iovec.BufferList, send ResponseSender, stream Stream) error

// Notifier is invoked once per Serve entry or exit, with the stream as
// argument. It must not block the dispatcher.
type Notifier func(stream Stream)

type skeletonState int32

const (
	stateRunning skeletonState = iota
	stateDraining
	stateTerminated
)

// Skeleton is the server-side dispatcher: it demultiplexes incoming frames
// by FunctionID to registered handlers, running each on a worker from a
// bounded pool, and writes framed responses back atomically.
type Skeleton struct {
	mu       sync.RWMutex
	handlers map[FunctionID]Handler

	acceptNotify Notifier
	closeNotify  Notifier

	allocator iovec.Allocator

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	stateMu sync.Mutex
	state   skeletonState
}

// NewSkeleton creates an empty Skeleton with the given bounded worker pool
// size. A poolSize of 0 uses DefaultPoolSize.
func NewSkeleton(poolSize int) *Skeleton {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	return &Skeleton{
		handlers:  make(map[FunctionID]Handler),
		allocator: iovec.DefaultAllocator,
		sem:       semaphore.NewWeighted(int64(poolSize)),
	}
}

// AddFunction registers handler for id, replacing any handler previously
// registered for the same FunctionID.
func (sk *Skeleton) AddFunction(id FunctionID, handler Handler) {
	sk.mu.Lock()
	sk.handlers[id] = handler
	sk.mu.Unlock()
}

// RemoveFunction unregisters the handler for id, if any.
func (sk *Skeleton) RemoveFunction(id FunctionID) {
	sk.mu.Lock()
	delete(sk.handlers, id)
	sk.mu.Unlock()
}

// SetAcceptNotify registers a callback invoked once per Serve entry.
func (sk *Skeleton) SetAcceptNotify(n Notifier) { sk.acceptNotify = n }

// SetCloseNotify registers a callback invoked once per Serve exit.
func (sk *Skeleton) SetCloseNotify(n Notifier) { sk.closeNotify = n }

// SetAllocator sets the allocator used for incoming request payloads.
func (sk *Skeleton) SetAllocator(a iovec.Allocator) { sk.allocator = a }

func (sk *Skeleton) currentState() skeletonState {
	sk.stateMu.Lock()
	defer sk.stateMu.Unlock()
	return sk.state
}

// Serve reads frames off stream until it fails or the stream is closed,
// dispatching each to its registered handler on a worker from the bounded
// pool. It may be called concurrently, once per accepted connection; each
// call is independent and returns when its own stream ends.
func (sk *Skeleton) Serve(stream Stream) error {
	if sk.acceptNotify != nil {
		sk.acceptNotify(stream)
	}
	defer func() {
		if sk.closeNotify != nil {
			sk.closeNotify(stream)
		}
	}()

	var writeMu sync.Mutex

	for {
		hdr, err := readHeader(stream)
		if err != nil {
			return err
		}
		if !hdr.Valid() {
			rpclog.Errorf("rpc: skeleton received invalid frame header (magic=%x version=%d), closing stream", hdr.Magic, hdr.Version)
			stream.Close()
			return ErrProtocol
		}

		buf := sk.allocator.Alloc(int(hdr.Size))
		if _, err := readFullInto(stream, buf); err != nil {
			return err
		}

		if sk.currentState() != stateRunning {
			// new requests are rejected once draining or terminated; still
			// reply so the caller doesn't hang waiting on a tag that will
			// never answer.
			sk.allocator.Free(buf)
			sk.writeZeroLength(stream, &writeMu, hdr.Tag)
			continue
		}

		sk.mu.RLock()
		handler, ok := sk.handlers[hdr.Function]
		sk.mu.RUnlock()

		if !ok {
			// Unknown FunctionID: spec.md pins a zero-length response with
			// the original tag, connection stays open (see DESIGN.md).
			sk.allocator.Free(buf)
			sk.writeZeroLength(stream, &writeMu, hdr.Tag)
			continue
		}

		reqIOV := iovec.New(0)
		reqIOV.SetAllocator(sk.allocator)
		_ = reqIOV.Append(buf)

		tag := hdr.Tag
		if err := sk.sem.Acquire(context.Background(), 1); err != nil {
			sk.allocator.Free(buf)
			continue
		}
		sk.wg.Add(1)
		go sk.runHandler(handler, reqIOV, stream, &writeMu, tag)
	}
}

func (sk *Skeleton) runHandler(handler Handler, reqIOV *iovec.BufferList, stream Stream, writeMu *sync.Mutex, tag uint64) {
	defer sk.wg.Done()
	defer sk.sem.Release(1)

	send := func(resp *iovec.BufferList) error {
		hdr := newHeader(0, tag, uint32(resp.Len()))
		writeMu.Lock()
		defer writeMu.Unlock()
		return writeFrame(stream, hdr, resp)
	}

	if err := handler(context.Background(), reqIOV, send, stream); err != nil {
		rpclog.Errorf("rpc: handler for tag %d failed: %v", tag, err)
	}
}

func (sk *Skeleton) writeZeroLength(stream Stream, writeMu *sync.Mutex, tag uint64) {
	hdr := newHeader(0, tag, 0)
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = writeFrame(stream, hdr, iovec.New(0))
}

// Shutdown transitions the Skeleton to draining (rejecting new requests if
// noMoreRequests is true) and waits for the worker pool to quiesce before
// transitioning to terminated. It must not be called from inside a handler;
// callers should run it from a separate goroutine.
func (sk *Skeleton) Shutdown(noMoreRequests bool) error {
	if noMoreRequests {
		sk.stateMu.Lock()
		sk.state = stateDraining
		sk.stateMu.Unlock()
	}
	sk.wg.Wait()
	sk.stateMu.Lock()
	sk.state = stateTerminated
	sk.stateMu.Unlock()
	return nil
}

// ShutdownNoWait transitions to terminated immediately without waiting for
// inflight handlers; their responses may be dropped if the stream is
// already closed by the time they finish.
func (sk *Skeleton) ShutdownNoWait() {
	sk.stateMu.Lock()
	sk.state = stateTerminated
	sk.stateMu.Unlock()
}

// readFullInto reads exactly len(buf) bytes, tolerating a zero-length buf.
func readFullInto(stream Stream, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	return io.ReadFull(stream, buf)
}
