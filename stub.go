package rpc

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duplexrpc/rpc/iovec"
	"github.com/duplexrpc/rpc/rpclog"
)

// streamGeneration is everything about one installed Stream that must not
// leak into the next: the stream itself plus the terminal-state bookkeeping
// its own readLoop signals through. SetStream swaps the Stub's current
// generation wholesale rather than mutating shared fields in place, so a
// stale readLoop goroutine racing a SetStream call can only ever close its
// own generation's channel, never the one that replaced it.
type streamGeneration struct {
	stream     Stream
	closed     chan struct{}
	closedOnce sync.Once
	closeErr   error
}

func newStreamGeneration(stream Stream) *streamGeneration {
	return &streamGeneration{stream: stream, closed: make(chan struct{})}
}

// Stub multiplexes concurrent calls over one Stream. Unlike the C++ original
// this is modeled on, a Stub carries no vCPU/scheduling-domain affinity
// requirement: Go's runtime already makes goroutines safe to call Stub.Call
// from concurrently, which is exactly the "single scheduling domain, many
// callers" shape spec.md §4.2 asks for. The single-writer mutex and the
// pending-call table are what actually provide the safety spec.md's
// fiber-affinity rule was protecting.
type Stub struct {
	streamMu  sync.RWMutex
	gen       *streamGeneration
	ownership bool

	writeMu sync.Mutex

	tag     uint64 // atomic, monotonically increasing
	pending *pendingTable

	allocator iovec.Allocator
}

// NewStub wraps stream in a Stub. If ownership is true, Close (and stream
// replacement via SetStream) closes the previous stream; if false, the
// caller remains responsible for it.
func NewStub(stream Stream, ownership bool) *Stub {
	gen := newStreamGeneration(stream)
	s := &Stub{
		gen:       gen,
		ownership: ownership,
		pending:   newPendingTable(),
		allocator: iovec.DefaultAllocator,
	}
	go s.readLoop(gen)
	return s
}

// SetAllocator attaches the allocator used for receive-side buffers.
func (s *Stub) SetAllocator(a iovec.Allocator) { s.allocator = a }

// GetStream returns the Stub's current stream.
func (s *Stub) GetStream() Stream {
	s.streamMu.RLock()
	defer s.streamMu.RUnlock()
	return s.gen.stream
}

// SetStream atomically swaps the underlying stream. The old stream is
// closed if this Stub owns it. A fresh reader goroutine is started for the
// new stream; any calls still pending against the old stream fail with
// ErrConnectionClosed. The old generation's readLoop may still be unwinding
// concurrently with this call (e.g. Close racing its own read error) but it
// carries its own closed/closedOnce/closeErr and so can never reach into the
// new generation installed here.
func (s *Stub) SetStream(stream Stream) error {
	newGen := newStreamGeneration(stream)

	s.streamMu.Lock()
	old := s.gen
	s.gen = newGen
	s.streamMu.Unlock()

	if s.ownership {
		old.stream.Close()
	}
	// Mark the old generation terminal so anything still holding a
	// reference to it (e.g. a doCall that registered before the swap)
	// observes closure even if its readLoop hasn't noticed the dead
	// stream yet.
	s.retire(old, ErrConnectionClosed)
	s.pending.failAll(ErrConnectionClosed)

	go s.readLoop(newGen)
	return nil
}

// GetQueueCount returns the number of tags currently awaiting a response.
func (s *Stub) GetQueueCount() int { return s.pending.count() }

// Close closes the Stub's underlying stream (if owned) and fails every
// pending call with ErrConnectionClosed.
func (s *Stub) Close() error {
	s.streamMu.RLock()
	gen := s.gen
	s.streamMu.RUnlock()
	s.closeWithError(gen, ErrConnectionClosed)
	return nil
}

// retire marks gen terminal without touching the pending table; SetStream
// uses this for the generation it is replacing since pending.failAll is
// called once, explicitly, for the whole swap rather than per-generation.
func (s *Stub) retire(gen *streamGeneration, err error) {
	gen.closedOnce.Do(func() {
		gen.closeErr = err
		close(gen.closed)
	})
}

// closeWithError marks gen terminal and, if gen is still the Stub's current
// generation, closes the owned stream and fails every pending call. A call
// from a stale (already-replaced) generation's readLoop still closes that
// generation's own channel — waking anything still waiting on it — but
// leaves the current generation and its pending calls untouched.
func (s *Stub) closeWithError(gen *streamGeneration, err error) {
	gen.closedOnce.Do(func() {
		gen.closeErr = err
		close(gen.closed)
		if s.ownership {
			gen.stream.Close()
		}
	})

	s.streamMu.RLock()
	isCurrent := s.gen == gen
	s.streamMu.RUnlock()
	if isCurrent {
		s.pending.failAll(err)
	}
}

func (s *Stub) nextTag() uint64 {
	return atomic.AddUint64(&s.tag, 1)
}

// Call sends req to the Stub's peer, addressed at id, and blocks until resp
// has been populated, the deadline given by timeout passes, or the
// connection fails. It returns the number of payload bytes received, or -1
// with a non-nil error on failure. Responses may arrive out of order with
// respect to other concurrent callers; each caller only ever observes its
// own tag's completion.
func (s *Stub) Call(id OpID, req Message, resp Message, timeout time.Duration) (int, error) {
	reqIOV := iovec.New(0) // request has no buffer-count limit
	if err := req.MarshalIOV(reqIOV); err != nil {
		return -1, fmt.Errorf("%w: marshal request: %v", ErrInvalidArgument, err)
	}

	respIOV := iovec.New(1) // receive side: at most one variable-length buffer
	if err := resp.MarshalIOV(respIOV); err != nil {
		if err == iovec.ErrFull {
			return -1, ErrNoBufferSpace
		}
		return -1, fmt.Errorf("%w: marshal response: %v", ErrInvalidArgument, err)
	}
	expectedSize := respIOV.Len()

	n, buf, err := s.doCall(id.FunctionID(), reqIOV, timeout, nil)
	if err != nil {
		return -1, err
	}
	defer s.allocator.Free(buf)

	recvIOV := iovec.New(0)
	recvIOV.SetAllocator(s.allocator)
	_ = recvIOV.Append(buf)

	if n == expectedSize {
		if cv, ok := resp.(ChecksumValidator); ok {
			if !cv.ValidateChecksum(recvIOV) {
				return -1, ErrChecksumMismatch
			}
		}
	} else {
		recvIOV.Truncate(n)
	}
	if err := resp.UnmarshalIOV(recvIOV); err != nil {
		return -1, fmt.Errorf("%w: unmarshal response: %v", ErrInvalidArgument, err)
	}
	return n, nil
}

// CallInto is the allocator-based call variant: instead of decoding into a
// caller-supplied Response, it builds a fresh one with newResp and decodes
// the wire bytes into it. respIOV must be empty; its Allocator supplies the
// memory the response is read into — the reader draws the response buffer
// directly from respIOV.Allocator() rather than the Stub's own allocator.
// Since no expected response size is known up front, CallInto never
// invokes ValidateChecksum. The returned value's lifetime is tied to that allocator (callers
// should Release respIOV once done with the result, if the allocator
// requires it).
func CallInto[T Message](s *Stub, id OpID, req Message, newResp func() T, respIOV *iovec.BufferList, timeout time.Duration) (T, error) {
	var zero T
	if respIOV.Count() != 0 {
		return zero, fmt.Errorf("%w: respIOV must be empty", ErrInvalidArgument)
	}

	reqIOV := iovec.New(0)
	if err := req.MarshalIOV(reqIOV); err != nil {
		return zero, fmt.Errorf("%w: marshal request: %v", ErrInvalidArgument, err)
	}

	alloc := respIOV.Allocator()
	n, buf, err := s.doCall(id.FunctionID(), reqIOV, timeout, alloc)
	if err != nil {
		return zero, err
	}

	if err := respIOV.Append(buf); err != nil {
		alloc.Free(buf)
		return zero, fmt.Errorf("%w: %v", ErrNoBufferSpace, err)
	}
	recvIOV := iovec.New(0)
	recvIOV.SetAllocator(alloc)
	_ = recvIOV.Append(buf[:n])

	resp := newResp()
	if err := resp.UnmarshalIOV(recvIOV); err != nil {
		return zero, fmt.Errorf("%w: unmarshal response: %v", ErrInvalidArgument, err)
	}
	return resp, nil
}

// doCall performs the wire-level round trip shared by Call and CallInto: it
// registers an awaiter, writes the request frame, and waits for the
// response header/payload or the timeout/close signal. allocator, if
// non-nil, overrides the Stub's default allocator for this call's response
// buffer — CallInto uses this to draw the buffer from its respIOV's
// allocator instead.
func (s *Stub) doCall(fn FunctionID, reqIOV *iovec.BufferList, timeout time.Duration, allocator iovec.Allocator) (int, []byte, error) {
	tag := s.nextTag()
	pc := newPendingCall(tag)
	pc.allocator = allocator

	// Registration happens-before the request is written, so a fast
	// response can never arrive at the reader before its awaiter exists.
	s.pending.register(pc)

	hdr := newHeader(fn, tag, uint32(reqIOV.Len()))

	s.streamMu.RLock()
	gen := s.gen
	s.streamMu.RUnlock()

	s.writeMu.Lock()
	err := writeFrame(gen.stream, hdr, reqIOV)
	s.writeMu.Unlock()
	if err != nil {
		s.pending.removeIfPresent(tag)
		return -1, nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	select {
	case <-pc.headerDone:
		return s.awaitBody(pc, gen)
	case <-timerC:
		if s.pending.removeIfPresent(tag) {
			return -1, nil, ErrTimeout
		}
		// header arrived concurrently with the timer firing: the call is
		// no longer subject to a deadline, per spec.md §4.2.
		return s.awaitBody(pc, gen)
	case <-gen.closed:
		return -1, nil, s.closeErrOrDefault(gen)
	}
}

func (s *Stub) awaitBody(pc *pendingCall, gen *streamGeneration) (int, []byte, error) {
	select {
	case res := <-pc.result:
		if res.err != nil {
			return -1, nil, res.err
		}
		return len(res.buf), res.buf, nil
	case <-gen.closed:
		return -1, nil, s.closeErrOrDefault(gen)
	}
}

func (s *Stub) closeErrOrDefault(gen *streamGeneration) error {
	if gen.closeErr != nil {
		return gen.closeErr
	}
	return ErrConnectionClosed
}

// readLoop is the Stub's single reader for one stream generation. It reads
// exactly one header, looks up the tag, and hands the next Size bytes to
// that call's target; other callers are never blocked by this. A late
// response for an expired/unknown tag still has its bytes drained to
// preserve framing, then is discarded. gen is fixed for the lifetime of this
// goroutine: it never re-reads s.gen, so a concurrent SetStream can swap the
// Stub onto a new generation without this loop ever touching it.
func (s *Stub) readLoop(gen *streamGeneration) {
	stream := gen.stream

	for {
		hdr, err := readHeader(stream)
		if err != nil {
			s.closeWithError(gen, ErrConnectionClosed)
			return
		}
		if !hdr.Valid() {
			rpclog.Errorf("rpc: stub received invalid frame header (magic=%x version=%d), closing stream", hdr.Magic, hdr.Version)
			s.closeWithError(gen, ErrProtocol)
			return
		}

		pc, ok := s.pending.popHeader(hdr.Tag)

		alloc := s.allocator
		if ok && pc.allocator != nil {
			alloc = pc.allocator
		}

		buf := alloc.Alloc(int(hdr.Size))
		if _, err := io.ReadFull(stream, buf); err != nil {
			if ok {
				deliver(pc, callResult{err: ErrConnectionClosed})
			}
			s.pending.clearCurrent()
			s.closeWithError(gen, ErrConnectionClosed)
			return
		}
		s.pending.clearCurrent()

		if ok {
			pc.result <- callResult{buf: buf}
		} else {
			// no awaiter for this tag (already timed out, or unsolicited):
			// bytes are drained above; nothing more to do.
			alloc.Free(buf)
		}
	}
}
