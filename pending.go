package rpc

import (
	"sync"

	"github.com/duplexrpc/rpc/iovec"
)

// callResult is what the reader goroutine delivers to a waiting caller once
// a full response payload has been read off the wire.
type callResult struct {
	buf []byte
	err error
}

// pendingCall is the awaiter registered for one outstanding tag. headerDone
// is closed by the reader the instant it matches this call's response
// header, before it reads the payload — this is what lets a per-call
// timeout stop racing the clock once the header has arrived, per spec.md
// §4.2 ("the timeout covers sending the request through receiving the
// response header... receiving the response body is not timed").
type pendingCall struct {
	tag        uint64
	headerDone chan struct{}
	result     chan callResult // buffered, capacity 1

	// allocator, when non-nil, is where the reader draws the response
	// buffer from instead of the Stub's own default allocator. CallInto
	// sets this to its respIOV's allocator so the bytes it hands back were
	// actually produced by that allocator, not just appended into its
	// BufferList — Release must only ever free memory its own Allocator
	// gave out.
	allocator iovec.Allocator
}

func newPendingCall(tag uint64) *pendingCall {
	return &pendingCall{
		tag:        tag,
		headerDone: make(chan struct{}),
		result:     make(chan callResult, 1),
	}
}

// pendingTable is the per-Stub tag -> awaiter map. Registration into this
// table must happen-before the first header byte of the corresponding
// request is written to the stream, so a fast response can never arrive at
// the reader before its awaiter is registered (spec.md §5).
type pendingTable struct {
	mu      sync.Mutex
	entries map[uint64]*pendingCall
	current *pendingCall // header already matched, body read in progress
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[uint64]*pendingCall)}
}

// register adds a new awaiter for tag. Callers must do this before writing
// the request onto the wire.
func (t *pendingTable) register(pc *pendingCall) {
	t.mu.Lock()
	t.entries[pc.tag] = pc
	t.mu.Unlock()
}

// removeIfPresent removes tag's awaiter if it is still waiting on its
// header (i.e. the response has not arrived yet). Returns true if it
// removed an entry. Used by the timeout path: if this returns false, the
// header already arrived concurrently and the timeout must not fire.
func (t *pendingTable) removeIfPresent(tag uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[tag]; ok {
		delete(t.entries, tag)
		return true
	}
	return false
}

// popHeader is called by the reader once it has parsed a response header.
// It removes the tag's awaiter (tags are never reused, so there is no
// ambiguity from removing it before the payload is read), signals
// headerDone, and marks the call as "current" so a connection failure
// while reading its body still reaches it even though it is no longer in
// the map.
func (t *pendingTable) popHeader(tag uint64) (*pendingCall, bool) {
	t.mu.Lock()
	pc, ok := t.entries[tag]
	if ok {
		delete(t.entries, tag)
		t.current = pc
	}
	t.mu.Unlock()
	if ok {
		close(pc.headerDone)
	}
	return pc, ok
}

// clearCurrent marks the in-flight body read as finished.
func (t *pendingTable) clearCurrent() {
	t.mu.Lock()
	t.current = nil
	t.mu.Unlock()
}

// failAll delivers err to every still-registered awaiter (including one
// whose header already arrived and whose body is mid-read) and empties the
// table. Used on stream closure.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[uint64]*pendingCall)
	current := t.current
	t.current = nil
	t.mu.Unlock()

	for _, pc := range entries {
		deliver(pc, callResult{err: err})
	}
	if current != nil {
		deliver(current, callResult{err: err})
	}
}

// deliver signals headerDone (if not already closed) and sends res on the
// result channel, both non-blocking since result is buffered to 1 and no
// other writer can race it once a tag has been removed from the table.
func deliver(pc *pendingCall, res callResult) {
	select {
	case <-pc.headerDone:
	default:
		close(pc.headerDone)
	}
	select {
	case pc.result <- res:
	default:
	}
}

// count returns the number of calls currently awaiting a response,
// including one mid-body-read.
func (t *pendingTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.entries)
	if t.current != nil {
		n++
	}
	return n
}
