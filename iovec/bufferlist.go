package iovec

import "errors"

// ErrFull is returned by Append when the BufferList has a configured limit
// on the number of variable-length buffers it may describe and that limit
// has been reached. The RPC core maps this to rpc.ErrNoBufferSpace on the
// receive path, where spec.md pins the limit at one.
var ErrFull = errors.New("iovec: buffer list full")

// BufferList is an ordered, non-contiguous sequence of byte slices
// describing a payload without copying. It never assumes the underlying
// storage is contiguous and never takes ownership of slices appended to it
// unless they came from its own Allocator.
type BufferList struct {
	bufs  [][]byte
	limit int // 0 means unlimited
	alloc Allocator
}

// New returns an empty BufferList. limit, if non-zero, bounds the number of
// buffers Append will accept before returning ErrFull; spec.md uses this to
// enforce "at most one variable-length buffer" on the receive path.
func New(limit int) *BufferList {
	return &BufferList{limit: limit, alloc: DefaultAllocator}
}

// SetAllocator attaches the allocator a BufferList's receive-side buffers
// should come from. The zero value uses DefaultAllocator.
func (b *BufferList) SetAllocator(a Allocator) { b.alloc = a }

// Allocator returns the BufferList's attached allocator.
func (b *BufferList) Allocator() Allocator {
	if b.alloc == nil {
		return DefaultAllocator
	}
	return b.alloc
}

// Append adds a slice to the end of the list. The slice's memory is not
// copied; ownership is whatever it already was (caller-owned, or
// allocator-owned if it came from b.Allocator().Alloc). Returns ErrFull if
// the configured limit is exceeded.
func (b *BufferList) Append(buf []byte) error {
	if b.limit > 0 && len(b.bufs) >= b.limit {
		return ErrFull
	}
	b.bufs = append(b.bufs, buf)
	return nil
}

// Len returns the total length in bytes across all buffers.
func (b *BufferList) Len() int {
	n := 0
	for _, s := range b.bufs {
		n += len(s)
	}
	return n
}

// Truncate keeps only the first n bytes across all buffers, dropping or
// shortening buffers past that point. It never reallocates.
func (b *BufferList) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	remaining := n
	out := b.bufs[:0]
	for _, s := range b.bufs {
		if remaining <= 0 {
			break
		}
		if len(s) <= remaining {
			out = append(out, s)
			remaining -= len(s)
			continue
		}
		out = append(out, s[:remaining])
		remaining = 0
	}
	b.bufs = out
}

// Bufs returns the underlying slices in order. The returned value aliases
// internal storage; callers must not retain it past the next mutation.
func (b *BufferList) Bufs() [][]byte { return b.bufs }

// Count returns the number of buffers currently held.
func (b *BufferList) Count() int { return len(b.bufs) }

// Bytes materializes the BufferList into one contiguous slice. Used where a
// single contiguous view is genuinely needed (e.g. decoding a small fixed
// header); callers on the hot zero-copy path should prefer ForEach.
func (b *BufferList) Bytes() []byte {
	out := make([]byte, 0, b.Len())
	for _, s := range b.bufs {
		out = append(out, s...)
	}
	return out
}

// ForEach calls fn once per buffer in order.
func (b *BufferList) ForEach(fn func([]byte)) {
	for _, s := range b.bufs {
		fn(s)
	}
}

// Release returns every buffer back to the BufferList's allocator and
// clears it. Only call this for BufferLists whose buffers are known to have
// come from that allocator (e.g. receive-side lists built by the Stub/
// Skeleton reader); never call it on a caller-owned request BufferList.
func (b *BufferList) Release() {
	a := b.Allocator()
	for _, s := range b.bufs {
		a.Free(s)
	}
	b.bufs = nil
}
