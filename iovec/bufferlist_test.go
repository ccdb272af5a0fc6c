package iovec

import (
	"bytes"
	"testing"
)

func TestBufferListAppendAndLen(t *testing.T) {
	b := New(0)
	if err := b.Append([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if err := b.Append([]byte("de")); err != nil {
		t.Fatal(err)
	}
	if got := b.Len(); got != 5 {
		t.Fatalf("Len() = %d, want 5", got)
	}
	if got := b.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
}

func TestBufferListLimitEnforced(t *testing.T) {
	b := New(1)
	if err := b.Append([]byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := b.Append([]byte("second")); err != ErrFull {
		t.Fatalf("Append past limit = %v, want ErrFull", err)
	}
}

func TestBufferListBytesMaterializes(t *testing.T) {
	b := New(0)
	b.Append([]byte("foo"))
	b.Append([]byte("bar"))
	if got := b.Bytes(); !bytes.Equal(got, []byte("foobar")) {
		t.Fatalf("Bytes() = %q, want %q", got, "foobar")
	}
}

func TestBufferListTruncate(t *testing.T) {
	b := New(0)
	b.Append([]byte("hello"))
	b.Append([]byte("world"))
	b.Truncate(7)
	if got := b.Bytes(); !bytes.Equal(got, []byte("hellowo")) {
		t.Fatalf("Bytes() after Truncate(7) = %q, want %q", got, "hellowo")
	}
}

func TestBufferListTruncateToZero(t *testing.T) {
	b := New(0)
	b.Append([]byte("hello"))
	b.Truncate(0)
	if got := b.Len(); got != 0 {
		t.Fatalf("Len() after Truncate(0) = %d, want 0", got)
	}
}

func TestBufferListForEach(t *testing.T) {
	b := New(0)
	b.Append([]byte("a"))
	b.Append([]byte("bb"))
	var seen []string
	b.ForEach(func(p []byte) { seen = append(seen, string(p)) })
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "bb" {
		t.Fatalf("ForEach visited %v", seen)
	}
}

func TestPooledAllocatorRoundTrip(t *testing.T) {
	a := newPooledAllocator()
	buf := a.Alloc(100)
	if len(buf) != 100 {
		t.Fatalf("Alloc(100) len = %d, want 100", len(buf))
	}
	a.Free(buf)

	buf2 := a.Alloc(100)
	if len(buf2) != 100 {
		t.Fatalf("Alloc(100) after Free len = %d, want 100", len(buf2))
	}
}

func TestPooledAllocatorOversize(t *testing.T) {
	a := newPooledAllocator()
	n := 1 << (minBucketShift + numBuckets + 2)
	buf := a.Alloc(n)
	if len(buf) != n {
		t.Fatalf("Alloc(%d) len = %d", n, len(buf))
	}
	a.Free(buf) // must not panic on an unpooled oversize buffer
}

func TestBufferListReleaseReturnsToAllocator(t *testing.T) {
	b := New(0)
	b.SetAllocator(DefaultAllocator)
	buf := DefaultAllocator.Alloc(64)
	copy(buf, "hello")
	b.Append(buf)
	b.Release()
	if b.Count() != 0 {
		t.Fatalf("Count() after Release = %d, want 0", b.Count())
	}
}
