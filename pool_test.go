package rpc

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/duplexrpc/rpc/iovec"
)

// pipeDialer is a Dialer over net.Pipe, standing in for a real TCP dialer
// in tests: each Dial call spins up an echo Skeleton on the server half and
// hands the client half back as the Stream.
type pipeDialer struct {
	mu    sync.Mutex
	dials int
}

func (d *pipeDialer) Dial(ctx context.Context, endpoint string) (Stream, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()

	client, server := net.Pipe()
	sk := NewSkeleton(2)
	echoID := NewFunctionID(1, 1)
	sk.AddFunction(echoID, func(ctx context.Context, req *iovec.BufferList, send ResponseSender, stream Stream) error {
		resp := iovec.New(0)
		resp.Append(req.Bytes())
		return send(resp)
	})
	go sk.Serve(server)
	return client, nil
}

func (d *pipeDialer) DialTLS(ctx context.Context, endpoint string, cfg *tls.Config) (Stream, error) {
	return nil, errors.New("not implemented")
}

func TestStubPoolGetStubReusesConnection(t *testing.T) {
	dialer := &pipeDialer{}
	pool := NewStubPool(dialer, time.Second, time.Second, 0)
	defer pool.Close()

	s1, err := pool.GetStub(context.Background(), "endpoint-a", false)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := pool.GetStub(context.Background(), "endpoint-a", false)
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 {
		t.Fatal("GetStub should return the cached Stub for the same key")
	}
	dialer.mu.Lock()
	dials := dialer.dials
	dialer.mu.Unlock()
	if dials != 1 {
		t.Fatalf("dialer was invoked %d times, want 1", dials)
	}

	pool.PutStub("endpoint-a", false, false)
	pool.PutStub("endpoint-a", false, false)
}

func TestStubPoolDifferentEndpointsGetDifferentStubs(t *testing.T) {
	dialer := &pipeDialer{}
	pool := NewStubPool(dialer, time.Second, time.Second, 0)
	defer pool.Close()

	s1, err := pool.GetStub(context.Background(), "a", false)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := pool.GetStub(context.Background(), "b", false)
	if err != nil {
		t.Fatal(err)
	}
	if s1 == s2 {
		t.Fatal("different endpoints must not share a Stub")
	}
}

func TestStubPoolUsableStub(t *testing.T) {
	dialer := &pipeDialer{}
	pool := NewStubPool(dialer, time.Second, time.Second, 0)
	defer pool.Close()

	stub, err := pool.GetStub(context.Background(), "endpoint-a", false)
	if err != nil {
		t.Fatal(err)
	}

	req := &bytesMsg{data: []byte("ping")}
	resp := &bytesMsg{}
	if _, err := stub.Call(OpID{IID: 1, FID: 1}, req, resp, time.Second); err != nil {
		t.Fatal(err)
	}
	if string(resp.data) != "ping" {
		t.Fatalf("resp.data = %q", resp.data)
	}
	pool.PutStub("endpoint-a", false, false)
}

func TestStubPoolIdleEvictionCloses(t *testing.T) {
	dialer := &pipeDialer{}
	pool := NewStubPool(dialer, time.Second, time.Second, 30*time.Millisecond)
	defer pool.Close()

	stub, err := pool.GetStub(context.Background(), "endpoint-a", false)
	if err != nil {
		t.Fatal(err)
	}
	pool.PutStub("endpoint-a", false, false)

	time.Sleep(200 * time.Millisecond)

	req := &bytesMsg{data: []byte("ping")}
	resp := &bytesMsg{}
	_, err = stub.Call(OpID{IID: 1, FID: 1}, req, resp, 200*time.Millisecond)
	if err == nil {
		t.Fatal("expected the evicted Stub's stream to be closed")
	}
}

func TestStubPoolPutStubImmediatelyForceDropsWhileCheckedOutElsewhere(t *testing.T) {
	dialer := &pipeDialer{}
	pool := NewStubPool(dialer, time.Second, time.Second, 0)
	defer pool.Close()

	// two outstanding checkouts on the same key.
	stub, err := pool.GetStub(context.Background(), "endpoint-a", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.GetStub(context.Background(), "endpoint-a", false); err != nil {
		t.Fatal(err)
	}

	// release only one of the two checkouts, but force-drop: refs > 0 must
	// not save the entry from closure, per the pool's force-drop contract.
	pool.PutStub("endpoint-a", false, true)

	req := &bytesMsg{data: []byte("ping")}
	resp := &bytesMsg{}
	if _, err := stub.Call(OpID{IID: 1, FID: 1}, req, resp, 200*time.Millisecond); err == nil {
		t.Fatal("expected the force-dropped Stub's stream to be closed even though a checkout was still outstanding")
	}

	if got := pool.Acquire("endpoint-a", false); got != nil {
		t.Fatal("force-dropped entry should have been evicted from the pool")
	}
}

func TestStubPoolAcquireWithoutExistingEntryReturnsNil(t *testing.T) {
	dialer := &pipeDialer{}
	pool := NewStubPool(dialer, time.Second, time.Second, 0)
	defer pool.Close()

	if got := pool.Acquire("unknown", false); got != nil {
		t.Fatal("Acquire on an unseen key should return nil")
	}
}
