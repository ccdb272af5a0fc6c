package rpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/duplexrpc/rpc/rpclog"
)

// poolKey is the endpoint-plus-transport-mode cache key, the same
// string-keyed-map shape cluster.go's clientIdMaps uses for its
// svrId -> *rpc.Client cache, generalized to the (endpoint, tls) pair
// spec.md §4.4 keys a Stub cache by.
type poolKey struct {
	endpoint string
	tls      bool
}

type poolEntry struct {
	mu       sync.Mutex
	stub     *Stub
	refs     int
	lastUsed time.Time
	dialing  chan struct{} // non-nil while a connect is in flight; closed when it resolves
	dialErr  error
}

// StubPool caches Stubs by (endpoint, tls), reference-counting checkouts and
// evicting idle entries after their expiration window, the same sweeping
// pattern timer.go's ticker+stop-channel Register uses, generalized from a
// single package-level timer to one owned per pool.
type StubPool struct {
	dialer Dialer

	connectTimeout time.Duration
	callTimeout    time.Duration
	expiration     time.Duration

	mu      sync.Mutex
	entries map[poolKey]*poolEntry

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// NewStubPool creates a StubPool that dials new connections with dialer and
// evicts entries idle longer than expiration. A non-positive expiration
// disables idle eviction.
func NewStubPool(dialer Dialer, connectTimeout, callTimeout, expiration time.Duration) *StubPool {
	p := &StubPool{
		dialer:         dialer,
		connectTimeout: connectTimeout,
		callTimeout:    callTimeout,
		expiration:     expiration,
		entries:        make(map[poolKey]*poolEntry),
		sweepStop:      make(chan struct{}),
	}
	if expiration > 0 {
		go p.sweepLoop()
	}
	return p
}

// CallTimeout returns the default per-call timeout new callers should use
// with Stubs drawn from this pool, mirroring the supplemented
// StubPool::get_timeout accessor from original_source/rpc/rpc.h (see
// SPEC_FULL.md's SUPPLEMENTED FEATURES section).
func (p *StubPool) CallTimeout() time.Duration { return p.callTimeout }

// GetStub returns a connected Stub for (endpoint, tls), dialing one if
// necessary. Concurrent callers for the same key share a single in-flight
// dial (single-flight), and each successful caller's checkout increments the
// entry's refcount; callers must pair this with PutStub.
func (p *StubPool) GetStub(ctx context.Context, endpoint string, useTLS bool) (*Stub, error) {
	key := poolKey{endpoint: endpoint, tls: useTLS}

	p.mu.Lock()
	entry, ok := p.entries[key]
	if !ok {
		entry = &poolEntry{dialing: make(chan struct{})}
		p.entries[key] = entry
		p.mu.Unlock()
		p.dial(ctx, key, entry)
	} else {
		p.mu.Unlock()
	}

	select {
	case <-entry.dialing:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.dialErr != nil {
		return nil, entry.dialErr
	}
	entry.refs++
	entry.lastUsed = time.Now()
	return entry.stub, nil
}

func (p *StubPool) dial(ctx context.Context, key poolKey, entry *poolEntry) {
	dialCtx := ctx
	var cancel context.CancelFunc
	if p.connectTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, p.connectTimeout)
		defer cancel()
	}

	var stream Stream
	var err error
	if key.tls {
		stream, err = p.dialer.DialTLS(dialCtx, key.endpoint, &tls.Config{})
	} else {
		stream, err = p.dialer.Dial(dialCtx, key.endpoint)
	}

	entry.mu.Lock()
	if err != nil {
		entry.dialErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
	} else {
		entry.stub = NewStub(stream, true)
		entry.lastUsed = time.Now()
	}
	entry.mu.Unlock()
	close(entry.dialing)

	if err != nil {
		p.mu.Lock()
		delete(p.entries, key)
		p.mu.Unlock()
		rpclog.Errorf("rpc: pool dial to %s failed: %v", key.endpoint, err)
	}
}

// Acquire is the non-blocking counterpart to GetStub: it returns the Stub
// already cached for (endpoint, tls), or nil if none exists yet (the caller
// should fall back to GetStub to establish one).
func (p *StubPool) Acquire(endpoint string, useTLS bool) *Stub {
	key := poolKey{endpoint: endpoint, tls: useTLS}
	p.mu.Lock()
	entry, ok := p.entries[key]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-entry.dialing:
	default:
		return nil
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.dialErr != nil || entry.stub == nil {
		return nil
	}
	entry.refs++
	entry.lastUsed = time.Now()
	return entry.stub
}

// PutStub releases one checkout of (endpoint, tls). If immediately is true,
// the Stub is force-closed and evicted right away regardless of how many
// other checkouts are still outstanding, per the pool's force-drop contract;
// otherwise this call only decrements the refcount, leaving the entry idle
// for the sweeper to reap once it both hits zero refs and sits past
// expiration.
func (p *StubPool) PutStub(endpoint string, useTLS bool, immediately bool) {
	key := poolKey{endpoint: endpoint, tls: useTLS}
	p.mu.Lock()
	entry, ok := p.entries[key]
	p.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	if entry.refs > 0 {
		entry.refs--
	}
	entry.lastUsed = time.Now()
	shouldClose := immediately && entry.stub != nil
	stub := entry.stub
	entry.mu.Unlock()

	if shouldClose {
		stub.Close()
		p.mu.Lock()
		if p.entries[key] == entry {
			delete(p.entries, key)
		}
		p.mu.Unlock()
	}
}

func (p *StubPool) sweepLoop() {
	ticker := time.NewTicker(p.expiration)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweepIdle()
		case <-p.sweepStop:
			return
		}
	}
}

func (p *StubPool) sweepIdle() {
	now := time.Now()
	var toClose []*Stub

	p.mu.Lock()
	for key, entry := range p.entries {
		entry.mu.Lock()
		if entry.refs == 0 && entry.stub != nil && now.Sub(entry.lastUsed) >= p.expiration {
			toClose = append(toClose, entry.stub)
			delete(p.entries, key)
		}
		entry.mu.Unlock()
	}
	p.mu.Unlock()

	for _, s := range toClose {
		s.Close()
	}
}

// Close stops the idle sweeper and closes every cached Stub, regardless of
// refcount.
func (p *StubPool) Close() {
	p.sweepOnce.Do(func() { close(p.sweepStop) })

	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[poolKey]*poolEntry)
	p.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
		stub := entry.stub
		entry.mu.Unlock()
		if stub != nil {
			stub.Close()
		}
	}
}
