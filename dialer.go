package rpc

import (
	"context"
	"crypto/tls"
)

// Dialer produces connected Streams on demand. A StubPool holds one Dialer
// and uses it to establish new cache entries; rpc/transport provides the
// concrete TCP/Unix/TLS implementations.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Stream, error)
	DialTLS(ctx context.Context, endpoint string, cfg *tls.Config) (Stream, error)
}
