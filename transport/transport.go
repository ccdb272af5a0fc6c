// Package transport provides the Stream-producing dialers and listeners the
// rpc package's Stub, Skeleton, and StubPool consume as external
// collaborators, generalizing the teacher's ad hoc rpc.Dial("tcp4", addr)
// call sites (cluster.go, remote.go, rpc.go) into reusable TCP, Unix-domain,
// and TLS implementations.
package transport

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/duplexrpc/rpc"
)

// netDialer dials endpoints with net.Dialer/tls.Dialer over a fixed network
// ("tcp" or "unix"). It implements rpc.Dialer.
type netDialer struct {
	network string
	dialer  net.Dialer
}

// NewTCPDialer returns an rpc.Dialer that connects over TCP.
func NewTCPDialer() rpc.Dialer { return &netDialer{network: "tcp"} }

// NewUnixDialer returns an rpc.Dialer that connects over Unix-domain
// sockets. endpoint is a filesystem path, not a host:port pair.
func NewUnixDialer() rpc.Dialer { return &netDialer{network: "unix"} }

func (d *netDialer) Dial(ctx context.Context, endpoint string) (rpc.Stream, error) {
	conn, err := d.dialer.DialContext(ctx, d.network, endpoint)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (d *netDialer) DialTLS(ctx context.Context, endpoint string, cfg *tls.Config) (rpc.Stream, error) {
	tlsDialer := tls.Dialer{NetDialer: &d.dialer, Config: cfg}
	conn, err := tlsDialer.DialContext(ctx, d.network, endpoint)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

var _ rpc.Dialer = (*netDialer)(nil)

// Listener accepts inbound Streams, the server-side counterpart to Dialer.
// A Skeleton is driven by repeatedly calling Accept and handing each Stream
// to Serve, mirroring app.go's net.Listen-then-accept-loop shape.
type Listener interface {
	Accept() (rpc.Stream, error)
	Close() error
	Addr() net.Addr
}

type netListener struct {
	ln net.Listener
}

// ListenTCP opens a TCP listener on addr (host:port, ""  for all interfaces).
func ListenTCP(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &netListener{ln: ln}, nil
}

// ListenUnix opens a Unix-domain socket listener at path.
func ListenUnix(path string) (Listener, error) {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &netListener{ln: ln}, nil
}

// ListenTLS opens a TCP listener on addr that wraps every accepted
// connection in a TLS server handshake using cfg.
func ListenTLS(addr string, cfg *tls.Config) (Listener, error) {
	ln, err := tls.Listen("tcp", addr, cfg)
	if err != nil {
		return nil, err
	}
	return &netListener{ln: ln}, nil
}

func (l *netListener) Accept() (rpc.Stream, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (l *netListener) Close() error   { return l.ln.Close() }
func (l *netListener) Addr() net.Addr { return l.ln.Addr() }
