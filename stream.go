package rpc

import (
	"io"
	"net"

	"github.com/duplexrpc/rpc/iovec"
)

// Stream is the external byte-stream collaborator the core consumes: a
// reliable, duplex, ordered byte stream such as a TCP, Unix-domain, or TLS
// connection. Partial reads and writes are expected; the core retries
// internally to completion (via io.ReadFull and net.Buffers.WriteTo).
// Socket acceptance, connect/listen, TLS handshake, and endpoint resolution
// are out of scope for this package (see rpc/transport for dialers).
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// writeFrame writes Header || payload through net.Buffers.WriteTo, which is
// one vectored write where the stream supports it and one Write per buffer
// otherwise. The caller's write mutex is what keeps the header and its
// payload together with respect to other writers, so callers must hold it.
func writeFrame(w io.Writer, h Header, payload *iovec.BufferList) error {
	var hdrBuf [HeaderSize]byte
	h.Encode(hdrBuf[:])

	bufs := make(net.Buffers, 0, 1+payload.Count())
	bufs = append(bufs, hdrBuf[:])
	bufs = append(bufs, payload.Bufs()...)
	_, err := bufs.WriteTo(w)
	return err
}
