package rpc

import (
	"context"
	"net"
	"testing"
	"time"
)

type echoService struct{}

func (echoService) InterfaceID() uint32 { return 5 }

func (echoService) Methods() map[uint32]Handler {
	return map[uint32]Handler{
		1: NewTypedHandler(
			func() *bytesMsg { return &bytesMsg{} },
			func(ctx context.Context, req *bytesMsg) (*bytesMsg, error) {
				return &bytesMsg{data: append([]byte("echo:"), req.data...)}, nil
			},
		),
	}
}

func TestRegisterServiceDispatchesTypedHandler(t *testing.T) {
	sk := NewSkeleton(4)
	if err := RegisterService(sk, echoService{}); err != nil {
		t.Fatal(err)
	}

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	go sk.Serve(server)

	stub := NewStub(client, true)
	defer stub.Close()

	req := &bytesMsg{data: []byte("hi")}
	resp := &bytesMsg{}
	if _, err := stub.Call(OpID{IID: 5, FID: 1}, req, resp, time.Second); err != nil {
		t.Fatal(err)
	}
	if string(resp.data) != "echo:hi" {
		t.Fatalf("resp.data = %q, want %q", resp.data, "echo:hi")
	}
}

func TestRegisterServiceRejectsEmptyMethodTable(t *testing.T) {
	sk := NewSkeleton(4)
	if err := RegisterService(sk, emptyService{}); err == nil {
		t.Fatal("expected error for a service with no methods")
	}
}

type emptyService struct{}

func (emptyService) InterfaceID() uint32         { return 6 }
func (emptyService) Methods() map[uint32]Handler { return nil }

func TestUnregisterServiceRemovesMethods(t *testing.T) {
	sk := NewSkeleton(4)
	svc := echoService{}
	if err := RegisterService(sk, svc); err != nil {
		t.Fatal(err)
	}
	UnregisterService(sk, svc)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	go sk.Serve(server)

	stub := NewStub(client, true)
	defer stub.Close()

	req := &bytesMsg{data: []byte("hi")}
	resp := &bytesMsg{}
	if _, err := stub.Call(OpID{IID: 5, FID: 1}, req, resp, 200*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if len(resp.data) != 0 {
		t.Fatalf("expected zero-length response for unregistered method, got %q", resp.data)
	}
}
