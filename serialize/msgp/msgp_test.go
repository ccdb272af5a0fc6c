package msgp

import (
	"testing"

	tinymsgp "github.com/tinylib/msgp/msgp"

	"github.com/duplexrpc/rpc/iovec"
)

// greeting is a hand-written msgp.Marshaler/Unmarshaler, in the same shape
// msgp's code generator produces for a single-string struct (see
// cluster/rpc/proto_gen.go's Request.ServiceMethod field), kept minimal
// since this package has no generated code of its own to test against.
type greeting struct {
	Text string
}

func (g *greeting) MarshalMsg(b []byte) ([]byte, error) {
	return tinymsgp.AppendString(b, g.Text), nil
}

func (g *greeting) UnmarshalMsg(bts []byte) ([]byte, error) {
	text, rest, err := tinymsgp.ReadStringBytes(bts)
	if err != nil {
		return nil, err
	}
	g.Text = text
	return rest, nil
}

func TestSerializer_RoundTrip(t *testing.T) {
	s := NewSerializer()

	b, err := s.Serialize(&greeting{Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}

	var out greeting
	if err := s.Deserialize(b, &out); err != nil {
		t.Fatal(err)
	}
	if out.Text != "hello" {
		t.Fatalf("got %q, want %q", out.Text, "hello")
	}
}

func TestSerializer_WrongValueType(t *testing.T) {
	s := NewSerializer()
	if _, err := s.Serialize("not a marshaler"); err != ErrWrongValueType {
		t.Fatalf("got %v, want ErrWrongValueType", err)
	}
}

func TestMessageRoundTripsThroughIOV(t *testing.T) {
	send := Message(&greeting{Text: "hi there"})
	iov := iovec.New(0)
	if err := send.MarshalIOV(iov); err != nil {
		t.Fatal(err)
	}

	var out greeting
	recv := Message(&out)
	if err := recv.UnmarshalIOV(iov); err != nil {
		t.Fatal(err)
	}
	if out.Text != "hi there" {
		t.Fatalf("out.Text = %q, want %q", out.Text, "hi there")
	}
}
