package netaio

import (
	"bytes"
	"testing"

	"github.com/valyala/bytebufferpool"
)

func TestMessageRoundTrip(t *testing.T) {
	auth := NewAuthFields()
	auth.Set("nonce", []byte("0123456789abcdef"))
	body := Prepare([]byte("hello world"), "/echo")

	msg, err := NewMessage(RequestURI, auth, body)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := msg.Serialize(buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	got, err := ReadMessage(bytes.NewReader(buf.B))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Header.MessageType != RequestURI {
		t.Errorf("message type = %v, want %v", got.Header.MessageType, RequestURI)
	}
	if got.Body.URI != "/echo" {
		t.Errorf("uri = %q, want %q", got.Body.URI, "/echo")
	}
	if string(got.Body.Content) != "hello world" {
		t.Errorf("content = %q, want %q", got.Body.Content, "hello world")
	}
	nonce, ok := got.AuthFields.Get("nonce")
	if !ok || string(nonce) != "0123456789abcdef" {
		t.Errorf("nonce field = %q, ok=%v", nonce, ok)
	}
}

func TestMessageChecksumMismatch(t *testing.T) {
	body := Prepare([]byte("payload"), "/x")
	msg, err := NewMessage(OK, NewAuthFields(), body)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	msg.Header.Checksum ^= 0xFFFFFFFF

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := msg.Serialize(buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if _, err := ReadMessage(bytes.NewReader(buf.B)); err == nil {
		t.Fatal("expected checksum mismatch error, got nil")
	}
}

func TestParseMessageFromBytes(t *testing.T) {
	body := Prepare([]byte("datagram"), "/ping")
	msg, err := NewMessage(NotifyURI, NewAuthFields(), body)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	got, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if got.Body.URI != "/ping" || string(got.Body.Content) != "datagram" {
		t.Errorf("unexpected body: %+v", got.Body)
	}
}

func TestAuthFieldsDeterministicOrder(t *testing.T) {
	auth := NewAuthFields()
	auth.Set("b", []byte("2"))
	auth.Set("a", []byte("1"))

	buf1 := bytebufferpool.Get()
	defer bytebufferpool.Put(buf1)
	if err := auth.Serialize(buf1); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	auth2 := NewAuthFields()
	auth2.Set("a", []byte("1"))
	auth2.Set("b", []byte("2"))
	buf2 := bytebufferpool.Get()
	defer bytebufferpool.Put(buf2)
	if err := auth2.Serialize(buf2); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	if !bytes.Equal(buf1.B, buf2.B) {
		t.Error("serialization order should not depend on insertion order")
	}
}
