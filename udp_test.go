package netaio

import (
	"context"
	"net"
	"testing"
	"time"
)

func startTestUDPNode(t *testing.T, selfID string) (*UDPNode, *net.UDPAddr, func()) {
	t.Helper()
	node := NewUDPNode(UDPNodeConfig{
		Node:       NodeConfig{},
		ListenAddr: "127.0.0.1:0",
		SelfID:     selfID,
	})
	if err := node.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := node.conn.LocalAddr().(*net.UDPAddr)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		node.Serve(ctx)
		close(done)
	}()
	return node, addr, func() {
		cancel()
		<-done
	}
}

func TestUDPNodeRequestResponse(t *testing.T) {
	node, addr, stop := startTestUDPNode(t, "udp-server")
	defer stop()

	node.Registry().AddHandler(RequestURI, "/ping", func(msg Message) (*Message, error) {
		resp, err := NewMessage(OK, NewAuthFields(), Prepare([]byte("pong"), msg.Body.URI))
		if err != nil {
			return nil, err
		}
		return &resp, nil
	})

	clientConn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer clientConn.Close()

	req, err := NewMessage(RequestURI, NewAuthFields(), Prepare(nil, "/ping"))
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	data, err := EncodeMessage(req)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if _, err := clientConn.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 65536)
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := clientConn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	resp, err := ParseMessage(buf[:n])
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if string(resp.Body.Content) != "pong" {
		t.Fatalf("Content = %q, want %q", resp.Body.Content, "pong")
	}
}

func TestUDPNodeAdvertisePeerRegistersPeer(t *testing.T) {
	node, addr, stop := startTestUDPNode(t, "udp-server-2")
	defer stop()

	clientConn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer clientConn.Close()

	peer := Peer{ID: "peer-a", Addrs: []string{"127.0.0.1:1234"}}
	body, err := EncodePeerBody(JSONPeerPlugin{}, peer, "peer-a")
	if err != nil {
		t.Fatalf("EncodePeerBody: %v", err)
	}
	msg, err := NewMessage(AdvertisePeer, NewAuthFields(), body)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if _, err := clientConn.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 65536)
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := clientConn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	resp, err := ParseMessage(buf[:n])
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if resp.Header.MessageType != PeerDiscovered {
		t.Fatalf("MessageType = %v, want PeerDiscovered", resp.Header.MessageType)
	}

	got, ok := node.Peers().Get("peer-a")
	if !ok {
		t.Fatal("expected peer-a to be registered")
	}
	if len(got.Addrs) != 1 || got.Addrs[0] != "127.0.0.1:1234" {
		t.Fatalf("Addrs = %v, want [127.0.0.1:1234]", got.Addrs)
	}
}
