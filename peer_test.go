package netaio

import (
	"testing"
	"time"
)

func TestPeerRegistryIgnoresSelfAdvertisement(t *testing.T) {
	r := NewPeerRegistry("self-id", time.Minute)
	added := r.Upsert(Peer{ID: "self-id", Addrs: []string{"127.0.0.1:1"}})
	if added {
		t.Error("expected self-advertisement to be ignored")
	}
	if _, ok := r.Get("self-id"); ok {
		t.Error("self should never appear as a discovered peer")
	}
}

func TestPeerRegistryUpsertAndGet(t *testing.T) {
	r := NewPeerRegistry("self-id", time.Minute)
	r.Upsert(Peer{ID: "p1", Addrs: []string{"10.0.0.1:9000"}})
	p, ok := r.Get("p1")
	if !ok {
		t.Fatal("expected peer p1 to be present")
	}
	if len(p.Addrs) != 1 || p.Addrs[0] != "10.0.0.1:9000" {
		t.Errorf("unexpected addrs: %v", p.Addrs)
	}
}

func TestPeerRegistryPrunesExpiredPeers(t *testing.T) {
	r := NewPeerRegistry("self-id", 20*time.Millisecond)
	r.Upsert(Peer{ID: "p1"})
	r.Start()
	defer r.Stop()

	time.Sleep(150 * time.Millisecond)
	if _, ok := r.Get("p1"); ok {
		t.Error("expected peer to be pruned after ttl elapsed")
	}
}

func TestEncodeDecodePeerBodyRoundTrip(t *testing.T) {
	plugin := JSONPeerPlugin{}
	p := Peer{ID: "peer-1", Addrs: []string{"1.2.3.4:9000", "1.2.3.4:9001"}, Data: map[string]any{"version": "1.0"}}

	body, err := EncodePeerBody(plugin, p, "peer-1")
	if err != nil {
		t.Fatalf("EncodePeerBody: %v", err)
	}
	got, err := DecodePeerBody(plugin, body)
	if err != nil {
		t.Fatalf("DecodePeerBody: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("id = %q, want %q", got.ID, p.ID)
	}
	if len(got.Addrs) != 2 {
		t.Errorf("addrs = %v", got.Addrs)
	}
	if got.Data["version"] != "1.0" {
		t.Errorf("data = %v", got.Data)
	}
}
