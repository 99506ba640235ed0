package netaio

import (
	"crypto/ed25519"
	"testing"

	"github.com/k98kurz/netaio/core/cryptoops"
)

func TestEd25519AuthPluginMakeCheckRoundTrip(t *testing.T) {
	cred, err := cryptoops.NewCredential()
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	p, err := NewEd25519AuthPlugin(Ed25519AuthPluginConfig{
		Credential:    cred,
		PeerPublicKey: cred.PublicKey(),
	})
	if err != nil {
		t.Fatalf("NewEd25519AuthPlugin: %v", err)
	}

	msg, err := NewMessage(RequestURI, NewAuthFields(), Prepare([]byte("payload"), "/x"))
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	fields, err := p.Make(msg)
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	msg.AuthFields = fields

	ok, err := p.Check(msg)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !ok {
		t.Fatal("expected signature to verify")
	}
}

func TestEd25519AuthPluginRejectsWrongPeerKey(t *testing.T) {
	cred, err := cryptoops.NewCredential()
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	other, err := cryptoops.NewCredential()
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	p, err := NewEd25519AuthPlugin(Ed25519AuthPluginConfig{
		Credential:    cred,
		PeerPublicKey: other.PublicKey(),
	})
	if err != nil {
		t.Fatalf("NewEd25519AuthPlugin: %v", err)
	}

	msg, err := NewMessage(RequestURI, NewAuthFields(), Prepare([]byte("payload"), "/x"))
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	fields, err := p.Make(msg)
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	msg.AuthFields = fields

	ok, err := p.Check(msg)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ok {
		t.Fatal("expected signature check to fail against the wrong peer key")
	}
}

func TestEd25519AuthPluginUsesResolver(t *testing.T) {
	cred, err := cryptoops.NewCredential()
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	resolved := false
	p, err := NewEd25519AuthPlugin(Ed25519AuthPluginConfig{
		Credential: cred,
		PeerKeyResolver: func(msg Message) (ed25519.PublicKey, error) {
			resolved = true
			return cred.PublicKey(), nil
		},
	})
	if err != nil {
		t.Fatalf("NewEd25519AuthPlugin: %v", err)
	}
	msg, err := NewMessage(RequestURI, NewAuthFields(), Prepare([]byte("payload"), "/x"))
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	fields, err := p.Make(msg)
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	msg.AuthFields = fields

	if _, err := p.Check(msg); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !resolved {
		t.Error("expected resolver to be invoked")
	}
}
