package netaio

import "testing"

func TestX25519CipherRoundTrip(t *testing.T) {
	var priv, peer [32]byte
	priv[0] = 9
	peer[0] = 7
	p, err := NewX25519CipherPlugin(X25519CipherPluginConfig{PrivateKey: priv, PeerPublicKey: peer})
	if err != nil {
		t.Fatalf("NewX25519CipherPlugin: %v", err)
	}

	msg, err := NewMessage(OK, NewAuthFields(), Prepare([]byte("confidential"), "/keep-clear"))
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	enc, err := p.Encrypt(msg)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if enc.Body.URI != "/keep-clear" {
		t.Errorf("expected uri left in the clear, got %q", enc.Body.URI)
	}
	if string(enc.Body.Content) == "confidential" {
		t.Error("expected content to be sealed")
	}

	dec, err := p.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(dec.Body.Content) != "confidential" {
		t.Errorf("decrypted content = %q", dec.Body.Content)
	}
}

func TestX25519CipherRejectsWrongPeerKey(t *testing.T) {
	var privA, pubB, privB, pubA, wrong [32]byte
	privA[0], pubB[0] = 1, 2
	privB[0], pubA[0] = 3, 4
	wrong[0] = 255

	sender, err := NewX25519CipherPlugin(X25519CipherPluginConfig{PrivateKey: privA, PeerPublicKey: pubB})
	if err != nil {
		t.Fatalf("NewX25519CipherPlugin: %v", err)
	}
	receiver, err := NewX25519CipherPlugin(X25519CipherPluginConfig{PrivateKey: privB, PeerPublicKey: wrong})
	if err != nil {
		t.Fatalf("NewX25519CipherPlugin: %v", err)
	}

	msg, err := NewMessage(OK, NewAuthFields(), Prepare([]byte("secret"), "/x"))
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	enc, err := sender.Encrypt(msg)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := receiver.Decrypt(enc); err == nil {
		t.Fatal("expected decrypt to fail with mismatched keys")
	}
}
