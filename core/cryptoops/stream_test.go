package cryptoops

import "bytes"

import "testing"

func TestSymcryptRoundTrip(t *testing.T) {
	key := DeriveKey([]byte("key material"))
	iv := bytes.Repeat([]byte{0x42}, IVSize)
	plain := []byte("the quick brown fox jumps over the lazy dog")

	ciphertext := Symcrypt(plain, key, iv, 0)
	if bytes.Equal(ciphertext, plain) {
		t.Fatal("ciphertext should differ from plaintext")
	}
	recovered := Symcrypt(ciphertext, key, iv, 0)
	if !bytes.Equal(recovered, plain) {
		t.Fatalf("recovered = %q, want %q", recovered, plain)
	}
}

func TestKeystreamResumeAtOffsetMatchesFullStream(t *testing.T) {
	key := DeriveKey([]byte("k"))
	iv := bytes.Repeat([]byte{0x01}, IVSize)

	full := Keystream(key, iv, 100, 0)
	tail := Keystream(key, iv, 40, 60)
	if !bytes.Equal(full[60:], tail) {
		t.Error("keystream resumed at an offset should match the tail of the full stream")
	}
}
