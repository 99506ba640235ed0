package cryptoops

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"errors"
)

var ErrInvalidPrivateKey = errors.New("cryptoops: invalid private key")

var idMagic = []byte("netaio-peer-id")

// idEncoding is unpadded base32, matching the compact, filename-safe
// peer IDs used elsewhere in the pack.
var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// DeriveID returns a stable, short identifier for an Ed25519 public
// key: the first 16 bytes of HMAC-SHA256(idMagic, pubkey), unpadded
// base32 encoded.
func DeriveID(pub ed25519.PublicKey) string {
	mac := hmac.New(sha256.New, idMagic)
	mac.Write(pub)
	sum := mac.Sum(nil)
	return idEncoding.EncodeToString(sum[:16])
}

// Credential bundles an Ed25519 keypair with its derived ID, used by
// Ed25519AuthPlugin to sign and verify witness fields.
type Credential struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	id         string
}

// NewCredential generates a fresh random Ed25519 keypair.
func NewCredential() (Credential, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Credential{}, err
	}
	return Credential{privateKey: priv, publicKey: pub, id: DeriveID(pub)}, nil
}

// NewCredentialFromPrivateKey rebuilds a Credential from an existing
// 32-byte or 64-byte Ed25519 private key seed/key.
func NewCredentialFromPrivateKey(key []byte) (Credential, error) {
	var priv ed25519.PrivateKey
	switch len(key) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(key)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(key)
	default:
		return Credential{}, ErrInvalidPrivateKey
	}
	pub := priv.Public().(ed25519.PublicKey)
	return Credential{privateKey: priv, publicKey: pub, id: DeriveID(pub)}, nil
}

func (c Credential) ID() string                   { return c.id }
func (c Credential) PublicKey() ed25519.PublicKey { return c.publicKey }

// Sign signs msg with the credential's private key.
func (c Credential) Sign(msg []byte) []byte {
	return ed25519.Sign(c.privateKey, msg)
}

// Verify checks sig against msg using pub, which need not be the
// credential's own key: callers use Credential.Verify on a peer's
// advertised public key just as readily as their own.
func (c Credential) Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(pub, msg, sig)
}
