package netaio

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// X25519PeerKeyResolver resolves the X25519 public key a message
// should be encrypted for or was encrypted by.
type X25519PeerKeyResolver func(msg Message) ([32]byte, error)

// X25519CipherPluginConfig configures an X25519CipherPlugin.
type X25519CipherPluginConfig struct {
	PrivateKey [32]byte

	// PeerPublicKey is used when PeerKeyResolver is nil.
	PeerPublicKey [32]byte
	PeerKeyResolver X25519PeerKeyResolver

	// NonceField names the auth field carrying the per-message AEAD
	// nonce. Default "x25519_nonce".
	NonceField string

	// Info is the HKDF info string binding the derived key to this
	// protocol. Default "netaio-x25519-cipher".
	Info string
}

// X25519CipherPlugin encrypts only a message's content, leaving its
// URI in the clear so routing can happen against the field before the
// inner decryption step runs. Each call recomputes the X25519 shared
// secret from the configured static keys and derives a fresh
// ChaCha20-Poly1305 key from it via HKDF-SHA256, so the plugin holds
// no per-connection session state: unlike the handshake-based secure
// channel it's adapted from, encrypt and decrypt here are pure,
// stateless functions of a message and the plugin's static
// configuration, as required of a CipherPlugin.
type X25519CipherPlugin struct {
	privateKey [32]byte
	peerKey    [32]byte
	resolve    X25519PeerKeyResolver
	nonceField string
	info       string
}

// NewX25519CipherPlugin builds a plugin from cfg.
func NewX25519CipherPlugin(cfg X25519CipherPluginConfig) (*X25519CipherPlugin, error) {
	var zero [32]byte
	if cfg.PrivateKey == zero {
		return nil, fmt.Errorf("netaio: X25519CipherPlugin requires a private key")
	}
	return &X25519CipherPlugin{
		privateKey: cfg.PrivateKey,
		peerKey:    cfg.PeerPublicKey,
		resolve:    cfg.PeerKeyResolver,
		nonceField: orDefault(cfg.NonceField, "x25519_nonce"),
		info:       orDefault(cfg.Info, "netaio-x25519-cipher"),
	}, nil
}

func (p *X25519CipherPlugin) aead(peerKey [32]byte) (cipher.AEAD, error) {
	shared, err := curve25519.X25519(p.privateKey[:], peerKey[:])
	if err != nil {
		return nil, fmt.Errorf("netaio: x25519 key agreement failed: %w", err)
	}
	hk := hkdf.New(sha256.New, shared, nil, []byte(p.info))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, err
	}
	return chacha20poly1305.New(key)
}

func (p *X25519CipherPlugin) peerKeyFor(msg Message) ([32]byte, error) {
	if p.resolve != nil {
		return p.resolve(msg)
	}
	return p.peerKey, nil
}

// Encrypt seals msg's content with a fresh random nonce, storing the
// nonce in the auth fields and leaving the URI untouched.
func (p *X25519CipherPlugin) Encrypt(msg Message) (Message, error) {
	peerKey, err := p.peerKeyFor(msg)
	if err != nil {
		return Message{}, err
	}
	aead, err := p.aead(peerKey)
	if err != nil {
		return Message{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Message{}, err
	}
	sealed := aead.Seal(nil, nonce, msg.Body.Content, []byte(msg.Body.URI))

	newBody := Prepare(sealed, msg.Body.URI)
	out, err := msg.WithBody(newBody)
	if err != nil {
		return Message{}, err
	}
	auth := NewAuthFields()
	for name, value := range out.AuthFields.Fields {
		auth.Fields[name] = value
	}
	auth.Set(p.nonceField, nonce)
	return out.WithAuthFields(auth)
}

// Decrypt opens msg's content using the nonce carried in its auth
// fields.
func (p *X25519CipherPlugin) Decrypt(msg Message) (Message, error) {
	nonce, ok := msg.AuthFields.Get(p.nonceField)
	if !ok {
		return Message{}, fmt.Errorf("%w: missing x25519 nonce field", ErrMalformedFrame)
	}
	peerKey, err := p.peerKeyFor(msg)
	if err != nil {
		return Message{}, err
	}
	aead, err := p.aead(peerKey)
	if err != nil {
		return Message{}, err
	}
	plain, err := aead.Open(nil, nonce, msg.Body.Content, []byte(msg.Body.URI))
	if err != nil {
		return Message{}, fmt.Errorf("%w: x25519 decrypt failed", ErrAuthFailure)
	}
	newBody := Prepare(plain, msg.Body.URI)
	return msg.WithBody(newBody)
}
