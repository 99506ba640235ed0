package netaio

import (
	"crypto/rand"
	"fmt"

	"github.com/k98kurz/netaio/core/cryptoops"
)

// Sha256StreamCipherPluginConfig configures a Sha256StreamCipherPlugin.
type Sha256StreamCipherPluginConfig struct {
	Key []byte

	// IVField names the auth field the plugin uses to carry the
	// per-message initialization vector. Default "iv".
	IVField string
}

// Sha256StreamCipherPlugin encrypts a message's URI and content with
// the sha256-based keystream cipher from netaio's original crypto
// primitives: a random IV accompanies each message in its auth
// fields, and the derived key plus that IV produce a keystream XORed
// against the concatenation of URI and content.
type Sha256StreamCipherPlugin struct {
	key     []byte
	ivField string
}

// NewSha256StreamCipherPlugin builds a plugin from cfg.
func NewSha256StreamCipherPlugin(cfg Sha256StreamCipherPluginConfig) (*Sha256StreamCipherPlugin, error) {
	if len(cfg.Key) == 0 {
		return nil, fmt.Errorf("netaio: Sha256StreamCipherPlugin requires a non-empty key")
	}
	return &Sha256StreamCipherPlugin{
		key:     cryptoops.DeriveKey(cfg.Key),
		ivField: orDefault(cfg.IVField, "iv"),
	}, nil
}

func (p *Sha256StreamCipherPlugin) transform(msg Message, iv []byte) (Message, error) {
	uriLen := len(msg.Body.URI)
	plain := make([]byte, 0, uriLen+len(msg.Body.Content))
	plain = append(plain, []byte(msg.Body.URI)...)
	plain = append(plain, msg.Body.Content...)

	transformed := cryptoops.Symcrypt(plain, p.key, iv, 0)
	newBody := Prepare(transformed[uriLen:], string(transformed[:uriLen]))

	out, err := msg.WithBody(newBody)
	if err != nil {
		return Message{}, err
	}
	auth := NewAuthFields()
	for name, value := range out.AuthFields.Fields {
		auth.Fields[name] = value
	}
	auth.Set(p.ivField, iv)
	return out.WithAuthFields(auth)
}

// Encrypt derives a fresh IV, stores it in msg's auth fields, and
// XOR-transforms the URI and content with the resulting keystream.
func (p *Sha256StreamCipherPlugin) Encrypt(msg Message) (Message, error) {
	iv := make([]byte, cryptoops.IVSize)
	if _, err := rand.Read(iv); err != nil {
		return Message{}, err
	}
	return p.transform(msg, iv)
}

// Decrypt reads the IV from msg's auth fields and reverses Encrypt's
// XOR transform.
func (p *Sha256StreamCipherPlugin) Decrypt(msg Message) (Message, error) {
	iv, ok := msg.AuthFields.Get(p.ivField)
	if !ok {
		return Message{}, fmt.Errorf("%w: missing iv field", ErrMalformedFrame)
	}
	return p.transform(msg, iv)
}
