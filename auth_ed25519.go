package netaio

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/k98kurz/netaio/core/cryptoops"
)

// PeerKeyResolver looks up the Ed25519 public key that should have
// signed msg. Ed25519AuthPluginConfig.PeerKeyResolver lets a node
// verify against whichever peer is currently configured as
// counterparty (the use_peer_lock case) instead of one fixed key.
type PeerKeyResolver func(msg Message) (ed25519.PublicKey, error)

// Ed25519AuthPluginConfig configures an Ed25519AuthPlugin.
type Ed25519AuthPluginConfig struct {
	Credential cryptoops.Credential

	// PeerPublicKey verifies incoming messages when PeerKeyResolver is
	// nil: the common point-to-point case where both ends' keys are
	// known up front.
	PeerPublicKey ed25519.PublicKey

	// PeerKeyResolver, if set, overrides PeerPublicKey and resolves a
	// verification key per message, e.g. from a peer registry lookup
	// keyed by a field carried in msg's auth fields.
	PeerKeyResolver PeerKeyResolver

	NonceField   string // default "nonce"
	TSField      string // default "ts"
	WitnessField string // default "witness"
}

// Ed25519AuthPlugin signs a nonce, timestamp, and body with an Ed25519
// credential and verifies the same construction on receipt. It plays
// the role netaio's original Tapescript-script-based auth plugin did,
// with a bare Ed25519 signature standing in for a witness script.
type Ed25519AuthPlugin struct {
	cred         cryptoops.Credential
	peerKey      ed25519.PublicKey
	resolveKey   PeerKeyResolver
	nonceField   string
	tsField      string
	witnessField string
}

// NewEd25519AuthPlugin builds a plugin from cfg.
func NewEd25519AuthPlugin(cfg Ed25519AuthPluginConfig) (*Ed25519AuthPlugin, error) {
	if cfg.Credential.PublicKey() == nil {
		return nil, fmt.Errorf("netaio: Ed25519AuthPlugin requires a credential")
	}
	return &Ed25519AuthPlugin{
		cred:         cfg.Credential,
		peerKey:      cfg.PeerPublicKey,
		resolveKey:   cfg.PeerKeyResolver,
		nonceField:   orDefault(cfg.NonceField, "nonce"),
		tsField:      orDefault(cfg.TSField, "ts"),
		witnessField: orDefault(cfg.WitnessField, "witness"),
	}, nil
}

func signedPayload(nonce []byte, ts uint32, body Body) ([]byte, error) {
	bodyBuf, err := bodyBytes(body)
	if err != nil {
		return nil, err
	}
	var tsBuf [4]byte
	binary.BigEndian.PutUint32(tsBuf[:], ts)
	payload := make([]byte, 0, len(nonce)+4+len(bodyBuf))
	payload = append(payload, nonce...)
	payload = append(payload, tsBuf[:]...)
	payload = append(payload, bodyBuf...)
	return payload, nil
}

// Make signs a fresh nonce, the current timestamp, and the body with
// the plugin's own credential.
func (p *Ed25519AuthPlugin) Make(msg Message) (AuthFields, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return AuthFields{}, err
	}
	ts := uint32(time.Now().Unix())
	payload, err := signedPayload(nonce, ts, msg.Body)
	if err != nil {
		return AuthFields{}, err
	}
	witness := p.cred.Sign(payload)

	out := msg.AuthFields
	if out.Fields == nil {
		out = NewAuthFields()
	}
	var tsBuf [4]byte
	binary.BigEndian.PutUint32(tsBuf[:], ts)
	out.Set(p.nonceField, nonce)
	out.Set(p.tsField, tsBuf[:])
	out.Set(p.witnessField, witness)
	return out, nil
}

// Check verifies the witness signature against the resolved peer
// public key.
func (p *Ed25519AuthPlugin) Check(msg Message) (bool, error) {
	nonce, ok := msg.AuthFields.Get(p.nonceField)
	if !ok {
		return false, nil
	}
	tsBytes, ok := msg.AuthFields.Get(p.tsField)
	if !ok || len(tsBytes) != 4 {
		return false, nil
	}
	witness, ok := msg.AuthFields.Get(p.witnessField)
	if !ok {
		return false, nil
	}
	ts := binary.BigEndian.Uint32(tsBytes)

	key := p.peerKey
	if p.resolveKey != nil {
		resolved, err := p.resolveKey(msg)
		if err != nil {
			return false, err
		}
		key = resolved
	}
	if len(key) != ed25519.PublicKeySize {
		return false, nil
	}

	payload, err := signedPayload(nonce, ts, msg.Body)
	if err != nil {
		return false, err
	}
	return p.cred.Verify(key, payload, witness), nil
}

func (p *Ed25519AuthPlugin) Error() error { return ErrAuthFailure }
