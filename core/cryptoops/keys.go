// Package cryptoops collects the cryptographic primitives shared by
// netaio's bundled auth and cipher plugins: key derivation, the
// stream cipher used by Sha256StreamCipherPlugin, and the Ed25519
// credential type used by Ed25519AuthPlugin.
package cryptoops

import "crypto/sha256"

// IVSize is the size in bytes of the initialization vector consumed
// by Keystream and produced by callers that need a fresh one.
const IVSize = 16

// DeriveKey combines any number of secret parts into a single 32-byte
// key: each part is hashed independently, the digests are
// concatenated, and the result is hashed again. Hashing each part
// first means a short, low-entropy part (e.g. a counter) never
// shortens the effective key material the way naive concatenation
// would.
func DeriveKey(parts ...[]byte) []byte {
	h := sha256.New()
	for _, part := range parts {
		digest := sha256.Sum256(part)
		h.Write(digest[:])
	}
	sum := h.Sum(nil)
	return sum
}
