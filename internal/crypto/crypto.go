// Package crypto implements the tunnel's crypto context (C1): a precomputed
// X25519 shared secret and NaCl box seal/open over it.
//
// Grounded on golang.org/x/crypto/nacl/box, which the teacher repo already
// imports in infrastructure/cryptography/chacha20/handshake/encrypter.go for
// its handshake layer. box.Precompute is the Go equivalent of
// crypto_box_beforenm; box.SealAfterPrecomputation/OpenAfterPrecomputation
// are crypto_box_afternm/crypto_box_open_afternm.
package crypto

import (
	"golang.org/x/crypto/nacl/box"
)

// NonceSize is the length in bytes of a box nonce (spec: 24-byte nonce).
const NonceSize = 24

// Context holds the long-term precomputed shared secret K for one tunnel
// session. It is built once at startup and is immutable for the process
// lifetime (spec §3: "K is constant for the lifetime of the process").
type Context struct {
	shared [32]byte
}

// NewContext precomputes K from our secret key and the peer's public key.
func NewContext(ourSecret, theirPublic [32]byte) *Context {
	c := &Context{}
	box.Precompute(&c.shared, &theirPublic, &ourSecret)
	return c
}

// Seal authenticated-encrypts plaintext under (K, nonce). The returned slice
// is appended to out, which may be nil; out and plaintext must not overlap
// unless out is plaintext[:0]. Seal has no failure result: the nonce is a
// fixed-size array, so its length cannot be malformed.
func (c *Context) Seal(out, plaintext []byte, nonce *[NonceSize]byte) []byte {
	return box.SealAfterPrecomputation(out, plaintext, nonce, &c.shared)
}

// Open verifies the MAC and decrypts ciphertext under (K, nonce). A false
// second return means authentication failed — the spec's AUTH_FAIL: the
// caller must discard the packet and continue, never treat it as fatal.
func (c *Context) Open(out, ciphertext []byte, nonce *[NonceSize]byte) ([]byte, bool) {
	return box.OpenAfterPrecomputation(out, ciphertext, nonce, &c.shared)
}

// Overhead is the AEAD's ciphertext expansion over the plaintext length
// (spec §4.1: "a net 16-byte expansion").
const Overhead = box.Overhead
