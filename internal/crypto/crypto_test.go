package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"golang.org/x/crypto/curve25519"
)

func genKeyPair(t *testing.T) (secret, public [32]byte) {
	t.Helper()
	if _, err := rand.Read(secret[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		t.Fatalf("X25519: %v", err)
	}
	copy(public[:], pub)
	return secret, public
}

func TestSealOpenRoundTrip(t *testing.T) {
	aSecret, aPublic := genKeyPair(t)
	bSecret, bPublic := genKeyPair(t)

	ctxA := NewContext(aSecret, bPublic)
	ctxB := NewContext(bSecret, aPublic)

	var nonce [NonceSize]byte
	nonce[23] = 1

	for _, msg := range [][]byte{{}, []byte("hello"), make([]byte, 1500)} {
		ct := ctxA.Seal(nil, msg, &nonce)
		pt, ok := ctxB.Open(nil, ct, &nonce)
		if !ok {
			t.Fatalf("Open failed for message of length %d", len(msg))
		}
		if !bytes.Equal(pt, msg) {
			t.Fatalf("round trip mismatch: got %x, want %x", pt, msg)
		}
		if len(ct) != len(msg)+Overhead {
			t.Fatalf("ciphertext length = %d, want %d", len(ct), len(msg)+Overhead)
		}
	}
}

func TestBeforenmIsSymmetric(t *testing.T) {
	aSecret, aPublic := genKeyPair(t)
	bSecret, bPublic := genKeyPair(t)

	ctxA := NewContext(aSecret, bPublic)
	ctxB := NewContext(bSecret, aPublic)

	var nonce [NonceSize]byte
	msg := []byte("symmetric shared secret")

	ct := ctxA.Seal(nil, msg, &nonce)
	pt, ok := ctxB.Open(nil, ct, &nonce)
	if !ok || !bytes.Equal(pt, msg) {
		t.Fatalf("beforenm(pkB,skA) and beforenm(pkA,skB) disagree")
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	aSecret, aPublic := genKeyPair(t)
	bSecret, bPublic := genKeyPair(t)

	ctxA := NewContext(aSecret, bPublic)
	ctxB := NewContext(bSecret, aPublic)

	var nonce [NonceSize]byte
	ct := ctxA.Seal(nil, []byte("authenticated"), &nonce)
	ct[0] ^= 0xFF

	if _, ok := ctxB.Open(nil, ct, &nonce); ok {
		t.Fatal("expected authentication failure for tampered ciphertext")
	}
}

func TestOpenRejectsWrongNonce(t *testing.T) {
	aSecret, aPublic := genKeyPair(t)
	bSecret, bPublic := genKeyPair(t)

	ctxA := NewContext(aSecret, bPublic)
	ctxB := NewContext(bSecret, aPublic)

	var sealNonce, openNonce [NonceSize]byte
	openNonce[0] = 1

	ct := ctxA.Seal(nil, []byte("payload"), &sealNonce)
	if _, ok := ctxB.Open(nil, ct, &openNonce); ok {
		t.Fatal("expected authentication failure for mismatched nonce")
	}
}
