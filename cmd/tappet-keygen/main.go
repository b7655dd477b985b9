// Command tappet-keygen generates an X25519 secret/public key pair and
// writes it to a file in the hex format internal/keys reads.
//
// Grounded on the original tappet-keygen.c (generate a random secret,
// derive the public key, print both as hex) and on the teacher's
// crypto/asymmetric/curve25519/curve25519.go, which performs the same
// ScalarBaseMult derivation for its handshake keys.
package main

import (
	"crypto/rand"
	"fmt"
	"os"

	"golang.org/x/crypto/curve25519"

	"github.com/amenonsen/tappet/internal/keys"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: tappet-keygen <output-file>")
		return -1
	}

	var secret, public [keys.Size]byte
	if _, err := rand.Read(secret[:]); err != nil {
		fmt.Fprintf(os.Stderr, "tappet-keygen: couldn't generate a secret key: %v\n", err)
		return -1
	}
	curve25519.ScalarBaseMult(&public, &secret)

	if err := keys.WriteKeyPairFile(os.Args[1], secret, public); err != nil {
		fmt.Fprintf(os.Stderr, "tappet-keygen: %v\n", err)
		return -1
	}

	return 0
}
