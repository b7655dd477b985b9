// Package keys implements the hex key-file format shared by tappet and
// tappet-keygen: 64 lowercase hex characters followed by a newline.
//
// Grounded on the original tappet.h contract (a single read_key(name, key)
// reader used for both secret and public keys) and on the teacher repo's
// crypto/asymmetric/curve25519 key-pair generator.
package keys

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
)

// Size is the length in bytes of an X25519 secret or public key.
const Size = 32

// ReadKeyFile reads a single 32-byte key from the first line of path. The
// line must be exactly 64 hex characters followed by '\n' (tappet-keygen
// writes lowercase; uppercase digits are accepted too); any other shape is
// a fatal, reported error (spec: "Key files" / §7 fatal class "key-file
// format error").
func ReadKeyFile(path string) ([Size]byte, error) {
	var key [Size]byte

	f, err := os.Open(path)
	if err != nil {
		return key, fmt.Errorf("couldn't open key file %s: %w", path, err)
	}
	defer f.Close()

	line, err := readHexLine(bufio.NewReader(f))
	if err != nil {
		return key, fmt.Errorf("couldn't read key (64 hex characters) from %s: %w", path, err)
	}
	copy(key[:], line)
	return key, nil
}

// ReadKeyPairFile reads a secret key from the first line and a public key
// from the second line of path, the format produced by tappet-keygen.
func ReadKeyPairFile(path string) (secret [Size]byte, public [Size]byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return secret, public, fmt.Errorf("couldn't open keypair file %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	skLine, err := readHexLine(r)
	if err != nil {
		return secret, public, fmt.Errorf("couldn't read private key (64 hex characters) from %s: %w", path, err)
	}
	copy(secret[:], skLine)

	pkLine, err := readHexLine(r)
	if err != nil {
		return secret, public, fmt.Errorf("couldn't read public key (64 hex characters) from %s: %w", path, err)
	}
	copy(public[:], pkLine)

	return secret, public, nil
}

// WriteKeyPairFile writes secret and public as two hex lines, matching the
// format tappet-keygen has always produced.
func WriteKeyPairFile(path string, secret, public [Size]byte) error {
	data := hex.EncodeToString(secret[:]) + "\n" + hex.EncodeToString(public[:]) + "\n"
	return os.WriteFile(path, []byte(data), 0o600)
}

func readHexLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}

	if len(line) != Size*2+1 || line[len(line)-1] != '\n' {
		return nil, fmt.Errorf("expected %d hex characters followed by a newline", Size*2)
	}

	decoded, decErr := hex.DecodeString(line[:Size*2])
	if decErr != nil {
		return nil, fmt.Errorf("invalid hex: %w", decErr)
	}
	return decoded, nil
}
