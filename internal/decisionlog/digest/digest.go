// Package digest commits free-text justifications as Keccak-256 values.
//
// The digest is computed over the exact UTF-8 bytes of the text. There is no
// salt and no normalization: a single whitespace or encoding difference
// yields a different digest.
package digest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Size is the length of a digest in bytes.
const Size = 32

var ErrMalformed = errors.New("digest must be 32 bytes of hex")

// Digest is a Keccak-256 value, the same encoding Solidity uses for bytes32.
type Digest [Size]byte

// Of returns the Keccak-256 digest of text's UTF-8 bytes.
func Of(text string) Digest {
	return OfBytes([]byte(text))
}

func OfBytes(b []byte) Digest {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(b)

	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Parse accepts a 64-character hex string with or without a 0x prefix,
// in either case.
func Parse(s string) (Digest, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != Size*2 {
		return Digest{}, fmt.Errorf("%w: got %d hex characters", ErrMalformed, len(s))
	}

	var d Digest
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return Digest{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return d, nil
}

// Hex returns the 0x-prefixed lowercase hex form.
func (d Digest) Hex() string {
	return "0x" + hex.EncodeToString(d[:])
}

func (d Digest) String() string { return d.Hex() }

func (d Digest) IsZero() bool { return d == Digest{} }

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.Hex()), nil
}

func (d *Digest) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
