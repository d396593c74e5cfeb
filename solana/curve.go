package solana

import (
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
)

var ErrInvalidAddress = errors.New("invalid address")

// IsOnCurve reports whether key is a valid ed25519 point, i.e. can belong to a keypair.
// Program derived addresses are off curve.
func IsOnCurve(key solana.PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(key[:])
	return err == nil
}

// ParseAddress parses a base58 address, trimming surrounding whitespace.
func ParseAddress(s string) (solana.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return solana.PublicKey{}, fmt.Errorf("empty address: %w", ErrInvalidAddress)
	}
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%q: %w", s, ErrInvalidAddress)
	}
	return key, nil
}
