package solana

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	jsoniter "github.com/json-iterator/go"
	"github.com/mr-tron/base58"
)

var ErrInvalidKeypair = errors.New("invalid keypair")

// LoadKeypair reads a keypair from a solana-keygen JSON file, or parses value itself
// when it is a JSON byte array or a base58 secret key.
func LoadKeypair(value string) (solana.PrivateKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty keypair: %w", ErrInvalidKeypair)
	}
	if !strings.HasPrefix(value, "[") {
		if raw, err := os.ReadFile(value); err == nil {
			value = strings.TrimSpace(string(raw))
		}
	}
	return ParseKeypair(value)
}

// ParseKeypair parses a 64-byte secret key given as a JSON byte array or base58.
func ParseKeypair(value string) (solana.PrivateKey, error) {
	var raw []byte
	if strings.HasPrefix(value, "[") {
		var ints []uint8
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal([]byte(value), &ints); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
		}
		raw = ints
	} else {
		decoded, err := base58.Decode(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
		}
		raw = decoded
	}
	if len(raw) != 64 {
		return nil, fmt.Errorf("%w: want 64 bytes, got %d", ErrInvalidKeypair, len(raw))
	}
	key := solana.PrivateKey(raw)
	// the public half must match the seed
	derived := solana.PrivateKey(ed25519.NewKeyFromSeed(raw[:32]))
	if !derived.PublicKey().Equals(key.PublicKey()) {
		return nil, fmt.Errorf("%w: public key does not match secret", ErrInvalidKeypair)
	}
	return key, nil
}

// Signer returns a sign callback for solana.Transaction.Sign over keys.
func Signer(keys ...solana.PrivateKey) func(solana.PublicKey) *solana.PrivateKey {
	return func(pub solana.PublicKey) *solana.PrivateKey {
		for i := range keys {
			if keys[i].PublicKey().Equals(pub) {
				return &keys[i]
			}
		}
		return nil
	}
}
