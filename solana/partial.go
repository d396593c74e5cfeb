package solana

import (
	"encoding/base64"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var ErrNotASigner = errors.New("key is not a required signer of the transaction")

// PartialSign adds the signatures of keys to tx, leaving the other signer slots untouched.
// Used when the fee payer signs later in an external wallet.
func PartialSign(tx *solana.Transaction, keys ...solana.PrivateKey) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return err
	}
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) < required {
		sigs := make([]solana.Signature, required)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}

	for _, key := range keys {
		pub := key.PublicKey()
		index := -1
		for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
			if tx.Message.AccountKeys[i].Equals(pub) {
				index = i
				break
			}
		}
		if index < 0 {
			return fmt.Errorf("%s: %w", pub, ErrNotASigner)
		}
		sig, err := key.Sign(msg)
		if err != nil {
			return err
		}
		tx.Signatures[index] = sig
	}
	return nil
}

// MissingSigners lists the required signers whose signature slot is still empty.
func MissingSigners(tx *solana.Transaction) []solana.PublicKey {
	var missing []solana.PublicKey
	required := int(tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if i >= len(tx.Signatures) || tx.Signatures[i].IsZero() {
			missing = append(missing, tx.Message.AccountKeys[i])
		}
	}
	return missing
}

// EncodeTransaction serializes tx (signed or not) to base64 wire format.
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) < required {
		sigs := make([]solana.Signature, required)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTransaction parses a base64 wire-format transaction.
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64 transaction: %w", err)
	}
	return solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
}
