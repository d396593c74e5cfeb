package solana

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const signatureLength = 64

var ErrInstructionTooLarge = errors.New("instruction does not fit in a single transaction")

func compactU16Len(n int) int {
	switch {
	case n < 0x80:
		return 1
	case n < 0x4000:
		return 2
	default:
		return 3
	}
}

// TransactionSize returns the serialized size of tx once every required signature is present.
func TransactionSize(tx *solana.Transaction) (int, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return 0, err
	}
	sigs := int(tx.Message.Header.NumRequiredSignatures)
	return compactU16Len(sigs) + sigs*signatureLength + len(msg), nil
}

// InstructionsSize is TransactionSize for a transaction built from instructions.
func InstructionsSize(instructions []solana.Instruction, payer solana.PublicKey) (int, error) {
	tx, err := solana.NewTransaction(instructions, solana.Hash{}, solana.TransactionPayer(payer))
	if err != nil {
		return 0, err
	}
	return TransactionSize(tx)
}

// ChunkInstructions greedily packs instructions into batches whose transaction stays within
// MaxTransactionSize. prefix (e.g. compute budget) is repeated at the head of every batch.
func ChunkInstructions(instructions []solana.Instruction, payer solana.PublicKey, prefix ...solana.Instruction) ([][]solana.Instruction, error) {
	var (
		chunks  [][]solana.Instruction
		current []solana.Instruction
	)
	for i, ix := range instructions {
		candidate := make([]solana.Instruction, 0, len(prefix)+len(current)+1)
		candidate = append(candidate, prefix...)
		candidate = append(candidate, current...)
		candidate = append(candidate, ix)

		size, err := InstructionsSize(candidate, payer)
		if err != nil {
			return nil, err
		}
		if size <= MaxTransactionSize {
			current = append(current, ix)
			continue
		}
		if len(current) == 0 {
			return nil, fmt.Errorf("instruction %d (%d bytes): %w", i, size, ErrInstructionTooLarge)
		}
		chunks = append(chunks, withPrefix(prefix, current))
		current = []solana.Instruction{ix}

		size, err = InstructionsSize(withPrefix(prefix, current), payer)
		if err != nil {
			return nil, err
		}
		if size > MaxTransactionSize {
			return nil, fmt.Errorf("instruction %d (%d bytes): %w", i, size, ErrInstructionTooLarge)
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, withPrefix(prefix, current))
	}
	return chunks, nil
}

func withPrefix(prefix, instructions []solana.Instruction) []solana.Instruction {
	out := make([]solana.Instruction, 0, len(prefix)+len(instructions))
	out = append(out, prefix...)
	return append(out, instructions...)
}
