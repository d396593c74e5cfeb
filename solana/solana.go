package solana

import (
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Commitment is the commitment level used by reads and confirmations in this package.
var Commitment = rpc.CommitmentConfirmed

// IsSimulate makes SendTransaction simulate instead of submitting.
var IsSimulate bool

const (
	// MintSize is the size of a mint account without extensions.
	MintSize = 82
	// AccountSize is the size of a token account without extensions.
	AccountSize = 165
	// MaxTransactionSize is the maximum size of a serialized transaction packet.
	MaxTransactionSize = 1232
)

// Filter selects token accounts by mint and, optionally, owner.
type Filter struct {
	Mint  solana.PublicKey // Mint the accounts belong to
	Owner solana.PublicKey // Account owner, zero means any
}

// IsTokenProgram reports whether program is the SPL Token or the Token-2022 program.
func IsTokenProgram(program solana.PublicKey) bool {
	return program.Equals(solana.TokenProgramID) || program.Equals(solana.Token2022ProgramID)
}
