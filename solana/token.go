package solana

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// Token represents a Solana token with mint information and owner
type Token struct {
	token.Mint
	// Address of the mint account
	Address solana.PublicKey
	// Owner is the token program that owns the mint
	Owner solana.PublicKey
	// Raw mint account data, Token-2022 extensions live past AccountSize
	Data []byte
}

// IsToken2022 reports whether the mint belongs to the Token-2022 program.
func (t *Token) IsToken2022() bool {
	return t.Owner.Equals(solana.Token2022ProgramID)
}

// TokenLayout provides methods for decoding token data
type TokenLayout struct {
}

func (l *TokenLayout) Decode(data []byte) (*Token, error) {
	if len(data) < MintSize {
		return nil, fmt.Errorf("mint data too short: got=%d want>=%d", len(data), MintSize)
	}
	mint := token.Mint{}
	if err := mint.UnmarshalWithDecoder(bin.NewBinDecoder(data[:MintSize])); err != nil {
		return nil, err
	}
	return &Token{Mint: mint, Data: data}, nil
}
