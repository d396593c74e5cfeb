package tokens

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/krazyTry/spl-toolkit/inspect"
)

type TokenType string

const (
	TypeSOL       TokenType = "sol"
	TypeSPL       TokenType = "spl"
	TypeToken2022 TokenType = "token2022"
)

const (
	UnknownName   = "Unknown Token"
	UnknownSymbol = "UNKNOWN"

	SOLDecimals = 9
)

// TokenItem is one holding of a wallet.
type TokenItem struct {
	ID       string            `json:"id"` // mint, "SOL" for native
	Name     string            `json:"name"`
	Symbol   string            `json:"symbol"`
	Balance  decimal.Decimal   `json:"balance"`
	Amount   uint64            `json:"amount"`
	Decimals uint8             `json:"decimals"`
	Image    string            `json:"image,omitempty"`
	Price    *float64          `json:"price,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Account  string            `json:"account,omitempty"`
	Program  string            `json:"program,omitempty"`
	Type     TokenType         `json:"type"`
	Frozen   bool              `json:"frozen"`
}

// ExtensionSummary describes one Token-2022 extension of a mint.
type ExtensionSummary struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// TxSummary is one transaction touching a token account.
type TxSummary struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime *time.Time      `json:"blockTime,omitempty"`
	Err       string          `json:"err,omitempty"`
	Memo      string          `json:"memo,omitempty"`
	Change    decimal.Decimal `json:"change"`
}

// TokenDetails is a TokenItem with mint-wide information.
type TokenDetails struct {
	TokenItem
	Supply          decimal.Decimal            `json:"supply"`
	RawSupply       uint64                     `json:"rawSupply"`
	Description     string                     `json:"description,omitempty"`
	Extensions      []ExtensionSummary         `json:"extensions"`
	ExtensionInfo   inspect.TokenExtensionInfo `json:"extensionInfo"`
	Warnings        []inspect.Warning          `json:"warnings,omitempty"`
	Links           map[string]string          `json:"links,omitempty"`
	Transactions    []TxSummary                `json:"transactions"`
	MintAuthority   string                     `json:"mintAuthority,omitempty"`
	FreezeAuthority string                     `json:"freezeAuthority,omitempty"`
}

// MintInfo is the decoded state of a mint with its extensions.
type MintInfo struct {
	Address         solana.PublicKey
	Program         solana.PublicKey
	Decimals        uint8
	Supply          uint64
	MintAuthority   *solana.PublicKey
	FreezeAuthority *solana.PublicKey
	Data            []byte
}

func (m *MintInfo) IsToken2022() bool {
	return m.Program.Equals(solana.Token2022ProgramID)
}
