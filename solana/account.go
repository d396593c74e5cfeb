package solana

import (
	"fmt"

	binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

type AccountState uint8

const (
	AccountStateUninitialized AccountState = 0
	AccountStateInitialized   AccountState = 1
	AccountStateFrozen        AccountState = 2
)

type Account struct {
	Address solana.PublicKey

	// Token program that owns the account (SPL Token or Token-2022)
	Program solana.PublicKey

	// Lamports held by the account, reclaimed on close
	Lamports uint64

	// Mint associated with the account
	Mint solana.PublicKey

	// Owner of the account
	Owner solana.PublicKey

	// Number of tokens the account holds
	Amount uint64

	// Authority that can transfer tokens from the account
	Delegate *solana.PublicKey

	// Number of tokens the delegate is authorized to transfer
	DelegatedAmount uint64

	// True if the account is initialized
	IsInitialized bool

	// True if the account is frozen
	IsFrozen bool

	// True if the account is a native token account
	IsNative bool

	// If the account is a native token account, it must be rent-exempt.
	// The rent-exempt reserve is the amount that must remain in the balance until the account is closed.
	RentExemptReserve *uint64

	// Optional authority to close the account
	CloseAuthority *solana.PublicKey

	// Raw account data, Token-2022 extensions live past AccountSize
	Data []byte
}

// IsEmpty reports whether the account holds no tokens.
func (a *Account) IsEmpty() bool {
	return a.Amount == 0
}

// tokenAccountLayout https://github.com/solana-labs/solana-program-library/blob/d72289c79a04411c69a8bf1054f7156b6196f9b3/token/js/src/state/account.ts#L69
type tokenAccountLayout struct {
	Mint                 solana.PublicKey
	Owner                solana.PublicKey
	Amount               uint64
	DelegateOption       uint32
	Delegate             solana.PublicKey
	State                uint8
	IsNativeOption       uint32
	IsNative             uint64
	DelegatedAmount      uint64
	CloseAuthorityOption uint32
	CloseAuthority       solana.PublicKey
}

type AccountLayout struct {
}

func (l *AccountLayout) Decode(data []byte) (*Account, error) {
	if len(data) < AccountSize {
		return nil, fmt.Errorf("token account data too short: got=%d want>=%d", len(data), AccountSize)
	}
	raw := &tokenAccountLayout{}
	if err := binary.NewBinDecoder(data[:AccountSize]).Decode(raw); err != nil {
		return nil, err
	}
	acc := &Account{
		Mint:            raw.Mint,
		Owner:           raw.Owner,
		Amount:          raw.Amount,
		DelegatedAmount: raw.DelegatedAmount,
		IsInitialized:   AccountState(raw.State) != AccountStateUninitialized,
		IsFrozen:        AccountState(raw.State) == AccountStateFrozen,
		IsNative:        raw.IsNativeOption > 0,
		Data:            data,
	}
	if raw.DelegateOption > 0 {
		delegate := raw.Delegate
		acc.Delegate = &delegate
	}
	if raw.IsNativeOption > 0 {
		reserve := raw.IsNative
		acc.RentExemptReserve = &reserve
	}
	if raw.CloseAuthorityOption > 0 {
		closeAuthority := raw.CloseAuthority
		acc.CloseAuthority = &closeAuthority
	}
	return acc, nil
}
