package token2022

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// optionalNonZeroPubkey decodes a 32-byte key where all zeroes means none.
func optionalNonZeroPubkey(b []byte) *solana.PublicKey {
	key := solana.PublicKeyFromBytes(b[:32])
	if key.IsZero() {
		return nil
	}
	return &key
}

func (e *Extensions) TransferFeeAmount() (uint64, error) {
	raw, err := e.value(ExtensionTransferFeeAmount)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw[:8]), nil
}

func (e *Extensions) MintCloseAuthority() (*solana.PublicKey, error) {
	raw, err := e.value(ExtensionMintCloseAuthority)
	if err != nil {
		return nil, err
	}
	return optionalNonZeroPubkey(raw), nil
}

func (e *Extensions) PermanentDelegate() (*solana.PublicKey, error) {
	raw, err := e.value(ExtensionPermanentDelegate)
	if err != nil {
		return nil, err
	}
	return optionalNonZeroPubkey(raw), nil
}

// DefaultAccountState returns the state new accounts are created in (1 initialized, 2 frozen).
func (e *Extensions) DefaultAccountState() (uint8, error) {
	raw, err := e.value(ExtensionDefaultAccountState)
	if err != nil {
		return 0, err
	}
	return raw[0], nil
}

func (e *Extensions) MemoTransferRequired() (bool, error) {
	raw, err := e.value(ExtensionMemoTransfer)
	if err != nil {
		return false, err
	}
	return raw[0] != 0, nil
}

func (e *Extensions) CpiGuardEnabled() (bool, error) {
	raw, err := e.value(ExtensionCpiGuard)
	if err != nil {
		return false, err
	}
	return raw[0] != 0, nil
}

type InterestBearingConfig struct {
	RateAuthority           *solana.PublicKey
	InitializationTimestamp int64
	PreUpdateAverageRate    int16
	LastUpdateTimestamp     int64
	CurrentRate             int16 // basis points
}

func (e *Extensions) InterestBearingConfig() (*InterestBearingConfig, error) {
	raw, err := e.value(ExtensionInterestBearingConfig)
	if err != nil {
		return nil, err
	}
	return &InterestBearingConfig{
		RateAuthority:           optionalNonZeroPubkey(raw[0:32]),
		InitializationTimestamp: int64(binary.LittleEndian.Uint64(raw[32:40])),
		PreUpdateAverageRate:    int16(binary.LittleEndian.Uint16(raw[40:42])),
		LastUpdateTimestamp:     int64(binary.LittleEndian.Uint64(raw[42:50])),
		CurrentRate:             int16(binary.LittleEndian.Uint16(raw[50:52])),
	}, nil
}

type TransferHook struct {
	Authority *solana.PublicKey
	ProgramID *solana.PublicKey
}

func (e *Extensions) TransferHook() (*TransferHook, error) {
	raw, err := e.value(ExtensionTransferHook)
	if err != nil {
		return nil, err
	}
	return &TransferHook{
		Authority: optionalNonZeroPubkey(raw[0:32]),
		ProgramID: optionalNonZeroPubkey(raw[32:64]),
	}, nil
}

// Pointer is the shared layout of MetadataPointer, GroupPointer and GroupMemberPointer.
type Pointer struct {
	Authority *solana.PublicKey
	Address   *solana.PublicKey
}

func (e *Extensions) pointer(t ExtensionType) (*Pointer, error) {
	raw, err := e.value(t)
	if err != nil {
		return nil, err
	}
	return &Pointer{
		Authority: optionalNonZeroPubkey(raw[0:32]),
		Address:   optionalNonZeroPubkey(raw[32:64]),
	}, nil
}

func (e *Extensions) MetadataPointer() (*Pointer, error) {
	return e.pointer(ExtensionMetadataPointer)
}

func (e *Extensions) GroupPointer() (*Pointer, error) {
	return e.pointer(ExtensionGroupPointer)
}

func (e *Extensions) GroupMemberPointer() (*Pointer, error) {
	return e.pointer(ExtensionGroupMemberPointer)
}

// NonTransferable reports whether the mint (or account) is non-transferable.
func (e *Extensions) NonTransferable() bool {
	return e.Has(ExtensionNonTransferable) || e.Has(ExtensionNonTransferableAccount)
}
