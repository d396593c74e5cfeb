package token2022

import (
	"errors"
	"fmt"
)

const (
	multisigSize = 355
	typeSize     = 2
)

var ErrVariableLengthExtension = errors.New("extension has no fixed length")

func accountLen(types []ExtensionType) (int, error) {
	tlv := 0
	for _, t := range types {
		size := t.Size()
		if size < 0 {
			return 0, fmt.Errorf("%s: %w", t, ErrVariableLengthExtension)
		}
		tlv += tlvHeaderSize + size
	}
	size := baseAccountSize + 1 + tlv
	if size == multisigSize {
		size += typeSize
	}
	return size, nil
}

// MintSize returns the space of a mint carrying the given fixed-length extensions.
func MintSize(types ...ExtensionType) (int, error) {
	if len(types) == 0 {
		return baseMintSize, nil
	}
	return accountLen(types)
}

// AccountSize returns the space of a token account carrying the given extensions.
func AccountSize(types ...ExtensionType) (int, error) {
	if len(types) == 0 {
		return baseAccountSize, nil
	}
	return accountLen(types)
}

// AccountExtensionsForMint lists the account extensions required by mint extensions.
func AccountExtensionsForMint(types ...ExtensionType) []ExtensionType {
	var out []ExtensionType
	for _, t := range types {
		switch t {
		case ExtensionTransferFeeConfig:
			out = append(out, ExtensionTransferFeeAmount)
		case ExtensionNonTransferable:
			out = append(out, ExtensionNonTransferableAccount)
		case ExtensionTransferHook:
			out = append(out, ExtensionTransferHookAccount)
		case ExtensionPausable:
			out = append(out, ExtensionPausableAccount)
		}
	}
	return out
}
