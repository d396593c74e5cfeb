package token2022

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ExtensionType is the TLV tag of a Token-2022 extension.
type ExtensionType uint16

const (
	ExtensionUninitialized ExtensionType = iota
	ExtensionTransferFeeConfig
	ExtensionTransferFeeAmount
	ExtensionMintCloseAuthority
	ExtensionConfidentialTransferMint
	ExtensionConfidentialTransferAccount
	ExtensionDefaultAccountState
	ExtensionImmutableOwner
	ExtensionMemoTransfer
	ExtensionNonTransferable
	ExtensionInterestBearingConfig
	ExtensionCpiGuard
	ExtensionPermanentDelegate
	ExtensionNonTransferableAccount
	ExtensionTransferHook
	ExtensionTransferHookAccount
	ExtensionConfidentialTransferFeeConfig
	ExtensionConfidentialTransferFeeAmount
	ExtensionMetadataPointer
	ExtensionTokenMetadata
	ExtensionGroupPointer
	ExtensionTokenGroup
	ExtensionGroupMemberPointer
	ExtensionTokenGroupMember
	ExtensionConfidentialMintBurn
	ExtensionScaledUiAmount
	ExtensionPausable
	ExtensionPausableAccount
)

type extensionInfo struct {
	name        string
	description string
	// fixed value length, -1 for variable
	size int
}

var extensionInfos = map[ExtensionType]extensionInfo{
	ExtensionUninitialized:                 {"Uninitialized", "Uninitialized", 0},
	ExtensionTransferFeeConfig:             {"TransferFeeConfig", "Transfer fee charged on every transfer", 108},
	ExtensionTransferFeeAmount:             {"TransferFeeAmount", "Withheld transfer fees on the account", 8},
	ExtensionMintCloseAuthority:            {"MintCloseAuthority", "Mint can be closed by its close authority", 32},
	ExtensionConfidentialTransferMint:      {"ConfidentialTransferMint", "Confidential transfers enabled", -1},
	ExtensionConfidentialTransferAccount:   {"ConfidentialTransferAccount", "Confidential transfer account state", -1},
	ExtensionDefaultAccountState:           {"DefaultAccountState", "New token accounts start in a default state", 1},
	ExtensionImmutableOwner:                {"ImmutableOwner", "Account owner cannot be reassigned", 0},
	ExtensionMemoTransfer:                  {"MemoTransfer", "Incoming transfers require a memo", 1},
	ExtensionNonTransferable:               {"NonTransferable", "Tokens cannot be transferred", 0},
	ExtensionInterestBearingConfig:         {"InterestBearingConfig", "Displayed balance accrues interest", 52},
	ExtensionCpiGuard:                      {"CpiGuard", "Privileged operations blocked inside CPI", 1},
	ExtensionPermanentDelegate:             {"PermanentDelegate", "Permanent delegate can move or burn any holder's tokens", 32},
	ExtensionNonTransferableAccount:        {"NonTransferableAccount", "Account holds non-transferable tokens", 0},
	ExtensionTransferHook:                  {"TransferHook", "Transfers invoke a hook program", 64},
	ExtensionTransferHookAccount:           {"TransferHookAccount", "Transfer hook account state", 1},
	ExtensionConfidentialTransferFeeConfig: {"ConfidentialTransferFeeConfig", "Confidential transfer fee configuration", -1},
	ExtensionConfidentialTransferFeeAmount: {"ConfidentialTransferFeeAmount", "Confidential withheld fees", -1},
	ExtensionMetadataPointer:               {"MetadataPointer", "Points to the account holding token metadata", 64},
	ExtensionTokenMetadata:                 {"TokenMetadata", "Token metadata stored on the mint", -1},
	ExtensionGroupPointer:                  {"GroupPointer", "Points to the token group configuration", 64},
	ExtensionTokenGroup:                    {"TokenGroup", "Token group configuration", 80},
	ExtensionGroupMemberPointer:            {"GroupMemberPointer", "Points to the group member configuration", 64},
	ExtensionTokenGroupMember:              {"TokenGroupMember", "Member of a token group", 72},
	ExtensionConfidentialMintBurn:          {"ConfidentialMintBurn", "Confidential mint and burn", -1},
	ExtensionScaledUiAmount:                {"ScaledUiAmount", "Displayed amount is scaled by a multiplier", 56},
	ExtensionPausable:                      {"Pausable", "Mint, burn and transfer can be paused", 33},
	ExtensionPausableAccount:               {"PausableAccount", "Pausable account marker", 0},
}

func (t ExtensionType) String() string {
	if info, ok := extensionInfos[t]; ok {
		return info.name
	}
	return fmt.Sprintf("Unknown(%d)", uint16(t))
}

// Description is a human readable summary of the extension.
func (t ExtensionType) Description() string {
	if info, ok := extensionInfos[t]; ok {
		return info.description
	}
	return fmt.Sprintf("Unknown extension %d", uint16(t))
}

// Known reports whether this decoder knows the layout of t.
func (t ExtensionType) Known() bool {
	_, ok := extensionInfos[t]
	return ok
}

// Size returns the fixed value length of t, or -1 when variable or unknown.
func (t ExtensionType) Size() int {
	if info, ok := extensionInfos[t]; ok {
		return info.size
	}
	return -1
}

// AccountType is the byte that follows the base layout of an extended account.
type AccountType uint8

const (
	AccountTypeUninitialized AccountType = 0
	AccountTypeMint          AccountType = 1
	AccountTypeAccount       AccountType = 2
)

const (
	baseMintSize    = 82
	baseAccountSize = 165
	// AccountTypeOffset is where the AccountType byte sits in extended mints and accounts.
	AccountTypeOffset = baseAccountSize
	// TLVOffset is the start of the first extension record.
	TLVOffset = baseAccountSize + 1

	tlvHeaderSize = 4
	// LayoutVersion identifies the extension layout this decoder implements.
	LayoutVersion = 1
)

var (
	ErrTruncatedExtension = errors.New("extension runs past end of account data")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrExtensionTooShort  = errors.New("extension value shorter than its layout")
	ErrExtensionNotFound  = errors.New("extension not found")
)

// Extension is a single TLV record. Raw aliases the account data.
type Extension struct {
	Type ExtensionType
	Raw  []byte
}

// Extensions is the decoded extension area of a mint or token account.
type Extensions struct {
	Version     int
	AccountType AccountType
	List        []Extension
}

// ParseExtensions decodes the TLV area of raw mint or token account data.
// Data without an extension area decodes to an empty list.
func ParseExtensions(data []byte) (*Extensions, error) {
	exts := &Extensions{Version: LayoutVersion}
	if len(data) <= baseAccountSize {
		return exts, nil
	}

	exts.AccountType = AccountType(data[AccountTypeOffset])
	switch exts.AccountType {
	case AccountTypeMint, AccountTypeAccount:
	case AccountTypeUninitialized:
		return exts, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidAccountType, data[AccountTypeOffset])
	}
	// a mint's base layout is padded with zeroes up to the account size
	if exts.AccountType == AccountTypeMint {
		for _, b := range data[baseMintSize:baseAccountSize] {
			if b != 0 {
				return nil, fmt.Errorf("%w: mint padding is not empty", ErrInvalidAccountType)
			}
		}
	}

	offset := TLVOffset
	for offset+tlvHeaderSize <= len(data) {
		typ := ExtensionType(binary.LittleEndian.Uint16(data[offset:]))
		length := int(binary.LittleEndian.Uint16(data[offset+2:]))
		if typ == ExtensionUninitialized && length == 0 {
			break
		}
		start := offset + tlvHeaderSize
		end := start + length
		if end > len(data) {
			return nil, fmt.Errorf("%w: %s at %d wants %d bytes, %d left", ErrTruncatedExtension, typ, offset, length, len(data)-start)
		}
		exts.List = append(exts.List, Extension{Type: typ, Raw: data[start:end:end]})
		offset = end
	}
	return exts, nil
}

// Has reports whether the extension is present.
func (e *Extensions) Has(t ExtensionType) bool {
	_, ok := e.Get(t)
	return ok
}

func (e *Extensions) Get(t ExtensionType) (Extension, bool) {
	if e == nil {
		return Extension{}, false
	}
	for _, ext := range e.List {
		if ext.Type == t {
			return ext, true
		}
	}
	return Extension{}, false
}

// Types lists the extension types in on-chain order.
func (e *Extensions) Types() []ExtensionType {
	if e == nil {
		return nil
	}
	out := make([]ExtensionType, 0, len(e.List))
	for _, ext := range e.List {
		out = append(out, ext.Type)
	}
	return out
}

// Unknown returns the records whose type this decoder does not know.
func (e *Extensions) Unknown() []Extension {
	if e == nil {
		return nil
	}
	var out []Extension
	for _, ext := range e.List {
		if !ext.Type.Known() {
			out = append(out, ext)
		}
	}
	return out
}

func (e *Extensions) value(t ExtensionType) ([]byte, error) {
	ext, ok := e.Get(t)
	if !ok {
		return nil, fmt.Errorf("%s: %w", t, ErrExtensionNotFound)
	}
	// newer layouts may append fields, older ones must not be shorter
	if size := t.Size(); size >= 0 && len(ext.Raw) < size {
		return nil, fmt.Errorf("%s: %w: got %d want %d", t, ErrExtensionTooShort, len(ext.Raw), size)
	}
	return ext.Raw, nil
}
