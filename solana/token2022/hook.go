package token2022

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	extraAccountMetaLen = 35
	maxSeeds            = 32

	// discriminators of ExtraAccountMeta.address_config
	metaLiteral   uint8 = 0
	metaPDAHook   uint8 = 1
	metaPDAOfMeta uint8 = 128
)

var (
	ErrExtraAccountMetasNotFound = errors.New("extra account meta list not found")
	ErrUnsupportedSeed           = errors.New("unsupported extra account seed")
	ErrInvalidExtraAccountMeta   = errors.New("invalid extra account meta")
)

// ExecuteDiscriminator prefixes the transfer hook Execute instruction and keys the TLV entry
// of its extra account metas.
var ExecuteDiscriminator = interfaceDiscriminator("spl-transfer-hook-interface:execute")

// ExtraAccountMetasAddress derives the validation account of a transfer hook for mint.
func ExtraAccountMetasAddress(mint, hookProgram solana.PublicKey) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress([][]byte{
		[]byte("extra-account-metas"),
		mint[:],
	}, hookProgram)
	return pda, err
}

// ExtraAccountMeta is one undecoded entry of an extra account meta list.
type ExtraAccountMeta struct {
	Discriminator uint8
	AddressConfig [32]byte
	IsSigner      bool
	IsWritable    bool
}

// ParseExtraAccountMetas reads the Execute entry of an extra account meta list account.
func ParseExtraAccountMetas(data []byte) ([]ExtraAccountMeta, error) {
	pos := 0
	for pos+12 <= len(data) {
		disc := data[pos : pos+8]
		length := int(binary.LittleEndian.Uint32(data[pos+8 : pos+12]))
		start := pos + 12
		if start+length > len(data) {
			return nil, ErrTruncatedExtension
		}
		if !bytes.Equal(disc, ExecuteDiscriminator) {
			pos = start + length
			continue
		}
		value := data[start : start+length]
		if len(value) < 4 {
			return nil, ErrTruncatedExtension
		}
		count := int(binary.LittleEndian.Uint32(value[:4]))
		if 4+count*extraAccountMetaLen > len(value) {
			return nil, ErrTruncatedExtension
		}
		metas := make([]ExtraAccountMeta, count)
		for i := range metas {
			raw := value[4+i*extraAccountMetaLen : 4+(i+1)*extraAccountMetaLen]
			metas[i].Discriminator = raw[0]
			copy(metas[i].AddressConfig[:], raw[1:33])
			metas[i].IsSigner = raw[33] != 0
			metas[i].IsWritable = raw[34] != 0
		}
		return metas, nil
	}
	return nil, ErrExtraAccountMetasNotFound
}

// ResolveExtraAccountMetas turns the metas of a hook into the account list appended to a
// transfer: the resolved extra accounts, then the hook program and the validation account.
// base holds source, mint, destination and authority in that order.
func ResolveExtraAccountMetas(
	metas []ExtraAccountMeta,
	hookProgram solana.PublicKey,
	validation solana.PublicKey,
	base [4]solana.PublicKey,
	amount uint64,
) ([]*solana.AccountMeta, error) {
	// execute instruction data: discriminator followed by the amount
	ixData := make([]byte, 16)
	copy(ixData, ExecuteDiscriminator)
	binary.LittleEndian.PutUint64(ixData[8:], amount)

	keys := []solana.PublicKey{base[0], base[1], base[2], base[3], validation}
	out := make([]*solana.AccountMeta, 0, len(metas)+2)
	for i, meta := range metas {
		var (
			key solana.PublicKey
			err error
		)
		switch {
		case meta.Discriminator == metaLiteral:
			key = solana.PublicKeyFromBytes(meta.AddressConfig[:])
		case meta.Discriminator == metaPDAHook:
			key, err = resolveSeeds(meta.AddressConfig[:], hookProgram, keys, ixData)
		case meta.Discriminator >= metaPDAOfMeta:
			index := int(meta.Discriminator - metaPDAOfMeta)
			if index >= len(keys) {
				return nil, fmt.Errorf("meta %d: program index %d: %w", i, index, ErrInvalidExtraAccountMeta)
			}
			key, err = resolveSeeds(meta.AddressConfig[:], keys[index], keys, ixData)
		default:
			return nil, fmt.Errorf("meta %d: discriminator %d: %w", i, meta.Discriminator, ErrInvalidExtraAccountMeta)
		}
		if err != nil {
			return nil, fmt.Errorf("meta %d: %w", i, err)
		}
		keys = append(keys, key)
		out = append(out, solana.NewAccountMeta(key, meta.IsWritable, meta.IsSigner))
	}
	out = append(out,
		solana.NewAccountMeta(hookProgram, false, false),
		solana.NewAccountMeta(validation, false, false),
	)
	return out, nil
}

// resolveSeeds decodes a packed seed config. Literal, instruction data and account key seeds
// are supported; account data seeds need the account contents and are rejected.
func resolveSeeds(config []byte, program solana.PublicKey, keys []solana.PublicKey, ixData []byte) (solana.PublicKey, error) {
	var seeds [][]byte
	pos := 0
	for pos < len(config) && len(seeds) < maxSeeds {
		switch config[pos] {
		case 0:
			pos = len(config)
		case 1: // literal
			if pos+2 > len(config) {
				return solana.PublicKey{}, ErrTruncatedExtension
			}
			n := int(config[pos+1])
			if pos+2+n > len(config) {
				return solana.PublicKey{}, ErrTruncatedExtension
			}
			seeds = append(seeds, config[pos+2:pos+2+n])
			pos += 2 + n
		case 2: // instruction data
			if pos+3 > len(config) {
				return solana.PublicKey{}, ErrTruncatedExtension
			}
			index, n := int(config[pos+1]), int(config[pos+2])
			if index+n > len(ixData) {
				return solana.PublicKey{}, fmt.Errorf("instruction data seed out of range: %w", ErrInvalidExtraAccountMeta)
			}
			seeds = append(seeds, ixData[index:index+n])
			pos += 3
		case 3: // account key
			if pos+2 > len(config) {
				return solana.PublicKey{}, ErrTruncatedExtension
			}
			index := int(config[pos+1])
			if index >= len(keys) {
				return solana.PublicKey{}, fmt.Errorf("account key seed %d: %w", index, ErrInvalidExtraAccountMeta)
			}
			key := keys[index]
			seeds = append(seeds, key[:])
			pos += 2
		default:
			return solana.PublicKey{}, fmt.Errorf("seed type %d: %w", config[pos], ErrUnsupportedSeed)
		}
	}
	pda, _, err := solana.FindProgramAddress(seeds, program)
	return pda, err
}
