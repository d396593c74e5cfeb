package token2022

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packMeta(disc uint8, config []byte, signer, writable bool) []byte {
	raw := make([]byte, extraAccountMetaLen)
	raw[0] = disc
	copy(raw[1:33], config)
	if signer {
		raw[33] = 1
	}
	if writable {
		raw[34] = 1
	}
	return raw
}

func metaList(discriminator []byte, metas ...[]byte) []byte {
	value := make([]byte, 4)
	binary.LittleEndian.PutUint32(value, uint32(len(metas)))
	for _, m := range metas {
		value = append(value, m...)
	}
	out := append([]byte{}, discriminator...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(value)))
	return append(out, value...)
}

func TestParseExtraAccountMetas(t *testing.T) {
	literal := solana.NewWallet().PublicKey()
	other := make([]byte, 8)
	other[0] = 0xff

	data := append(metaList(other, packMeta(0, make([]byte, 32), false, false)),
		metaList(ExecuteDiscriminator, packMeta(0, literal[:], false, true))...)

	metas, err := ParseExtraAccountMetas(data)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, uint8(0), metas[0].Discriminator)
	assert.Equal(t, literal, solana.PublicKeyFromBytes(metas[0].AddressConfig[:]))
	assert.True(t, metas[0].IsWritable)
	assert.False(t, metas[0].IsSigner)

	_, err = ParseExtraAccountMetas(metaList(other))
	assert.ErrorIs(t, err, ErrExtraAccountMetasNotFound)

	_, err = ParseExtraAccountMetas(data[:len(data)-5])
	assert.ErrorIs(t, err, ErrTruncatedExtension)
}

func TestResolveExtraAccountMetas(t *testing.T) {
	hook := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	source := solana.NewWallet().PublicKey()
	destination := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()
	literal := solana.NewWallet().PublicKey()

	validation, err := ExtraAccountMetasAddress(mint, hook)
	require.NoError(t, err)

	// PDA of the hook program from "counter" and the source owner (account index 3)
	seeds := []byte{1, 7}
	seeds = append(seeds, []byte("counter")...)
	seeds = append(seeds, 3, 3)

	data := metaList(ExecuteDiscriminator,
		packMeta(0, literal[:], false, false),
		packMeta(1, seeds, false, true),
	)
	metas, err := ParseExtraAccountMetas(data)
	require.NoError(t, err)

	accounts, err := ResolveExtraAccountMetas(metas, hook, validation,
		[4]solana.PublicKey{source, mint, destination, authority}, 100)
	require.NoError(t, err)
	require.Len(t, accounts, 4)

	counter, _, err := solana.FindProgramAddress([][]byte{[]byte("counter"), authority[:]}, hook)
	require.NoError(t, err)

	assert.Equal(t, literal, accounts[0].PublicKey)
	assert.False(t, accounts[0].IsWritable)
	assert.Equal(t, counter, accounts[1].PublicKey)
	assert.True(t, accounts[1].IsWritable)
	assert.Equal(t, hook, accounts[2].PublicKey)
	assert.Equal(t, validation, accounts[3].PublicKey)

	// no metas: only the hook program and validation account
	accounts, err = ResolveExtraAccountMetas(nil, hook, validation,
		[4]solana.PublicKey{source, mint, destination, authority}, 1)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	// account data seeds are not resolvable offline
	_, err = ResolveExtraAccountMetas(
		[]ExtraAccountMeta{{Discriminator: 1, AddressConfig: [32]byte{4, 0, 0, 32}}},
		hook, validation, [4]solana.PublicKey{source, mint, destination, authority}, 1)
	assert.ErrorIs(t, err, ErrUnsupportedSeed)
}

func TestExtraAccountMetasAddress(t *testing.T) {
	hook := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	got, err := ExtraAccountMetasAddress(mint, hook)
	require.NoError(t, err)
	want, _, err := solana.FindProgramAddress([][]byte{[]byte("extra-account-metas"), mint[:]}, hook)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, ExecuteDiscriminator, 8)
}
