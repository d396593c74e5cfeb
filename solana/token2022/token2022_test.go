package token2022

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tlv(t ExtensionType, value []byte) []byte {
	out := make([]byte, 4, 4+len(value))
	binary.LittleEndian.PutUint16(out[0:2], uint16(t))
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(value)))
	return append(out, value...)
}

func extendedMint(records ...[]byte) []byte {
	data := make([]byte, baseAccountSize+1)
	data[45] = 1 // initialized
	data[AccountTypeOffset] = byte(AccountTypeMint)
	for _, r := range records {
		data = append(data, r...)
	}
	return data
}

func transferFeeConfigValue(withdraw solana.PublicKey, withheld uint64, older, newer TransferFee) []byte {
	raw := make([]byte, 108)
	copy(raw[32:64], withdraw[:])
	binary.LittleEndian.PutUint64(raw[64:72], withheld)
	put := func(b []byte, f TransferFee) {
		binary.LittleEndian.PutUint64(b[0:8], f.Epoch)
		binary.LittleEndian.PutUint64(b[8:16], f.MaximumFee)
		binary.LittleEndian.PutUint16(b[16:18], f.BasisPoints)
	}
	put(raw[72:90], older)
	put(raw[90:108], newer)
	return raw
}

func TestParseExtensions(t *testing.T) {
	withdraw := solana.NewWallet().PublicKey()
	delegate := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	meta := &TokenMetadata{
		Mint:               mint,
		Name:               "Test Token",
		Symbol:             "TT",
		URI:                "ipfs://bafy",
		AdditionalMetadata: [][2]string{{"website", "https://example.org"}},
	}
	metaRaw, err := meta.Encode()
	require.NoError(t, err)
	assert.Equal(t, meta.Size(), len(metaRaw))

	pointer := make([]byte, 64)
	copy(pointer[32:], mint[:])

	data := extendedMint(
		tlv(ExtensionTransferFeeConfig, transferFeeConfigValue(withdraw, 77,
			TransferFee{Epoch: 0, MaximumFee: 10, BasisPoints: 50},
			TransferFee{Epoch: 500, MaximumFee: 5000, BasisPoints: 100})),
		tlv(ExtensionPermanentDelegate, delegate[:]),
		tlv(ExtensionNonTransferable, nil),
		tlv(ExtensionMetadataPointer, pointer),
		tlv(ExtensionTokenMetadata, metaRaw),
		tlv(ExtensionType(200), []byte{1, 2, 3}),
	)

	exts, err := ParseExtensions(data)
	require.NoError(t, err)
	assert.Equal(t, AccountTypeMint, exts.AccountType)
	assert.Equal(t, LayoutVersion, exts.Version)
	assert.Equal(t, []ExtensionType{
		ExtensionTransferFeeConfig,
		ExtensionPermanentDelegate,
		ExtensionNonTransferable,
		ExtensionMetadataPointer,
		ExtensionTokenMetadata,
		ExtensionType(200),
	}, exts.Types())

	fee, err := exts.TransferFeeConfig()
	require.NoError(t, err)
	assert.Nil(t, fee.TransferFeeConfigAuthority)
	require.NotNil(t, fee.WithdrawWithheldAuthority)
	assert.Equal(t, withdraw, *fee.WithdrawWithheldAuthority)
	assert.Equal(t, uint64(77), fee.WithheldAmount)
	assert.Equal(t, uint16(100), fee.NewerTransferFee.BasisPoints)

	got, err := exts.PermanentDelegate()
	require.NoError(t, err)
	assert.Equal(t, delegate, *got)
	assert.True(t, exts.NonTransferable())

	ptr, err := exts.MetadataPointer()
	require.NoError(t, err)
	assert.Nil(t, ptr.Authority)
	assert.Equal(t, mint, *ptr.Address)

	decoded, err := exts.TokenMetadata()
	require.NoError(t, err)
	assert.Equal(t, "Test Token", decoded.Name)
	assert.Equal(t, "TT", decoded.Symbol)
	assert.Equal(t, "ipfs://bafy", decoded.URI)
	website, ok := decoded.Get("website")
	assert.True(t, ok)
	assert.Equal(t, "https://example.org", website)

	unknown := exts.Unknown()
	require.Len(t, unknown, 1)
	assert.Equal(t, "Unknown(200)", unknown[0].Type.String())
	assert.Equal(t, []byte{1, 2, 3}, unknown[0].Raw)

	_, err = exts.TransferHook()
	assert.ErrorIs(t, err, ErrExtensionNotFound)
}

func TestParseExtensionsWithoutExtensionArea(t *testing.T) {
	for _, size := range []int{0, baseMintSize, baseAccountSize} {
		exts, err := ParseExtensions(make([]byte, size))
		require.NoError(t, err)
		assert.Empty(t, exts.List)
	}
}

func TestParseExtensionsBounds(t *testing.T) {
	data := extendedMint(tlv(ExtensionPermanentDelegate, make([]byte, 32)))
	// claim more bytes than present
	binary.LittleEndian.PutUint16(data[TLVOffset+2:], 40)
	_, err := ParseExtensions(data)
	assert.ErrorIs(t, err, ErrTruncatedExtension)

	short := extendedMint(tlv(ExtensionPermanentDelegate, make([]byte, 10)))
	exts, err := ParseExtensions(short)
	require.NoError(t, err)
	_, err = exts.PermanentDelegate()
	assert.ErrorIs(t, err, ErrExtensionTooShort)

	bad := extendedMint()
	bad[AccountTypeOffset] = 9
	_, err = ParseExtensions(bad)
	assert.ErrorIs(t, err, ErrInvalidAccountType)

	// zero padding after the last record stops the scan
	padded := append(extendedMint(tlv(ExtensionNonTransferable, nil)), make([]byte, 12)...)
	exts, err = ParseExtensions(padded)
	require.NoError(t, err)
	assert.Len(t, exts.List, 1)
}

func TestExtensionTypeNames(t *testing.T) {
	assert.Equal(t, "TransferFeeConfig", ExtensionTransferFeeConfig.String())
	assert.Equal(t, "PermanentDelegate", ExtensionPermanentDelegate.String())
	assert.Equal(t, "Unknown(99)", ExtensionType(99).String())
	for tag := ExtensionTransferFeeConfig; tag <= ExtensionConfidentialTransferFeeAmount; tag++ {
		assert.True(t, tag.Known(), tag.String())
		assert.NotEmpty(t, tag.Description())
	}
}

func TestMintSize(t *testing.T) {
	size, err := MintSize()
	require.NoError(t, err)
	assert.Equal(t, 82, size)

	size, err = MintSize(ExtensionTransferFeeConfig)
	require.NoError(t, err)
	assert.Equal(t, 278, size)

	size, err = MintSize(ExtensionMetadataPointer, ExtensionNonTransferable)
	require.NoError(t, err)
	assert.Equal(t, 166+68+4, size)

	// lands exactly on the multisig length
	size, err = MintSize(ExtensionTransferFeeConfig, ExtensionPermanentDelegate, ExtensionMintCloseAuthority, ExtensionDefaultAccountState)
	require.NoError(t, err)
	assert.Equal(t, 357, size)

	_, err = MintSize(ExtensionTokenMetadata)
	assert.ErrorIs(t, err, ErrVariableLengthExtension)

	size, err = AccountSize(AccountExtensionsForMint(ExtensionTransferFeeConfig)...)
	require.NoError(t, err)
	assert.Equal(t, 166+12, size)
}

func TestTransferFeeMath(t *testing.T) {
	cfg := &TransferFeeConfig{
		OlderTransferFee: TransferFee{Epoch: 0, MaximumFee: 1, BasisPoints: 10},
		NewerTransferFee: TransferFee{Epoch: 100, MaximumFee: 5000, BasisPoints: 100},
	}
	assert.Equal(t, cfg.OlderTransferFee, GetEpochFee(cfg, 99))
	assert.Equal(t, cfg.NewerTransferFee, GetEpochFee(cfg, 100))
	assert.Equal(t, TransferFee{}, GetEpochFee(nil, 100))

	fee := cfg.NewerTransferFee
	assert.Equal(t, int64(10), CalculateFee(fee, big.NewInt(1000)).Int64())
	assert.Equal(t, int64(11), CalculateFee(fee, big.NewInt(1001)).Int64())
	assert.Equal(t, int64(5000), CalculateFee(fee, big.NewInt(1_000_000)).Int64())
	assert.Equal(t, int64(0), CalculateFee(fee, big.NewInt(0)).Int64())

	assert.Equal(t, int64(10), CalculateInverseFee(fee, big.NewInt(990)).Int64())
	assert.Equal(t, int64(5000), CalculateInverseFee(fee, big.NewInt(10_000_000)).Int64())

	assert.Equal(t, uint64(1), FeeForEpoch(cfg, 5, 1_000_000))
	assert.Equal(t, uint64(0), FeeForEpoch(nil, 5, 1_000_000))
}

func TestTransferFeeInstructions(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	authority := solana.NewWallet().PublicKey()

	ix := InitializeTransferFeeConfigInstruction(mint, &authority, nil, 250, 1_000)
	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 2+33+1+2+8)
	assert.Equal(t, []byte{26, 0, 1}, data[:3])
	assert.Equal(t, authority[:], data[3:35])
	assert.Equal(t, byte(0), data[35])
	assert.Equal(t, uint16(250), binary.LittleEndian.Uint16(data[36:38]))
	assert.Equal(t, uint64(1_000), binary.LittleEndian.Uint64(data[38:46]))

	sources := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}
	withdraw, err := WithdrawWithheldTokensFromAccountsInstruction(mint, authority, authority, sources)
	require.NoError(t, err)
	data, err = withdraw.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{26, 3, 2}, data)
	assert.Len(t, withdraw.Accounts(), 5)

	_, err = WithdrawWithheldTokensFromAccountsInstruction(mint, authority, authority, nil)
	assert.ErrorIs(t, err, ErrTooManySources)

	transfer := TransferCheckedWithFeeInstruction(sources[0], mint, sources[1], authority, 1000, 6, 10)
	data, err = transfer.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{26, 1}, data[:2])
	assert.Equal(t, uint64(1000), binary.LittleEndian.Uint64(data[2:10]))
	assert.Equal(t, byte(6), data[10])
	assert.Equal(t, uint64(10), binary.LittleEndian.Uint64(data[11:19]))
}
