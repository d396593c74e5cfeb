package inspect

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krazyTry/spl-toolkit/solana/token2022"
)

func record(t token2022.ExtensionType, value []byte) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint16(out[0:2], uint16(t))
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(value)))
	return append(out, value...)
}

func mintWith(records ...[]byte) []byte {
	data := make([]byte, token2022.TLVOffset)
	data[token2022.AccountTypeOffset] = byte(token2022.AccountTypeMint)
	for _, r := range records {
		data = append(data, r...)
	}
	return data
}

func TestFromExtensions(t *testing.T) {
	delegate := solana.NewWallet().PublicKey()
	fee := make([]byte, 108)
	binary.LittleEndian.PutUint64(fee[90:98], 10)    // newer epoch
	binary.LittleEndian.PutUint64(fee[98:106], 500)  // newer max fee
	binary.LittleEndian.PutUint16(fee[106:108], 150) // newer bps

	exts, err := token2022.ParseExtensions(mintWith(
		record(token2022.ExtensionTransferFeeConfig, fee),
		record(token2022.ExtensionPermanentDelegate, delegate[:]),
		record(token2022.ExtensionNonTransferable, nil),
		record(token2022.ExtensionDefaultAccountState, []byte{2}),
	))
	require.NoError(t, err)

	info := FromExtensions(exts, 20)
	assert.True(t, info.HasTransferFee)
	require.NotNil(t, info.FeePercentage)
	assert.InDelta(t, 1.5, *info.FeePercentage, 1e-9)
	assert.Equal(t, uint16(150), info.FeeBasisPoints)
	assert.Equal(t, uint64(500), info.MaxFee)
	assert.True(t, info.HasNonTransferable)
	assert.True(t, info.HasPermanentDelegate)
	assert.Equal(t, delegate, *info.PermanentDelegate)
	assert.True(t, info.HasDefaultFrozen)
	assert.False(t, info.HasTransferHook)

	// older fee (all zero) applies before the newer epoch
	early := FromExtensions(exts, 5)
	assert.Equal(t, uint16(0), early.FeeBasisPoints)

	assert.Equal(t, TokenExtensionInfo{}, FromExtensions(nil, 0))
}

func TestParseDetails(t *testing.T) {
	info := ParseDetails("Transfer Fee: 2.5%, Non-Transferable, Permanent Delegate enabled")
	assert.True(t, info.HasTransferFee)
	require.NotNil(t, info.FeePercentage)
	assert.InDelta(t, 2.5, *info.FeePercentage, 1e-9)
	assert.True(t, info.HasNonTransferable)
	assert.True(t, info.HasPermanentDelegate)
	assert.False(t, info.HasTransferHook)

	info = ParseDetails("plain token")
	assert.Equal(t, TokenExtensionInfo{}, info)

	info = ParseDetails("has a transfer fee")
	assert.True(t, info.HasTransferFee)
	assert.Nil(t, info.FeePercentage)

	for text, bps := range map[string]uint16{
		"Transfer fee: 0.29%":  29,
		"Transfer fee: 1.15%":  115,
		"Transfer fee: 100%":   10000,
		"Transfer fee: 0.005%": 1,
	} {
		info = ParseDetails(text)
		assert.Equal(t, bps, info.FeeBasisPoints, text)
	}

	info = ParseDetails("Transfer fee: 700%")
	assert.True(t, info.HasTransferFee)
	assert.Nil(t, info.FeePercentage)
	assert.Zero(t, info.FeeBasisPoints)
}

func TestWarnings(t *testing.T) {
	pct := 1.0
	warnings := Warnings(TokenExtensionInfo{HasTransferFee: true, FeePercentage: &pct})
	require.Len(t, warnings, 1)
	assert.Equal(t, LevelWarning, warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "1%")
	_, blocked := Blocking(warnings)
	assert.False(t, blocked)

	warnings = Warnings(TokenExtensionInfo{HasNonTransferable: true, HasTransferHook: true})
	w, blocked := Blocking(warnings)
	assert.True(t, blocked)
	assert.Equal(t, LevelError, w.Level)
	assert.Contains(t, w.Message, "non-transferable")
}

func TestCalculateTransferFee(t *testing.T) {
	amounts := []string{"0", "1", "0.000001", "123.456789", "1000000", "999999999.999999"}
	for _, a := range amounts {
		amount := decimal.RequireFromString(a)
		for pct := 0.0; pct <= 100; pct += 0.25 {
			fee, received, err := CalculateTransferFee(amount, pct, 6)
			require.NoError(t, err)
			assert.True(t, fee.Add(received).Equal(amount), "amount=%s pct=%v", a, pct)
			assert.False(t, fee.IsNegative())
			assert.False(t, received.IsNegative())
			assert.LessOrEqual(t, -fee.Exponent(), int32(6))
		}
	}

	fee, received, err := CalculateTransferFee(decimal.NewFromInt(100), 2.5, 2)
	require.NoError(t, err)
	assert.Equal(t, "2.5", fee.String())
	assert.Equal(t, "97.5", received.String())

	fee, _, err = CalculateTransferFee(decimal.RequireFromString("0.01"), 1, 2)
	require.NoError(t, err)
	assert.True(t, fee.IsZero())

	_, _, err = CalculateTransferFee(decimal.NewFromInt(1), 101, 2)
	assert.ErrorIs(t, err, ErrFeePercentage)
	_, _, err = CalculateTransferFee(decimal.NewFromInt(1), -1, 2)
	assert.ErrorIs(t, err, ErrFeePercentage)
}
