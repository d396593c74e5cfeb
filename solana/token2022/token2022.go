package token2022

import (
	"encoding/binary"
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// MaxFeeBasisPoints is 100%.
const MaxFeeBasisPoints = 10_000

// TransferFee represents the transfer fee configuration for a specific epoch
type TransferFee struct {
	Epoch       uint64 // Epoch when this fee configuration is active
	MaximumFee  uint64 // Maximum fee amount in token units
	BasisPoints uint16 // Fee rate in basis points (1/10000)
}

// TransferFeeConfig represents the complete transfer fee configuration for a token
type TransferFeeConfig struct {
	TransferFeeConfigAuthority *solana.PublicKey // Authority that can modify transfer fee configuration
	WithdrawWithheldAuthority  *solana.PublicKey // Authority that can withdraw withheld fees
	WithheldAmount             uint64            // Amount of fees currently withheld
	OlderTransferFee           TransferFee       // Previous epoch's transfer fee configuration
	NewerTransferFee           TransferFee       // Current/next epoch's transfer fee configuration
}

func decodeTransferFee(buf []byte) TransferFee {
	return TransferFee{
		Epoch:       binary.LittleEndian.Uint64(buf[:8]),
		MaximumFee:  binary.LittleEndian.Uint64(buf[8:16]),
		BasisPoints: binary.LittleEndian.Uint16(buf[16:18]),
	}
}

// TransferFeeConfig decodes the TransferFeeConfig extension.
func (e *Extensions) TransferFeeConfig() (*TransferFeeConfig, error) {
	raw, err := e.value(ExtensionTransferFeeConfig)
	if err != nil {
		return nil, err
	}
	return &TransferFeeConfig{
		TransferFeeConfigAuthority: optionalNonZeroPubkey(raw[0:32]),
		WithdrawWithheldAuthority:  optionalNonZeroPubkey(raw[32:64]),
		WithheldAmount:             binary.LittleEndian.Uint64(raw[64:72]),
		OlderTransferFee:           decodeTransferFee(raw[72:90]),
		NewerTransferFee:           decodeTransferFee(raw[90:108]),
	}, nil
}

// GetEpochFee returns the fee schedule in force at currentEpoch.
func GetEpochFee(cfg *TransferFeeConfig, currentEpoch uint64) TransferFee {
	if cfg == nil {
		return TransferFee{Epoch: 0, MaximumFee: 0, BasisPoints: 0} // SPL Token returns 0 fee
	}
	if currentEpoch >= cfg.NewerTransferFee.Epoch {
		return cfg.NewerTransferFee
	}
	return cfg.OlderTransferFee
}

// CalculateFee returns ceil(amount * bps / 10000) capped at the maximum fee,
// matching the on-chain rounding.
func CalculateFee(tf TransferFee, amount *big.Int) *big.Int {
	if tf.BasisPoints == 0 || amount.Sign() == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(tf.BasisPoints)))
	fee.Add(fee, big.NewInt(MaxFeeBasisPoints-1))
	fee.Div(fee, big.NewInt(MaxFeeBasisPoints))
	if fee.Cmp(new(big.Int).SetUint64(tf.MaximumFee)) > 0 {
		return new(big.Int).SetUint64(tf.MaximumFee)
	}
	return fee
}

// CalculateInverseFee returns the fee to add so that post-fee amount equals postFeeAmount.
func CalculateInverseFee(tf TransferFee, postFeeAmount *big.Int) *big.Int {
	if tf.BasisPoints == 0 || postFeeAmount.Sign() == 0 {
		return big.NewInt(0)
	}
	if tf.BasisPoints >= MaxFeeBasisPoints {
		return new(big.Int).SetUint64(tf.MaximumFee)
	}
	// preFee = ceil(post * 10000 / (10000 - bps))
	denominator := big.NewInt(int64(MaxFeeBasisPoints - tf.BasisPoints))
	preFee := new(big.Int).Mul(postFeeAmount, big.NewInt(MaxFeeBasisPoints))
	preFee.Add(preFee, new(big.Int).Sub(denominator, big.NewInt(1)))
	preFee.Div(preFee, denominator)

	fee := new(big.Int).Sub(preFee, postFeeAmount)
	if fee.Cmp(new(big.Int).SetUint64(tf.MaximumFee)) > 0 {
		return new(big.Int).SetUint64(tf.MaximumFee)
	}
	return fee
}

// FeeForEpoch computes the fee of transferring amount at epoch, zero when cfg is nil.
func FeeForEpoch(cfg *TransferFeeConfig, epoch uint64, amount uint64) uint64 {
	return CalculateFee(GetEpochFee(cfg, epoch), new(big.Int).SetUint64(amount)).Uint64()
}
