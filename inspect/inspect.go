// Package inspect turns Token-2022 extensions into user facing flags and warnings.
package inspect

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/krazyTry/spl-toolkit/solana/token2022"
)

// TokenExtensionInfo summarizes the extensions that matter to a holder.
type TokenExtensionInfo struct {
	HasTransferFee        bool              `json:"hasTransferFee"`
	FeePercentage         *float64          `json:"feePercentage,omitempty"`
	FeeBasisPoints        uint16            `json:"feeBasisPoints"`
	MaxFee                uint64            `json:"maxFee"`
	HasNonTransferable    bool              `json:"hasNonTransferable"`
	HasPermanentDelegate  bool              `json:"hasPermanentDelegate"`
	PermanentDelegate     *solana.PublicKey `json:"permanentDelegate,omitempty"`
	HasTransferHook       bool              `json:"hasTransferHook"`
	TransferHookProgram   *solana.PublicKey `json:"transferHookProgram,omitempty"`
	HasMetadata           bool              `json:"hasMetadata"`
	HasMintCloseAuthority bool              `json:"hasMintCloseAuthority"`
	HasDefaultFrozen      bool              `json:"hasDefaultFrozen"`
	HasInterestBearing    bool              `json:"hasInterestBearing"`
	InterestRate          int16             `json:"interestRate"` // basis points
	HasMemoTransfer       bool              `json:"hasMemoTransfer"`
}

// FromExtensions derives the info from decoded extensions. epoch selects the active transfer fee.
func FromExtensions(exts *token2022.Extensions, epoch uint64) TokenExtensionInfo {
	var info TokenExtensionInfo
	if exts == nil {
		return info
	}

	if cfg, err := exts.TransferFeeConfig(); err == nil {
		fee := token2022.GetEpochFee(cfg, epoch)
		pct := float64(fee.BasisPoints) / 100
		info.HasTransferFee = true
		info.FeeBasisPoints = fee.BasisPoints
		info.FeePercentage = &pct
		info.MaxFee = fee.MaximumFee
	}
	info.HasNonTransferable = exts.NonTransferable()
	if delegate, err := exts.PermanentDelegate(); err == nil && delegate != nil {
		info.HasPermanentDelegate = true
		info.PermanentDelegate = delegate
	}
	if hook, err := exts.TransferHook(); err == nil && hook.ProgramID != nil {
		info.HasTransferHook = true
		info.TransferHookProgram = hook.ProgramID
	}
	info.HasMetadata = exts.Has(token2022.ExtensionTokenMetadata) || exts.Has(token2022.ExtensionMetadataPointer)
	info.HasMintCloseAuthority = exts.Has(token2022.ExtensionMintCloseAuthority)
	if state, err := exts.DefaultAccountState(); err == nil {
		info.HasDefaultFrozen = state == 2
	}
	if cfg, err := exts.InterestBearingConfig(); err == nil {
		info.HasInterestBearing = true
		info.InterestRate = cfg.CurrentRate
	}
	info.HasMemoTransfer = exts.Has(token2022.ExtensionMemoTransfer)
	return info
}

var maxFeePercent = decimal.NewFromInt(100)

var feePattern = regexp.MustCompile(`(?i)transfer\s*fee[^0-9%]*([0-9]+(?:\.[0-9]+)?)\s*%`)

// ParseDetails reads flags from a free-text description such as
// "Transfer fee: 1.5%, Non-transferable, Permanent delegate". Best effort.
func ParseDetails(details string) TokenExtensionInfo {
	var info TokenExtensionInfo
	lower := strings.ToLower(details)

	if m := feePattern.FindStringSubmatch(details); m != nil {
		info.HasTransferFee = true
		// a fee above 100% is not a fee, only the flag is kept
		if pct, err := decimal.NewFromString(m[1]); err == nil && pct.LessThanOrEqual(maxFeePercent) {
			bps := pct.Shift(2).Round(0)
			f := bps.Shift(-2).InexactFloat64()
			info.FeePercentage = &f
			info.FeeBasisPoints = uint16(bps.IntPart())
		}
	} else if strings.Contains(lower, "transfer fee") {
		info.HasTransferFee = true
	}
	info.HasNonTransferable = strings.Contains(lower, "non-transferable") || strings.Contains(lower, "nontransferable") ||
		strings.Contains(lower, "non transferable")
	info.HasPermanentDelegate = strings.Contains(lower, "permanent delegate") || strings.Contains(lower, "permanentdelegate")
	info.HasTransferHook = strings.Contains(lower, "transfer hook") || strings.Contains(lower, "transferhook")
	info.HasMetadata = strings.Contains(lower, "metadata")
	info.HasMintCloseAuthority = strings.Contains(lower, "close authority")
	info.HasDefaultFrozen = strings.Contains(lower, "default frozen") || strings.Contains(lower, "frozen by default")
	info.HasInterestBearing = strings.Contains(lower, "interest")
	info.HasMemoTransfer = strings.Contains(lower, "memo")
	return info
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Warning struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Warnings lists what a sender should know before transferring the token.
func Warnings(info TokenExtensionInfo) []Warning {
	var out []Warning
	if info.HasNonTransferable {
		out = append(out, Warning{LevelError, "This token is non-transferable and cannot be sent to another wallet"})
	}
	if info.HasTransferFee {
		msg := "This token charges a transfer fee; the recipient receives less than the amount sent"
		if info.FeePercentage != nil {
			msg = fmt.Sprintf("This token charges a %s%% transfer fee; the recipient receives less than the amount sent",
				decimal.NewFromFloat(*info.FeePercentage).String())
		}
		out = append(out, Warning{LevelWarning, msg})
	}
	if info.HasPermanentDelegate {
		msg := "A permanent delegate can transfer or burn tokens from any holder"
		if info.PermanentDelegate != nil {
			msg = fmt.Sprintf("Permanent delegate %s can transfer or burn tokens from any holder", info.PermanentDelegate)
		}
		out = append(out, Warning{LevelWarning, msg})
	}
	if info.HasTransferHook {
		out = append(out, Warning{LevelInfo, "Transfers invoke a transfer hook program and may be rejected by it"})
	}
	if info.HasDefaultFrozen {
		out = append(out, Warning{LevelInfo, "New token accounts start frozen until thawed by the freeze authority"})
	}
	if info.HasMemoTransfer {
		out = append(out, Warning{LevelInfo, "The recipient requires a memo on incoming transfers"})
	}
	if info.HasInterestBearing {
		out = append(out, Warning{LevelInfo, fmt.Sprintf("Displayed balance accrues interest at %d bps", info.InterestRate)})
	}
	return out
}

// Blocking returns the first error-level warning, if any.
func Blocking(warnings []Warning) (Warning, bool) {
	for _, w := range warnings {
		if w.Level == LevelError {
			return w, true
		}
	}
	return Warning{}, false
}

var ErrFeePercentage = errors.New("fee percentage must be within [0, 100]")

// CalculateTransferFee splits amount into the withheld fee and what the recipient receives.
// The fee is floored to decimals places so fee + received == amount exactly.
func CalculateTransferFee(amount decimal.Decimal, feePercentage float64, decimals int32) (fee, received decimal.Decimal, err error) {
	if feePercentage < 0 || feePercentage > 100 {
		return decimal.Zero, decimal.Zero, ErrFeePercentage
	}
	if amount.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("negative amount %s", amount)
	}
	fee = amount.Mul(decimal.NewFromFloat(feePercentage)).Div(decimal.NewFromInt(100)).Truncate(decimals)
	if fee.GreaterThan(amount) {
		fee = amount
	}
	return fee, amount.Sub(fee), nil
}
