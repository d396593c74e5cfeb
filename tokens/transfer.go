package tokens

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/krazyTry/spl-toolkit/inspect"
	sol "github.com/krazyTry/spl-toolkit/solana"
	"github.com/krazyTry/spl-toolkit/solana/token2022"
)

const OpTransfer = "transfer"

// TransferParams is the transfer form: Amount is in UI units. With ReceiveExact the
// Amount is what the recipient gets and the transfer fee is added on top.
type TransferParams struct {
	Mint         solana.PublicKey `json:"mint"`
	Owner        solana.PublicKey `json:"owner"`
	Recipient    string           `json:"recipient"`
	Amount       string           `json:"amount"`
	ReceiveExact bool             `json:"receiveExact,omitempty"`
}

// TransferQuote is what the review step shows before confirming.
type TransferQuote struct {
	Amount        decimal.Decimal            `json:"amount"`
	Fee           decimal.Decimal            `json:"fee"`
	Received      decimal.Decimal            `json:"received"`
	RawAmount     uint64                     `json:"rawAmount"`
	RawFee        uint64                     `json:"rawFee"`
	Recipient     solana.PublicKey           `json:"recipient"`
	RecipientATA  solana.PublicKey           `json:"recipientAta"`
	CreatesATA    bool                       `json:"createsAta"`
	// ATARent is the lamports the sender pays when CreatesATA.
	ATARent       uint64                     `json:"ataRent,omitempty"`
	ExtensionInfo inspect.TokenExtensionInfo `json:"extensionInfo"`
	Warnings      []inspect.Warning          `json:"warnings"`
}

// Blocked returns the first error-level warning, which forbids confirming.
func (q *TransferQuote) Blocked() (inspect.Warning, bool) {
	return inspect.Blocking(q.Warnings)
}

// QuoteTransfer validates p and computes the fee and warnings without building instructions.
func (c *Client) QuoteTransfer(ctx context.Context, p TransferParams) (*TransferQuote, *MintInfo, error) {
	recipient, err := sol.ParseAddress(p.Recipient)
	if err != nil {
		return nil, nil, invalidInput(OpTransfer, ErrInvalidRecipient)
	}
	mint, err := c.GetMintInfo(ctx, p.Mint)
	if err != nil {
		return nil, nil, Classify(OpTransfer, err)
	}
	amount, err := ParseUI(p.Amount, mint.Decimals)
	if err != nil {
		return nil, nil, invalidInput(OpTransfer, err)
	}

	source, err := c.TokenAccountOf(ctx, p.Owner, mint)
	if err != nil {
		return nil, nil, Classify(OpTransfer, err)
	}
	if source.IsFrozen {
		return nil, nil, &TxError{Kind: KindAccountFrozen, Op: OpTransfer, Err: fmt.Errorf("source account %s is frozen", source.Address)}
	}

	// a recipient that is already a token account of this mint receives directly
	destination, err := DeriveATA(recipient, mint.Address, mint.Program)
	if err != nil {
		return nil, nil, invalidInput(OpTransfer, err)
	}
	if acc, err := sol.GetTokenAccount(ctx, c.rpcClient, recipient); err == nil && acc.Mint.Equals(mint.Address) {
		destination = recipient
		recipient = acc.Owner
	}
	if destination.Equals(source.Address) {
		return nil, nil, invalidInput(OpTransfer, ErrSelfTransfer)
	}

	quote := &TransferQuote{
		Recipient:    recipient,
		RecipientATA: destination,
		Warnings:     []inspect.Warning{},
	}
	if !sol.IsOnCurve(recipient) {
		quote.Warnings = append(quote.Warnings, inspect.Warning{
			Level:   inspect.LevelInfo,
			Message: "The recipient is a program address; only its program can move the tokens",
		})
	}
	exists, err := sol.AccountExists(ctx, c.rpcClient, destination)
	if err != nil {
		return nil, nil, Classify(OpTransfer, err)
	}
	quote.CreatesATA = !exists

	var (
		feeConfig *token2022.TransferFeeConfig
		epoch     uint64
		mintExts  []token2022.ExtensionType
	)
	if mint.IsToken2022() {
		exts, err := mint.Extensions()
		if err != nil {
			return nil, nil, invalidInput(OpTransfer, err)
		}
		if epoch, err = sol.GetCurrentEpoch(ctx, c.rpcClient); err != nil {
			return nil, nil, Classify(OpTransfer, err)
		}
		quote.ExtensionInfo = inspect.FromExtensions(exts, epoch)
		quote.Warnings = append(quote.Warnings, inspect.Warnings(quote.ExtensionInfo)...)
		if cfg, err := exts.TransferFeeConfig(); err == nil {
			feeConfig = cfg
		}
		mintExts = exts.Types()
	}

	sent := amount
	if p.ReceiveExact && feeConfig != nil {
		extra := token2022.CalculateInverseFee(token2022.GetEpochFee(feeConfig, epoch), new(big.Int).SetUint64(amount))
		if !extra.IsUint64() || extra.Uint64() > math.MaxUint64-amount {
			return nil, nil, invalidInput(OpTransfer, ErrAmountOverflow)
		}
		sent = amount + extra.Uint64()
	}
	if sent > source.Amount {
		return nil, nil, &TxError{Kind: KindInsufficientFunds, Op: OpTransfer, Err: ErrInsufficient}
	}
	// the fee on the debited amount is what the program checks
	quote.RawAmount = sent
	quote.RawFee = token2022.FeeForEpoch(feeConfig, epoch, sent)
	quote.Amount = ToUI(sent, mint.Decimals)
	quote.Fee = ToUI(quote.RawFee, mint.Decimals)
	quote.Received = ToUI(sent-quote.RawFee, mint.Decimals)

	if quote.CreatesATA {
		quote.ATARent = c.ataRent(ctx, mint, mintExts)
	}
	return quote, mint, nil
}

// ataRent estimates the rent of a new associated account of mint, zero when unknown.
func (c *Client) ataRent(ctx context.Context, mint *MintInfo, mintExts []token2022.ExtensionType) uint64 {
	size := sol.AccountSize
	if mint.IsToken2022() {
		// the associated token program always adds ImmutableOwner
		types := append(token2022.AccountExtensionsForMint(mintExts...), token2022.ExtensionImmutableOwner)
		n, err := token2022.AccountSize(types...)
		if err != nil {
			c.logger.Debug("ata size unknown", zap.String("mint", mint.Address.String()), zap.Error(err))
			return 0
		}
		size = n
	}
	start := time.Now()
	lamports, err := sol.GetRentExempt(ctx, c.rpcClient, uint64(size))
	c.observe("getMinimumBalanceForRentExemption", start, err)
	if err != nil {
		c.logger.Debug("ata rent unknown", zap.String("mint", mint.Address.String()), zap.Error(err))
		return 0
	}
	return lamports
}

// BuildTransfer validates p and returns the transfer plan with its quote.
// Non-transferable mints are refused here, before anything is signed.
func (c *Client) BuildTransfer(ctx context.Context, p TransferParams) (*Plan, *TransferQuote, error) {
	quote, mint, err := c.QuoteTransfer(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	if quote.ExtensionInfo.HasNonTransferable {
		return nil, quote, &TxError{Kind: KindNonTransferable, Op: OpTransfer, Err: errors.New(kindMessages[KindNonTransferable])}
	}

	source, _, err := sol.FindAssociatedTokenAddress(p.Owner, mint.Address, mint.Program)
	if err != nil {
		return nil, nil, invalidInput(OpTransfer, err)
	}

	var ixs []solana.Instruction
	if quote.CreatesATA {
		ix, _, err := sol.CreateAssociatedTokenAccountIdempotentInstruction(p.Owner, quote.Recipient, mint.Address, mint.Program)
		if err != nil {
			return nil, nil, invalidInput(OpTransfer, err)
		}
		ixs = append(ixs, ix)
	}

	extra, err := c.hookAccounts(ctx, mint, source, quote.RecipientATA, p.Owner, quote.RawAmount)
	if err != nil {
		return nil, nil, &TxError{Kind: KindTransferHook, Op: OpTransfer, Err: err}
	}

	if quote.ExtensionInfo.HasTransferFee {
		ixs = append(ixs, token2022.TransferCheckedWithFeeInstruction(
			source, mint.Address, quote.RecipientATA, p.Owner,
			quote.RawAmount, mint.Decimals, quote.RawFee, extra...,
		))
	} else {
		ixs = append(ixs, sol.TransferCheckedInstruction(
			mint.Program, source, mint.Address, quote.RecipientATA, p.Owner,
			quote.RawAmount, mint.Decimals, extra...,
		))
	}

	plan := c.single(newPlan(OpTransfer, p.Owner, mint.Address.String(), quote.Recipient.String()), ixs)
	return plan, quote, nil
}

// Transfer builds, signs and sends a transfer.
func (c *Client) Transfer(ctx context.Context, p TransferParams, wallet *solana.Wallet) (*TxResult, error) {
	if wallet == nil {
		return nil, invalidInput(OpTransfer, ErrMissingWallet)
	}
	p.Owner = wallet.PublicKey()
	plan, quote, err := c.BuildTransfer(ctx, p)
	if err != nil {
		return nil, err
	}
	result, err := c.Execute(ctx, plan, wallet)
	if result != nil {
		result.Mint = p.Mint.String()
		result.Amount = quote.RawAmount
		result.Fee = quote.RawFee
	}
	return result, err
}

// hookAccounts resolves the extra accounts a transfer hook of mint needs. Mints without a
// hook need none.
func (c *Client) hookAccounts(ctx context.Context, mint *MintInfo, source, destination, authority solana.PublicKey, amount uint64) ([]*solana.AccountMeta, error) {
	if !mint.IsToken2022() {
		return nil, nil
	}
	exts, err := mint.Extensions()
	if err != nil {
		return nil, err
	}
	hook, err := exts.TransferHook()
	if err != nil || hook.ProgramID == nil {
		return nil, nil
	}

	validation, err := token2022.ExtraAccountMetasAddress(mint.Address, *hook.ProgramID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := sol.GetAccountInfo(ctx, c.rpcClient, validation)
	c.observe("getAccountInfo", start, err)
	var metas []token2022.ExtraAccountMeta
	if err == nil && out != nil && out.Value != nil {
		metas, err = token2022.ParseExtraAccountMetas(out.GetBinary())
		if err != nil {
			return nil, err
		}
	} else {
		c.logger.Debug("transfer hook has no extra account metas",
			zap.String("mint", mint.Address.String()),
			zap.String("validation", validation.String()),
		)
	}
	return token2022.ResolveExtraAccountMetas(metas, *hook.ProgramID, validation,
		[4]solana.PublicKey{source, mint.Address, destination, authority}, amount)
}
