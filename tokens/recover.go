package tokens

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	sol "github.com/krazyTry/spl-toolkit/solana"
	"github.com/krazyTry/spl-toolkit/solana/token2022"
)

const OpRecover = "recover"

// RecoverParams moves tokens out of any holder's account with the permanent delegate.
// Source is a token account of Mint or a wallet holding it; an empty Amount takes everything.
// Destination defaults to the delegate itself.
type RecoverParams struct {
	Mint        solana.PublicKey `json:"mint"`
	Owner       solana.PublicKey `json:"owner"`
	Source      string           `json:"source"`
	Destination string           `json:"destination,omitempty"`
	Amount      string           `json:"amount,omitempty"`
}

// BuildRecover transfers from the source account with Owner, the permanent delegate, as
// authority. The transfer fee, when configured, is asserted as usual.
func (c *Client) BuildRecover(ctx context.Context, p RecoverParams) (*Plan, uint64, error) {
	mint, err := c.GetMintInfo(ctx, p.Mint)
	if err != nil {
		return nil, 0, Classify(OpRecover, err)
	}
	if !mint.IsToken2022() {
		return nil, 0, invalidInput(OpRecover, ErrNotToken2022)
	}
	exts, err := mint.Extensions()
	if err != nil {
		return nil, 0, invalidInput(OpRecover, err)
	}
	delegate, err := exts.PermanentDelegate()
	if err != nil || delegate == nil {
		return nil, 0, &TxError{Kind: KindUnauthorized, Op: OpRecover, Err: ErrNoPermanentDelegate}
	}
	if !delegate.Equals(p.Owner) {
		return nil, 0, &TxError{Kind: KindUnauthorized, Op: OpRecover, Err: ErrNotDelegate}
	}

	target, err := sol.ParseAddress(p.Source)
	if err != nil {
		return nil, 0, invalidInput(OpRecover, err)
	}
	source, err := sol.GetTokenAccount(ctx, c.rpcClient, target)
	if err != nil || !source.Mint.Equals(mint.Address) {
		ata, derr := DeriveATA(target, mint.Address, mint.Program)
		if derr != nil {
			return nil, 0, invalidInput(OpRecover, derr)
		}
		if source, err = sol.GetTokenAccount(ctx, c.rpcClient, ata); err != nil {
			return nil, 0, invalidInput(OpRecover, fmt.Errorf("no token account of %s for %s: %w", mint.Address, target, err))
		}
	}
	if source.IsFrozen {
		return nil, 0, &TxError{Kind: KindAccountFrozen, Op: OpRecover}
	}

	amount := source.Amount
	if strings.TrimSpace(p.Amount) != "" {
		if amount, err = ParseUI(p.Amount, mint.Decimals); err != nil {
			return nil, 0, invalidInput(OpRecover, err)
		}
	}
	if amount == 0 {
		return nil, 0, invalidInput(OpRecover, sol.ErrZeroAmount)
	}
	if amount > source.Amount {
		return nil, 0, &TxError{Kind: KindInsufficientFunds, Op: OpRecover, Err: ErrInsufficient}
	}

	recipient := p.Owner
	if p.Destination != "" {
		if recipient, err = sol.ParseAddress(p.Destination); err != nil {
			return nil, 0, invalidInput(OpRecover, ErrInvalidRecipient)
		}
	}

	var ixs []solana.Instruction
	destination, err := sol.PrepareTokenATA(ctx, c.rpcClient, recipient, mint.Address, mint.Program, p.Owner, &ixs)
	if err != nil {
		return nil, 0, Classify(OpRecover, err)
	}
	if destination.Equals(source.Address) {
		return nil, 0, invalidInput(OpRecover, ErrSelfTransfer)
	}

	extra, err := c.hookAccounts(ctx, mint, source.Address, destination, p.Owner, amount)
	if err != nil {
		return nil, 0, &TxError{Kind: KindTransferHook, Op: OpRecover, Err: err}
	}

	if cfg, err := exts.TransferFeeConfig(); err == nil {
		epoch, err := sol.GetCurrentEpoch(ctx, c.rpcClient)
		if err != nil {
			return nil, 0, Classify(OpRecover, err)
		}
		fee := token2022.FeeForEpoch(cfg, epoch, amount)
		ixs = append(ixs, token2022.TransferCheckedWithFeeInstruction(
			source.Address, mint.Address, destination, p.Owner, amount, mint.Decimals, fee, extra...,
		))
	} else {
		ixs = append(ixs, sol.TransferCheckedInstruction(
			mint.Program, source.Address, mint.Address, destination, p.Owner, amount, mint.Decimals, extra...,
		))
	}

	plan := newPlan(OpRecover, p.Owner, mint.Address.String(), source.Owner.String(), recipient.String())
	return c.single(plan, ixs), amount, nil
}

func (c *Client) RecoverWithDelegate(ctx context.Context, p RecoverParams, wallet *solana.Wallet) (*TxResult, error) {
	if wallet == nil {
		return nil, invalidInput(OpRecover, ErrMissingWallet)
	}
	p.Owner = wallet.PublicKey()
	plan, amount, err := c.BuildRecover(ctx, p)
	if err != nil {
		return nil, err
	}
	result, err := c.Execute(ctx, plan, wallet)
	if result != nil {
		result.Mint = p.Mint.String()
		result.Amount = amount
	}
	return result, err
}
