package tokens

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	sol "github.com/krazyTry/spl-toolkit/solana"
)

const (
	OpFreeze = "freeze"
	OpThaw   = "thaw"
)

// FreezeParams names the account to freeze or thaw: a token account of Mint, or a wallet
// whose ATA is meant. Owner must be the freeze authority.
type FreezeParams struct {
	Mint    solana.PublicKey `json:"mint"`
	Owner   solana.PublicKey `json:"owner"`
	Account string           `json:"account"`
}

func (c *Client) BuildFreeze(ctx context.Context, p FreezeParams) (*Plan, error) {
	return c.buildFreezeThaw(ctx, OpFreeze, p)
}

func (c *Client) BuildThaw(ctx context.Context, p FreezeParams) (*Plan, error) {
	return c.buildFreezeThaw(ctx, OpThaw, p)
}

func (c *Client) buildFreezeThaw(ctx context.Context, op string, p FreezeParams) (*Plan, error) {
	target, err := sol.ParseAddress(p.Account)
	if err != nil {
		return nil, invalidInput(op, err)
	}
	mint, err := c.GetMintInfo(ctx, p.Mint)
	if err != nil {
		return nil, Classify(op, err)
	}
	if mint.FreezeAuthority == nil {
		return nil, &TxError{Kind: KindUnauthorized, Op: op, Err: ErrNoFreezeAuthority}
	}
	if !mint.FreezeAuthority.Equals(p.Owner) {
		return nil, &TxError{Kind: KindUnauthorized, Op: op, Err: ErrNotFreezeAuthority}
	}

	account, err := sol.GetTokenAccount(ctx, c.rpcClient, target)
	if err != nil || !account.Mint.Equals(mint.Address) {
		// not a token account of this mint: treat it as a wallet
		ata, derr := DeriveATA(target, mint.Address, mint.Program)
		if derr != nil {
			return nil, invalidInput(op, derr)
		}
		if account, err = sol.GetTokenAccount(ctx, c.rpcClient, ata); err != nil {
			return nil, invalidInput(op, fmt.Errorf("no token account of %s for %s: %w", mint.Address, target, err))
		}
	}

	var ix solana.Instruction
	switch op {
	case OpFreeze:
		if account.IsFrozen {
			return nil, invalidInput(op, fmt.Errorf("account %s is already frozen", account.Address))
		}
		ix = sol.FreezeAccountInstruction(mint.Program, account.Address, mint.Address, p.Owner)
	default:
		if !account.IsFrozen {
			return nil, invalidInput(op, fmt.Errorf("account %s is not frozen", account.Address))
		}
		ix = sol.ThawAccountInstruction(mint.Program, account.Address, mint.Address, p.Owner)
	}
	return c.single(newPlan(op, p.Owner, mint.Address.String(), account.Owner.String()), []solana.Instruction{ix}), nil
}

func (c *Client) Freeze(ctx context.Context, p FreezeParams, wallet *solana.Wallet) (*TxResult, error) {
	return c.freezeThaw(ctx, OpFreeze, p, wallet)
}

func (c *Client) Thaw(ctx context.Context, p FreezeParams, wallet *solana.Wallet) (*TxResult, error) {
	return c.freezeThaw(ctx, OpThaw, p, wallet)
}

func (c *Client) freezeThaw(ctx context.Context, op string, p FreezeParams, wallet *solana.Wallet) (*TxResult, error) {
	if wallet == nil {
		return nil, invalidInput(op, ErrMissingWallet)
	}
	p.Owner = wallet.PublicKey()
	plan, err := c.buildFreezeThaw(ctx, op, p)
	if err != nil {
		return nil, err
	}
	result, err := c.Execute(ctx, plan, wallet)
	if result != nil {
		result.Mint = p.Mint.String()
	}
	return result, err
}
