package tokens

import (
	"context"

	"github.com/gagliardetto/solana-go"

	sol "github.com/krazyTry/spl-toolkit/solana"
)

const (
	OpMint = "mint"
	OpBurn = "burn"
)

// SupplyParams is the mint and burn form. Recipient defaults to Owner when minting.
type SupplyParams struct {
	Mint      solana.PublicKey `json:"mint"`
	Owner     solana.PublicKey `json:"owner"`
	Recipient string           `json:"recipient,omitempty"`
	Amount    string           `json:"amount"`
}

// BuildMint mints Amount to the recipient's ATA, creating it when missing.
// Owner must be the mint authority.
func (c *Client) BuildMint(ctx context.Context, p SupplyParams) (*Plan, uint64, error) {
	mint, err := c.GetMintInfo(ctx, p.Mint)
	if err != nil {
		return nil, 0, Classify(OpMint, err)
	}
	if mint.MintAuthority == nil || !mint.MintAuthority.Equals(p.Owner) {
		return nil, 0, &TxError{Kind: KindUnauthorized, Op: OpMint, Err: ErrNotMintAuthority}
	}
	amount, err := ParseUI(p.Amount, mint.Decimals)
	if err != nil {
		return nil, 0, invalidInput(OpMint, err)
	}

	recipient := p.Owner
	if p.Recipient != "" {
		if recipient, err = sol.ParseAddress(p.Recipient); err != nil {
			return nil, 0, invalidInput(OpMint, ErrInvalidRecipient)
		}
	}

	var ixs []solana.Instruction
	destination, err := sol.PrepareTokenATA(ctx, c.rpcClient, recipient, mint.Address, mint.Program, p.Owner, &ixs)
	if err != nil {
		return nil, 0, Classify(OpMint, err)
	}
	ixs = append(ixs, sol.MintToCheckedInstruction(mint.Program, mint.Address, destination, p.Owner, amount, mint.Decimals))

	return c.single(newPlan(OpMint, p.Owner, mint.Address.String(), recipient.String()), ixs), amount, nil
}

// BuildBurn burns Amount from Owner's ATA.
func (c *Client) BuildBurn(ctx context.Context, p SupplyParams) (*Plan, uint64, error) {
	mint, err := c.GetMintInfo(ctx, p.Mint)
	if err != nil {
		return nil, 0, Classify(OpBurn, err)
	}
	amount, err := ParseUI(p.Amount, mint.Decimals)
	if err != nil {
		return nil, 0, invalidInput(OpBurn, err)
	}
	account, err := c.TokenAccountOf(ctx, p.Owner, mint)
	if err != nil {
		return nil, 0, Classify(OpBurn, err)
	}
	if amount > account.Amount {
		return nil, 0, &TxError{Kind: KindInsufficientFunds, Op: OpBurn, Err: ErrInsufficient}
	}
	if account.IsFrozen {
		return nil, 0, &TxError{Kind: KindAccountFrozen, Op: OpBurn}
	}

	ix := sol.BurnCheckedInstruction(mint.Program, account.Address, mint.Address, p.Owner, amount, mint.Decimals)
	return c.single(newPlan(OpBurn, p.Owner, mint.Address.String()), []solana.Instruction{ix}), amount, nil
}

func (c *Client) Mint(ctx context.Context, p SupplyParams, wallet *solana.Wallet) (*TxResult, error) {
	if wallet == nil {
		return nil, invalidInput(OpMint, ErrMissingWallet)
	}
	p.Owner = wallet.PublicKey()
	plan, amount, err := c.BuildMint(ctx, p)
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

func (c *Client) Burn(ctx context.Context, p SupplyParams, wallet *solana.Wallet) (*TxResult, error) {
	if wallet == nil {
		return nil, invalidInput(OpBurn, ErrMissingWallet)
	}
	p.Owner = wallet.PublicKey()
	plan, amount, err := c.BuildBurn(ctx, p)
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
