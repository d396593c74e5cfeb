package tokens

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	sol "github.com/krazyTry/spl-toolkit/solana"
	"github.com/krazyTry/spl-toolkit/solana/token2022"
)

const OpClaimFees = "claim_fees"

// WithheldAccount is a token account holding withheld transfer fees.
type WithheldAccount struct {
	Address  solana.PublicKey `json:"address"`
	Owner    solana.PublicKey `json:"owner"`
	Withheld uint64           `json:"withheld"`
}

// WithheldFees lists the fees withheld for mint: in the mint itself and per token account.
type WithheldFees struct {
	Mint      solana.PublicKey  `json:"mint"`
	InMint    uint64            `json:"inMint"`
	Accounts  []WithheldAccount `json:"accounts"`
	Total     uint64            `json:"total"`
	Authority *solana.PublicKey `json:"authority,omitempty"`
}

// ClaimFeesParams claims to Destination (a wallet, default Owner). Owner must be the
// withdraw withheld authority of Mint.
type ClaimFeesParams struct {
	Mint        solana.PublicKey `json:"mint"`
	Owner       solana.PublicKey `json:"owner"`
	Destination string           `json:"destination,omitempty"`
}

// FindWithheldFees scans every token account of a Token-2022 mint for withheld fees.
func (c *Client) FindWithheldFees(ctx context.Context, mintAddress solana.PublicKey) (*WithheldFees, error) {
	mint, err := c.GetMintInfo(ctx, mintAddress)
	if err != nil {
		return nil, Classify(OpClaimFees, err)
	}
	if !mint.IsToken2022() {
		return nil, invalidInput(OpClaimFees, ErrNotToken2022)
	}
	exts, err := mint.Extensions()
	if err != nil {
		return nil, invalidInput(OpClaimFees, err)
	}
	cfg, err := exts.TransferFeeConfig()
	if err != nil {
		return nil, invalidInput(OpClaimFees, ErrNoTransferFee)
	}

	fees := &WithheldFees{
		Mint:      mintAddress,
		InMint:    cfg.WithheldAmount,
		Accounts:  []WithheldAccount{},
		Total:     cfg.WithheldAmount,
		Authority: cfg.WithdrawWithheldAuthority,
	}

	start := time.Now()
	accounts, err := sol.GetTokenAccounts(ctx, c.rpcClient, solana.Token2022ProgramID, sol.Filter{Mint: mintAddress})
	c.observe("getProgramAccounts", start, err)
	if err != nil {
		return nil, Classify(OpClaimFees, err)
	}
	for _, acc := range accounts {
		accExts, err := token2022.ParseExtensions(acc.Data)
		if err != nil {
			c.logger.Debug("parse account extensions", zap.String("account", acc.Address.String()), zap.Error(err))
			continue
		}
		withheld, err := accExts.TransferFeeAmount()
		if err != nil || withheld == 0 {
			continue
		}
		fees.Accounts = append(fees.Accounts, WithheldAccount{
			Address:  acc.Address,
			Owner:    acc.Owner,
			Withheld: withheld,
		})
		fees.Total += withheld
	}
	return fees, nil
}

// BuildClaimFees withdraws every withheld fee of Mint into the destination's ATA.
// Accounts are withdrawn in groups of MaxWithdrawSources, split further when a
// transaction would exceed the size limit.
func (c *Client) BuildClaimFees(ctx context.Context, p ClaimFeesParams) (*Plan, *WithheldFees, error) {
	fees, err := c.FindWithheldFees(ctx, p.Mint)
	if err != nil {
		return nil, nil, err
	}
	if fees.Authority == nil || !fees.Authority.Equals(p.Owner) {
		return nil, fees, &TxError{Kind: KindUnauthorized, Op: OpClaimFees, Err: ErrNotWithdrawAuthority}
	}
	if fees.Total == 0 {
		return nil, fees, invalidInput(OpClaimFees, ErrNothingToClaim)
	}

	destination := p.Owner
	if p.Destination != "" {
		if destination, err = sol.ParseAddress(p.Destination); err != nil {
			return nil, nil, invalidInput(OpClaimFees, ErrInvalidRecipient)
		}
	}

	var setup []solana.Instruction
	destinationATA, err := sol.PrepareTokenATA(ctx, c.rpcClient, destination, p.Mint, solana.Token2022ProgramID, p.Owner, &setup)
	if err != nil {
		return nil, nil, Classify(OpClaimFees, err)
	}

	ixs := setup
	if fees.InMint > 0 {
		ixs = append(ixs, token2022.WithdrawWithheldTokensFromMintInstruction(p.Mint, destinationATA, p.Owner))
	}
	for i := 0; i < len(fees.Accounts); i += token2022.MaxWithdrawSources {
		end := i + token2022.MaxWithdrawSources
		if end > len(fees.Accounts) {
			end = len(fees.Accounts)
		}
		sources := make([]solana.PublicKey, 0, end-i)
		for _, acc := range fees.Accounts[i:end] {
			sources = append(sources, acc.Address)
		}
		ix, err := token2022.WithdrawWithheldTokensFromAccountsInstruction(p.Mint, destinationATA, p.Owner, sources)
		if err != nil {
			return nil, nil, invalidInput(OpClaimFees, err)
		}
		ixs = append(ixs, ix)
	}

	plan, err := c.chunked(newPlan(OpClaimFees, p.Owner, p.Mint.String(), destination.String()), ixs)
	if err != nil {
		return nil, nil, err
	}
	return plan, fees, nil
}

func (c *Client) ClaimFees(ctx context.Context, p ClaimFeesParams, wallet *solana.Wallet) (*TxResult, error) {
	if wallet == nil {
		return nil, invalidInput(OpClaimFees, ErrMissingWallet)
	}
	p.Owner = wallet.PublicKey()
	plan, fees, err := c.BuildClaimFees(ctx, p)
	if err != nil {
		return nil, err
	}
	result, err := c.Execute(ctx, plan, wallet)
	if result != nil {
		result.Mint = p.Mint.String()
		if err == nil {
			result.Amount = fees.Total
		}
	}
	return result, err
}
