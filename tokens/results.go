package tokens

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	sol "github.com/krazyTry/spl-toolkit/solana"
)

// TxResult is a landed operation. Multi-transaction operations list every signature in order.
type TxResult struct {
	Op         string             `json:"op"`
	Signatures []solana.Signature `json:"signatures"`
	Mint       string             `json:"mint,omitempty"`
	Amount     uint64             `json:"amount,omitempty"`
	Fee        uint64             `json:"fee,omitempty"`
}

// Signature is the last signature of the operation.
func (r *TxResult) Signature() solana.Signature {
	if len(r.Signatures) == 0 {
		return solana.Signature{}
	}
	return r.Signatures[len(r.Signatures)-1]
}

// CloseResult reports a close-accounts run. Skipped accounts still hold tokens or are frozen.
type CloseResult struct {
	TxResult
	Closed         []solana.PublicKey `json:"closed"`
	Skipped        []SkippedAccount   `json:"skipped"`
	TotalReclaimed uint64             `json:"totalReclaimed"`
}

// ReclaimedSOL is TotalReclaimed in SOL.
func (r *CloseResult) ReclaimedSOL() decimal.Decimal {
	return ToUI(r.TotalReclaimed, SOLDecimals)
}

type SkippedAccount struct {
	Address solana.PublicKey `json:"address"`
	Reason  string           `json:"reason"`
}

// CreateResult is a created mint with its initial supply.
type CreateResult struct {
	TxResult
	MintAddress  solana.PublicKey `json:"mintAddress"`
	TokenAccount solana.PublicKey `json:"tokenAccount"`
	MetadataURI  string           `json:"metadataUri,omitempty"`
}

// Plan is an operation ready to sign. Each batch becomes one transaction, sent in order.
type Plan struct {
	Op      string
	Payer   solana.PublicKey
	Batches [][]solana.Instruction
	// Signers are keys generated by the builder, e.g. a new mint.
	Signers []solana.PrivateKey

	touched []string
}

func newPlan(op string, payer solana.PublicKey, touched ...string) *Plan {
	return &Plan{Op: op, Payer: payer, touched: append(touched, payer.String())}
}

// single puts instructions in one transaction with the configured compute budget prefix.
func (c *Client) single(p *Plan, instructions []solana.Instruction) *Plan {
	ixs := append(c.budget(), sol.MergeInstructions(instructions)...)
	p.Batches = append(p.Batches, ixs)
	return p
}

// chunked splits instructions over as many transactions as their size requires.
func (c *Client) chunked(p *Plan, instructions []solana.Instruction) (*Plan, error) {
	chunks, err := sol.ChunkInstructions(instructions, p.Payer, c.budget()...)
	if err != nil {
		return nil, invalidInput(p.Op, err)
	}
	p.Batches = append(p.Batches, chunks...)
	return p, nil
}

func (c *Client) budget() []solana.Instruction {
	return sol.ComputeBudgetInstructions(c.computeUnitLimit, c.computeUnitPrice)
}

// Prepare returns every batch of p as a base64 transaction signed by p's own signers only,
// for an external wallet to sign as fee payer.
func (c *Client) Prepare(ctx context.Context, p *Plan) ([]string, error) {
	start := time.Now()
	blockhash, err := sol.GetLatestBlockhash(ctx, c.rpcClient)
	c.observe("getLatestBlockhash", start, err)
	if err != nil {
		return nil, Classify(p.Op, err)
	}

	out := make([]string, 0, len(p.Batches))
	for _, batch := range p.Batches {
		tx, err := solana.NewTransaction(batch, blockhash, solana.TransactionPayer(p.Payer))
		if err != nil {
			return nil, invalidInput(p.Op, err)
		}
		var keys []solana.PrivateKey
		for _, signer := range p.Signers {
			if tx.IsSigner(signer.PublicKey()) {
				keys = append(keys, signer)
			}
		}
		if err = sol.PartialSign(tx, keys...); err != nil {
			return nil, invalidInput(p.Op, err)
		}
		encoded, err := sol.EncodeTransaction(tx)
		if err != nil {
			return nil, invalidInput(p.Op, err)
		}
		out = append(out, encoded)
	}
	return out, nil
}

// Execute signs every batch of p with wallet and p's signers, sending them sequentially.
// It stops at the first failure; the signatures already landed are kept in the result.
func (c *Client) Execute(ctx context.Context, p *Plan, wallet *solana.Wallet) (*TxResult, error) {
	if wallet == nil {
		return nil, invalidInput(p.Op, ErrMissingWallet)
	}
	if !wallet.PublicKey().Equals(p.Payer) {
		return nil, &TxError{Kind: KindUnauthorized, Op: p.Op, Err: ErrWalletMismatch}
	}

	keys := append([]solana.PrivateKey{wallet.PrivateKey}, p.Signers...)
	sign := sol.Signer(keys...)

	result := &TxResult{Op: p.Op}
	start := time.Now()
	for i, batch := range p.Batches {
		sig, err := sol.SendInstruction(ctx, c.rpcClient, c.wsClient, batch, p.Payer, sign)
		if err != nil {
			txErr := Classify(p.Op, err)
			c.metrics.ObserveTx(p.Op, string(txErr.Kind), time.Since(start))
			c.logger.Warn("transaction failed",
				zap.String("op", p.Op),
				zap.Int("batch", i),
				zap.String("kind", string(txErr.Kind)),
				zap.Error(err),
			)
			if len(result.Signatures) > 0 {
				c.Invalidate(p.touched...)
			}
			return result, txErr
		}
		result.Signatures = append(result.Signatures, sig)
		c.logger.Info("transaction confirmed",
			zap.String("op", p.Op),
			zap.Int("batch", i),
			zap.String("signature", sig.String()),
		)
	}
	c.metrics.ObserveTx(p.Op, "ok", time.Since(start))
	c.Invalidate(p.touched...)
	return result, nil
}
