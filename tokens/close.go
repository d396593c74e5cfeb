package tokens

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	sol "github.com/krazyTry/spl-toolkit/solana"
	"github.com/krazyTry/spl-toolkit/solana/token2022"
)

const OpClose = "close"

// skip reasons reported in CloseResult.Skipped
const (
	SkipNotFound   = "account not found"
	SkipNotOwned   = "account is not owned by the wallet"
	SkipHasBalance = "account holds tokens"
	SkipFrozen     = "account is frozen"
	SkipNative     = "native SOL cannot be closed"
)

// ZeroBalanceAccounts returns the items that can be closed: empty, not SOL and not frozen.
func ZeroBalanceAccounts(items []TokenItem) []TokenItem {
	out := make([]TokenItem, 0, len(items))
	for _, item := range items {
		if item.Amount == 0 && item.Balance.IsZero() && item.Type != TypeSOL && !item.Frozen {
			out = append(out, item)
		}
	}
	return out
}

// CloseSelection is the checkbox state of the close-accounts form.
type CloseSelection struct {
	mu        sync.Mutex
	available []string
	selected  map[string]bool
}

// NewCloseSelection offers the zero-balance accounts of items.
func NewCloseSelection(items []TokenItem) *CloseSelection {
	zero := ZeroBalanceAccounts(items)
	s := &CloseSelection{
		available: make([]string, 0, len(zero)),
		selected:  map[string]bool{},
	}
	for _, item := range zero {
		s.available = append(s.available, item.Account)
	}
	return s
}

// Available lists the closable account addresses in display order.
func (s *CloseSelection) Available() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.available...)
}

// SelectAll selects every available account, or clears the selection.
func (s *CloseSelection) SelectAll(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = map[string]bool{}
	if on {
		for _, addr := range s.available {
			s.selected[addr] = true
		}
	}
}

// Toggle flips addr. Addresses that are not available are ignored.
func (s *CloseSelection) Toggle(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.available {
		if a == addr {
			if s.selected[addr] {
				delete(s.selected, addr)
				return false
			}
			s.selected[addr] = true
			return true
		}
	}
	return false
}

// Selected returns the selected addresses in display order, [] when none.
func (s *CloseSelection) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.selected))
	for _, addr := range s.available {
		if s.selected[addr] {
			out = append(out, addr)
		}
	}
	return out
}

func (s *CloseSelection) AllSelected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.available) > 0 && len(s.selected) == len(s.available)
}

// ClosePlan is the plan of a close run with what it will close and skip.
type ClosePlan struct {
	*Plan
	Closing   []solana.PublicKey
	Skipped   []SkippedAccount
	Reclaimed map[solana.PublicKey]uint64
}

// BuildClose closes the selected accounts of owner, sending rent to owner. Accounts that
// are missing, hold tokens or are frozen are skipped and reported, never closed.
// Withheld transfer fees are harvested to the mint first so the close succeeds.
func (c *Client) BuildClose(ctx context.Context, owner solana.PublicKey, selected []string) (*ClosePlan, error) {
	plan := &ClosePlan{
		Plan:      newPlan(OpClose, owner),
		Skipped:   []SkippedAccount{},
		Reclaimed: map[solana.PublicKey]uint64{},
	}

	var candidates []solana.PublicKey
	seen := map[solana.PublicKey]bool{}
	for _, s := range selected {
		addr, err := sol.ParseAddress(s)
		if err != nil {
			return nil, invalidInput(OpClose, err)
		}
		if !seen[addr] {
			seen[addr] = true
			candidates = append(candidates, addr)
		}
	}
	if len(candidates) == 0 {
		return nil, invalidInput(OpClose, ErrNothingToClose)
	}

	accounts, err := c.getAccounts(ctx, candidates)
	if err != nil {
		return nil, Classify(OpClose, err)
	}

	var ixs []solana.Instruction
	for i, addr := range candidates {
		raw := accounts[i]
		if raw == nil || !sol.IsTokenProgram(raw.Owner) {
			plan.Skipped = append(plan.Skipped, SkippedAccount{Address: addr, Reason: SkipNotFound})
			continue
		}
		data := raw.Data.GetBinary()
		acc, err := new(sol.AccountLayout).Decode(data)
		if err != nil {
			plan.Skipped = append(plan.Skipped, SkippedAccount{Address: addr, Reason: SkipNotFound})
			continue
		}
		switch {
		case !acc.Owner.Equals(owner):
			plan.Skipped = append(plan.Skipped, SkippedAccount{Address: addr, Reason: SkipNotOwned})
			continue
		case acc.IsNative:
			plan.Skipped = append(plan.Skipped, SkippedAccount{Address: addr, Reason: SkipNative})
			continue
		case acc.Amount > 0:
			plan.Skipped = append(plan.Skipped, SkippedAccount{Address: addr, Reason: SkipHasBalance})
			continue
		case acc.IsFrozen:
			plan.Skipped = append(plan.Skipped, SkippedAccount{Address: addr, Reason: SkipFrozen})
			continue
		}

		if raw.Owner.Equals(solana.Token2022ProgramID) {
			if exts, err := token2022.ParseExtensions(data); err == nil {
				if withheld, err := exts.TransferFeeAmount(); err == nil && withheld > 0 {
					ixs = append(ixs, token2022.HarvestWithheldTokensToMintInstruction(acc.Mint, []solana.PublicKey{addr}))
				}
			}
		}
		ixs = append(ixs, sol.CloseAccountInstruction(raw.Owner, addr, owner, owner))
		plan.Closing = append(plan.Closing, addr)
		plan.Reclaimed[addr] = raw.Lamports
		plan.touched = append(plan.touched, acc.Mint.String())
	}

	if len(plan.Skipped) > 0 {
		c.logger.Info("skipping accounts that cannot be closed",
			zap.String("owner", owner.String()),
			zap.Int("skipped", len(plan.Skipped)),
		)
	}
	if len(ixs) == 0 {
		return plan, nil
	}
	if _, err := c.chunked(plan.Plan, ixs); err != nil {
		return nil, err
	}
	return plan, nil
}

// CloseAccounts closes the selected accounts of wallet.
// On a failure part way, Closed lists only the accounts of the landed transactions.
func (c *Client) CloseAccounts(ctx context.Context, selected []string, wallet *solana.Wallet) (*CloseResult, error) {
	if wallet == nil {
		return nil, invalidInput(OpClose, ErrMissingWallet)
	}
	plan, err := c.BuildClose(ctx, wallet.PublicKey(), selected)
	if err != nil {
		return nil, err
	}

	result := &CloseResult{
		TxResult: TxResult{Op: OpClose},
		Closed:   []solana.PublicKey{},
		Skipped:  plan.Skipped,
	}
	if len(plan.Closing) == 0 {
		return result, invalidInput(OpClose, ErrNothingToClose)
	}

	tx, err := c.Execute(ctx, plan.Plan, wallet)
	if tx != nil {
		result.TxResult = *tx
		for _, batch := range plan.Batches[:len(tx.Signatures)] {
			for _, addr := range closedIn(batch) {
				result.Closed = append(result.Closed, addr)
				result.TotalReclaimed += plan.Reclaimed[addr]
			}
		}
	}
	return result, err
}

func closedIn(batch []solana.Instruction) []solana.PublicKey {
	var out []solana.PublicKey
	for _, ix := range batch {
		if !sol.IsTokenProgram(ix.ProgramID()) {
			continue
		}
		data, err := ix.Data()
		if err != nil || len(data) != 1 || data[0] != 9 {
			continue
		}
		out = append(out, ix.Accounts()[0].PublicKey)
	}
	return out
}
