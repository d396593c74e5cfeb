package tokens

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/krazyTry/spl-toolkit/inspect"
	sol "github.com/krazyTry/spl-toolkit/solana"
	"github.com/krazyTry/spl-toolkit/solana/token2022"
)

// TokenList is the holdings of a wallet. Count excludes native SOL.
type TokenList struct {
	Owner  string      `json:"owner"`
	SOL    TokenItem   `json:"sol"`
	Tokens []TokenItem `json:"tokens"`
	Count  int         `json:"count"`
}

// DeriveATA returns the associated token account of owner for mint under program.
func DeriveATA(owner, mint, program solana.PublicKey) (solana.PublicKey, error) {
	if err := sol.ValidateTokenProgram(program); err != nil {
		return solana.PublicKey{}, err
	}
	ata, _, err := sol.FindAssociatedTokenAddress(owner, mint, program)
	return ata, err
}

// GetMintInfo loads a mint of either token program.
func (c *Client) GetMintInfo(ctx context.Context, mint solana.PublicKey) (*MintInfo, error) {
	key := cacheKey("mint", mint.String())
	if v, ok := c.cached("mint", key); ok {
		return v.(*MintInfo), nil
	}

	start := time.Now()
	token, err := sol.GetToken(ctx, c.rpcClient, mint)
	c.observe("getAccountInfo", start, err)
	if err != nil {
		return nil, err
	}
	info := &MintInfo{
		Address:         mint,
		Program:         token.Owner,
		Decimals:        token.Decimals,
		Supply:          token.Supply,
		MintAuthority:   token.MintAuthority,
		FreezeAuthority: token.FreezeAuthority,
		Data:            token.Data,
	}
	c.cache.SetDefault(key, info)
	return info, nil
}

// Extensions decodes the extensions of a Token-2022 mint. SPL Token mints have none.
func (m *MintInfo) Extensions() (*token2022.Extensions, error) {
	if !m.IsToken2022() {
		return &token2022.Extensions{}, nil
	}
	return token2022.ParseExtensions(m.Data)
}

// ListTokens returns every SPL Token and Token-2022 account of owner.
func (c *Client) ListTokens(ctx context.Context, owner solana.PublicKey) ([]TokenItem, error) {
	key := cacheKey("tokens", owner.String())
	if v, ok := c.cached("tokens", key); ok {
		return v.([]TokenItem), nil
	}

	programs := []solana.PublicKey{solana.TokenProgramID, solana.Token2022ProgramID}
	perProgram := make([][]TokenItem, len(programs))

	g, gctx := errgroup.WithContext(ctx)
	for i, program := range programs {
		i, program := i, program
		g.Go(func() error {
			items, err := c.tokenAccountsByOwner(gctx, owner, program)
			if err != nil {
				return fmt.Errorf("token accounts of %s under %s: %w", owner, program, err)
			}
			perProgram[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []TokenItem
	for _, list := range perProgram {
		items = append(items, list...)
	}

	mints := make([]solana.PublicKey, 0, len(items))
	seen := map[string]bool{}
	for _, item := range items {
		if !seen[item.ID] {
			seen[item.ID] = true
			mints = append(mints, solana.MustPublicKeyFromBase58(item.ID))
		}
	}
	metas := c.resolveMetadata(ctx, mints, nil)
	for i := range items {
		applyMeta(&items[i], metas[solana.MustPublicKeyFromBase58(items[i].ID)])
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Balance.GreaterThan(items[j].Balance)
	})

	c.cache.SetDefault(key, items)
	return items, nil
}

// WalletTokens is ListTokens with the native SOL balance.
func (c *Client) WalletTokens(ctx context.Context, owner solana.PublicKey) (*TokenList, error) {
	var (
		items    []TokenItem
		lamports uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = c.ListTokens(gctx, owner)
		return err
	})
	g.Go(func() error {
		start := time.Now()
		var err error
		lamports, err = sol.SOLBalance(gctx, c.rpcClient, owner)
		c.observe("getBalance", start, err)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &TokenList{
		Owner:  owner.String(),
		SOL:    solItem(lamports),
		Tokens: items,
		Count:  len(items),
	}, nil
}

func solItem(lamports uint64) TokenItem {
	return TokenItem{
		ID:       "SOL",
		Name:     "Solana",
		Symbol:   "SOL",
		Balance:  ToUI(lamports, SOLDecimals),
		Amount:   lamports,
		Decimals: SOLDecimals,
		Type:     TypeSOL,
	}
}

func applyMeta(item *TokenItem, meta *TokenMeta) {
	if meta == nil {
		meta = unknownMeta()
	}
	item.Name = meta.Name
	item.Symbol = meta.Symbol
	item.Image = meta.Image
	if len(meta.Extra) > 0 {
		item.Metadata = meta.Extra
	}
}

func (c *Client) tokenAccountsByOwner(ctx context.Context, owner, program solana.PublicKey) ([]TokenItem, error) {
	start := time.Now()
	out, err := c.rpcClient.GetTokenAccountsByOwner(
		ctx,
		owner,
		&rpc.GetTokenAccountsConfig{ProgramId: program.ToPointer()},
		&rpc.GetTokenAccountsOpts{
			Commitment: sol.Commitment,
			Encoding:   solana.EncodingJSONParsed,
		},
	)
	c.observe("getTokenAccountsByOwner", start, err)
	if err != nil {
		return nil, err
	}

	tokenType := TypeSPL
	if program.Equals(solana.Token2022ProgramID) {
		tokenType = TypeToken2022
	}

	items := make([]TokenItem, 0, len(out.Value))
	for _, v := range out.Value {
		if v == nil || v.Account.Data == nil {
			continue
		}
		item, ok := parseTokenAccount(v.Account.Data.GetRawJSON())
		if !ok {
			c.logger.Debug("skip unparsable token account", zap.String("account", v.Pubkey.String()))
			continue
		}
		item.Account = v.Pubkey.String()
		item.Program = program.String()
		item.Type = tokenType
		items = append(items, item)
	}
	return items, nil
}

// parseTokenAccount reads a jsonParsed token account.
func parseTokenAccount(raw []byte) (TokenItem, bool) {
	info := gjson.GetBytes(raw, "parsed.info")
	mint := info.Get("mint").String()
	if !info.Exists() || mint == "" {
		return TokenItem{}, false
	}
	amount := info.Get("tokenAmount.amount").Uint()
	decimals := uint8(info.Get("tokenAmount.decimals").Uint())
	return TokenItem{
		ID:       mint,
		Name:     UnknownName,
		Symbol:   UnknownSymbol,
		Balance:  ToUI(amount, decimals),
		Amount:   amount,
		Decimals: decimals,
		Frozen:   info.Get("state").String() == "frozen",
	}, true
}

// TokenAccountOf loads the ATA of owner for mint. A missing ATA is an empty account.
func (c *Client) TokenAccountOf(ctx context.Context, owner solana.PublicKey, mint *MintInfo) (*sol.Account, error) {
	ata, err := DeriveATA(owner, mint.Address, mint.Program)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	acc, err := sol.GetTokenAccount(ctx, c.rpcClient, ata)
	c.observe("getAccountInfo", start, err)
	if errors.Is(err, sol.ErrAccountNotFound) {
		return &sol.Account{Address: ata, Program: mint.Program, Mint: mint.Address, Owner: owner}, nil
	}
	return acc, err
}

// GetTokenDetails gathers everything the details view shows about mint as held by owner.
func (c *Client) GetTokenDetails(ctx context.Context, mint, owner solana.PublicKey) (*TokenDetails, error) {
	key := cacheKey("details", mint.String(), owner.String())
	if v, ok := c.cached("details", key); ok {
		return v.(*TokenDetails), nil
	}

	info, err := c.GetMintInfo(ctx, mint)
	if err != nil {
		return nil, err
	}

	details := &TokenDetails{
		TokenItem: TokenItem{
			ID:       mint.String(),
			Decimals: info.Decimals,
			Program:  info.Program.String(),
			Type:     TypeSPL,
		},
		Supply:       ToUI(info.Supply, info.Decimals),
		RawSupply:    info.Supply,
		Extensions:   []ExtensionSummary{},
		Transactions: []TxSummary{},
	}
	if info.MintAuthority != nil {
		details.MintAuthority = info.MintAuthority.String()
	}
	if info.FreezeAuthority != nil {
		details.FreezeAuthority = info.FreezeAuthority.String()
	}

	if info.IsToken2022() {
		details.Type = TypeToken2022
		exts, err := info.Extensions()
		if err != nil {
			c.logger.Warn("decode mint extensions", zap.String("mint", mint.String()), zap.Error(err))
		} else {
			for _, t := range exts.Types() {
				details.Extensions = append(details.Extensions, ExtensionSummary{
					Type:        t.String(),
					Description: t.Description(),
				})
			}
			epoch, err := sol.GetCurrentEpoch(ctx, c.rpcClient)
			if err != nil {
				c.logger.Debug("current epoch", zap.Error(err))
			}
			details.ExtensionInfo = inspect.FromExtensions(exts, epoch)
			details.Warnings = inspect.Warnings(details.ExtensionInfo)
		}
	}

	var (
		wg   sync.WaitGroup
		meta *TokenMeta
		acc  *sol.Account
		txs  []TxSummary
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		meta = c.resolveMetadata(ctx, []solana.PublicKey{mint}, map[solana.PublicKey][]byte{mint: info.Data})[mint]
	}()
	go func() {
		defer wg.Done()
		var err error
		acc, err = c.TokenAccountOf(ctx, owner, info)
		if err != nil {
			c.logger.Warn("load token account", zap.String("mint", mint.String()), zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		txs, err = c.TransactionHistory(ctx, owner, info, c.historyLimit)
		if err != nil {
			c.logger.Warn("load transaction history", zap.String("mint", mint.String()), zap.Error(err))
		}
	}()
	wg.Wait()

	applyMeta(&details.TokenItem, meta)
	if meta != nil {
		details.Description = meta.Description
		details.Links = meta.Links
	}
	if acc != nil {
		details.Account = acc.Address.String()
		details.Amount = acc.Amount
		details.Balance = ToUI(acc.Amount, info.Decimals)
		details.Frozen = acc.IsFrozen
	}
	if txs != nil {
		details.Transactions = txs
	}

	c.cache.SetDefault(key, details)
	return details, nil
}

// TransactionHistory returns the latest limit transactions of owner's token account for mint,
// with the balance change of owner in each.
func (c *Client) TransactionHistory(ctx context.Context, owner solana.PublicKey, mint *MintInfo, limit int) ([]TxSummary, error) {
	ata, err := DeriveATA(owner, mint.Address, mint.Program)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = c.historyLimit
	}

	start := time.Now()
	sigs, err := c.rpcClient.GetSignaturesForAddressWithOpts(ctx, ata, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: sol.Commitment,
	})
	c.observe("getSignaturesForAddress", start, err)
	if err != nil {
		return nil, err
	}

	out := make([]TxSummary, len(sigs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.metadataConcurrency)
	for i, s := range sigs {
		i, s := i, s
		summary := TxSummary{
			Signature: s.Signature.String(),
			Slot:      s.Slot,
			Change:    decimal.Zero,
		}
		if s.BlockTime != nil {
			t := s.BlockTime.Time()
			summary.BlockTime = &t
		}
		if s.Err != nil {
			summary.Err = fmt.Sprint(s.Err)
		}
		if s.Memo != nil {
			summary.Memo = *s.Memo
		}
		out[i] = summary

		g.Go(func() error {
			change, err := c.balanceChange(gctx, s.Signature, owner, mint)
			if err != nil {
				c.logger.Debug("load transaction", zap.String("signature", s.Signature.String()), zap.Error(err))
				return nil
			}
			out[i].Change = change
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

func (c *Client) balanceChange(ctx context.Context, sig solana.Signature, owner solana.PublicKey, mint *MintInfo) (decimal.Decimal, error) {
	maxVersion := uint64(0)
	start := time.Now()
	tx, err := c.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     sol.Commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	c.observe("getTransaction", start, err)
	if err != nil {
		return decimal.Zero, err
	}
	if tx == nil || tx.Meta == nil {
		return decimal.Zero, nil
	}
	sum := func(balances []rpc.TokenBalance) decimal.Decimal {
		total := decimal.Zero
		for _, b := range balances {
			if b.Owner == nil || !b.Owner.Equals(owner) || !b.Mint.Equals(mint.Address) || b.UiTokenAmount == nil {
				continue
			}
			amount, err := decimal.NewFromString(b.UiTokenAmount.Amount)
			if err != nil {
				continue
			}
			total = total.Add(amount)
		}
		return total
	}
	raw := sum(tx.Meta.PostTokenBalances).Sub(sum(tx.Meta.PreTokenBalances))
	return raw.Shift(-int32(mint.Decimals)), nil
}
