package tokens

import (
	"context"
	"strings"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	tokenmetadata "github.com/gagliardetto/metaplex-go/clients/token-metadata"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	sol "github.com/krazyTry/spl-toolkit/solana"
	"github.com/krazyTry/spl-toolkit/solana/token2022"
)

const (
	MetaplexTokenMetadataProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

	// getMultipleAccounts accepts at most 100 keys
	multipleAccountsLimit = 100
)

var metaplexProgramID = solana.MustPublicKeyFromBase58(MetaplexTokenMetadataProgramID)

// TokenMeta is the resolved display metadata of a mint.
type TokenMeta struct {
	Name        string            `json:"name"`
	Symbol      string            `json:"symbol"`
	URI         string            `json:"uri,omitempty"`
	Description string            `json:"description,omitempty"`
	Image       string            `json:"image,omitempty"`
	Links       map[string]string `json:"links,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	Source      string            `json:"source"` // token2022, metaplex or none
}

func unknownMeta() *TokenMeta {
	return &TokenMeta{Name: UnknownName, Symbol: UnknownSymbol, Source: "none"}
}

// offChainMetadata is the JSON document a metadata URI points to.
type offChainMetadata struct {
	Name        string                 `json:"name"`
	Symbol      string                 `json:"symbol"`
	Description string                 `json:"description"`
	Image       string                 `json:"image"`
	ExternalURL string                 `json:"external_url"`
	Website     string                 `json:"website"`
	Twitter     string                 `json:"twitter"`
	Telegram    string                 `json:"telegram"`
	Discord     string                 `json:"discord"`
	Extensions  map[string]interface{} `json:"extensions"`
}

func (m *offChainMetadata) links() map[string]string {
	links := map[string]string{}
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			links[k] = v
		}
	}
	set("website", m.ExternalURL)
	set("website", m.Website)
	set("twitter", m.Twitter)
	set("telegram", m.Telegram)
	set("discord", m.Discord)
	for k, v := range m.Extensions {
		if s, ok := v.(string); ok {
			set(k, s)
		}
	}
	if len(links) == 0 {
		return nil
	}
	return links
}

func trimMeta(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

// MetaplexMetadataAddress derives the Metaplex metadata PDA of mint.
func MetaplexMetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress(
		[][]byte{
			[]byte("metadata"),
			metaplexProgramID.Bytes(),
			mint.Bytes(),
		},
		metaplexProgramID,
	)
	return pda, err
}

// DecodeMetaplexMetadata decodes a Metaplex metadata account.
func DecodeMetaplexMetadata(data []byte) (*TokenMeta, error) {
	var onChain tokenmetadata.Metadata
	if err := bin.NewBorshDecoder(data).Decode(&onChain); err != nil {
		return nil, err
	}
	return &TokenMeta{
		Name:   trimMeta(onChain.Data.Name),
		Symbol: trimMeta(onChain.Data.Symbol),
		URI:    trimMeta(onChain.Data.Uri),
		Source: "metaplex",
	}, nil
}

func metaFromToken2022(m *token2022.TokenMetadata) *TokenMeta {
	meta := &TokenMeta{
		Name:   trimMeta(m.Name),
		Symbol: trimMeta(m.Symbol),
		URI:    trimMeta(m.URI),
		Source: "token2022",
	}
	if len(m.AdditionalMetadata) > 0 {
		meta.Extra = make(map[string]string, len(m.AdditionalMetadata))
		for _, kv := range m.AdditionalMetadata {
			meta.Extra[kv[0]] = kv[1]
		}
	}
	return meta
}

// getAccounts loads accounts in pages of 100, keeping the order of keys. Missing accounts are nil.
func (c *Client) getAccounts(ctx context.Context, keys []solana.PublicKey) ([]*rpc.Account, error) {
	out := make([]*rpc.Account, 0, len(keys))
	for i := 0; i < len(keys); i += multipleAccountsLimit {
		end := i + multipleAccountsLimit
		if end > len(keys) {
			end = len(keys)
		}
		start := time.Now()
		res, err := sol.GetMultipleAccountInfo(ctx, c.rpcClient, keys[i:end])
		c.observe("getMultipleAccounts", start, err)
		if err != nil {
			return nil, err
		}
		page := make([]*rpc.Account, end-i)
		copy(page, res.Value)
		out = append(out, page...)
	}
	return out, nil
}

// onChainMetadata resolves name, symbol and URI of mints from chain state:
// the Token-2022 TokenMetadata extension, the account a MetadataPointer names, then the
// Metaplex PDA. mintData holds already loaded mint accounts and may be nil.
func (c *Client) onChainMetadata(ctx context.Context, mints []solana.PublicKey, mintData map[solana.PublicKey][]byte) map[solana.PublicKey]*TokenMeta {
	result := make(map[solana.PublicKey]*TokenMeta, len(mints))

	var missing []solana.PublicKey
	for _, mint := range mints {
		if _, ok := mintData[mint]; !ok {
			missing = append(missing, mint)
		}
	}
	if len(missing) > 0 {
		if mintData == nil {
			mintData = make(map[solana.PublicKey][]byte, len(missing))
		}
		accounts, err := c.getAccounts(ctx, missing)
		if err != nil {
			c.logger.Warn("load mint accounts for metadata", zap.Error(err))
		}
		for i, acc := range accounts {
			if acc != nil && acc.Owner.Equals(solana.Token2022ProgramID) {
				mintData[missing[i]] = acc.Data.GetBinary()
			}
		}
	}

	// pointer target account -> mint
	pointers := map[solana.PublicKey]solana.PublicKey{}
	for _, mint := range mints {
		data := mintData[mint]
		if len(data) <= sol.AccountSize {
			continue
		}
		exts, err := token2022.ParseExtensions(data)
		if err != nil {
			c.logger.Debug("parse mint extensions", zap.String("mint", mint.String()), zap.Error(err))
			continue
		}
		if md, err := exts.TokenMetadata(); err == nil {
			result[mint] = metaFromToken2022(md)
			continue
		}
		if ptr, err := exts.MetadataPointer(); err == nil && ptr.Address != nil && !ptr.Address.Equals(mint) {
			pointers[*ptr.Address] = mint
		}
	}

	if len(pointers) > 0 {
		targets := make([]solana.PublicKey, 0, len(pointers))
		for k := range pointers {
			targets = append(targets, k)
		}
		accounts, err := c.getAccounts(ctx, targets)
		if err != nil {
			c.logger.Warn("load metadata pointer targets", zap.Error(err))
		}
		for i, acc := range accounts {
			if acc == nil {
				continue
			}
			mint := pointers[targets[i]]
			data := acc.Data.GetBinary()
			if acc.Owner.Equals(metaplexProgramID) {
				if meta, err := DecodeMetaplexMetadata(data); err == nil {
					result[mint] = meta
				}
				continue
			}
			if exts, err := token2022.ParseExtensions(data); err == nil {
				if md, err := exts.TokenMetadata(); err == nil {
					result[mint] = metaFromToken2022(md)
				}
			}
		}
	}

	var (
		pdas     []solana.PublicKey
		pdaMints []solana.PublicKey
	)
	for _, mint := range mints {
		if _, ok := result[mint]; ok {
			continue
		}
		pda, err := MetaplexMetadataAddress(mint)
		if err != nil {
			continue
		}
		pdas = append(pdas, pda)
		pdaMints = append(pdaMints, mint)
	}
	if len(pdas) > 0 {
		accounts, err := c.getAccounts(ctx, pdas)
		if err != nil {
			c.logger.Warn("load metaplex metadata", zap.Error(err))
		}
		for i, acc := range accounts {
			if acc == nil || !acc.Owner.Equals(metaplexProgramID) {
				continue
			}
			meta, err := DecodeMetaplexMetadata(acc.Data.GetBinary())
			if err != nil {
				c.logger.Debug("decode metaplex metadata", zap.String("mint", pdaMints[i].String()), zap.Error(err))
				continue
			}
			result[pdaMints[i]] = meta
		}
	}
	return result
}

// enrichOffChain fetches the JSON document of every meta with a URI, with bounded concurrency
// and rate limiting. Failures leave the on-chain values untouched.
func (c *Client) enrichOffChain(ctx context.Context, metas map[solana.PublicKey]*TokenMeta) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.metadataConcurrency)

	var mu sync.Mutex
	for mint, meta := range metas {
		if meta.URI == "" {
			continue
		}
		mint, meta := mint, meta
		g.Go(func() error {
			if err := c.wait(gctx); err != nil {
				return nil
			}
			var doc offChainMetadata
			start := time.Now()
			err := c.ipfs.FetchJSON(gctx, meta.URI, &doc, c.metadataTimeout)
			c.observe("offchainMetadata", start, err)
			if err != nil {
				c.logger.Debug("fetch off-chain metadata",
					zap.String("mint", mint.String()),
					zap.String("uri", meta.URI),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if meta.Name == "" {
				meta.Name = trimMeta(doc.Name)
			}
			if meta.Symbol == "" {
				meta.Symbol = trimMeta(doc.Symbol)
			}
			meta.Description = doc.Description
			if doc.Image != "" {
				meta.Image = c.ipfs.GatewayURL(doc.Image)
			}
			meta.Links = doc.links()
			return nil
		})
	}
	_ = g.Wait()
}

// ResolveMetadata returns display metadata for every mint, degrading to Unknown Token.
func (c *Client) ResolveMetadata(ctx context.Context, mints []solana.PublicKey) map[solana.PublicKey]*TokenMeta {
	return c.resolveMetadata(ctx, mints, nil)
}

func (c *Client) resolveMetadata(ctx context.Context, mints []solana.PublicKey, mintData map[solana.PublicKey][]byte) map[solana.PublicKey]*TokenMeta {
	out := make(map[solana.PublicKey]*TokenMeta, len(mints))

	var lookup []solana.PublicKey
	for _, mint := range mints {
		key := cacheKey("meta", mint.String())
		if v, ok := c.cached("metadata", key); ok {
			out[mint] = v.(*TokenMeta)
			continue
		}
		lookup = append(lookup, mint)
	}
	if len(lookup) == 0 {
		return out
	}

	found := c.onChainMetadata(ctx, lookup, mintData)
	c.enrichOffChain(ctx, found)

	for _, mint := range lookup {
		meta, ok := found[mint]
		if !ok {
			meta = unknownMeta()
		}
		if meta.Name == "" {
			meta.Name = UnknownName
		}
		if meta.Symbol == "" {
			meta.Symbol = UnknownSymbol
		}
		out[mint] = meta
		c.cache.SetDefault(cacheKey("meta", mint.String()), meta)
	}
	return out
}
