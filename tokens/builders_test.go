package tokens

import (
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	bin "github.com/gagliardetto/binary"
	tokenmetadata "github.com/gagliardetto/metaplex-go/clients/token-metadata"
	"github.com/gagliardetto/solana-go"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krazyTry/spl-toolkit/ipfs"
	"github.com/krazyTry/spl-toolkit/solana/token2022"
)

func TestBuildMintRequiresAuthority(t *testing.T) {
	fake, rpcClient := newFakeRPC(t)
	owner := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()
	foreign := solana.NewWallet().PublicKey()
	fixed := solana.NewWallet().PublicKey()
	fake.setAccount(foreign, solana.TokenProgramID, mintData(0, 100, &other, nil), 1_461_600)
	fake.setAccount(fixed, solana.TokenProgramID, mintData(0, 100, nil, nil), 1_461_600)

	c := NewClient(rpcClient)
	for _, mint := range []solana.PublicKey{foreign, fixed} {
		_, _, err := c.BuildMint(context.Background(), SupplyParams{Mint: mint, Owner: owner, Amount: "1"})
		assert.Equal(t, KindUnauthorized, KindOf(err))
		assert.ErrorIs(t, err, ErrNotMintAuthority)
	}

	owned := solana.NewWallet().PublicKey()
	fake.setAccount(owned, solana.TokenProgramID, mintData(2, 0, &owner, nil), 1_461_600)
	plan, amount, err := c.BuildMint(context.Background(), SupplyParams{Mint: owned, Owner: owner, Amount: "1.5"})
	require.NoError(t, err)
	assert.Equal(t, uint64(150), amount)
	require.Len(t, plan.Batches, 1)
}

func TestBuildBurnAboveBalance(t *testing.T) {
	fake, rpcClient := newFakeRPC(t)
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	fake.setAccount(mint, solana.TokenProgramID, mintData(0, 100, nil, nil), 1_461_600)
	ata, err := DeriveATA(owner, mint, solana.TokenProgramID)
	require.NoError(t, err)
	fake.setAccount(ata, solana.TokenProgramID, tokenAccountData(mint, owner, 5, false), 2_039_280)

	c := NewClient(rpcClient)
	_, _, err = c.BuildBurn(context.Background(), SupplyParams{Mint: mint, Owner: owner, Amount: "6"})
	assert.Equal(t, KindInsufficientFunds, KindOf(err))
	assert.ErrorIs(t, err, ErrInsufficient)

	_, amount, err := c.BuildBurn(context.Background(), SupplyParams{Mint: mint, Owner: owner, Amount: "5"})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), amount)
}

func TestBuildFreezeAuthority(t *testing.T) {
	fake, rpcClient := newFakeRPC(t)
	owner := solana.NewWallet().PublicKey()
	holder := solana.NewWallet().PublicKey()
	unfreezable := solana.NewWallet().PublicKey()
	freezable := solana.NewWallet().PublicKey()
	fake.setAccount(unfreezable, solana.TokenProgramID, mintData(0, 100, &owner, nil), 1_461_600)
	fake.setAccount(freezable, solana.TokenProgramID, mintData(0, 100, &owner, &owner), 1_461_600)
	ata, err := DeriveATA(holder, freezable, solana.TokenProgramID)
	require.NoError(t, err)
	fake.setAccount(ata, solana.TokenProgramID, tokenAccountData(freezable, holder, 1, false), 2_039_280)

	c := NewClient(rpcClient)
	_, err = c.BuildFreeze(context.Background(), FreezeParams{Mint: unfreezable, Owner: owner, Account: holder.String()})
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.ErrorIs(t, err, ErrNoFreezeAuthority)

	_, err = c.BuildFreeze(context.Background(), FreezeParams{Mint: freezable, Owner: holder, Account: holder.String()})
	assert.ErrorIs(t, err, ErrNotFreezeAuthority)

	// a wallet resolves to its ATA
	plan, err := c.BuildFreeze(context.Background(), FreezeParams{Mint: freezable, Owner: owner, Account: holder.String()})
	require.NoError(t, err)
	require.Len(t, plan.Batches, 1)

	_, err = c.BuildThaw(context.Background(), FreezeParams{Mint: freezable, Owner: owner, Account: ata.String()})
	assert.Equal(t, KindInvalidInput, KindOf(err))
}

func TestBuildClaimFeesSplitsSources(t *testing.T) {
	fake, rpcClient := newFakeRPC(t)
	authority := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	fake.setAccount(mint, solana.Token2022ProgramID,
		mintData(0, 1_000_000, nil, nil, transferFeeRecord(100, 1_000, &authority, 7)), 1_461_600)

	const holders = 2*token2022.MaxWithdrawSources + 5
	withheld := make([]byte, 8)
	binary.LittleEndian.PutUint64(withheld, 1)
	var accounts []interface{}
	for i := 0; i < holders; i++ {
		data := withExtensions(tokenAccountData(mint, solana.NewWallet().PublicKey(), 10, false),
			extensionRecord(uint16(token2022.ExtensionTransferFeeAmount), withheld))
		accounts = append(accounts, programAccount(solana.NewWallet().PublicKey(), solana.Token2022ProgramID, data))
	}
	// nothing withheld
	empty := withExtensions(tokenAccountData(mint, solana.NewWallet().PublicKey(), 10, false),
		extensionRecord(uint16(token2022.ExtensionTransferFeeAmount), make([]byte, 8)))
	accounts = append(accounts, programAccount(solana.NewWallet().PublicKey(), solana.Token2022ProgramID, empty))
	fake.handle("getProgramAccounts", func([]jsoniter.RawMessage) interface{} { return accounts })

	c := NewClient(rpcClient)
	_, fees, err := c.BuildClaimFees(context.Background(), ClaimFeesParams{Mint: mint, Owner: solana.NewWallet().PublicKey()})
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.ErrorIs(t, err, ErrNotWithdrawAuthority)
	require.NotNil(t, fees)

	plan, fees, err := c.BuildClaimFees(context.Background(), ClaimFeesParams{Mint: mint, Owner: authority})
	require.NoError(t, err)
	assert.Len(t, fees.Accounts, holders)
	assert.Equal(t, uint64(7+holders), fees.Total)

	var (
		fromMint int
		sources  []int
	)
	for _, batch := range plan.Batches {
		for _, ix := range batch {
			if !ix.ProgramID().Equals(solana.Token2022ProgramID) {
				continue
			}
			data, err := ix.Data()
			require.NoError(t, err)
			if len(data) < 2 || data[0] != 26 {
				continue
			}
			switch data[1] {
			case 2:
				fromMint++
			case 3:
				sources = append(sources, len(ix.Accounts())-3)
			}
		}
	}
	assert.Equal(t, 1, fromMint)
	assert.Equal(t, []int{token2022.MaxWithdrawSources, token2022.MaxWithdrawSources, 5}, sources)
}

func TestBuildRecoverRequiresDelegate(t *testing.T) {
	fake, rpcClient := newFakeRPC(t)
	delegate := solana.NewWallet().PublicKey()
	holder := solana.NewWallet().PublicKey()

	mint := solana.NewWallet().PublicKey()
	fake.setAccount(mint, solana.Token2022ProgramID,
		mintData(0, 100, nil, nil, extensionRecord(uint16(token2022.ExtensionPermanentDelegate), delegate[:])), 1_461_600)
	source, err := DeriveATA(holder, mint, solana.Token2022ProgramID)
	require.NoError(t, err)
	fake.setAccount(source, solana.Token2022ProgramID, tokenAccountData(mint, holder, 10, false), 2_039_280)

	noDelegate := solana.NewWallet().PublicKey()
	fake.setAccount(noDelegate, solana.Token2022ProgramID,
		mintData(0, 100, nil, nil, extensionRecord(uint16(token2022.ExtensionNonTransferable), nil)), 1_461_600)
	legacy := solana.NewWallet().PublicKey()
	fake.setAccount(legacy, solana.TokenProgramID, mintData(0, 100, nil, nil), 1_461_600)

	c := NewClient(rpcClient)
	ctx := context.Background()

	_, _, err = c.BuildRecover(ctx, RecoverParams{Mint: mint, Owner: holder, Source: holder.String()})
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.ErrorIs(t, err, ErrNotDelegate)

	_, _, err = c.BuildRecover(ctx, RecoverParams{Mint: noDelegate, Owner: delegate, Source: holder.String()})
	assert.ErrorIs(t, err, ErrNoPermanentDelegate)

	_, _, err = c.BuildRecover(ctx, RecoverParams{Mint: legacy, Owner: delegate, Source: holder.String()})
	assert.ErrorIs(t, err, ErrNotToken2022)

	_, _, err = c.BuildRecover(ctx, RecoverParams{Mint: mint, Owner: delegate, Source: holder.String(), Amount: "11"})
	assert.Equal(t, KindInsufficientFunds, KindOf(err))

	plan, amount, err := c.BuildRecover(ctx, RecoverParams{Mint: mint, Owner: delegate, Source: holder.String()})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), amount)
	require.Len(t, plan.Batches, 1)
}

func TestBuildCreateRentCoversMetadata(t *testing.T) {
	fake, rpcClient := newFakeRPC(t)
	var rentSize atomic.Uint64
	fake.handle("getMinimumBalanceForRentExemption", func(params []jsoniter.RawMessage) interface{} {
		var size uint64
		require.NoError(t, rpcJSON.Unmarshal(params[0], &size))
		rentSize.Store(size)
		return rentFor(size)
	})

	owner := solana.NewWallet().PublicKey()
	c := NewClient(rpcClient)
	plan, created, err := c.BuildCreate(context.Background(), owner, CreateTokenParams{
		Name:               "Alpha",
		Symbol:             "ALP",
		URI:                "https://x.example/a.json",
		Decimals:           6,
		Token2022:          true,
		AdditionalMetadata: map[string]string{"k": "v"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://x.example/a.json", created.MetadataURI)

	// the mint with its MetadataPointer record
	space := uint64(165 + 1 + 4 + 64)
	// authorities, three strings and one additional key/value pair
	metadata := uint64(32 + 32 + 4 + 5 + 4 + 3 + 4 + 24 + 4 + 4 + 1 + 4 + 1)
	assert.Equal(t, space+4+metadata, rentSize.Load())

	lamports, allocated := createAccountOf(t, plan)
	assert.Equal(t, rentFor(space+4+metadata), lamports)
	assert.Equal(t, space, allocated)

	_, _, err = c.BuildCreate(context.Background(), owner, CreateTokenParams{Name: "Beta", Symbol: "BET", URI: "https://x.example/b.json"})
	require.NoError(t, err)
	assert.Equal(t, uint64(82), rentSize.Load())
}

// createAccountOf returns lamports and space of the system CreateAccount instruction in plan.
func createAccountOf(t *testing.T, plan *Plan) (uint64, uint64) {
	for _, batch := range plan.Batches {
		for _, ix := range batch {
			if !ix.ProgramID().Equals(solana.SystemProgramID) {
				continue
			}
			data, err := ix.Data()
			require.NoError(t, err)
			if len(data) >= 20 && binary.LittleEndian.Uint32(data[0:4]) == 0 {
				return binary.LittleEndian.Uint64(data[4:12]), binary.LittleEndian.Uint64(data[12:20])
			}
		}
	}
	t.Fatal("no create account instruction")
	return 0, 0
}

func metaplexData(t *testing.T, mint solana.PublicKey, name, symbol, uri string) []byte {
	buf := new(bytes.Buffer)
	require.NoError(t, bin.NewBorshEncoder(buf).Encode(tokenmetadata.Metadata{
		Key:  tokenmetadata.KeyMetadataV1,
		Mint: mint,
		Data: tokenmetadata.Data{Name: name, Symbol: symbol, Uri: uri},
	}))
	return buf.Bytes()
}

func TestResolveMetadataSources(t *testing.T) {
	doc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Other","description":"Alpha coin","image":"ipfs://bafy/alpha.png","website":"https://alpha.example"}`))
	}))
	t.Cleanup(doc.Close)

	fake, rpcClient := newFakeRPC(t)

	embedded := solana.NewWallet().PublicKey()
	md := &token2022.TokenMetadata{Mint: embedded, Name: "Alpha", Symbol: "ALP", URI: doc.URL + "/alpha.json"}
	raw, err := md.Encode()
	require.NoError(t, err)
	fake.setAccount(embedded, solana.Token2022ProgramID,
		mintData(0, 1, nil, nil, extensionRecord(uint16(token2022.ExtensionTokenMetadata), raw)), 1_461_600)

	pointed := solana.NewWallet().PublicKey()
	target := solana.NewWallet().PublicKey()
	pointer := make([]byte, 64)
	copy(pointer[32:], target[:])
	fake.setAccount(pointed, solana.Token2022ProgramID,
		mintData(0, 1, nil, nil, extensionRecord(uint16(token2022.ExtensionMetadataPointer), pointer)), 1_461_600)
	fake.setAccount(target, metaplexProgramID, metaplexData(t, pointed, "Beta", "BET", ""), 5_616_720)

	legacy := solana.NewWallet().PublicKey()
	fake.setAccount(legacy, solana.TokenProgramID, mintData(0, 1, nil, nil), 1_461_600)
	pda, err := MetaplexMetadataAddress(legacy)
	require.NoError(t, err)
	fake.setAccount(pda, metaplexProgramID, metaplexData(t, legacy, "Gamma\x00\x00", "GAM", ""), 5_616_720)

	unknown := solana.NewWallet().PublicKey()

	c := NewClient(rpcClient, WithIPFS(ipfs.NewClient(ipfs.Config{Gateway: "https://gw.example"}, nil)))
	metas := c.ResolveMetadata(context.Background(), []solana.PublicKey{embedded, pointed, legacy, unknown})
	require.Len(t, metas, 4)

	assert.Equal(t, "token2022", metas[embedded].Source)
	assert.Equal(t, "Alpha", metas[embedded].Name)
	assert.Equal(t, "Alpha coin", metas[embedded].Description)
	assert.Equal(t, "https://gw.example/ipfs/bafy/alpha.png", metas[embedded].Image)
	assert.Equal(t, map[string]string{"website": "https://alpha.example"}, metas[embedded].Links)

	assert.Equal(t, "metaplex", metas[pointed].Source)
	assert.Equal(t, "Beta", metas[pointed].Name)

	assert.Equal(t, "metaplex", metas[legacy].Source)
	assert.Equal(t, "Gamma", metas[legacy].Name)
	assert.Equal(t, "GAM", metas[legacy].Symbol)

	assert.Equal(t, "none", metas[unknown].Source)
	assert.Equal(t, UnknownName, metas[unknown].Name)

	// served from cache
	calls := fake.count("getMultipleAccounts")
	c.ResolveMetadata(context.Background(), []solana.PublicKey{embedded, unknown})
	assert.Equal(t, calls, fake.count("getMultipleAccounts"))
}
