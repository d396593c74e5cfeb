package solana

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	jsoniter "github.com/json-iterator/go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenAccountBytes(mint, owner solana.PublicKey, amount uint64, state AccountState) []byte {
	data := make([]byte, AccountSize)
	copy(data[0:32], mint[:])
	copy(data[32:64], owner[:])
	binary.LittleEndian.PutUint64(data[64:72], amount)
	data[108] = byte(state)
	return data
}

func TestFindAssociatedTokenAddress(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	got, _, err := FindAssociatedTokenAddress(owner, mint, solana.TokenProgramID)
	require.NoError(t, err)
	want, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	again, _, err := FindAssociatedTokenAddress(owner, mint, solana.TokenProgramID)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	ata2022, _, err := FindAssociatedTokenAddress(owner, mint, solana.Token2022ProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, got, ata2022)
	assert.False(t, IsOnCurve(ata2022))
	assert.True(t, IsOnCurve(owner))
}

func TestAccountLayoutDecode(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	acc, err := new(AccountLayout).Decode(tokenAccountBytes(mint, owner, 42, AccountStateFrozen))
	require.NoError(t, err)
	assert.Equal(t, mint, acc.Mint)
	assert.Equal(t, owner, acc.Owner)
	assert.Equal(t, uint64(42), acc.Amount)
	assert.True(t, acc.IsInitialized)
	assert.True(t, acc.IsFrozen)
	assert.Nil(t, acc.Delegate)
	assert.False(t, acc.IsEmpty())

	_, err = new(AccountLayout).Decode(make([]byte, 100))
	assert.Error(t, err)
}

func TestTokenLayoutDecode(t *testing.T) {
	authority := solana.NewWallet().PublicKey()
	data := make([]byte, MintSize)
	binary.LittleEndian.PutUint32(data[0:4], 1)
	copy(data[4:36], authority[:])
	binary.LittleEndian.PutUint64(data[36:44], 1_000_000)
	data[44] = 6
	data[45] = 1

	tok, err := new(TokenLayout).Decode(data)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), tok.Decimals)
	assert.Equal(t, uint64(1_000_000), tok.Supply)
	require.NotNil(t, tok.MintAuthority)
	assert.Equal(t, authority, *tok.MintAuthority)
	assert.Nil(t, tok.FreezeAuthority)

	_, err = new(TokenLayout).Decode(data[:50])
	assert.Error(t, err)
}

func TestMergeInstructionsDedup(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	account := solana.NewWallet().PublicKey()

	create, _, err := CreateAssociatedTokenAccountIdempotentInstruction(payer, payer, mint, solana.Token2022ProgramID)
	require.NoError(t, err)
	closeIx := CloseAccountInstruction(solana.Token2022ProgramID, account, payer, payer)
	burn := BurnCheckedInstruction(solana.Token2022ProgramID, account, mint, payer, 1, 0)

	merged := MergeInstructions([]solana.Instruction{closeIx, burn, create, closeIx, create})
	require.Len(t, merged, 3)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, merged[0].ProgramID())
	assert.Equal(t, burn, merged[1])
	assert.Equal(t, closeIx, merged[2])
}

func TestChunkInstructions(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	var ixs []solana.Instruction
	for i := 0; i < 40; i++ {
		ixs = append(ixs, CloseAccountInstruction(solana.TokenProgramID, solana.NewWallet().PublicKey(), payer, payer))
	}
	prefix := ComputeBudgetInstructions(200_000, 1_000)

	chunks, err := ChunkInstructions(ixs, payer, prefix...)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	total := 0
	for _, chunk := range chunks {
		size, err := InstructionsSize(chunk, payer)
		require.NoError(t, err)
		assert.LessOrEqual(t, size, MaxTransactionSize)
		assert.Equal(t, solana.ComputeBudget, chunk[0].ProgramID())
		total += len(chunk) - len(prefix)
	}
	assert.Equal(t, len(ixs), total)
}

func TestPartialSign(t *testing.T) {
	payer := solana.NewWallet()
	mintKey := solana.NewWallet()

	ix := InitializeMint2Instruction(solana.Token2022ProgramID, mintKey.PublicKey(), 6, payer.PublicKey(), nil)
	signerIx := solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(payer.PublicKey(), true, true),
		solana.NewAccountMeta(mintKey.PublicKey(), true, true),
	}, []byte{0})
	tx, err := solana.NewTransaction([]solana.Instruction{signerIx, ix}, solana.Hash{}, solana.TransactionPayer(payer.PublicKey()))
	require.NoError(t, err)

	require.NoError(t, PartialSign(tx, mintKey.PrivateKey))
	missing := MissingSigners(tx)
	require.Len(t, missing, 1)
	assert.Equal(t, payer.PublicKey(), missing[0])

	encoded, err := EncodeTransaction(tx)
	require.NoError(t, err)
	decoded, err := DecodeTransaction(encoded)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures, decoded.Signatures)

	err = PartialSign(tx, solana.NewWallet().PrivateKey)
	assert.ErrorIs(t, err, ErrNotASigner)
}

func TestParseKeypair(t *testing.T) {
	wallet := solana.NewWallet()

	key, err := ParseKeypair(base58.Encode(wallet.PrivateKey))
	require.NoError(t, err)
	assert.Equal(t, wallet.PublicKey(), key.PublicKey())

	ints := make([]int, len(wallet.PrivateKey))
	for i, b := range wallet.PrivateKey {
		ints[i] = int(b)
	}
	raw, err := jsoniter.Marshal(ints)
	require.NoError(t, err)
	key, err = ParseKeypair(string(raw))
	require.NoError(t, err)
	assert.Equal(t, wallet.PublicKey(), key.PublicKey())

	tampered := append(solana.PrivateKey{}, wallet.PrivateKey...)
	tampered[63] ^= 0xff
	_, err = ParseKeypair(base58.Encode(tampered))
	assert.ErrorIs(t, err, ErrInvalidKeypair)

	_, err = ParseKeypair("abc")
	assert.ErrorIs(t, err, ErrInvalidKeypair)
}

func TestParseAddress(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	got, err := ParseAddress("  " + wallet.String() + "\n")
	require.NoError(t, err)
	assert.Equal(t, wallet, got)

	_, err = ParseAddress("")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = ParseAddress("not-an-address")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestConfirmTransactionKeepsRuntimeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID interface{} `json:"id"`
		}
		require.NoError(t, jsoniter.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, jsoniter.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": 10},
				"value": []interface{}{map[string]interface{}{
					"slot":               10,
					"confirmations":      nil,
					"err":                map[string]interface{}{"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 17}}},
					"confirmationStatus": "confirmed",
				}},
			},
		}))
	}))
	defer srv.Close()

	sig := solana.Signature{1, 2, 3}
	err := ConfirmTransaction(context.Background(), rpc.New(srv.URL), nil, sig)
	require.Error(t, err)

	var txErr *TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, sig, txErr.Signature)
	raw, ok := txErr.Err.(map[string]interface{})
	require.True(t, ok, "runtime error is kept as decoded JSON, got %T", txErr.Err)
	assert.Contains(t, raw, "InstructionError")

	assert.NoError(t, signatureError(sig, nil))
}
