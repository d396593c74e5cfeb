package tokens

import (
	"encoding/base64"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
)

var rpcJSON = jsoniter.ConfigCompatibleWithStandardLibrary

type rpcHandler func(params []jsoniter.RawMessage) interface{}

// fakeRPC answers JSON-RPC requests from canned account state.
type fakeRPC struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]interface{}
	handlers map[string]rpcHandler
	calls    map[string]int
}

func newFakeRPC(t *testing.T) (*fakeRPC, *rpc.Client) {
	f := &fakeRPC{
		accounts: map[solana.PublicKey]interface{}{},
		handlers: map[string]rpcHandler{},
		calls:    map[string]int{},
	}
	f.handlers["getAccountInfo"] = func(params []jsoniter.RawMessage) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   f.account(keyParam(t, params[0])),
		}
	}
	f.handlers["getMultipleAccounts"] = func(params []jsoniter.RawMessage) interface{} {
		var keys []string
		require.NoError(t, rpcJSON.Unmarshal(params[0], &keys))
		values := make([]interface{}, 0, len(keys))
		for _, k := range keys {
			values = append(values, f.account(solana.MustPublicKeyFromBase58(k)))
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   values,
		}
	}
	f.handlers["getMinimumBalanceForRentExemption"] = func(params []jsoniter.RawMessage) interface{} {
		var size uint64
		require.NoError(t, rpcJSON.Unmarshal(params[0], &size))
		return rentFor(size)
	}
	f.handlers["getEpochInfo"] = func([]jsoniter.RawMessage) interface{} {
		return map[string]interface{}{
			"absoluteSlot":     1000,
			"blockHeight":      900,
			"epoch":            500,
			"slotIndex":        0,
			"slotsInEpoch":     432000,
			"transactionCount": 1,
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req struct {
			ID     jsoniter.RawMessage   `json:"id"`
			Method string                `json:"method"`
			Params []jsoniter.RawMessage `json:"params"`
		}
		require.NoError(t, rpcJSON.Unmarshal(body, &req))

		f.mu.Lock()
		f.calls[req.Method]++
		handler, ok := f.handlers[req.Method]
		f.mu.Unlock()

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if ok {
			resp["result"] = handler(req.Params)
		} else {
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found: " + req.Method}
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, rpcJSON.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return f, rpc.New(srv.URL)
}

// rentFor mirrors the default rent schedule: two years of 3480 lamports per byte-year.
func rentFor(size uint64) uint64 {
	return (128 + size) * 6960
}

func keyParam(t *testing.T, raw jsoniter.RawMessage) solana.PublicKey {
	var s string
	require.NoError(t, rpcJSON.Unmarshal(raw, &s))
	return solana.MustPublicKeyFromBase58(s)
}

func (f *fakeRPC) account(key solana.PublicKey) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.accounts[key]; ok {
		return v
	}
	return nil
}

func (f *fakeRPC) setAccount(key, owner solana.PublicKey, data []byte, lamports uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[key] = map[string]interface{}{
		"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
		"executable": false,
		"lamports":   lamports,
		"owner":      owner.String(),
		"rentEpoch":  0,
		"space":      len(data),
	}
}

func (f *fakeRPC) handle(method string, h rpcHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeRPC) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// parsedTokenAccount is a getTokenAccountsByOwner entry in jsonParsed encoding.
func parsedTokenAccount(address, mint, owner, program solana.PublicKey, amount uint64, decimals uint8, state string) interface{} {
	return map[string]interface{}{
		"pubkey": address.String(),
		"account": map[string]interface{}{
			"data": map[string]interface{}{
				"program": "spl-token",
				"parsed": map[string]interface{}{
					"type": "account",
					"info": map[string]interface{}{
						"isNative": false,
						"mint":     mint.String(),
						"owner":    owner.String(),
						"state":    state,
						"tokenAmount": map[string]interface{}{
							"amount":   strconv.FormatUint(amount, 10),
							"decimals": decimals,
						},
					},
				},
				"space": 165,
			},
			"executable": false,
			"lamports":   2039280,
			"owner":      program.String(),
			"rentEpoch":  0,
			"space":      165,
		},
	}
}

func tokenAccountData(mint, owner solana.PublicKey, amount uint64, frozen bool) []byte {
	data := make([]byte, 165)
	copy(data[0:32], mint[:])
	copy(data[32:64], owner[:])
	binary.LittleEndian.PutUint64(data[64:72], amount)
	data[108] = 1
	if frozen {
		data[108] = 2
	}
	return data
}

// mintData encodes an initialized mint. Token-2022 extension records are appended after
// the account type byte when given.
func mintData(decimals uint8, supply uint64, mintAuthority, freezeAuthority *solana.PublicKey, extensions ...[]byte) []byte {
	data := make([]byte, 82)
	if mintAuthority != nil {
		data[0] = 1
		copy(data[4:36], mintAuthority[:])
	}
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	data[45] = 1
	if freezeAuthority != nil {
		data[46] = 1
		copy(data[50:82], freezeAuthority[:])
	}
	if len(extensions) == 0 {
		return data
	}
	data = append(data, make([]byte, 165-82)...)
	data = append(data, 1) // mint account type
	for _, ext := range extensions {
		data = append(data, ext...)
	}
	return data
}

func extensionRecord(t uint16, value []byte) []byte {
	out := make([]byte, 4, 4+len(value))
	binary.LittleEndian.PutUint16(out[0:2], t)
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(value)))
	return append(out, value...)
}

// transferFeeRecord encodes a TransferFeeConfig extension with the same fee in both epochs.
func transferFeeRecord(bps uint16, maxFee uint64, withdrawAuthority *solana.PublicKey, withheld uint64) []byte {
	value := make([]byte, 108)
	if withdrawAuthority != nil {
		copy(value[32:64], withdrawAuthority[:])
	}
	binary.LittleEndian.PutUint64(value[64:72], withheld)
	for _, off := range []int{72, 90} {
		binary.LittleEndian.PutUint64(value[off+8:off+16], maxFee)
		binary.LittleEndian.PutUint16(value[off+16:off+18], bps)
	}
	return extensionRecord(1, value)
}

// withExtensions appends the account type byte and extension records to token account data.
func withExtensions(account []byte, extensions ...[]byte) []byte {
	data := append(account, 2)
	for _, ext := range extensions {
		data = append(data, ext...)
	}
	return data
}

// programAccount is a getProgramAccounts entry in base64 encoding.
func programAccount(address, owner solana.PublicKey, data []byte) interface{} {
	return map[string]interface{}{
		"pubkey": address.String(),
		"account": map[string]interface{}{
			"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
			"executable": false,
			"lamports":   2_039_280,
			"owner":      owner.String(),
			"rentEpoch":  0,
			"space":      len(data),
		},
	}
}
