package solana

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrNotTokenProgram = errors.New("account is not owned by a token program")
)

func GetLatestBlockhash(ctx context.Context, rpcClient *rpc.Client) (solana.Hash, error) {
	recent, err := rpcClient.GetLatestBlockhash(ctx, Commitment)
	if err != nil {
		return solana.Hash{}, err
	}
	return recent.Value.Blockhash, nil
}

// AnchorDiscriminator returns the 8-byte Anchor discriminator for namespace:name,
// e.g. ("global", "initialize") for instructions or ("account", "PoolState") for accounts.
func AnchorDiscriminator(namespace, name string) []byte {
	return hashDiscriminator(namespace + ":" + name)
}

func hashDiscriminator(preimage string) []byte {
	hash := sha256.Sum256([]byte(preimage))
	var out [8]byte
	copy(out[:], hash[:8])
	return out[:]
}

// GenTokenAccountFilter selects the token accounts of a mint, optionally narrowed to one owner.
func GenTokenAccountFilter(filter Filter) *rpc.GetProgramAccountsOpts {
	opt := &rpc.GetProgramAccountsOpts{
		Commitment: Commitment,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{
				Memcmp: &rpc.RPCFilterMemcmp{
					Offset: 0,
					Bytes:  filter.Mint[:],
				},
			},
		},
	}
	if filter.Owner.IsZero() {
		return opt
	}

	opt.Filters = append(opt.Filters, rpc.RPCFilter{
		Memcmp: &rpc.RPCFilterMemcmp{
			Offset: 32,
			Bytes:  filter.Owner[:],
		},
	})
	return opt
}

func GetAccountInfo(ctx context.Context, rpcClient *rpc.Client, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	return rpcClient.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{Commitment: Commitment, Encoding: solana.EncodingBase64})
}

func GetMultipleAccountInfo(ctx context.Context, rpcClient *rpc.Client, accounts []solana.PublicKey) (*rpc.GetMultipleAccountsResult, error) {
	return rpcClient.GetMultipleAccountsWithOpts(ctx, accounts, &rpc.GetMultipleAccountsOpts{Commitment: Commitment, Encoding: solana.EncodingBase64})
}

// AccountExists reports whether account is present on chain.
func AccountExists(ctx context.Context, rpcClient *rpc.Client, account solana.PublicKey) (bool, error) {
	out, err := GetAccountInfo(ctx, rpcClient, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return out != nil && out.Value != nil, nil
}

func GetCurrentEpoch(ctx context.Context, rpcClient *rpc.Client) (uint64, error) {
	epochInfo, err := rpcClient.GetEpochInfo(ctx, Commitment)
	if err != nil {
		return 0, err
	}
	return epochInfo.Epoch, nil
}

// GetRentExempt returns the minimum lamports for an account of size bytes.
func GetRentExempt(ctx context.Context, rpcClient *rpc.Client, size uint64) (uint64, error) {
	lamports, err := rpcClient.GetMinimumBalanceForRentExemption(ctx, size, Commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get rent exemption for %d bytes: %w", size, err)
	}
	return lamports, nil
}

// SOLBalance returns the lamports held by wallet.
func SOLBalance(ctx context.Context, rpcClient *rpc.Client, wallet solana.PublicKey) (uint64, error) {
	out, err := rpcClient.GetBalance(ctx, wallet, Commitment)
	if err != nil {
		return 0, err
	}
	return out.Value, nil
}

// GetToken loads and decodes a mint account of either token program.
func GetToken(ctx context.Context, rpcClient *rpc.Client, mint solana.PublicKey) (*Token, error) {
	out, err := GetAccountInfo(ctx, rpcClient, mint)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("mint %s: %w", mint, ErrAccountNotFound)
		}
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("mint %s: %w", mint, ErrAccountNotFound)
	}
	if !IsTokenProgram(out.Value.Owner) {
		return nil, fmt.Errorf("mint %s owned by %s: %w", mint, out.Value.Owner, ErrNotTokenProgram)
	}
	token, err := new(TokenLayout).Decode(out.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("decode mint %s: %w", mint, err)
	}
	token.Address = mint
	token.Owner = out.Value.Owner
	return token, nil
}

// GetTokenAccount loads and decodes a token account of either token program.
func GetTokenAccount(ctx context.Context, rpcClient *rpc.Client, address solana.PublicKey) (*Account, error) {
	out, err := GetAccountInfo(ctx, rpcClient, address)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("token account %s: %w", address, ErrAccountNotFound)
		}
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("token account %s: %w", address, ErrAccountNotFound)
	}
	if !IsTokenProgram(out.Value.Owner) {
		return nil, fmt.Errorf("token account %s owned by %s: %w", address, out.Value.Owner, ErrNotTokenProgram)
	}
	acc, err := new(AccountLayout).Decode(out.GetBinary())
	if err != nil {
		return nil, fmt.Errorf("decode token account %s: %w", address, err)
	}
	acc.Address = address
	acc.Program = out.Value.Owner
	acc.Lamports = out.Value.Lamports
	return acc, nil
}

// GetTokenAccounts returns every token account of filter.Mint under program.
func GetTokenAccounts(ctx context.Context, rpcClient *rpc.Client, program solana.PublicKey, filter Filter) ([]*Account, error) {
	outs, err := rpcClient.GetProgramAccountsWithOpts(ctx, program, GenTokenAccountFilter(filter))
	if err != nil {
		return nil, err
	}
	list := make([]*Account, 0, len(outs))
	for _, out := range outs {
		if out == nil || out.Account == nil {
			continue
		}
		data := out.Account.Data.GetBinary()
		// mints of the same program never match the memcmp at offset 0, but skip short data anyway
		if len(data) < AccountSize {
			continue
		}
		acc, err := new(AccountLayout).Decode(data)
		if err != nil {
			return nil, err
		}
		acc.Address = out.Pubkey
		acc.Program = program
		acc.Lamports = out.Account.Lamports
		list = append(list, acc)
	}
	return list, nil
}

func GetMultipleToken(ctx context.Context, rpcClient *rpc.Client, tokens ...solana.PublicKey) ([]*Token, error) {
	outs, err := GetMultipleAccountInfo(ctx, rpcClient, tokens)
	if err != nil {
		return nil, err
	}
	list := make([]*Token, len(outs.Value))
	for i, out := range outs.Value {
		if out == nil {
			continue
		}

		token, err := new(TokenLayout).Decode(out.Data.GetBinary())
		if err != nil {
			return nil, err
		}
		token.Address = tokens[i]
		token.Owner = out.Owner

		list[i] = token
	}
	return list, nil
}
