// Package hookpool sets up a constant product pool for a Token-2022 mint guarded by a
// whitelist transfer hook: the hook's extra account metas and whitelist, the pool vault
// whitelisting, pool creation and a first swap.
package hookpool

import (
	"bytes"
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	"github.com/krazyTry/spl-toolkit/solana/token2022"
)

var (
	// CPSwapProgramID is the constant product swap program on mainnet.
	CPSwapProgramID = solana.MustPublicKeyFromBase58("CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C")
	// CPSwapDevnetProgramID is the same program on devnet.
	CPSwapDevnetProgramID = solana.MustPublicKeyFromBase58("CPMDWBwJDtYax9qW7AyRuVC19Cc4L4Vcy4n2BHAbHkCW")

	CreatePoolFeeReceiver       = solana.MustPublicKeyFromBase58("DNXgeM9EiiaAbaWvwjHj9fQQLAX5ZsfHyvmYUNRAdNC8")
	CreatePoolFeeReceiverDevnet = solana.MustPublicKeyFromBase58("G11FKBRaAkHAKuLCgLM6K6NUc9rTjPAznRCjZifrTQe2")
)

const (
	seedWhitelist   = "white_list"
	seedAuthority   = "vault_and_lp_mint_auth_seed"
	seedAmmConfig   = "amm_config"
	seedPool        = "pool"
	seedLPMint      = "pool_lp_mint"
	seedVault       = "pool_vault"
	seedObservation = "observation"
)

// SortMints orders two mints the way the pool stores them: token0 has the smaller key bytes.
func SortMints(a, b solana.PublicKey) (token0, token1 solana.PublicKey) {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		return b, a
	}
	return a, b
}

// DeriveWhitelist derives the whitelist account of the hook program.
func DeriveWhitelist(hookProgram solana.PublicKey) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress([][]byte{[]byte(seedWhitelist)}, hookProgram)
	return pda, err
}

// DeriveExtraAccountMetaList derives the validation account the token program reads on
// every transfer of mint.
func DeriveExtraAccountMetaList(mint, hookProgram solana.PublicKey) (solana.PublicKey, error) {
	return token2022.ExtraAccountMetasAddress(mint, hookProgram)
}

func DeriveAuthority(program solana.PublicKey) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress([][]byte{[]byte(seedAuthority)}, program)
	return pda, err
}

// DeriveAmmConfig derives the fee config at index. The index is a big endian u16 seed.
func DeriveAmmConfig(index uint16, program solana.PublicKey) (solana.PublicKey, error) {
	indexBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(indexBytes, index)
	pda, _, err := solana.FindProgramAddress([][]byte{[]byte(seedAmmConfig), indexBytes}, program)
	return pda, err
}

// DerivePool derives the pool of two mints under ammConfig. The mints may be given in
// any order.
func DerivePool(ammConfig, mintA, mintB, program solana.PublicKey) (solana.PublicKey, error) {
	token0, token1 := SortMints(mintA, mintB)
	pda, _, err := solana.FindProgramAddress([][]byte{
		[]byte(seedPool),
		ammConfig.Bytes(),
		token0.Bytes(),
		token1.Bytes(),
	}, program)
	return pda, err
}

func DeriveLPMint(pool, program solana.PublicKey) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress([][]byte{[]byte(seedLPMint), pool.Bytes()}, program)
	return pda, err
}

func DeriveVault(pool, mint, program solana.PublicKey) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress([][]byte{[]byte(seedVault), pool.Bytes(), mint.Bytes()}, program)
	return pda, err
}

func DeriveObservation(pool, program solana.PublicKey) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress([][]byte{[]byte(seedObservation), pool.Bytes()}, program)
	return pda, err
}

// PoolKeys are the accounts of one pool.
type PoolKeys struct {
	Program     solana.PublicKey
	AmmConfig   solana.PublicKey
	Authority   solana.PublicKey
	Pool        solana.PublicKey
	LPMint      solana.PublicKey
	Token0Mint  solana.PublicKey
	Token1Mint  solana.PublicKey
	Token0Vault solana.PublicKey
	Token1Vault solana.PublicKey
	Observation solana.PublicKey
}

// DerivePoolKeys derives every account of the pool of mintA and mintB.
func DerivePoolKeys(program solana.PublicKey, configIndex uint16, mintA, mintB solana.PublicKey) (*PoolKeys, error) {
	keys := &PoolKeys{Program: program}
	keys.Token0Mint, keys.Token1Mint = SortMints(mintA, mintB)

	var err error
	if keys.AmmConfig, err = DeriveAmmConfig(configIndex, program); err != nil {
		return nil, err
	}
	if keys.Authority, err = DeriveAuthority(program); err != nil {
		return nil, err
	}
	if keys.Pool, err = DerivePool(keys.AmmConfig, keys.Token0Mint, keys.Token1Mint, program); err != nil {
		return nil, err
	}
	if keys.LPMint, err = DeriveLPMint(keys.Pool, program); err != nil {
		return nil, err
	}
	if keys.Token0Vault, err = DeriveVault(keys.Pool, keys.Token0Mint, program); err != nil {
		return nil, err
	}
	if keys.Token1Vault, err = DeriveVault(keys.Pool, keys.Token1Mint, program); err != nil {
		return nil, err
	}
	if keys.Observation, err = DeriveObservation(keys.Pool, program); err != nil {
		return nil, err
	}
	return keys, nil
}

// Vault returns the pool vault of mint.
func (k *PoolKeys) Vault(mint solana.PublicKey) (solana.PublicKey, bool) {
	switch {
	case mint.Equals(k.Token0Mint):
		return k.Token0Vault, true
	case mint.Equals(k.Token1Mint):
		return k.Token1Vault, true
	}
	return solana.PublicKey{}, false
}
