package hookpool

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	sol "github.com/krazyTry/spl-toolkit/solana"
	"github.com/krazyTry/spl-toolkit/solana/token2022"
)

var (
	initializeExtraAccountMetaListDiscriminator = sol.AnchorDiscriminator("global", "initialize_extra_account_meta_list")
	addToWhitelistDiscriminator                 = sol.AnchorDiscriminator("global", "add_to_whitelist")
	initializeDiscriminator                     = sol.AnchorDiscriminator("global", "initialize")
	swapBaseInputDiscriminator                  = sol.AnchorDiscriminator("global", "swap_base_input")
)

// WhitelistExtraAccountMetas is the meta list the whitelist hook writes for every mint:
// one writable PDA of the hook seeded with "white_list".
func WhitelistExtraAccountMetas() []token2022.ExtraAccountMeta {
	meta := token2022.ExtraAccountMeta{Discriminator: 1, IsWritable: true}
	meta.AddressConfig[0] = 1 // literal seed
	meta.AddressConfig[1] = byte(len(seedWhitelist))
	copy(meta.AddressConfig[2:], seedWhitelist)
	return []token2022.ExtraAccountMeta{meta}
}

// HookAccounts returns the accounts a transfer of mint appends for the whitelist hook.
func HookAccounts(mint, hookProgram solana.PublicKey) ([]*solana.AccountMeta, error) {
	validation, err := DeriveExtraAccountMetaList(mint, hookProgram)
	if err != nil {
		return nil, err
	}
	// the whitelist metas reference no transfer account, so the base keys do not matter
	return token2022.ResolveExtraAccountMetas(WhitelistExtraAccountMetas(), hookProgram, validation,
		[4]solana.PublicKey{{}, mint, {}, {}}, 0)
}

func anchorData(discriminator []byte, args ...uint64) []byte {
	buf := new(bytes.Buffer)
	buf.Write(discriminator)
	enc := bin.NewBorshEncoder(buf)
	for _, arg := range args {
		_ = enc.WriteUint64(arg, bin.LE)
	}
	return buf.Bytes()
}

// InitializeExtraAccountMetaListInstruction creates the validation and whitelist accounts of
// the hook for mint.
func InitializeExtraAccountMetaListInstruction(hookProgram, payer, mint solana.PublicKey) (solana.Instruction, error) {
	validation, err := DeriveExtraAccountMetaList(mint, hookProgram)
	if err != nil {
		return nil, err
	}
	whitelist, err := DeriveWhitelist(hookProgram)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(hookProgram, solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(validation, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(whitelist, true, false),
	}, anchorData(initializeExtraAccountMetaListDiscriminator)), nil
}

// AddToWhitelistInstruction lets account receive transfers of hooked mints.
func AddToWhitelistInstruction(hookProgram, authority, account solana.PublicKey) (solana.Instruction, error) {
	whitelist, err := DeriveWhitelist(hookProgram)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(hookProgram, solana.AccountMetaSlice{
		solana.NewAccountMeta(account, false, false),
		solana.NewAccountMeta(whitelist, true, false),
		solana.NewAccountMeta(authority, true, true),
	}, anchorData(addToWhitelistDiscriminator)), nil
}

// InitializePoolAccounts are the creator side accounts of pool creation.
type InitializePoolAccounts struct {
	Creator       solana.PublicKey
	CreatorToken0 solana.PublicKey
	CreatorToken1 solana.PublicKey
	CreatorLP     solana.PublicKey
	Token0Program solana.PublicKey
	Token1Program solana.PublicKey
	FeeReceiver   solana.PublicKey
}

// InitializePoolInstruction creates the pool of keys seeded with amount0 and amount1.
// remaining carries transfer hook accounts of a hooked mint.
func InitializePoolInstruction(
	keys *PoolKeys,
	accounts InitializePoolAccounts,
	amount0, amount1, openTime uint64,
	remaining ...*solana.AccountMeta,
) solana.Instruction {
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Creator, true, true),
		solana.NewAccountMeta(keys.AmmConfig, false, false),
		solana.NewAccountMeta(keys.Authority, false, false),
		solana.NewAccountMeta(keys.Pool, true, false),
		solana.NewAccountMeta(keys.Token0Mint, false, false),
		solana.NewAccountMeta(keys.Token1Mint, false, false),
		solana.NewAccountMeta(keys.LPMint, true, false),
		solana.NewAccountMeta(accounts.CreatorToken0, true, false),
		solana.NewAccountMeta(accounts.CreatorToken1, true, false),
		solana.NewAccountMeta(accounts.CreatorLP, true, false),
		solana.NewAccountMeta(keys.Token0Vault, true, false),
		solana.NewAccountMeta(keys.Token1Vault, true, false),
		solana.NewAccountMeta(accounts.FeeReceiver, true, false),
		solana.NewAccountMeta(keys.Observation, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(accounts.Token0Program, false, false),
		solana.NewAccountMeta(accounts.Token1Program, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
	}
	metas = append(metas, remaining...)
	return solana.NewInstruction(keys.Program, metas, anchorData(initializeDiscriminator, amount0, amount1, openTime))
}

// SwapAccounts are the trader side accounts of a swap.
type SwapAccounts struct {
	Payer         solana.PublicKey
	InputAccount  solana.PublicKey
	OutputAccount solana.PublicKey
	InputMint     solana.PublicKey
	OutputMint    solana.PublicKey
	InputProgram  solana.PublicKey
	OutputProgram solana.PublicKey
}

// SwapBaseInputInstruction swaps exactly amountIn for at least minimumOut.
// remaining carries transfer hook accounts of a hooked mint.
func SwapBaseInputInstruction(
	keys *PoolKeys,
	accounts SwapAccounts,
	amountIn, minimumOut uint64,
	remaining ...*solana.AccountMeta,
) (solana.Instruction, error) {
	inputVault, ok := keys.Vault(accounts.InputMint)
	if !ok {
		return nil, ErrMintNotInPool
	}
	outputVault, ok := keys.Vault(accounts.OutputMint)
	if !ok || outputVault.Equals(inputVault) {
		return nil, ErrMintNotInPool
	}
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(accounts.Payer, false, true),
		solana.NewAccountMeta(keys.Authority, false, false),
		solana.NewAccountMeta(keys.AmmConfig, false, false),
		solana.NewAccountMeta(keys.Pool, true, false),
		solana.NewAccountMeta(accounts.InputAccount, true, false),
		solana.NewAccountMeta(accounts.OutputAccount, true, false),
		solana.NewAccountMeta(inputVault, true, false),
		solana.NewAccountMeta(outputVault, true, false),
		solana.NewAccountMeta(accounts.InputProgram, false, false),
		solana.NewAccountMeta(accounts.OutputProgram, false, false),
		solana.NewAccountMeta(accounts.InputMint, false, false),
		solana.NewAccountMeta(accounts.OutputMint, false, false),
		solana.NewAccountMeta(keys.Observation, true, false),
	}
	metas = append(metas, remaining...)
	return solana.NewInstruction(keys.Program, metas, anchorData(swapBaseInputDiscriminator, amountIn, minimumOut)), nil
}
