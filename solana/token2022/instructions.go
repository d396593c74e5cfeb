package token2022

import (
	"bytes"
	"crypto/sha256"
	"errors"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	ixInitializeMintCloseAuthority uint8 = 25
	ixTransferFeeExtension         uint8 = 26
	ixDefaultAccountStateExtension uint8 = 28
	ixInitializeNonTransferable    uint8 = 32
	ixInterestBearingMintExtension uint8 = 33
	ixInitializePermanentDelegate  uint8 = 35
	ixTransferHookExtension        uint8 = 36
	ixMetadataPointerExtension     uint8 = 39

	transferFeeInitialize          uint8 = 0
	transferFeeTransferCheckedWith uint8 = 1
	transferFeeWithdrawFromMint    uint8 = 2
	transferFeeWithdrawFromAccts   uint8 = 3
	transferFeeHarvestToMint       uint8 = 4

	// sub-instruction 0 (Initialize) of the pointer style extensions
	extensionInitialize uint8 = 0
)

// MaxWithdrawSources bounds source accounts per WithdrawWithheldTokensFromAccounts.
const MaxWithdrawSources = 20

var ErrTooManySources = errors.New("too many source accounts")

func encode(write func(enc *bin.Encoder) error) []byte {
	buf := new(bytes.Buffer)
	_ = write(bin.NewBinEncoder(buf))
	return buf.Bytes()
}

func writeKey(enc *bin.Encoder, key *solana.PublicKey) error {
	if key == nil {
		return enc.WriteBytes(make([]byte, 32), false)
	}
	return enc.WriteBytes(key[:], false)
}

// writeCOptionKey writes the 1-byte tagged option used by instruction data.
func writeCOptionKey(enc *bin.Encoder, key *solana.PublicKey) error {
	if key == nil {
		return enc.WriteUint8(0)
	}
	if err := enc.WriteUint8(1); err != nil {
		return err
	}
	return enc.WriteBytes(key[:], false)
}

func mintOnly(mint solana.PublicKey, data []byte) solana.Instruction {
	return solana.NewInstruction(solana.Token2022ProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, false),
	}, data)
}

// InitializeTransferFeeConfigInstruction must precede InitializeMint2.
func InitializeTransferFeeConfigInstruction(mint solana.PublicKey, configAuthority, withdrawAuthority *solana.PublicKey, basisPoints uint16, maximumFee uint64) solana.Instruction {
	return mintOnly(mint, encode(func(enc *bin.Encoder) error {
		_ = enc.WriteUint8(ixTransferFeeExtension)
		_ = enc.WriteUint8(transferFeeInitialize)
		_ = writeCOptionKey(enc, configAuthority)
		_ = writeCOptionKey(enc, withdrawAuthority)
		_ = enc.WriteUint16(basisPoints, bin.LE)
		return enc.WriteUint64(maximumFee, bin.LE)
	}))
}

func InitializeMintCloseAuthorityInstruction(mint solana.PublicKey, closeAuthority *solana.PublicKey) solana.Instruction {
	return mintOnly(mint, encode(func(enc *bin.Encoder) error {
		_ = enc.WriteUint8(ixInitializeMintCloseAuthority)
		return writeCOptionKey(enc, closeAuthority)
	}))
}

func InitializeNonTransferableMintInstruction(mint solana.PublicKey) solana.Instruction {
	return mintOnly(mint, []byte{ixInitializeNonTransferable})
}

func InitializePermanentDelegateInstruction(mint, delegate solana.PublicKey) solana.Instruction {
	return mintOnly(mint, encode(func(enc *bin.Encoder) error {
		_ = enc.WriteUint8(ixInitializePermanentDelegate)
		return enc.WriteBytes(delegate[:], false)
	}))
}

// InitializeDefaultAccountStateInstruction sets the state (1 initialized, 2 frozen) of new accounts.
func InitializeDefaultAccountStateInstruction(mint solana.PublicKey, state uint8) solana.Instruction {
	return mintOnly(mint, []byte{ixDefaultAccountStateExtension, extensionInitialize, state})
}

// InitializeInterestBearingMintInstruction sets the rate in basis points.
func InitializeInterestBearingMintInstruction(mint solana.PublicKey, rateAuthority *solana.PublicKey, rate int16) solana.Instruction {
	return mintOnly(mint, encode(func(enc *bin.Encoder) error {
		_ = enc.WriteUint8(ixInterestBearingMintExtension)
		_ = enc.WriteUint8(extensionInitialize)
		_ = writeKey(enc, rateAuthority)
		return enc.WriteInt16(rate, bin.LE)
	}))
}

func InitializeTransferHookInstruction(mint solana.PublicKey, authority, program *solana.PublicKey) solana.Instruction {
	return mintOnly(mint, encode(func(enc *bin.Encoder) error {
		_ = enc.WriteUint8(ixTransferHookExtension)
		_ = enc.WriteUint8(extensionInitialize)
		_ = writeKey(enc, authority)
		return writeKey(enc, program)
	}))
}

func InitializeMetadataPointerInstruction(mint solana.PublicKey, authority, metadata *solana.PublicKey) solana.Instruction {
	return mintOnly(mint, encode(func(enc *bin.Encoder) error {
		_ = enc.WriteUint8(ixMetadataPointerExtension)
		_ = enc.WriteUint8(extensionInitialize)
		_ = writeKey(enc, authority)
		return writeKey(enc, metadata)
	}))
}

// TransferCheckedWithFeeInstruction transfers amount, asserting the fee the program will withhold.
func TransferCheckedWithFeeInstruction(source, mint, destination, authority solana.PublicKey, amount uint64, decimals uint8, fee uint64, extra ...*solana.AccountMeta) solana.Instruction {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(source, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(authority, false, true),
	}
	accounts = append(accounts, extra...)
	return solana.NewInstruction(solana.Token2022ProgramID, accounts, encode(func(enc *bin.Encoder) error {
		_ = enc.WriteUint8(ixTransferFeeExtension)
		_ = enc.WriteUint8(transferFeeTransferCheckedWith)
		_ = enc.WriteUint64(amount, bin.LE)
		_ = enc.WriteUint8(decimals)
		return enc.WriteUint64(fee, bin.LE)
	}))
}

// WithdrawWithheldTokensFromMintInstruction moves the fees harvested to the mint into destination.
func WithdrawWithheldTokensFromMintInstruction(mint, destination, authority solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(solana.Token2022ProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(authority, false, true),
	}, []byte{ixTransferFeeExtension, transferFeeWithdrawFromMint})
}

// WithdrawWithheldTokensFromAccountsInstruction moves the fees withheld in sources into destination.
func WithdrawWithheldTokensFromAccountsInstruction(mint, destination, authority solana.PublicKey, sources []solana.PublicKey) (solana.Instruction, error) {
	if len(sources) == 0 || len(sources) > 255 {
		return nil, ErrTooManySources
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(authority, false, true),
	}
	for _, source := range sources {
		accounts = append(accounts, solana.NewAccountMeta(source, true, false))
	}
	return solana.NewInstruction(solana.Token2022ProgramID, accounts, []byte{ixTransferFeeExtension, transferFeeWithdrawFromAccts, uint8(len(sources))}), nil
}

// HarvestWithheldTokensToMintInstruction is permissionless.
func HarvestWithheldTokensToMintInstruction(mint solana.PublicKey, sources []solana.PublicKey) solana.Instruction {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, false),
	}
	for _, source := range sources {
		accounts = append(accounts, solana.NewAccountMeta(source, true, false))
	}
	return solana.NewInstruction(solana.Token2022ProgramID, accounts, []byte{ixTransferFeeExtension, transferFeeHarvestToMint})
}

func interfaceDiscriminator(name string) []byte {
	hash := sha256.Sum256([]byte(name))
	return hash[:8]
}

// InitializeTokenMetadataInstruction writes name, symbol and uri into the metadata account
// (the mint itself when the pointer targets it).
func InitializeTokenMetadataInstruction(metadata, updateAuthority, mint, mintAuthority solana.PublicKey, name, symbol, uri string) solana.Instruction {
	return solana.NewInstruction(solana.Token2022ProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(metadata, true, false),
		solana.NewAccountMeta(updateAuthority, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(mintAuthority, false, true),
	}, encode(func(enc *bin.Encoder) error {
		_ = enc.WriteBytes(interfaceDiscriminator("spl_token_metadata_interface:initialize_account"), false)
		_ = writeBorshString(enc, name)
		_ = writeBorshString(enc, symbol)
		return writeBorshString(enc, uri)
	}))
}

// UpdateTokenMetadataFieldInstruction sets an additional key/value field.
func UpdateTokenMetadataFieldInstruction(metadata, updateAuthority solana.PublicKey, key, value string) solana.Instruction {
	return solana.NewInstruction(solana.Token2022ProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(metadata, true, false),
		solana.NewAccountMeta(updateAuthority, false, true),
	}, encode(func(enc *bin.Encoder) error {
		_ = enc.WriteBytes(interfaceDiscriminator("spl_token_metadata_interface:updating_field"), false)
		// Field::Key(String)
		_ = enc.WriteUint8(3)
		_ = writeBorshString(enc, key)
		return writeBorshString(enc, value)
	}))
}
