package solana

import (
	"bytes"
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	// instruction indices shared by the SPL Token and Token-2022 programs
	ixCloseAccount   uint8 = 9
	ixFreezeAccount  uint8 = 10
	ixThawAccount    uint8 = 11
	ixTransferCheck  uint8 = 12
	ixMintToChecked  uint8 = 14
	ixBurnChecked    uint8 = 15
	ixInitializeMint uint8 = 20 // InitializeMint2

	ataCreateIdempotent uint8 = 1
)

// FindAssociatedTokenAddress derives the ATA of wallet for mint under the given token program.
func FindAssociatedTokenAddress(wallet, mint, program solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{
		wallet[:],
		program[:],
		mint[:],
	},
		solana.SPLAssociatedTokenAccountProgramID,
	)
}

// CreateAssociatedTokenAccountIdempotentInstruction creates the ATA of wallet for mint,
// succeeding without changes when it already exists.
func CreateAssociatedTokenAccountIdempotentInstruction(payer, wallet, mint, program solana.PublicKey) (solana.Instruction, solana.PublicKey, error) {
	ata, _, err := FindAssociatedTokenAddress(wallet, mint, program)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(ata, true, false),
		solana.NewAccountMeta(wallet, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(program, false, false),
	}
	return solana.NewInstruction(solana.SPLAssociatedTokenAccountProgramID, accounts, []byte{ataCreateIdempotent}), ata, nil
}

// PrepareTokenATA checks if ATA exists, creates it if it doesn't exist
func PrepareTokenATA(
	ctx context.Context,
	rpcClient *rpc.Client,
	owner solana.PublicKey,
	tokenMint solana.PublicKey,
	program solana.PublicKey,
	payer solana.PublicKey,
	instructions *[]solana.Instruction,
) (solana.PublicKey, error) {
	tokenATA, _, err := FindAssociatedTokenAddress(owner, tokenMint, program)
	if err != nil {
		return solana.PublicKey{}, err
	}

	exists, err := AccountExists(ctx, rpcClient, tokenATA)
	if err != nil {
		return solana.PublicKey{}, err
	}

	if !exists {
		ix, _, err := CreateAssociatedTokenAccountIdempotentInstruction(payer, owner, tokenMint, program)
		if err != nil {
			return solana.PublicKey{}, err
		}
		*instructions = append(*instructions, ix)
	}
	return tokenATA, nil
}

func encodeInstructionData(write func(enc *bin.Encoder) error) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := write(bin.NewBinEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func amountDecimalsData(index uint8, amount uint64, decimals uint8) []byte {
	data, _ := encodeInstructionData(func(enc *bin.Encoder) error {
		if err := enc.WriteUint8(index); err != nil {
			return err
		}
		if err := enc.WriteUint64(amount, bin.LE); err != nil {
			return err
		}
		return enc.WriteUint8(decimals)
	})
	return data
}

// InitializeMint2Instruction initializes mint under program. freezeAuthority may be nil.
func InitializeMint2Instruction(program, mint solana.PublicKey, decimals uint8, mintAuthority solana.PublicKey, freezeAuthority *solana.PublicKey) solana.Instruction {
	data := make([]byte, 0, 67)
	data = append(data, ixInitializeMint, decimals)
	data = append(data, mintAuthority[:]...)
	if freezeAuthority == nil {
		data = append(data, 0)
		data = append(data, make([]byte, 32)...)
	} else {
		data = append(data, 1)
		data = append(data, freezeAuthority[:]...)
	}
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, false),
	}, data)
}

// MintToCheckedInstruction mints amount base units of mint into destination.
func MintToCheckedInstruction(program, mint, destination, authority solana.PublicKey, amount uint64, decimals uint8) solana.Instruction {
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(authority, false, true),
	}, amountDecimalsData(ixMintToChecked, amount, decimals))
}

// BurnCheckedInstruction burns amount base units from account.
func BurnCheckedInstruction(program, account, mint, owner solana.PublicKey, amount uint64, decimals uint8) solana.Instruction {
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.NewAccountMeta(account, true, false),
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(owner, false, true),
	}, amountDecimalsData(ixBurnChecked, amount, decimals))
}

// FreezeAccountInstruction freezes account using the mint's freeze authority.
func FreezeAccountInstruction(program, account, mint, authority solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.NewAccountMeta(account, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(authority, false, true),
	}, []byte{ixFreezeAccount})
}

// ThawAccountInstruction thaws a frozen account using the mint's freeze authority.
func ThawAccountInstruction(program, account, mint, authority solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.NewAccountMeta(account, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(authority, false, true),
	}, []byte{ixThawAccount})
}

// CloseAccountInstruction closes account and sends its lamports to destination.
func CloseAccountInstruction(program, account, destination, owner solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(program, solana.AccountMetaSlice{
		solana.NewAccountMeta(account, true, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(owner, false, true),
	}, []byte{ixCloseAccount})
}

func isCreateATA(ix solana.Instruction) bool {
	if !ix.ProgramID().Equals(solana.SPLAssociatedTokenAccountProgramID) {
		return false
	}
	data, err := ix.Data()
	if err != nil {
		return false
	}
	return len(data) == 0 || data[0] == ataCreateIdempotent
}

func isCloseAccount(ix solana.Instruction) bool {
	if !IsTokenProgram(ix.ProgramID()) {
		return false
	}
	data, err := ix.Data()
	if err != nil {
		return false
	}
	return len(data) == 1 && data[0] == ixCloseAccount
}

func sameAccounts(a, b solana.Instruction, n int) bool {
	as, bs := a.Accounts(), b.Accounts()
	if len(as) < n || len(bs) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if !as[i].PublicKey.Equals(bs[i].PublicKey) {
			return false
		}
	}
	return true
}

// SplitInstructions splits instructions into three phases: start, middle, end.
// ATA creations move to start and account closes to end, each deduplicated.
func SplitInstructions(oldInstructions []solana.Instruction) ([]solana.Instruction, []solana.Instruction, []solana.Instruction) {
	var (
		startInstruction  []solana.Instruction
		middleInstruction []solana.Instruction
		endInstruction    []solana.Instruction
	)
loop:
	for _, v := range oldInstructions {
		switch {
		case isCreateATA(v):
			for _, vv := range startInstruction {
				// payer and ata
				if sameAccounts(v, vv, 2) {
					continue loop
				}
			}
			startInstruction = append(startInstruction, v)
		case isCloseAccount(v):
			for _, vv := range endInstruction {
				if sameAccounts(v, vv, 3) {
					continue loop
				}
			}
			endInstruction = append(endInstruction, v)
		default:
			middleInstruction = append(middleInstruction, v)
		}
	}
	return startInstruction, middleInstruction, endInstruction
}

// MergeInstructions merges instructions
func MergeInstructions(oldInstructions []solana.Instruction) []solana.Instruction {
	var (
		newInstructions []solana.Instruction
	)

	startInstruction, middleInstruction, endInstruction := SplitInstructions(oldInstructions)

	newInstructions = append(newInstructions, startInstruction...)
	newInstructions = append(newInstructions, middleInstruction...)
	newInstructions = append(newInstructions, endInstruction...)

	return newInstructions
}

// ComputeBudgetInstructions returns SetComputeUnitLimit / SetComputeUnitPrice instructions
// for the non-zero values.
func ComputeBudgetInstructions(unitLimit uint32, microLamports uint64) []solana.Instruction {
	var ixs []solana.Instruction
	if unitLimit > 0 {
		data, _ := encodeInstructionData(func(enc *bin.Encoder) error {
			if err := enc.WriteUint8(2); err != nil {
				return err
			}
			return enc.WriteUint32(unitLimit, bin.LE)
		})
		ixs = append(ixs, solana.NewInstruction(solana.ComputeBudget, solana.AccountMetaSlice{}, data))
	}
	if microLamports > 0 {
		data, _ := encodeInstructionData(func(enc *bin.Encoder) error {
			if err := enc.WriteUint8(3); err != nil {
				return err
			}
			return enc.WriteUint64(microLamports, bin.LE)
		})
		ixs = append(ixs, solana.NewInstruction(solana.ComputeBudget, solana.AccountMetaSlice{}, data))
	}
	return ixs
}

// ValidateTokenProgram returns an error when program is neither token program.
func ValidateTokenProgram(program solana.PublicKey) error {
	if !IsTokenProgram(program) {
		return fmt.Errorf("%s: %w", program, ErrNotTokenProgram)
	}
	return nil
}
