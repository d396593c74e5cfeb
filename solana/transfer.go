package solana

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var ErrZeroAmount = errors.New("amount must be greater than zero")

// TransferCheckedInstruction moves amount base units from source to destination.
// Extra accounts (transfer hook metas) are appended after the authority.
func TransferCheckedInstruction(
	program solana.PublicKey,
	source solana.PublicKey,
	mint solana.PublicKey,
	destination solana.PublicKey,
	authority solana.PublicKey,
	amount uint64,
	decimals uint8,
	extra ...*solana.AccountMeta,
) solana.Instruction {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(source, true, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(authority, false, true),
	}
	accounts = append(accounts, extra...)
	return solana.NewInstruction(program, accounts, amountDecimalsData(ixTransferCheck, amount, decimals))
}

// TransferInstruction builds a TransferChecked between the ATAs of sender and receiver,
// creating the receiver's ATA when it does not exist yet.
func TransferInstruction(
	ctx context.Context,
	rpcClient *rpc.Client,
	payer solana.PublicKey,
	sender solana.PublicKey,
	receiver solana.PublicKey,
	mint solana.PublicKey,
	program solana.PublicKey,
	decimals uint8,
	amount uint64,
) ([]solana.Instruction, error) {
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	if err := ValidateTokenProgram(program); err != nil {
		return nil, err
	}

	var instructions []solana.Instruction

	sendTokenAccount, _, err := FindAssociatedTokenAddress(sender, mint, program)
	if err != nil {
		return nil, err
	}

	receiveTokenAccount, err := PrepareTokenATA(ctx, rpcClient, receiver, mint, program, payer, &instructions)
	if err != nil {
		return nil, err
	}

	transferIx := TransferCheckedInstruction(
		program,
		sendTokenAccount,
		mint,
		receiveTokenAccount,
		sender,
		amount,
		decimals,
	)

	return append(instructions, transferIx), nil
}
