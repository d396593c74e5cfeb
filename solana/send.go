package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
)

var (
	// ConfirmTimeout bounds how long a sent transaction is awaited.
	ConfirmTimeout = 60 * time.Second
	// PollInterval is the signature status polling period used without a websocket client.
	PollInterval = 500 * time.Millisecond

	ErrTransactionDropped = errors.New("transaction not found (maybe dropped)")
)

// TransactionError is a transaction that reached the runtime and failed.
// Err holds the raw RPC error value, e.g. {"InstructionError":[0,{"Custom":37}]}.
type TransactionError struct {
	Signature solana.Signature
	Err       interface{}
	Logs      []string
}

func (e *TransactionError) Error() string {
	if e.Signature.IsZero() {
		return fmt.Sprintf("transaction failed: %v", e.Err)
	}
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

// SendInstruction builds, signs, sends and confirms a transaction made of instructions.
func SendInstruction(
	ctx context.Context,
	rpcClient *rpc.Client,
	wsClient *ws.Client,
	instructions []solana.Instruction,
	payer solana.PublicKey,
	sign func(key solana.PublicKey) *solana.PrivateKey,
) (solana.Signature, error) {
	latestBlockhash, err := GetLatestBlockhash(ctx, rpcClient)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(instructions, latestBlockhash, solana.TransactionPayer(payer))
	if err != nil {
		return solana.Signature{}, err
	}

	if _, err = tx.Sign(sign); err != nil {
		return solana.Signature{}, err
	}
	return SendSignedTransaction(ctx, rpcClient, wsClient, tx)
}

// SendSignedTransaction submits a fully signed tx and waits for confirmation.
// A duplicate submission is treated as success once its signature has landed.
func SendSignedTransaction(
	ctx context.Context,
	rpcClient *rpc.Client,
	wsClient *ws.Client,
	tx *solana.Transaction,
) (solana.Signature, error) {
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, errors.New("transaction is not signed")
	}

	if IsSimulate {
		return simulate(ctx, rpcClient, tx)
	}

	sig, err := rpcClient.SendTransactionWithOpts(
		ctx,
		tx,
		rpc.TransactionOpts{
			SkipPreflight:       false,
			PreflightCommitment: Commitment,
		},
	)
	if err != nil {
		if IsAlreadyProcessed(err) {
			sig = tx.Signatures[0]
			if landed, lerr := signatureLanded(ctx, rpcClient, sig); lerr == nil && landed {
				return sig, nil
			}
		}
		return solana.Signature{}, err
	}

	if err = ConfirmTransaction(ctx, rpcClient, wsClient, sig); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

func simulate(ctx context.Context, rpcClient *rpc.Client, tx *solana.Transaction) (solana.Signature, error) {
	out, err := rpcClient.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		Commitment: Commitment,
	})
	if err != nil {
		return solana.Signature{}, err
	}
	if out != nil && out.Value != nil && out.Value.Err != nil {
		return solana.Signature{}, &TransactionError{Err: out.Value.Err, Logs: out.Value.Logs}
	}
	return tx.Signatures[0], nil
}

// ConfirmTransaction waits until sig reaches the configured commitment.
// With a websocket client it subscribes, otherwise it polls signature statuses.
func ConfirmTransaction(ctx context.Context, rpcClient *rpc.Client, wsClient *ws.Client, sig solana.Signature) error {
	if wsClient != nil {
		if confirmed, err := waitSignature(ctx, wsClient, sig); confirmed {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		statusResp, err := rpcClient.GetSignatureStatuses(ctx, true, sig)
		if err == nil && statusResp != nil && len(statusResp.Value) > 0 && statusResp.Value[0] != nil {
			status := statusResp.Value[0]
			if status.Err != nil {
				return signatureError(sig, status.Err)
			}
			if reached(status.ConfirmationStatus) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%s: %w", sig, ErrTransactionDropped)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitSignature waits for the signature notification. confirmed is false when the
// subscription could not answer, in which case the caller falls back to polling.
func waitSignature(ctx context.Context, wsClient *ws.Client, sig solana.Signature) (confirmed bool, err error) {
	sub, err := wsClient.SignatureSubscribe(sig, Commitment)
	if err != nil {
		return false, err
	}
	defer sub.Unsubscribe()

	ctx, cancel := context.WithTimeout(ctx, ConfirmTimeout)
	defer cancel()
	resp, err := sub.Recv(ctx)
	if err != nil || resp == nil {
		return false, err
	}
	return true, signatureError(sig, resp.Value.Err)
}

// signatureError keeps the raw runtime error so custom program codes stay readable.
func signatureError(sig solana.Signature, raw interface{}) error {
	if raw == nil {
		return nil
	}
	return &TransactionError{Signature: sig, Err: raw}
}

func reached(status rpc.ConfirmationStatusType) bool {
	switch status {
	case rpc.ConfirmationStatusFinalized:
		return true
	case rpc.ConfirmationStatusConfirmed:
		return Commitment != rpc.CommitmentFinalized
	case rpc.ConfirmationStatusProcessed:
		return Commitment == rpc.CommitmentProcessed
	}
	return false
}

func signatureLanded(ctx context.Context, rpcClient *rpc.Client, sig solana.Signature) (bool, error) {
	statusResp, err := rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return false, fmt.Errorf("rpc GetSignatureStatuses error: %w", err)
	}
	if len(statusResp.Value) == 0 || statusResp.Value[0] == nil {
		return false, nil
	}
	return statusResp.Value[0].Err == nil, nil
}

// IsAlreadyProcessed reports whether err is the RPC rejection of a duplicate transaction.
func IsAlreadyProcessed(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "already been processed")
}
