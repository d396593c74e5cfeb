package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	sol "github.com/krazyTry/spl-toolkit/solana"
)

var (
	ErrMissingWallet        = errors.New("wallet not connected")
	ErrWalletMismatch       = errors.New("wallet is not the fee payer of the plan")
	ErrInvalidRecipient     = errors.New("invalid recipient address")
	ErrSelfTransfer         = errors.New("cannot transfer to your own token account")
	ErrInsufficient         = errors.New("amount exceeds balance")
	ErrNotMintAuthority     = errors.New("wallet is not the mint authority")
	ErrNotFreezeAuthority   = errors.New("wallet is not the freeze authority")
	ErrNoFreezeAuthority    = errors.New("mint has no freeze authority")
	ErrNotWithdrawAuthority = errors.New("wallet is not the withheld fee withdraw authority")
	ErrNoTransferFee        = errors.New("mint has no transfer fee")
	ErrNothingToClaim       = errors.New("no withheld fees to claim")
	ErrNotDelegate          = errors.New("wallet is not the permanent delegate")
	ErrNoPermanentDelegate  = errors.New("mint has no permanent delegate")
	ErrNothingToClose       = errors.New("no closable accounts selected")
	ErrNotToken2022         = errors.New("operation requires a Token-2022 mint")
)

// Kind is the category of a failed token operation.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindNonTransferable   Kind = "non_transferable"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindInsufficientSOL   Kind = "insufficient_sol"
	KindAccountFrozen     Kind = "account_frozen"
	KindAlreadyProcessed  Kind = "already_processed"
	KindBlockhashExpired  Kind = "blockhash_expired"
	KindUnauthorized      Kind = "unauthorized"
	KindTransferHook      Kind = "transfer_hook"
	KindUnknown           Kind = "unknown"
)

var kindMessages = map[Kind]string{
	KindInvalidInput:      "Invalid input",
	KindNonTransferable:   "This token is non-transferable",
	KindInsufficientFunds: "Insufficient token balance",
	KindInsufficientSOL:   "Insufficient SOL to pay fees or rent",
	KindAccountFrozen:     "The token account is frozen",
	KindAlreadyProcessed:  "The transaction was already processed",
	KindBlockhashExpired:  "The transaction expired before confirmation, please retry",
	KindUnauthorized:      "The wallet is not authorized for this operation",
	KindTransferHook:      "The transfer hook program rejected the transfer",
	KindUnknown:           "The transaction failed",
}

// TxError is the failure of a token operation.
type TxError struct {
	Kind      Kind
	Op        string
	Err       error
	Signature solana.Signature
	Logs      []string
}

func (e *TxError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// Message is a short user facing description of the failure.
func (e *TxError) Message() string {
	if e.Kind == KindInvalidInput && e.Err != nil {
		return e.Err.Error()
	}
	return kindMessages[e.Kind]
}

// KindOf returns the kind of err, KindUnknown when err is not a TxError.
func KindOf(err error) Kind {
	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr.Kind
	}
	return KindUnknown
}

func invalidInput(op string, err error) *TxError {
	return &TxError{Kind: KindInvalidInput, Op: op, Err: err}
}

// token program error codes shared by SPL Token and Token-2022
const (
	codeInsufficientFunds = 1
	codeMintMismatch      = 3
	codeOwnerMismatch     = 4
	codeFixedSupply       = 5
	codeNonNativeBalance  = 11
	codeMintCannotFreeze  = 16
	codeAccountFrozen     = 17
	codeDecimalsMismatch  = 18
	codeFeeExceedsMaximum = 30
	codeFeeMismatch       = 32
	codeNoAuthorityExists = 29
	codeNonTransferable   = 37
	codeNeedsImmutableOwn = 38
)

// system program error codes
const (
	codeSystemAccountInUse     = 0
	codeSystemNegativeLamports = 1
	codeSystemInvalidOwner     = 3
)

var customCodeKinds = map[int64]Kind{
	codeInsufficientFunds: KindInsufficientFunds,
	codeMintMismatch:      KindInvalidInput,
	codeOwnerMismatch:     KindUnauthorized,
	codeFixedSupply:       KindUnauthorized,
	codeNonNativeBalance:  KindInvalidInput,
	codeMintCannotFreeze:  KindUnauthorized,
	codeAccountFrozen:     KindAccountFrozen,
	codeDecimalsMismatch:  KindInvalidInput,
	codeFeeExceedsMaximum: KindInvalidInput,
	codeFeeMismatch:       KindInvalidInput,
	codeNoAuthorityExists: KindUnauthorized,
	codeNonTransferable:   KindNonTransferable,
	codeNeedsImmutableOwn: KindInvalidInput,
}

var systemCodeKinds = map[int64]Kind{
	codeSystemAccountInUse:     KindInvalidInput,
	codeSystemNegativeLamports: KindInsufficientSOL,
	codeSystemInvalidOwner:     KindInvalidInput,
}

var (
	customErrorPattern = regexp.MustCompile(`custom program error: 0x([0-9a-fA-F]+)`)
	failedPattern      = regexp.MustCompile(`Program (\w+) failed: custom program error: 0x([0-9a-fA-F]+)`)
)

// substring rules, checked in order against the error text and program logs
var messageRules = []struct {
	needle string
	kind   Kind
}{
	{"already been processed", KindAlreadyProcessed},
	{"blockhash not found", KindBlockhashExpired},
	{"block height exceeded", KindBlockhashExpired},
	{"transaction not found (maybe dropped)", KindBlockhashExpired},
	{"nontransferable", KindNonTransferable},
	{"non-transferable", KindNonTransferable},
	{"transfer is not allowed", KindTransferHook},
	{"transferhook", KindTransferHook},
	{"transfer hook", KindTransferHook},
	{"insufficientfundsforrent", KindInsufficientSOL},
	{"insufficient funds for rent", KindInsufficientSOL},
	{"insufficient lamports", KindInsufficientSOL},
	{"no record of a prior credit", KindInsufficientSOL},
	{"insufficient funds", KindInsufficientFunds},
	{"account is frozen", KindAccountFrozen},
	{"owner does not match", KindUnauthorized},
	{"missing required signature", KindUnauthorized},
	{"missingrequiredsignature", KindUnauthorized},
}

// Classify maps err to a TxError. Custom program error codes win over log substrings.
func Classify(op string, err error) *TxError {
	if err == nil {
		return nil
	}
	var txErr *TxError
	if errors.As(err, &txErr) {
		if txErr.Op == "" {
			txErr.Op = op
		}
		return txErr
	}

	out := &TxError{Kind: KindUnknown, Op: op, Err: err}
	var raw interface{}

	var solErr *sol.TransactionError
	if errors.As(err, &solErr) {
		out.Signature = solErr.Signature
		out.Logs = solErr.Logs
		raw = solErr.Err
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		if data, ok := rpcErr.Data.(map[string]interface{}); ok {
			raw = data["err"]
			if logs, ok := data["logs"].([]interface{}); ok {
				for _, l := range logs {
					if s, ok := l.(string); ok {
						out.Logs = append(out.Logs, s)
					}
				}
			}
		}
	}
	if errors.Is(err, sol.ErrTransactionDropped) {
		out.Kind = KindBlockhashExpired
		return out
	}

	program, code, ok := failingProgram(out.Logs)
	named := ok
	if !ok {
		code, ok = customCode(raw)
	}
	if !ok {
		if m := customErrorPattern.FindStringSubmatch(err.Error()); m != nil {
			if n, perr := strconv.ParseInt(m[1], 16, 64); perr == nil {
				code, ok = n, true
			}
		}
	}
	if ok {
		if kind, known := codeKind(program, named, code); known {
			out.Kind = kind
			return out
		}
		// unknown custom code raised inside a hook program
		if hasHookFrame(out.Logs) || (named && invokedByCPI(out.Logs, program)) {
			out.Kind = KindTransferHook
			return out
		}
	}

	haystack := strings.ToLower(err.Error() + "\n" + fmt.Sprint(raw) + "\n" + strings.Join(out.Logs, "\n"))
	for _, rule := range messageRules {
		if strings.Contains(haystack, rule.needle) {
			out.Kind = rule.kind
			return out
		}
	}
	return out
}

// failingProgram returns the program and code of the innermost failed invocation.
// A CPI failure is logged by the callee first, then re-raised by every caller.
func failingProgram(logs []string) (solana.PublicKey, int64, bool) {
	for _, line := range logs {
		m := failedPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		program, err := solana.PublicKeyFromBase58(m[1])
		if err != nil {
			continue
		}
		code, err := strconv.ParseInt(m[2], 16, 64)
		if err != nil {
			continue
		}
		return program, code, true
	}
	return solana.PublicKey{}, 0, false
}

// codeKind maps a custom error code of program. Codes are only meaningful per program;
// when the logs did not name it the token table is assumed.
func codeKind(program solana.PublicKey, named bool, code int64) (Kind, bool) {
	var table map[int64]Kind
	switch {
	case !named, program.Equals(solana.TokenProgramID), program.Equals(solana.Token2022ProgramID):
		table = customCodeKinds
	case program.Equals(solana.SystemProgramID):
		table = systemCodeKinds
	default:
		return "", false
	}
	kind, ok := table[code]
	return kind, ok
}

// customCode extracts N from {"InstructionError":[idx,{"Custom":N}]}.
func customCode(raw interface{}) (int64, bool) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return 0, false
	}
	ie, ok := m["InstructionError"].([]interface{})
	if !ok || len(ie) != 2 {
		return 0, false
	}
	inner, ok := ie[1].(map[string]interface{})
	if !ok {
		return 0, false
	}
	switch v := inner["Custom"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case uint64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

// invokedByCPI reports whether program ran as an inner instruction, which for a
// program other than token, system or ATA means a transfer hook.
func invokedByCPI(logs []string, program solana.PublicKey) bool {
	if program.Equals(solana.SPLAssociatedTokenAccountProgramID) {
		return false
	}
	prefix := "Program " + program.String() + " invoke ["
	for _, l := range logs {
		if strings.HasPrefix(l, prefix) && !strings.HasPrefix(l, prefix+"1]") {
			return true
		}
	}
	return false
}

func hasHookFrame(logs []string) bool {
	for _, l := range logs {
		if strings.Contains(strings.ToLower(l), "execute") && strings.Contains(l, "invoke [2]") {
			return true
		}
		if strings.Contains(strings.ToLower(l), "transfer hook") {
			return true
		}
	}
	return false
}
