package hookpool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"

	sol "github.com/krazyTry/spl-toolkit/solana"
)

var (
	ErrMintNotInPool = errors.New("mint is not a token of the pool")
	ErrSameMint      = errors.New("pool needs two distinct mints")
	ErrZeroAmount    = errors.New("amount must be greater than zero")
	ErrMissingWallet = errors.New("wallet is required")
)

const (
	StepInitWhitelist  = "init_whitelist"
	StepWhitelistVault = "whitelist_vault"
	StepCreatePool     = "create_pool"
	StepSwap           = "swap"
)

// Config names the programs a Runner talks to.
type Config struct {
	HookProgram   solana.PublicKey
	CPSwapProgram solana.PublicKey
	AmmConfig     uint16
	FeeReceiver   solana.PublicKey
	// UnitLimit and UnitPrice, when set, prefix every transaction with compute budget
	// instructions.
	UnitLimit uint32
	UnitPrice uint64
}

// Params describes the pool of a hooked mint against a quote mint and the first swap.
type Params struct {
	HookMint        solana.PublicKey
	HookMintProgram solana.PublicKey
	QuoteMint       solana.PublicKey
	QuoteProgram    solana.PublicKey

	HookAmount  uint64
	QuoteAmount uint64
	OpenTime    uint64

	// SwapAmount of QuoteMint is sold for the hooked mint; zero skips the swap.
	SwapAmount     uint64
	SwapMinimumOut uint64
}

func (p *Params) validate() error {
	if p.HookMint.Equals(p.QuoteMint) {
		return ErrSameMint
	}
	if p.HookAmount == 0 || p.QuoteAmount == 0 {
		return ErrZeroAmount
	}
	if err := sol.ValidateTokenProgram(p.HookMintProgram); err != nil {
		return err
	}
	return sol.ValidateTokenProgram(p.QuoteProgram)
}

// Step is one transaction of a run.
type Step struct {
	Name         string
	Instructions []solana.Instruction
	// Exists, when set, is an account whose presence means the step already ran.
	Exists *solana.PublicKey
	// Holds, with Exists, narrows the check to Exists data containing this key.
	Holds *solana.PublicKey
}

// StepResult is a sent or skipped step.
type StepResult struct {
	Name      string           `json:"name"`
	Signature solana.Signature `json:"signature"`
	Skipped   bool             `json:"skipped"`
}

// Runner sends the setup steps of a hooked pool, one transaction per step.
type Runner struct {
	rpcClient *rpc.Client
	wsClient  *ws.Client
	logger    *zap.Logger
	cfg       Config
}

func NewRunner(rpcClient *rpc.Client, wsClient *ws.Client, cfg Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CPSwapProgram.IsZero() {
		cfg.CPSwapProgram = CPSwapProgramID
	}
	if cfg.FeeReceiver.IsZero() {
		cfg.FeeReceiver = CreatePoolFeeReceiver
	}
	return &Runner{
		rpcClient: rpcClient,
		wsClient:  wsClient,
		logger:    logger.Named("hookpool"),
		cfg:       cfg,
	}
}

// PoolKeys derives the pool of p.
func (r *Runner) PoolKeys(p Params) (*PoolKeys, error) {
	return DerivePoolKeys(r.cfg.CPSwapProgram, r.cfg.AmmConfig, p.HookMint, p.QuoteMint)
}

// Plan builds every step for payer without touching the network:
// init whitelist, whitelist the pool vault, create the pool, swap.
func (r *Runner) Plan(payer solana.PublicKey, p Params) ([]Step, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	keys, err := r.PoolKeys(p)
	if err != nil {
		return nil, err
	}
	hookAccounts, err := HookAccounts(p.HookMint, r.cfg.HookProgram)
	if err != nil {
		return nil, err
	}

	validation, err := DeriveExtraAccountMetaList(p.HookMint, r.cfg.HookProgram)
	if err != nil {
		return nil, err
	}
	initIx, err := InitializeExtraAccountMetaListInstruction(r.cfg.HookProgram, payer, p.HookMint)
	if err != nil {
		return nil, err
	}

	hookVault, _ := keys.Vault(p.HookMint)
	whitelist, err := DeriveWhitelist(r.cfg.HookProgram)
	if err != nil {
		return nil, err
	}
	whitelistIx, err := AddToWhitelistInstruction(r.cfg.HookProgram, payer, hookVault)
	if err != nil {
		return nil, err
	}

	programOf := func(mint solana.PublicKey) solana.PublicKey {
		if mint.Equals(p.HookMint) {
			return p.HookMintProgram
		}
		return p.QuoteProgram
	}
	amountOf := func(mint solana.PublicKey) uint64 {
		if mint.Equals(p.HookMint) {
			return p.HookAmount
		}
		return p.QuoteAmount
	}
	ataOf := func(owner, mint, program solana.PublicKey) (solana.PublicKey, error) {
		ata, _, err := sol.FindAssociatedTokenAddress(owner, mint, program)
		return ata, err
	}

	accounts := InitializePoolAccounts{
		Creator:       payer,
		Token0Program: programOf(keys.Token0Mint),
		Token1Program: programOf(keys.Token1Mint),
		FeeReceiver:   r.cfg.FeeReceiver,
	}
	if accounts.CreatorToken0, err = ataOf(payer, keys.Token0Mint, accounts.Token0Program); err != nil {
		return nil, err
	}
	if accounts.CreatorToken1, err = ataOf(payer, keys.Token1Mint, accounts.Token1Program); err != nil {
		return nil, err
	}
	if accounts.CreatorLP, err = ataOf(payer, keys.LPMint, solana.TokenProgramID); err != nil {
		return nil, err
	}
	createIx := InitializePoolInstruction(keys, accounts,
		amountOf(keys.Token0Mint), amountOf(keys.Token1Mint), p.OpenTime, hookAccounts...)

	budget := sol.ComputeBudgetInstructions(r.cfg.UnitLimit, r.cfg.UnitPrice)
	withBudget := func(ixs ...solana.Instruction) []solana.Instruction {
		return append(append([]solana.Instruction{}, budget...), ixs...)
	}

	steps := []Step{
		{Name: StepInitWhitelist, Instructions: withBudget(initIx), Exists: &validation},
		{Name: StepWhitelistVault, Instructions: withBudget(whitelistIx), Exists: &whitelist, Holds: &hookVault},
		{Name: StepCreatePool, Instructions: withBudget(createIx), Exists: &keys.Pool},
	}

	if p.SwapAmount > 0 {
		output, err := ataOf(payer, p.HookMint, p.HookMintProgram)
		if err != nil {
			return nil, err
		}
		input, err := ataOf(payer, p.QuoteMint, p.QuoteProgram)
		if err != nil {
			return nil, err
		}
		createOutput, _, err := sol.CreateAssociatedTokenAccountIdempotentInstruction(payer, payer, p.HookMint, p.HookMintProgram)
		if err != nil {
			return nil, err
		}
		swapIx, err := SwapBaseInputInstruction(keys, SwapAccounts{
			Payer:         payer,
			InputAccount:  input,
			OutputAccount: output,
			InputMint:     p.QuoteMint,
			OutputMint:    p.HookMint,
			InputProgram:  p.QuoteProgram,
			OutputProgram: p.HookMintProgram,
		}, p.SwapAmount, p.SwapMinimumOut, hookAccounts...)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Name: StepSwap, Instructions: withBudget(createOutput, swapIx)})
	}
	return steps, nil
}

// Run sends the steps of p in order, signed by wallet. Steps whose account already exists
// are skipped so an interrupted run can be resumed. It stops at the first failure and
// returns the steps done so far.
func (r *Runner) Run(ctx context.Context, wallet *solana.Wallet, p Params) ([]StepResult, error) {
	if wallet == nil {
		return nil, ErrMissingWallet
	}
	payer := wallet.PublicKey()
	steps, err := r.Plan(payer, p)
	if err != nil {
		return nil, err
	}
	sign := sol.Signer(wallet.PrivateKey)

	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		if step.Exists != nil {
			done, err := r.done(ctx, step)
			if err != nil {
				return results, fmt.Errorf("step %s: %w", step.Name, err)
			}
			if done {
				r.logger.Info("step already done", zap.String("step", step.Name), zap.String("account", step.Exists.String()))
				results = append(results, StepResult{Name: step.Name, Skipped: true})
				continue
			}
		}

		start := time.Now()
		sig, err := sol.SendInstruction(ctx, r.rpcClient, r.wsClient, step.Instructions, payer, sign)
		if err != nil {
			r.logger.Error("step failed", zap.String("step", step.Name), zap.Error(err))
			return results, fmt.Errorf("step %s: %w", step.Name, err)
		}
		r.logger.Info("step confirmed",
			zap.String("step", step.Name),
			zap.String("signature", sig.String()),
			zap.Duration("elapsed", time.Since(start)),
		)
		results = append(results, StepResult{Name: step.Name, Signature: sig})
	}
	return results, nil
}

// done reports whether step already ran, see Step.Exists.
func (r *Runner) done(ctx context.Context, step Step) (bool, error) {
	if step.Holds == nil {
		return sol.AccountExists(ctx, r.rpcClient, *step.Exists)
	}
	out, err := sol.GetAccountInfo(ctx, r.rpcClient, *step.Exists)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if out == nil || out.Value == nil || out.Value.Data == nil {
		return false, nil
	}
	return bytes.Contains(out.Value.Data.GetBinary(), step.Holds.Bytes()), nil
}
