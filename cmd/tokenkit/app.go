package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"

	"github.com/krazyTry/spl-toolkit/drafts"
	"github.com/krazyTry/spl-toolkit/hookpool"
	"github.com/krazyTry/spl-toolkit/internal/config"
	"github.com/krazyTry/spl-toolkit/internal/logger"
	"github.com/krazyTry/spl-toolkit/internal/metrics"
	"github.com/krazyTry/spl-toolkit/ipfs"
	sol "github.com/krazyTry/spl-toolkit/solana"
	"github.com/krazyTry/spl-toolkit/tokens"
)

// app holds everything a command needs, built once from the config.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	rpc     *rpc.Client
	ws      *ws.Client
	ipfs    *ipfs.Client
	client  *tokens.Client
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	sol.Commitment = rpc.CommitmentType(cfg.RPC.Commitment)

	a := &app{
		cfg:     cfg,
		logger:  log,
		metrics: metrics.New("tokenkit"),
		rpc:     rpc.New(cfg.RPC.Endpoint),
	}

	if cfg.RPC.WSEndpoint != "" {
		wsCtx, cancel := context.WithTimeout(ctx, cfg.RPC.Timeout())
		defer cancel()
		if a.ws, err = ws.Connect(wsCtx, cfg.RPC.WSEndpoint); err != nil {
			// confirmation falls back to polling
			log.Warn("websocket unavailable", zap.String("endpoint", cfg.RPC.WSEndpoint), zap.Error(err))
		}
	}

	a.ipfs = ipfs.NewClient(ipfs.Config{
		APIURL:  cfg.IPFS.APIURL,
		Gateway: cfg.IPFS.Gateway,
		JWT:     cfg.IPFS.JWT,
		Timeout: cfg.IPFS.Timeout(),
	}, log)

	opts := []tokens.Option{
		tokens.WithLogger(log),
		tokens.WithMetrics(a.metrics),
		tokens.WithIPFS(a.ipfs),
		tokens.WithCache(cfg.Cache.TTL(), cfg.Cache.Cleanup()),
		tokens.WithMetadata(cfg.Metadata.Concurrency, cfg.Metadata.FetchTimeout()),
		tokens.WithHistoryLimit(cfg.Metadata.HistoryLimit),
		tokens.WithPriorityFee(cfg.Fees.ComputeUnitLimit, cfg.Fees.ComputeUnitPrice),
	}
	if cfg.RPC.RateLimit > 0 {
		opts = append(opts, tokens.WithRateLimit(cfg.RPC.RateLimit, cfg.RPC.BurstLimit))
	}
	if a.ws != nil {
		opts = append(opts, tokens.WithWS(a.ws))
	}
	a.client = tokens.NewClient(a.rpc, opts...)
	return a, nil
}

func (a *app) close() {
	if a.ws != nil {
		a.ws.Close()
	}
	_ = a.logger.Sync()
}

// wallet loads the configured keypair.
func (a *app) wallet() (*solana.Wallet, error) {
	key, err := sol.LoadKeypair(a.cfg.Wallet.Keypair)
	if err != nil {
		return nil, fmt.Errorf("wallet keypair (set wallet.keypair or TOKENKIT_KEYPAIR): %w", err)
	}
	return &solana.Wallet{PrivateKey: key}, nil
}

// draftStore opens the configured draft backend. The returned func releases it.
func (a *app) draftStore(ctx context.Context) (drafts.Store, func(), error) {
	switch a.cfg.Drafts.Backend {
	case config.DraftsPostgres:
		pool, err := drafts.NewPool(ctx, a.cfg.Drafts.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err = drafts.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		store := drafts.NewPostgresStore(pool)
		stop := a.purgeExpired(store)
		return store, func() { stop(); pool.Close() }, nil
	default:
		return drafts.NewMemoryStore(a.cfg.Cache.Cleanup()), func() {}, nil
	}
}

// purgeExpired deletes expired postgres drafts every TTL until stopped.
func (a *app) purgeExpired(store *drafts.PostgresStore) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(a.cfg.Drafts.TTL())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.DeleteExpired(ctx)
				if err != nil {
					a.logger.Warn("purge expired drafts", zap.Error(err))
					continue
				}
				if n > 0 {
					a.logger.Info("purged expired drafts", zap.Int64("count", n))
				}
			}
		}
	}()
	return cancel
}

// hookpoolConfig resolves the program IDs of the hookpool section. devnet switches the
// swap program defaults.
func (a *app) hookpoolConfig(devnet bool) (hookpool.Config, error) {
	section := a.cfg.HookPool
	cfg := hookpool.Config{
		AmmConfig: section.AmmConfig,
		UnitLimit: a.cfg.Fees.ComputeUnitLimit,
		UnitPrice: a.cfg.Fees.ComputeUnitPrice,
	}
	if devnet {
		cfg.CPSwapProgram = hookpool.CPSwapDevnetProgramID
		cfg.FeeReceiver = hookpool.CreatePoolFeeReceiverDevnet
	}

	var err error
	if section.HookProgram == "" {
		return cfg, fmt.Errorf("hookpool.hookProgram is required")
	}
	if cfg.HookProgram, err = sol.ParseAddress(section.HookProgram); err != nil {
		return cfg, fmt.Errorf("hook program: %w", err)
	}
	if section.CPSwapProgram != "" {
		if cfg.CPSwapProgram, err = sol.ParseAddress(section.CPSwapProgram); err != nil {
			return cfg, fmt.Errorf("swap program: %w", err)
		}
	}
	if section.FeeReceiver != "" {
		if cfg.FeeReceiver, err = sol.ParseAddress(section.FeeReceiver); err != nil {
			return cfg, fmt.Errorf("fee receiver: %w", err)
		}
	}
	return cfg, nil
}
