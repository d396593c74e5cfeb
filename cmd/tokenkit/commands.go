package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/krazyTry/spl-toolkit/hookpool"
	"github.com/krazyTry/spl-toolkit/internal/api"
	sol "github.com/krazyTry/spl-toolkit/solana"
	"github.com/krazyTry/spl-toolkit/tokens"
)

var errAborted = errors.New("aborted")

func requireKey(name, value string) (solana.PublicKey, error) {
	key, err := sol.ParseAddress(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("-%s: %w", name, err)
	}
	return key, nil
}

// ownerOr parses value, falling back to the configured wallet.
func ownerOr(a *app, value string) (solana.PublicKey, error) {
	if value != "" {
		return requireKey("owner", value)
	}
	w, err := a.wallet()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return w.PublicKey(), nil
}

func confirm(prompt string, yes bool) error {
	if yes {
		return nil
	}
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	if strings.EqualFold(strings.TrimSpace(line), "y") {
		return nil
	}
	return errAborted
}

func runTokens(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("tokens", flag.ExitOnError)
	owner := fs.String("owner", "", "wallet address (default: configured wallet)")
	_ = fs.Parse(args)

	key, err := ownerOr(a, *owner)
	if err != nil {
		return err
	}
	list, err := a.client.WalletTokens(ctx, key)
	if err != nil {
		return err
	}
	return printJSON(list)
}

func runDetails(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("details", flag.ExitOnError)
	mint := fs.String("mint", "", "mint address")
	owner := fs.String("owner", "", "wallet address (default: configured wallet)")
	_ = fs.Parse(args)

	mintKey, err := requireKey("mint", *mint)
	if err != nil {
		return err
	}
	ownerKey, err := ownerOr(a, *owner)
	if err != nil {
		return err
	}
	details, err := a.client.GetTokenDetails(ctx, mintKey, ownerKey)
	if err != nil {
		return err
	}
	return printJSON(details)
}

func runTransfer(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	mint := fs.String("mint", "", "mint address")
	to := fs.String("to", "", "recipient wallet")
	amount := fs.String("amount", "", "amount in token units")
	exact := fs.Bool("receive-exact", false, "amount is what the recipient gets, fee added on top")
	yes := fs.Bool("yes", false, "send without asking")
	_ = fs.Parse(args)

	mintKey, err := requireKey("mint", *mint)
	if err != nil {
		return err
	}
	wallet, err := a.wallet()
	if err != nil {
		return err
	}

	session := a.client.NewTransferSession()
	quote, err := session.Review(ctx, tokens.TransferParams{
		Mint:         mintKey,
		Owner:        wallet.PublicKey(),
		Recipient:    *to,
		Amount:       *amount,
		ReceiveExact: *exact,
	})
	if err != nil {
		return err
	}
	if err = printJSON(quote); err != nil {
		return err
	}
	for _, w := range quote.Warnings {
		fmt.Fprintf(os.Stderr, "%s: %s\n", strings.ToUpper(string(w.Level)), w.Message)
	}
	if _, blocked := quote.Blocked(); !blocked {
		if err = confirm(fmt.Sprintf("send %s (recipient gets %s)?", quote.Amount, quote.Received), *yes); err != nil {
			return err
		}
	}

	result, err := session.Confirm(ctx, wallet)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func supplyCommand(name string, run func(context.Context, tokens.SupplyParams, *solana.Wallet) (*tokens.TxResult, error)) func(context.Context, *app, []string) error {
	return func(ctx context.Context, a *app, args []string) error {
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		mint := fs.String("mint", "", "mint address")
		amount := fs.String("amount", "", "amount in token units")
		to := fs.String("to", "", "recipient wallet when minting (default: the wallet)")
		_ = fs.Parse(args)

		mintKey, err := requireKey("mint", *mint)
		if err != nil {
			return err
		}
		wallet, err := a.wallet()
		if err != nil {
			return err
		}
		result, err := run(ctx, tokens.SupplyParams{
			Mint:      mintKey,
			Owner:     wallet.PublicKey(),
			Recipient: *to,
			Amount:    *amount,
		}, wallet)
		if err != nil {
			return err
		}
		return printJSON(result)
	}
}

func runMint(ctx context.Context, a *app, args []string) error {
	return supplyCommand("mint", a.client.Mint)(ctx, a, args)
}

func runBurn(ctx context.Context, a *app, args []string) error {
	return supplyCommand("burn", a.client.Burn)(ctx, a, args)
}

func freezeCommand(name string, run func(context.Context, tokens.FreezeParams, *solana.Wallet) (*tokens.TxResult, error)) func(context.Context, *app, []string) error {
	return func(ctx context.Context, a *app, args []string) error {
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		mint := fs.String("mint", "", "mint address")
		account := fs.String("account", "", "token account or holder wallet")
		_ = fs.Parse(args)

		mintKey, err := requireKey("mint", *mint)
		if err != nil {
			return err
		}
		wallet, err := a.wallet()
		if err != nil {
			return err
		}
		result, err := run(ctx, tokens.FreezeParams{Mint: mintKey, Owner: wallet.PublicKey(), Account: *account}, wallet)
		if err != nil {
			return err
		}
		return printJSON(result)
	}
}

func runFreeze(ctx context.Context, a *app, args []string) error {
	return freezeCommand("freeze", a.client.Freeze)(ctx, a, args)
}

func runThaw(ctx context.Context, a *app, args []string) error {
	return freezeCommand("thaw", a.client.Thaw)(ctx, a, args)
}

func runClose(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	accounts := fs.String("accounts", "", "comma separated token accounts (default: every empty account)")
	yes := fs.Bool("yes", false, "close without asking")
	_ = fs.Parse(args)

	wallet, err := a.wallet()
	if err != nil {
		return err
	}
	items, err := a.client.ListTokens(ctx, wallet.PublicKey())
	if err != nil {
		return err
	}
	selection := tokens.NewCloseSelection(items)
	if *accounts == "" {
		selection.SelectAll(true)
	} else {
		for _, addr := range strings.Split(*accounts, ",") {
			if addr = strings.TrimSpace(addr); addr != "" && !selection.Toggle(addr) {
				a.logger.Warn("account is not closable, ignored", zap.String("account", addr))
			}
		}
	}
	selected := selection.Selected()
	if len(selected) == 0 {
		fmt.Fprintln(os.Stderr, "no empty token accounts to close")
		return nil
	}
	if err = confirm(fmt.Sprintf("close %d token accounts?", len(selected)), *yes); err != nil {
		return err
	}

	result, err := a.client.CloseAccounts(ctx, selected, wallet)
	if result != nil {
		fmt.Fprintf(os.Stderr, "reclaimed %s SOL\n", result.ReclaimedSOL())
		if perr := printJSON(result); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

func runClaimFees(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("claim-fees", flag.ExitOnError)
	mint := fs.String("mint", "", "Token-2022 mint with a transfer fee")
	to := fs.String("to", "", "destination wallet (default: the wallet)")
	dryRun := fs.Bool("dry-run", false, "only list withheld fees")
	_ = fs.Parse(args)

	mintKey, err := requireKey("mint", *mint)
	if err != nil {
		return err
	}
	if *dryRun {
		fees, err := a.client.FindWithheldFees(ctx, mintKey)
		if err != nil {
			return err
		}
		return printJSON(fees)
	}
	wallet, err := a.wallet()
	if err != nil {
		return err
	}
	result, err := a.client.ClaimFees(ctx, tokens.ClaimFeesParams{Mint: mintKey, Owner: wallet.PublicKey(), Destination: *to}, wallet)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runRecover(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("recover", flag.ExitOnError)
	mint := fs.String("mint", "", "mint with a permanent delegate")
	source := fs.String("source", "", "token account or holder wallet")
	to := fs.String("to", "", "destination wallet (default: the delegate)")
	amount := fs.String("amount", "", "amount in token units (default: everything)")
	yes := fs.Bool("yes", false, "send without asking")
	_ = fs.Parse(args)

	mintKey, err := requireKey("mint", *mint)
	if err != nil {
		return err
	}
	wallet, err := a.wallet()
	if err != nil {
		return err
	}
	if err = confirm(fmt.Sprintf("move tokens out of %s as permanent delegate?", *source), *yes); err != nil {
		return err
	}
	result, err := a.client.RecoverWithDelegate(ctx, tokens.RecoverParams{
		Mint:        mintKey,
		Owner:       wallet.PublicKey(),
		Source:      *source,
		Destination: *to,
		Amount:      *amount,
	}, wallet)
	if err != nil {
		return err
	}
	return printJSON(result)
}

type metadataFlag map[string]string

func (m metadataFlag) String() string { return fmt.Sprint(map[string]string(m)) }

func (m metadataFlag) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || key == "" {
		return fmt.Errorf("want key=value, got %q", v)
	}
	m[key] = value
	return nil
}

func runCreate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	var p tokens.CreateTokenParams
	fs.StringVar(&p.Name, "name", "", "token name")
	fs.StringVar(&p.Symbol, "symbol", "", "token symbol")
	decimals := fs.Uint("decimals", 9, "decimals (0-9)")
	fs.StringVar(&p.Supply, "supply", "", "initial supply in token units")
	fs.StringVar(&p.URI, "uri", "", "metadata URI (default: pin description and image)")
	fs.StringVar(&p.Description, "description", "", "description for the pinned metadata")
	fs.StringVar(&p.Image, "image", "", "image URL or local file to pin")
	fs.BoolVar(&p.Token2022, "token2022", false, "use Token-2022 without extensions")
	feeBps := fs.Int("fee-bps", -1, "transfer fee in basis points")
	maxFee := fs.String("max-fee", "", "transfer fee cap in token units")
	fs.BoolVar(&p.NonTransferable, "non-transferable", false, "soulbound token")
	fs.StringVar(&p.PermanentDelegate, "permanent-delegate", "", "permanent delegate address")
	fs.BoolVar(&p.MintCloseAuthority, "close-authority", false, "let the wallet close the mint")
	fs.BoolVar(&p.DefaultFrozen, "default-frozen", false, "new accounts start frozen")
	rate := fs.Int("interest-rate", 0, "interest rate in basis points")
	fs.StringVar(&p.TransferHook, "hook", "", "transfer hook program")
	fs.BoolVar(&p.FreezeAuthority, "freeze-authority", false, "keep a freeze authority")
	extra := metadataFlag{}
	fs.Var(extra, "meta", "additional metadata key=value, repeatable")
	_ = fs.Parse(args)

	p.Decimals = uint8(*decimals)
	if *feeBps >= 0 {
		p.TransferFee = &tokens.TransferFeeParams{BasisPoints: uint16(*feeBps), MaxFee: *maxFee}
	}
	if *rate != 0 {
		r := int16(*rate)
		p.InterestRate = &r
	}
	if len(extra) > 0 {
		p.AdditionalMetadata = extra
	}
	if p.Image != "" && !strings.Contains(p.Image, "://") {
		data, err := os.ReadFile(p.Image)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		p.ImageData, p.Image = data, ""
	}

	wallet, err := a.wallet()
	if err != nil {
		return err
	}
	result, err := a.client.CreateToken(ctx, p, wallet)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runPin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("pin", flag.ExitOnError)
	file := fs.String("file", "", "file to pin")
	name := fs.String("name", "", "pin name (default: file name)")
	_ = fs.Parse(args)

	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	if *name == "" {
		*name = filepath.Base(*file)
	}
	res, err := a.ipfs.PinFile(ctx, *name, data)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"cid":     res.CID,
		"uri":     res.URI(),
		"gateway": a.ipfs.GatewayURL(res.URI()),
	})
}

func runHookPool(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("hookpool", flag.ExitOnError)
	hookMint := fs.String("hook-mint", "", "Token-2022 mint guarded by the whitelist hook")
	quoteMint := fs.String("quote-mint", solana.WrappedSol.String(), "quote mint")
	hookAmount := fs.Uint64("hook-amount", 0, "initial hooked liquidity, base units")
	quoteAmount := fs.Uint64("quote-amount", 0, "initial quote liquidity, base units")
	openTime := fs.Uint64("open-time", 0, "pool open unix time")
	swapAmount := fs.Uint64("swap-amount", 0, "quote sold in the first swap, zero skips it")
	minOut := fs.Uint64("min-out", 0, "minimum hooked tokens out of the swap")
	devnet := fs.Bool("devnet", false, "use the devnet swap program")
	plan := fs.Bool("plan", false, "print the steps without sending")
	_ = fs.Parse(args)

	cfg, err := a.hookpoolConfig(*devnet)
	if err != nil {
		return err
	}
	p := hookpool.Params{
		HookMintProgram: solana.Token2022ProgramID,
		HookAmount:      *hookAmount,
		QuoteAmount:     *quoteAmount,
		OpenTime:        *openTime,
		SwapAmount:      *swapAmount,
		SwapMinimumOut:  *minOut,
	}
	if p.HookMint, err = requireKey("hook-mint", *hookMint); err != nil {
		return err
	}
	if p.QuoteMint, err = requireKey("quote-mint", *quoteMint); err != nil {
		return err
	}
	quote, err := a.client.GetMintInfo(ctx, p.QuoteMint)
	if err != nil {
		return err
	}
	p.QuoteProgram = quote.Program

	wallet, err := a.wallet()
	if err != nil {
		return err
	}
	runner := hookpool.NewRunner(a.rpc, a.ws, cfg, a.logger)
	if *plan {
		steps, err := runner.Plan(wallet.PublicKey(), p)
		if err != nil {
			return err
		}
		keys, err := runner.PoolKeys(p)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(steps))
		for _, s := range steps {
			names = append(names, s.Name)
		}
		return printJSON(map[string]interface{}{"pool": keys, "steps": names})
	}

	results, err := runner.Run(ctx, wallet, p)
	if perr := printJSON(results); perr != nil && err == nil {
		err = perr
	}
	return err
}

func runServe(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", a.cfg.Server.Addr, "listen address")
	_ = fs.Parse(args)

	store, release, err := a.draftStore(ctx)
	if err != nil {
		return err
	}
	defer release()

	server := api.NewServer(a.client, store, a.cfg.Drafts.TTL(), a.metrics, a.logger)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      server.Router(a.cfg.Server.CORSOrigins),
		ReadTimeout:  time.Duration(a.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", zap.String("addr", *addr), zap.String("rpc", a.cfg.RPC.Endpoint))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.logger.Info("server exiting")
	return nil
}
