// Command tokenkit manages SPL Token and Token-2022 tokens of a wallet from the terminal,
// or serves the same operations over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/krazyTry/spl-toolkit/flow"
	"github.com/krazyTry/spl-toolkit/internal/config"
	"github.com/krazyTry/spl-toolkit/tokens"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"tokens":     {"list the wallet's tokens", runTokens},
	"details":    {"show a token with its extensions and history", runDetails},
	"transfer":   {"review and send a transfer", runTransfer},
	"mint":       {"mint new supply (mint authority)", runMint},
	"burn":       {"burn from the wallet's account", runBurn},
	"freeze":     {"freeze a token account (freeze authority)", runFreeze},
	"thaw":       {"thaw a token account (freeze authority)", runThaw},
	"close":      {"close empty token accounts and reclaim rent", runClose},
	"claim-fees": {"withdraw withheld transfer fees", runClaimFees},
	"recover":    {"move tokens as permanent delegate", runRecover},
	"create":     {"create a token with optional extensions", runCreate},
	"pin":        {"pin a file to IPFS", runPin},
	"hookpool":   {"set up a whitelist hooked pool and swap", runHookPool},
	"serve":      {"serve the HTTP API", runServe},
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: tokenkit [-config file] <command> [flags]\n\ncommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-11s %s\n", name, commands[name].usage)
	}
}

func main() {
	configPath := flag.String("config", os.Getenv("TOKENKIT_CONFIG"), "YAML config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	machine := flow.New()
	err = machine.Run(func() error { return cmd.run(ctx, a, flag.Args()[1:]) })
	a.logger.Debug("command finished", zap.String("command", flag.Arg(0)), zap.Stringer("state", machine.State()))
	if err != nil {
		var txErr *tokens.TxError
		if errors.As(err, &txErr) {
			fmt.Fprintf(os.Stderr, "%s failed: %s\n", txErr.Op, txErr.Message())
			for _, line := range txErr.Logs {
				fmt.Fprintf(os.Stderr, "  %s\n", line)
			}
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		a.close()
		os.Exit(1)
	}
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
