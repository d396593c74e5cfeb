package toolkit

import (
	"github.com/krazyTry/spl-toolkit/hookpool"
	"github.com/krazyTry/spl-toolkit/ipfs"
	"github.com/krazyTry/spl-toolkit/tokens"
)

// NewClient creates a token client.
//
// Example:
//
// client := NewClient(rpcClient, tokens.WithWS(wsClient), tokens.WithLogger(logger))
//
// list, _ := client.WalletTokens(ctx, owner)
//
// client.CloseAccounts(ctx, tokens.NewCloseSelection(list.Tokens).Selected(), ownerWallet)
var NewClient = tokens.NewClient

// NewHookPoolRunner creates the runner of the whitelist hooked pool setup.
//
// Example:
//
// runner := NewHookPoolRunner(rpcClient, wsClient, hookpool.Config{HookProgram: hookProgram}, logger)
//
// runner.Run(ctx, payer, hookpool.Params{HookMint: mint, QuoteMint: solana.WrappedSol, ...})
var NewHookPoolRunner = hookpool.NewRunner

// NewIPFSClient creates a Pinata client used to pin token metadata.
var NewIPFSClient = ipfs.NewClient
