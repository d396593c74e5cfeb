package tokens

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"go.uber.org/zap"

	"github.com/krazyTry/spl-toolkit/ipfs"
	sol "github.com/krazyTry/spl-toolkit/solana"
	"github.com/krazyTry/spl-toolkit/solana/token2022"
)

const (
	OpCreate = "create"

	MaxNameLength   = 32
	MaxSymbolLength = 10
	MaxDecimals     = 9
)

var (
	ErrInvalidName     = errors.New("name must be 1-32 characters")
	ErrInvalidSymbol   = errors.New("symbol must be 1-10 characters")
	ErrInvalidDecimals = errors.New("decimals must be between 0 and 9")
	ErrInvalidFee      = errors.New("transfer fee must be within 0-10000 basis points")
)

type TransferFeeParams struct {
	BasisPoints uint16 `json:"basisPoints"`
	// MaxFee in UI units; empty means no cap.
	MaxFee string `json:"maxFee,omitempty"`
}

// CreateTokenParams is the create form. Any extension makes the mint a Token-2022 mint.
type CreateTokenParams struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	URI         string `json:"uri,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	ImageData   []byte `json:"-"`
	Decimals    uint8  `json:"decimals"`
	Supply      string `json:"supply,omitempty"`

	Token2022          bool               `json:"token2022"`
	TransferFee        *TransferFeeParams `json:"transferFee,omitempty"`
	NonTransferable    bool               `json:"nonTransferable,omitempty"`
	PermanentDelegate  string             `json:"permanentDelegate,omitempty"`
	MintCloseAuthority bool               `json:"mintCloseAuthority,omitempty"`
	DefaultFrozen      bool               `json:"defaultFrozen,omitempty"`
	InterestRate       *int16             `json:"interestRate,omitempty"`
	TransferHook       string             `json:"transferHookProgram,omitempty"`
	FreezeAuthority    bool               `json:"freezeAuthority,omitempty"`
	AdditionalMetadata map[string]string  `json:"additionalMetadata,omitempty"`
}

func (p *CreateTokenParams) usesToken2022() bool {
	return p.Token2022 || p.TransferFee != nil || p.NonTransferable || p.PermanentDelegate != "" ||
		p.MintCloseAuthority || p.DefaultFrozen || p.InterestRate != nil || p.TransferHook != "" ||
		len(p.AdditionalMetadata) > 0
}

// Validate checks the form without touching the chain.
func (p *CreateTokenParams) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Symbol = strings.TrimSpace(p.Symbol)
	if n := utf8.RuneCountInString(p.Name); n == 0 || n > MaxNameLength {
		return ErrInvalidName
	}
	if n := utf8.RuneCountInString(p.Symbol); n == 0 || n > MaxSymbolLength {
		return ErrInvalidSymbol
	}
	if p.Decimals > MaxDecimals {
		return ErrInvalidDecimals
	}
	if p.TransferFee != nil && p.TransferFee.BasisPoints > token2022.MaxFeeBasisPoints {
		return ErrInvalidFee
	}
	if p.Supply != "" {
		if _, err := ParseUI(p.Supply, p.Decimals); err != nil {
			return fmt.Errorf("supply: %w", err)
		}
	}
	if p.PermanentDelegate != "" {
		if _, err := sol.ParseAddress(p.PermanentDelegate); err != nil {
			return fmt.Errorf("permanent delegate: %w", err)
		}
	}
	if p.TransferHook != "" {
		if _, err := sol.ParseAddress(p.TransferHook); err != nil {
			return fmt.Errorf("transfer hook program: %w", err)
		}
	}
	return nil
}

// resolveURI pins the off-chain document when no URI is given and pinning is configured.
func (c *Client) resolveURI(ctx context.Context, p *CreateTokenParams) (string, error) {
	if p.URI != "" {
		return p.URI, nil
	}
	if p.Description == "" && p.Image == "" && len(p.ImageData) == 0 {
		return "", nil
	}

	image := p.Image
	if len(p.ImageData) > 0 {
		res, err := c.ipfs.PinFile(ctx, p.Symbol+"-image", p.ImageData)
		if err != nil {
			return "", err
		}
		image = res.URI()
	}
	res, err := c.ipfs.PinJSON(ctx, p.Symbol+"-metadata", offChainMetadata{
		Name:        p.Name,
		Symbol:      p.Symbol,
		Description: p.Description,
		Image:       image,
	})
	if err != nil {
		return "", err
	}
	return res.URI(), nil
}

// BuildCreate creates a new mint owned by owner with the requested extensions, its metadata,
// the owner's ATA and the initial supply. The generated mint key is in Plan.Signers.
func (c *Client) BuildCreate(ctx context.Context, owner solana.PublicKey, p CreateTokenParams) (*Plan, *CreateResult, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, invalidInput(OpCreate, err)
	}

	uri, err := c.resolveURI(ctx, &p)
	if err != nil {
		if !errors.Is(err, ipfs.ErrMissingJWT) {
			return nil, nil, &TxError{Kind: KindUnknown, Op: OpCreate, Err: fmt.Errorf("pin metadata: %w", err)}
		}
		c.logger.Warn("metadata not pinned, creating without uri", zap.String("symbol", p.Symbol))
	}

	mintKey, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, nil, err
	}
	mint := mintKey.PublicKey()

	program := solana.TokenProgramID
	if p.usesToken2022() {
		program = solana.Token2022ProgramID
	}

	var (
		extTypes []token2022.ExtensionType
		extInits []solana.Instruction
	)
	if program.Equals(solana.Token2022ProgramID) {
		if p.TransferFee != nil {
			maxFee := uint64(0)
			if p.TransferFee.MaxFee != "" {
				if maxFee, err = ParseUI(p.TransferFee.MaxFee, p.Decimals); err != nil {
					return nil, nil, invalidInput(OpCreate, fmt.Errorf("max fee: %w", err))
				}
			} else if p.TransferFee.BasisPoints > 0 {
				maxFee = ^uint64(0)
			}
			extTypes = append(extTypes, token2022.ExtensionTransferFeeConfig)
			extInits = append(extInits, token2022.InitializeTransferFeeConfigInstruction(mint, &owner, &owner, p.TransferFee.BasisPoints, maxFee))
		}
		if p.NonTransferable {
			extTypes = append(extTypes, token2022.ExtensionNonTransferable)
			extInits = append(extInits, token2022.InitializeNonTransferableMintInstruction(mint))
		}
		if p.PermanentDelegate != "" {
			delegate := solana.MustPublicKeyFromBase58(strings.TrimSpace(p.PermanentDelegate))
			extTypes = append(extTypes, token2022.ExtensionPermanentDelegate)
			extInits = append(extInits, token2022.InitializePermanentDelegateInstruction(mint, delegate))
		}
		if p.MintCloseAuthority {
			extTypes = append(extTypes, token2022.ExtensionMintCloseAuthority)
			extInits = append(extInits, token2022.InitializeMintCloseAuthorityInstruction(mint, &owner))
		}
		if p.DefaultFrozen {
			extTypes = append(extTypes, token2022.ExtensionDefaultAccountState)
			extInits = append(extInits, token2022.InitializeDefaultAccountStateInstruction(mint, uint8(sol.AccountStateFrozen)))
		}
		if p.InterestRate != nil {
			extTypes = append(extTypes, token2022.ExtensionInterestBearingConfig)
			extInits = append(extInits, token2022.InitializeInterestBearingMintInstruction(mint, &owner, *p.InterestRate))
		}
		if p.TransferHook != "" {
			hook := solana.MustPublicKeyFromBase58(strings.TrimSpace(p.TransferHook))
			extTypes = append(extTypes, token2022.ExtensionTransferHook)
			extInits = append(extInits, token2022.InitializeTransferHookInstruction(mint, &owner, &hook))
		}
		extTypes = append(extTypes, token2022.ExtensionMetadataPointer)
		extInits = append(extInits, token2022.InitializeMetadataPointerInstruction(mint, &owner, &mint))
	}

	space, err := token2022.MintSize(extTypes...)
	if err != nil {
		return nil, nil, invalidInput(OpCreate, err)
	}

	var metadata *token2022.TokenMetadata
	rentSize := space
	if program.Equals(solana.Token2022ProgramID) {
		metadata = &token2022.TokenMetadata{
			UpdateAuthority: &owner,
			Mint:            mint,
			Name:            p.Name,
			Symbol:          p.Symbol,
			URI:             uri,
		}
		keys := make([]string, 0, len(p.AdditionalMetadata))
		for k := range p.AdditionalMetadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			metadata.AdditionalMetadata = append(metadata.AdditionalMetadata, [2]string{k, p.AdditionalMetadata[k]})
		}
		// the metadata instructions grow the account, so rent covers the metadata TLV upfront
		rentSize += 4 + metadata.Size()
	}

	lamports, err := sol.GetRentExempt(ctx, c.rpcClient, uint64(rentSize))
	if err != nil {
		return nil, nil, Classify(OpCreate, err)
	}

	var freezeAuthority *solana.PublicKey
	if p.FreezeAuthority || p.DefaultFrozen {
		freezeAuthority = &owner
	}

	ixs := []solana.Instruction{
		system.NewCreateAccountInstruction(lamports, uint64(space), program, owner, mint).Build(),
	}
	ixs = append(ixs, extInits...)
	ixs = append(ixs, sol.InitializeMint2Instruction(program, mint, p.Decimals, owner, freezeAuthority))

	if metadata != nil {
		ixs = append(ixs, token2022.InitializeTokenMetadataInstruction(mint, owner, mint, owner, metadata.Name, metadata.Symbol, metadata.URI))
		for _, kv := range metadata.AdditionalMetadata {
			ixs = append(ixs, token2022.UpdateTokenMetadataFieldInstruction(mint, owner, kv[0], kv[1]))
		}
	}

	createATA, ata, err := sol.CreateAssociatedTokenAccountIdempotentInstruction(owner, owner, mint, program)
	if err != nil {
		return nil, nil, invalidInput(OpCreate, err)
	}
	ixs = append(ixs, createATA)

	var supply uint64
	if p.Supply != "" {
		supply, _ = ParseUI(p.Supply, p.Decimals)
	}
	if supply > 0 {
		if p.DefaultFrozen {
			// new accounts start frozen, thaw the creator's before minting
			ixs = append(ixs, sol.ThawAccountInstruction(program, ata, mint, owner))
		}
		ixs = append(ixs, sol.MintToCheckedInstruction(program, mint, ata, owner, supply, p.Decimals))
	}

	plan, err := c.chunked(newPlan(OpCreate, owner, mint.String()), ixs)
	if err != nil {
		return nil, nil, err
	}
	plan.Signers = []solana.PrivateKey{mintKey}

	return plan, &CreateResult{
		TxResult:     TxResult{Op: OpCreate, Mint: mint.String(), Amount: supply},
		MintAddress:  mint,
		TokenAccount: ata,
		MetadataURI:  uri,
	}, nil
}

// CreateToken creates the token and mints the initial supply to wallet.
func (c *Client) CreateToken(ctx context.Context, p CreateTokenParams, wallet *solana.Wallet) (*CreateResult, error) {
	if wallet == nil {
		return nil, invalidInput(OpCreate, ErrMissingWallet)
	}
	plan, created, err := c.BuildCreate(ctx, wallet.PublicKey(), p)
	if err != nil {
		return nil, err
	}
	result, err := c.Execute(ctx, plan, wallet)
	if result != nil {
		created.Signatures = result.Signatures
	}
	if err != nil {
		return created, err
	}
	c.logger.Info("token created",
		zap.String("mint", created.MintAddress.String()),
		zap.String("symbol", p.Symbol),
	)
	return created, nil
}
