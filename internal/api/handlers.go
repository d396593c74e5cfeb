package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/krazyTry/spl-toolkit/drafts"
	sol "github.com/krazyTry/spl-toolkit/solana"
	"github.com/krazyTry/spl-toolkit/tokens"
)

// TransactionsResponse carries the transactions of one operation in send order.
type TransactionsResponse struct {
	Op           string      `json:"op"`
	Payer        string      `json:"payer"`
	Transactions []string    `json:"transactions"`
	Details      interface{} `json:"details,omitempty"`
}

type DraftResponse struct {
	ID        string                    `json:"id"`
	Owner     string                    `json:"owner"`
	Params    *tokens.CreateTokenParams `json:"params,omitempty"`
	ExpiresAt time.Time                 `json:"expiresAt"`
}

func pathKey(c *gin.Context, name string) (solana.PublicKey, bool) {
	key, err := sol.ParseAddress(c.Param(name))
	if err != nil {
		badRequest(c, err)
		return solana.PublicKey{}, false
	}
	return key, true
}

func (s *Server) walletTokens(c *gin.Context) {
	owner, ok := pathKey(c, "owner")
	if !ok {
		return
	}
	if c.Query("refresh") == "true" {
		s.client.Invalidate(owner.String())
	}
	list, err := s.client.WalletTokens(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) closableAccounts(c *gin.Context) {
	owner, ok := pathKey(c, "owner")
	if !ok {
		return
	}
	items, err := s.client.ListTokens(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": tokens.ZeroBalanceAccounts(items)})
}

func (s *Server) tokenDetails(c *gin.Context) {
	mint, ok := pathKey(c, "mint")
	if !ok {
		return
	}
	owner, err := sol.ParseAddress(c.Query("owner"))
	if err != nil {
		badRequest(c, err)
		return
	}
	details, err := s.client.GetTokenDetails(c.Request.Context(), mint, owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (s *Server) withheldFees(c *gin.Context) {
	mint, ok := pathKey(c, "mint")
	if !ok {
		return
	}
	fees, err := s.client.FindWithheldFees(c.Request.Context(), mint)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fees)
}

func (s *Server) quoteTransfer(c *gin.Context) {
	var p tokens.TransferParams
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	quote, _, err := s.client.QuoteTransfer(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	_, blocked := quote.Blocked()
	c.JSON(http.StatusOK, gin.H{"quote": quote, "blocked": blocked})
}

type closeRequest struct {
	Owner    solana.PublicKey `json:"owner"`
	Accounts []string         `json:"accounts"`
}

type createRequest struct {
	Owner solana.PublicKey `json:"owner"`
	tokens.CreateTokenParams
}

type builder func(ctx context.Context, s *Server, c *gin.Context) (*tokens.Plan, interface{}, error)

func bind(c *gin.Context, op string, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return &tokens.TxError{Kind: tokens.KindInvalidInput, Op: op, Err: err}
	}
	return nil
}

var builders = map[string]builder{
	tokens.OpTransfer: func(ctx context.Context, s *Server, c *gin.Context) (*tokens.Plan, interface{}, error) {
		var p tokens.TransferParams
		if err := bind(c, tokens.OpTransfer, &p); err != nil {
			return nil, nil, err
		}
		plan, quote, err := s.client.BuildTransfer(ctx, p)
		return plan, quote, err
	},
	tokens.OpMint: func(ctx context.Context, s *Server, c *gin.Context) (*tokens.Plan, interface{}, error) {
		var p tokens.SupplyParams
		if err := bind(c, tokens.OpMint, &p); err != nil {
			return nil, nil, err
		}
		return amountDetails(s.client.BuildMint(ctx, p))
	},
	tokens.OpBurn: func(ctx context.Context, s *Server, c *gin.Context) (*tokens.Plan, interface{}, error) {
		var p tokens.SupplyParams
		if err := bind(c, tokens.OpBurn, &p); err != nil {
			return nil, nil, err
		}
		return amountDetails(s.client.BuildBurn(ctx, p))
	},
	tokens.OpFreeze: func(ctx context.Context, s *Server, c *gin.Context) (*tokens.Plan, interface{}, error) {
		var p tokens.FreezeParams
		if err := bind(c, tokens.OpFreeze, &p); err != nil {
			return nil, nil, err
		}
		plan, err := s.client.BuildFreeze(ctx, p)
		return plan, nil, err
	},
	tokens.OpThaw: func(ctx context.Context, s *Server, c *gin.Context) (*tokens.Plan, interface{}, error) {
		var p tokens.FreezeParams
		if err := bind(c, tokens.OpThaw, &p); err != nil {
			return nil, nil, err
		}
		plan, err := s.client.BuildThaw(ctx, p)
		return plan, nil, err
	},
	tokens.OpClose: func(ctx context.Context, s *Server, c *gin.Context) (*tokens.Plan, interface{}, error) {
		var req closeRequest
		if err := bind(c, tokens.OpClose, &req); err != nil {
			return nil, nil, err
		}
		plan, err := s.client.BuildClose(ctx, req.Owner, req.Accounts)
		if err != nil {
			return nil, nil, err
		}
		if len(plan.Closing) == 0 {
			return nil, nil, &tokens.TxError{Kind: tokens.KindInvalidInput, Op: tokens.OpClose, Err: tokens.ErrNothingToClose}
		}
		return plan.Plan, gin.H{"closing": plan.Closing, "skipped": plan.Skipped}, nil
	},
	tokens.OpClaimFees: func(ctx context.Context, s *Server, c *gin.Context) (*tokens.Plan, interface{}, error) {
		var p tokens.ClaimFeesParams
		if err := bind(c, tokens.OpClaimFees, &p); err != nil {
			return nil, nil, err
		}
		plan, fees, err := s.client.BuildClaimFees(ctx, p)
		return plan, fees, err
	},
	tokens.OpRecover: func(ctx context.Context, s *Server, c *gin.Context) (*tokens.Plan, interface{}, error) {
		var p tokens.RecoverParams
		if err := bind(c, tokens.OpRecover, &p); err != nil {
			return nil, nil, err
		}
		return amountDetails(s.client.BuildRecover(ctx, p))
	},
	tokens.OpCreate: func(ctx context.Context, s *Server, c *gin.Context) (*tokens.Plan, interface{}, error) {
		var req createRequest
		if err := bind(c, tokens.OpCreate, &req); err != nil {
			return nil, nil, err
		}
		plan, created, err := s.client.BuildCreate(ctx, req.Owner, req.CreateTokenParams)
		return plan, created, err
	},
}

func amountDetails(plan *tokens.Plan, amount uint64, err error) (*tokens.Plan, interface{}, error) {
	return plan, gin.H{"amount": amount}, err
}

func (s *Server) buildTransactions(c *gin.Context) {
	op := c.Param("op")
	build, ok := builders[op]
	if !ok {
		writeError(c, errUnknownOp)
		return
	}
	ctx := c.Request.Context()
	plan, details, err := build(ctx, s, c)
	if err != nil {
		writeError(c, err)
		return
	}
	s.respondPlan(c, plan, details)
}

func (s *Server) respondPlan(c *gin.Context, plan *tokens.Plan, details interface{}) {
	resp, err := s.preparePlan(c.Request.Context(), plan, details)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) preparePlan(ctx context.Context, plan *tokens.Plan, details interface{}) (*TransactionsResponse, error) {
	txs, err := s.client.Prepare(ctx, plan)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("transactions prepared",
		zap.String("op", plan.Op),
		zap.String("payer", plan.Payer.String()),
		zap.Int("count", len(txs)),
	)
	return &TransactionsResponse{
		Op:           plan.Op,
		Payer:        plan.Payer.String(),
		Transactions: txs,
		Details:      details,
	}, nil
}

type draftRequest struct {
	Owner  solana.PublicKey         `json:"owner"`
	Params tokens.CreateTokenParams `json:"params"`
}

// createDraft stores the create form so the review step can load it by ID.
func (s *Server) createDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Owner.IsZero() {
		badRequest(c, sol.ErrInvalidAddress)
		return
	}
	if err := req.Params.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	d, err := drafts.New(req.Owner.String(), req.Params, s.draftTTL)
	if err != nil {
		writeError(c, err)
		return
	}
	if err = s.drafts.Put(c.Request.Context(), d); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, DraftResponse{ID: d.ID, Owner: d.Owner, ExpiresAt: d.ExpiresAt})
}

func (s *Server) getDraft(c *gin.Context) {
	d, err := s.drafts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if owner := c.Query("owner"); owner != "" && owner != d.Owner {
		writeError(c, drafts.ErrNotFound)
		return
	}
	var params tokens.CreateTokenParams
	if err = d.Decode(&params); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, DraftResponse{ID: d.ID, Owner: d.Owner, Params: &params, ExpiresAt: d.ExpiresAt})
}

// confirmDraft returns the create transactions of a draft and consumes it. The draft
// is claimed only once the transactions are ready, so a failed build can be retried.
func (s *Server) confirmDraft(c *gin.Context) {
	var req struct {
		Owner solana.PublicKey `json:"owner"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Owner.IsZero() {
		badRequest(c, sol.ErrInvalidAddress)
		return
	}
	ctx := c.Request.Context()
	id, owner := c.Param("id"), req.Owner.String()

	d, err := s.drafts.Get(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if d.Owner != owner {
		writeError(c, drafts.ErrNotFound)
		return
	}
	var params tokens.CreateTokenParams
	if err = d.Decode(&params); err != nil {
		writeError(c, err)
		return
	}
	plan, created, err := s.client.BuildCreate(ctx, req.Owner, params)
	if err != nil {
		writeError(c, err)
		return
	}
	resp, err := s.preparePlan(ctx, plan, created)
	if err != nil {
		writeError(c, err)
		return
	}
	// a concurrent confirm that claimed first wins, this one reports not found
	if _, err = s.drafts.Claim(ctx, id, owner); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
