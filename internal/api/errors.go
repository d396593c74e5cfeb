package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/krazyTry/spl-toolkit/drafts"
	"github.com/krazyTry/spl-toolkit/tokens"
)

var errUnknownOp = errors.New("unknown operation")

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind,omitempty"`
	Message string   `json:"message,omitempty"`
	Logs    []string `json:"logs,omitempty"`
}

var kindStatus = map[tokens.Kind]int{
	tokens.KindInvalidInput:      http.StatusBadRequest,
	tokens.KindNonTransferable:   http.StatusUnprocessableEntity,
	tokens.KindInsufficientFunds: http.StatusUnprocessableEntity,
	tokens.KindInsufficientSOL:   http.StatusUnprocessableEntity,
	tokens.KindTransferHook:      http.StatusUnprocessableEntity,
	tokens.KindAccountFrozen:     http.StatusConflict,
	tokens.KindAlreadyProcessed:  http.StatusConflict,
	tokens.KindBlockhashExpired:  http.StatusConflict,
	tokens.KindUnauthorized:      http.StatusForbidden,
	tokens.KindUnknown:           http.StatusBadGateway,
}

func statusOf(err error) int {
	var txErr *tokens.TxError
	switch {
	case errors.As(err, &txErr):
		if status, ok := kindStatus[txErr.Kind]; ok {
			return status
		}
		return http.StatusBadGateway
	case errors.Is(err, drafts.ErrNotFound), errors.Is(err, errUnknownOp):
		return http.StatusNotFound
	case errors.Is(err, drafts.ErrExpired):
		return http.StatusGone
	case errors.Is(err, drafts.ErrInvalidInput):
		return http.StatusBadRequest
	}
	// anything else came from the RPC node
	return http.StatusBadGateway
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	resp := ErrorResponse{Error: err.Error()}
	var txErr *tokens.TxError
	if errors.As(err, &txErr) {
		resp.Kind = string(txErr.Kind)
		resp.Message = txErr.Message()
		resp.Logs = txErr.Logs
	}
	c.AbortWithStatusJSON(statusOf(err), resp)
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error: err.Error(),
		Kind:  string(tokens.KindInvalidInput),
	})
}
