// Package api exposes the token toolkit over HTTP. Every write endpoint returns unsigned
// base64 transactions for the caller's wallet to sign; the server never holds a key.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/krazyTry/spl-toolkit/drafts"
	"github.com/krazyTry/spl-toolkit/internal/metrics"
	"github.com/krazyTry/spl-toolkit/tokens"
)

// Server holds the dependencies of the handlers.
type Server struct {
	client   *tokens.Client
	drafts   drafts.Store
	draftTTL time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewServer(client *tokens.Client, store drafts.Store, draftTTL time.Duration, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		client:   client,
		drafts:   store,
		draftTTL: draftTTL,
		metrics:  m,
		logger:   logger.Named("api"),
	}
}

// Router builds the gin engine. An empty origins list allows every origin.
func (s *Server) Router(origins []string) *gin.Engine {
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	if len(origins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.Use(s.zapLoggerMiddleware())
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/wallets/:owner/tokens", s.walletTokens)
		v1.GET("/wallets/:owner/closable", s.closableAccounts)
		v1.GET("/tokens/:mint", s.tokenDetails)
		v1.GET("/tokens/:mint/withheld", s.withheldFees)
		v1.POST("/transfers/quote", s.quoteTransfer)
		v1.POST("/transactions/:op", s.buildTransactions)

		v1.POST("/drafts", s.createDraft)
		v1.GET("/drafts/:id", s.getDraft)
		v1.POST("/drafts/:id/confirm", s.confirmDraft)
	}
	return router
}

func (s *Server) zapLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, strconv.Itoa(status), latency)
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			s.logger.Warn("request", fields...)
		default:
			s.logger.Info("request", fields...)
		}
	}
}
