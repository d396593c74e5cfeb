// Package tokens lists, inspects and operates on SPL Token and Token-2022 tokens held by a wallet.
package tokens

import (
	"context"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/krazyTry/spl-toolkit/ipfs"
)

// Recorder receives operational measurements. internal/metrics provides the prometheus one.
type Recorder interface {
	ObserveRPC(method string, d time.Duration, err error)
	ObserveTx(op string, kind string, d time.Duration)
	CacheLookup(kind string, hit bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRPC(string, time.Duration, error) {}
func (nopRecorder) ObserveTx(string, string, time.Duration) {}
func (nopRecorder) CacheLookup(string, bool)                {}

const (
	defaultCacheTTL            = 30 * time.Second
	defaultMetadataConcurrency = 8
	defaultMetadataTimeout     = 5 * time.Second
	defaultHistoryLimit        = 10
)

// Client is the entry point of every token query and transaction builder.
type Client struct {
	rpcClient *rpc.Client
	wsClient  *ws.Client
	logger    *zap.Logger
	metrics   Recorder
	ipfs      *ipfs.Client

	cache   *cache.Cache
	limiter *rate.Limiter

	metadataConcurrency int
	metadataTimeout     time.Duration
	historyLimit        int

	computeUnitLimit uint32
	computeUnitPrice uint64
}

func NewClient(
	rpcClient *rpc.Client,
	opts ...Option,
) *Client {
	c := &Client{
		rpcClient:           rpcClient,
		logger:              zap.NewNop(),
		metrics:             nopRecorder{},
		cache:               cache.New(defaultCacheTTL, 2*defaultCacheTTL),
		limiter:             rate.NewLimiter(rate.Inf, 1),
		metadataConcurrency: defaultMetadataConcurrency,
		metadataTimeout:     defaultMetadataTimeout,
		historyLimit:        defaultHistoryLimit,
	}
	for _, fn := range opts {
		fn(c)
	}
	if c.ipfs == nil {
		c.ipfs = ipfs.NewClient(ipfs.Config{}, c.logger)
	}
	return c
}

type Option func(*Client)

// WithWS confirms transactions through a websocket subscription instead of polling.
func WithWS(wsClient *ws.Client) Option {
	return func(c *Client) {
		c.wsClient = wsClient
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.Named("tokens")
		}
	}
}

func WithMetrics(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithIPFS sets the client used to pin metadata and fetch off-chain JSON.
func WithIPFS(client *ipfs.Client) Option {
	return func(c *Client) {
		c.ipfs = client
	}
}

// WithCache sets the TTL of cached token lists, details and mint info.
func WithCache(ttl, cleanup time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.cache = cache.New(ttl, cleanup)
		}
	}
}

// WithRateLimit paces metadata lookups to rps requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

func WithMetadata(concurrency int, timeout time.Duration) Option {
	return func(c *Client) {
		if concurrency > 0 {
			c.metadataConcurrency = concurrency
		}
		if timeout > 0 {
			c.metadataTimeout = timeout
		}
	}
}

// WithPriorityFee prepends compute budget instructions to every transaction.
func WithPriorityFee(unitLimit uint32, microLamports uint64) Option {
	return func(c *Client) {
		c.computeUnitLimit = unitLimit
		c.computeUnitPrice = microLamports
	}
}

func WithHistoryLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.historyLimit = n
		}
	}
}

func (c *Client) RPC() *rpc.Client {
	return c.rpcClient
}

// observe times an RPC round trip.
func (c *Client) observe(method string, start time.Time, err error) {
	c.metrics.ObserveRPC(method, time.Since(start), err)
}

func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

func cacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}

func (c *Client) cached(kind, key string) (interface{}, bool) {
	v, ok := c.cache.Get(key)
	c.metrics.CacheLookup(kind, ok)
	return v, ok
}

// Invalidate drops every cached entry that mentions owner or mint.
func (c *Client) Invalidate(keys ...string) {
	for k := range c.cache.Items() {
		for _, key := range keys {
			if key != "" && strings.Contains(k, key) {
				c.cache.Delete(k)
				break
			}
		}
	}
}
