// Package config loads the toolkit configuration from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the overall configuration for the toolkit.
type Config struct {
	RPC      RPCConfig      `yaml:"rpc"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Cache    CacheConfig    `yaml:"cache"`
	Metadata MetadataConfig `yaml:"metadata"`
	Fees     FeesConfig     `yaml:"fees"`
	IPFS     IPFSConfig     `yaml:"ipfs"`
	Drafts   DraftsConfig   `yaml:"drafts"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	HookPool HookPoolConfig `yaml:"hookpool"`
}

type RPCConfig struct {
	Endpoint   string `yaml:"endpoint"`
	WSEndpoint string `yaml:"wsEndpoint"`
	Commitment string `yaml:"commitment"` // processed, confirmed or finalized
	TimeoutMs  int64  `yaml:"timeoutMs"`
	// RateLimit paces metadata lookups, requests per second. Zero is unlimited.
	RateLimit  float64 `yaml:"rateLimit"`
	BurstLimit int     `yaml:"burstLimit"`
}

type WalletConfig struct {
	// Keypair is a solana-keygen JSON file path or a base58 secret key.
	Keypair string `yaml:"keypair"`
}

type CacheConfig struct {
	TTLSeconds     int `yaml:"ttlSeconds"`
	CleanupSeconds int `yaml:"cleanupSeconds"`
}

type MetadataConfig struct {
	Concurrency    int   `yaml:"concurrency"`
	FetchTimeoutMs int64 `yaml:"fetchTimeoutMs"`
	HistoryLimit   int   `yaml:"historyLimit"`
}

type FeesConfig struct {
	ComputeUnitLimit uint32 `yaml:"computeUnitLimit"`
	ComputeUnitPrice uint64 `yaml:"computeUnitPrice"` // micro-lamports
}

type IPFSConfig struct {
	APIURL    string `yaml:"apiURL"`
	Gateway   string `yaml:"gateway"`
	JWT       string `yaml:"jwt"`
	TimeoutMs int64  `yaml:"timeoutMs"`
}

type DraftsConfig struct {
	Backend    string `yaml:"backend"` // memory or postgres
	DSN        string `yaml:"dsn"`
	TTLMinutes int    `yaml:"ttlMinutes"`
}

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	CORSOrigins  []string `yaml:"corsOrigins"`
	ReadTimeout  int      `yaml:"readTimeout"`
	WriteTimeout int      `yaml:"writeTimeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

type HookPoolConfig struct {
	HookProgram   string `yaml:"hookProgram"`
	CPSwapProgram string `yaml:"cpSwapProgram"`
	AmmConfig     uint16 `yaml:"ammConfig"`
	FeeReceiver   string `yaml:"feeReceiver"`
}

const (
	DraftsMemory   = "memory"
	DraftsPostgres = "postgres"
)

var ErrInvalidConfig = errors.New("invalid config")

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path (optional), then .env, then the TOKENKIT_* environment variables.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
		}
	}

	// a missing .env file is fine
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("TOKENKIT_RPC_URL", &c.RPC.Endpoint)
	str("TOKENKIT_WS_URL", &c.RPC.WSEndpoint)
	str("TOKENKIT_COMMITMENT", &c.RPC.Commitment)
	str("TOKENKIT_KEYPAIR", &c.Wallet.Keypair)
	str("PINATA_JWT", &c.IPFS.JWT)
	str("TOKENKIT_IPFS_GATEWAY", &c.IPFS.Gateway)
	str("TOKENKIT_DRAFTS_BACKEND", &c.Drafts.Backend)
	str("TOKENKIT_POSTGRES_DSN", &c.Drafts.DSN)
	str("TOKENKIT_ADDR", &c.Server.Addr)
	str("TOKENKIT_LOG_LEVEL", &c.Logging.Level)
	str("TOKENKIT_LOG_FORMAT", &c.Logging.Format)
	str("TOKENKIT_HOOK_PROGRAM", &c.HookPool.HookProgram)

	if v, ok := os.LookupEnv("TOKENKIT_PRIORITY_FEE"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: TOKENKIT_PRIORITY_FEE=%q: %v", ErrInvalidConfig, v, err)
		}
		c.Fees.ComputeUnitPrice = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.RPC.Endpoint == "" {
		c.RPC.Endpoint = "https://api.devnet.solana.com"
	}
	if c.RPC.Commitment == "" {
		c.RPC.Commitment = "confirmed"
	}
	if c.RPC.TimeoutMs == 0 {
		c.RPC.TimeoutMs = 30_000
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 30
	}
	if c.Cache.CleanupSeconds == 0 {
		c.Cache.CleanupSeconds = 2 * c.Cache.TTLSeconds
	}
	if c.Metadata.Concurrency == 0 {
		c.Metadata.Concurrency = 8
	}
	if c.Metadata.FetchTimeoutMs == 0 {
		c.Metadata.FetchTimeoutMs = 5_000
	}
	if c.Metadata.HistoryLimit == 0 {
		c.Metadata.HistoryLimit = 10
	}
	if c.IPFS.Gateway == "" {
		c.IPFS.Gateway = "https://gateway.pinata.cloud"
	}
	if c.IPFS.TimeoutMs == 0 {
		c.IPFS.TimeoutMs = 30_000
	}
	if c.Drafts.Backend == "" {
		c.Drafts.Backend = DraftsMemory
	}
	if c.Drafts.TTLMinutes == 0 {
		c.Drafts.TTLMinutes = 60
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks the values that have no sensible default.
func (c *Config) Validate() error {
	switch c.RPC.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("%w: rpc.commitment %q", ErrInvalidConfig, c.RPC.Commitment)
	}
	switch c.Drafts.Backend {
	case DraftsMemory:
	case DraftsPostgres:
		if c.Drafts.DSN == "" {
			return fmt.Errorf("%w: drafts.dsn is required for the postgres backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: drafts.backend %q", ErrInvalidConfig, c.Drafts.Backend)
	}
	if c.Metadata.Concurrency < 0 || c.RPC.RateLimit < 0 {
		return fmt.Errorf("%w: negative limits", ErrInvalidConfig)
	}
	return nil
}

func (c *RPCConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c *CacheConfig) Cleanup() time.Duration {
	return time.Duration(c.CleanupSeconds) * time.Second
}

func (c *MetadataConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

func (c *IPFSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c *DraftsConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}
