package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
rpc:
  endpoint: https://rpc.example.org
  rateLimit: 5
cache:
  ttlSeconds: 10
server:
  corsOrigins: ["http://localhost:3000"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.org", cfg.RPC.Endpoint)
	assert.Equal(t, "confirmed", cfg.RPC.Commitment)
	assert.Equal(t, 5.0, cfg.RPC.RateLimit)
	assert.Equal(t, 10, cfg.Cache.TTLSeconds)
	assert.Equal(t, 20, cfg.Cache.CleanupSeconds)
	assert.Equal(t, 8, cfg.Metadata.Concurrency)
	assert.Equal(t, DraftsMemory, cfg.Drafts.Backend)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, int64(30_000), cfg.RPC.Timeout().Milliseconds())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TOKENKIT_RPC_URL", "http://127.0.0.1:8899")
	t.Setenv("PINATA_JWT", "jwt-token")
	t.Setenv("TOKENKIT_DRAFTS_BACKEND", DraftsPostgres)
	t.Setenv("TOKENKIT_POSTGRES_DSN", "postgres://localhost/tokenkit")
	t.Setenv("TOKENKIT_PRIORITY_FEE", "5000")

	cfg, err := Load(writeConfig(t, "rpc:\n  endpoint: https://ignored.example.org\n"))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8899", cfg.RPC.Endpoint)
	assert.Equal(t, "jwt-token", cfg.IPFS.JWT)
	assert.Equal(t, DraftsPostgres, cfg.Drafts.Backend)
	assert.Equal(t, uint64(5000), cfg.Fees.ComputeUnitPrice)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "rpc: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "rpc:\n  commitment: eventually\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeConfig(t, "drafts:\n  backend: postgres\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	t.Setenv("TOKENKIT_PRIORITY_FEE", "lots")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://api.devnet.solana.com", cfg.RPC.Endpoint)
	assert.Equal(t, 60, cfg.Drafts.TTLMinutes)
}
