package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgconfig "chainvend.com/pkg/config"
)

func TestLoad_SampleFile(t *testing.T) {
	var cfg Config
	_, err := pkgconfig.LoadFile(filepath.Join("..", "..", "config", "vend-service.yaml"), "vend-service", &cfg)
	require.NoError(t, err)

	assert.Equal(t, "vend-service", cfg.Name)
	assert.Equal(t, 12*time.Second, cfg.Chains.AttemptTimeout)
	assert.Len(t, cfg.Chains.Networks["ethereum"].Endpoints, 3)
	assert.Equal(t, int32(6), cfg.Chains.Networks["usdt"].Decimals)
	assert.True(t, cfg.Pricing.Static["ethereum"].Equal(decimal.NewFromInt(2000000)))
	assert.True(t, cfg.Purchase.TolerancePercent.Equal(decimal.NewFromInt(1)))
	assert.True(t, cfg.Custody.Starknet.MinBalance.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, cfg.Purchase.Electricity.Min.Equal(decimal.NewFromInt(1000)))
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vend-service.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":9000\"\n"), 0o600))
	t.Setenv("VEND_SERVICE_HTTP_ADDR", ":9100")

	var cfg Config
	_, err := pkgconfig.LoadFile(path, "vend-service", &cfg)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.HTTP.Addr)
}

func TestNormalize_Defaults(t *testing.T) {
	var cfg Config
	cfg.Normalize()

	assert.Equal(t, 12*time.Second, cfg.Chains.AttemptTimeout)
	assert.Equal(t, 8, cfg.Monitor.Concurrency)
	assert.Equal(t, 45*time.Second, cfg.Monitor.LockTTL)
	assert.True(t, cfg.Purchase.Airtime.Max.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, "0.5", cfg.Custody.Starknet.MinBalance.String())
}
