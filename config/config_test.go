package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient("")
	require.NoError(t, err)
	assert.Equal(t, DefaultClient().AppName, cfg.AppName)
	assert.Equal(t, []string{"keystore", "clef"}, cfg.Wallets.Order)
}

func TestLoadClientFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_name: X
chain_id: SN_SEPOLIA
contract: "0x00000000000000000000000000000000000000aa"
poll_interval: 500ms
events:
  premium: PremiumPaymentRecorded
wallets:
  order: [clef]
  clef:
    endpoint: http://clef:8550
`), 0o600))

	t.Setenv("STINDEM_BACKEND_URL", "http://backend:9000")
	t.Setenv("STINDEM_TOKEN_DECIMALS", "6")

	cfg, err := LoadClient(path)
	require.NoError(t, err)
	assert.Equal(t, "X", cfg.AppName)
	assert.Equal(t, "SN_SEPOLIA", cfg.ChainID)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "http://backend:9000", cfg.BackendURL)
	assert.Equal(t, int32(6), cfg.TokenDecimals)
	assert.Equal(t, "http://clef:8550", cfg.Wallets.Clef.Endpoint)
	assert.Equal(t, "PremiumPaymentRecorded", cfg.Events["premium"])
}

func TestClientValidate(t *testing.T) {
	cfg := DefaultClient()
	cfg.Contract = "nope"
	cfg.Wallets.Order = []string{"metamask"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contract")
	assert.Contains(t, err.Error(), "metamask")
}

func TestLoadServerEnv(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("STINDEM_ACCESS_TTL", "1m")
	t.Setenv("STINDEM_SECURE_COOKIE", "true")

	cfg, err := LoadServer("")
	require.NoError(t, err)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
	assert.Equal(t, time.Minute, cfg.AccessTTL)
	assert.True(t, cfg.SecureCookie)

	t.Setenv("STINDEM_NONCE_TTL", "soon")
	_, err = LoadServer("")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, l)
	_, err = NewLogger("loud")
	assert.Error(t, err)
}
