package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.RPC.ResolveRPCURL())
	assert.Equal(t, "confirmed", cfg.RPC.Commitment)
	assert.Equal(t, uint(3), cfg.RPC.MaxSendRetries)
	assert.Equal(t, ProfileRegular, cfg.VanityProfile)
	require.Len(t, cfg.Upload.Backends, 2)
	assert.Equal(t, "pump.fun", cfg.Upload.Backends[0].Name)

	regular, err := cfg.Profile("")
	require.NoError(t, err)
	assert.Equal(t, "tok", regular.Suffix)
	assert.Equal(t, 30*time.Second, regular.Timeout)
	assert.True(t, regular.FallbackRandom)

	official, err := cfg.Profile(ProfileOfficial)
	require.NoError(t, err)
	assert.Equal(t, "vfun", official.Suffix)
	assert.True(t, official.BestEffort)
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, "tokmint.yaml", `
log_level: debug
vanity_profile: official
rpc:
  url: https://rpc.example.com
  timeout: 5s
upload:
  max_tries: 2
  backends:
    - name: only
      endpoint: https://upload.example.com/api/ipfs
profiles:
  official:
    suffix: viral
    timeout: 2m
    best_effort: true
trade:
  slippage: 15
  priority_fee: "0.001"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://rpc.example.com", cfg.RPC.RPCURL)
	assert.Equal(t, 5*time.Second, cfg.RPC.Timeout)
	assert.Equal(t, uint(2), cfg.Upload.MaxTries)
	require.Len(t, cfg.Upload.Backends, 1)
	assert.Equal(t, "only", cfg.Upload.Backends[0].Name)
	assert.Equal(t, 15, cfg.Trade.Slippage)

	fee, err := cfg.Trade.PriorityFeeDecimal()
	require.NoError(t, err)
	assert.Equal(t, "0.001", fee.String())

	p, err := cfg.Profile("")
	require.NoError(t, err)
	assert.Equal(t, "viral", p.Suffix)
	assert.Equal(t, 2*time.Minute, p.Timeout)

	// Profiles not mentioned in the file keep their defaults.
	regular, err := cfg.Profile(ProfileRegular)
	require.NoError(t, err)
	assert.Equal(t, "tok", regular.Suffix)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TOKMINT_RPC_URL", "https://env-rpc.example.com")
	t.Setenv("TOKMINT_TRADE_POOL", "bonk")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env-rpc.example.com", cfg.RPC.RPCURL)
	assert.Equal(t, "bonk", cfg.Trade.Pool)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "unknown profile",
			content: "vanity_profile: missing\n",
		},
		{
			name:    "postgres without dsn",
			content: "registry:\n  driver: postgres\n",
		},
		{
			name:    "bad backend url",
			content: "upload:\n  backends:\n    - name: x\n      endpoint: ftp://nope\n",
		},
		{
			name:    "slippage out of range",
			content: "trade:\n  slippage: 150\n",
		},
		{
			name:    "bad priority fee",
			content: "trade:\n  priority_fee: lots\n",
		},
		{
			name:    "suffix outside base58",
			content: "profiles:\n  regular:\n    suffix: t0k\n    timeout: 30s\n    fallback_random: true\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "bad.yaml", tt.content)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestProfileUnknownListsNames(t *testing.T) {
	cfg := Default()
	_, err := cfg.Profile("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "official, regular")
}

func TestValidateRejectsUnmatchableSuffix(t *testing.T) {
	cfg := Default()
	p := cfg.Profiles[ProfileRegular]
	p.Suffix = "t0k"
	cfg.Profiles[ProfileRegular] = p

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profiles.regular.suffix")

	p.CaseSensitive = true
	p.Suffix = "tOk"
	cfg.Profiles[ProfileRegular] = p
	require.Error(t, cfg.Validate())

	p.CaseSensitive = false
	cfg.Profiles[ProfileRegular] = p
	require.NoError(t, cfg.Validate())
}
