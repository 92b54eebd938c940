package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. TOKMINT_RPC_URL.
const EnvPrefix = "TOKMINT"

// Load builds a Config from defaults, an optional file and the environment.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	fillCollections(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	defaults := map[string]interface{}{
		"log_level":                 d.LogLevel,
		"vanity_profile":            d.VanityProfile,
		"confirmation_timeout":      d.ConfirmationTimeout,
		"verify_wallet":             d.VerifyWallet,
		"rpc.network":               string(d.RPC.Network),
		"rpc.url":                   d.RPC.RPCURL,
		"rpc.commitment":            d.RPC.Commitment,
		"rpc.timeout":               d.RPC.Timeout,
		"rpc.max_send_retries":      d.RPC.MaxSendRetries,
		"rpc.retry.enabled":         d.RPC.Retry.Enabled,
		"rpc.retry.max_attempts":    d.RPC.Retry.MaxAttempts,
		"rpc.retry.initial_backoff": d.RPC.Retry.InitialBackoff,
		"rpc.retry.max_backoff":     d.RPC.Retry.MaxBackoff,
		"rpc.retry.jitter":          d.RPC.Retry.Jitter,
		"rpc.rate_limit.rps":        d.RPC.RateLimit.RPS,
		"rpc.rate_limit.burst":      d.RPC.RateLimit.Burst,
		"jito.enabled":              d.Jito.Enabled,
		"jito.uuid":                 d.Jito.UUID,
		"jito.endpoints":            d.Jito.Endpoints,
		"upload.max_tries":          d.Upload.MaxTries,
		"upload.initial_interval":   d.Upload.InitialInterval,
		"upload.max_interval":       d.Upload.MaxInterval,
		"upload.attempt_timeout":    d.Upload.AttemptTimeout,
		"upload.gateway":            d.Upload.Gateway,
		"trade.endpoint":            d.Trade.Endpoint,
		"trade.api_key":             d.Trade.APIKey,
		"trade.pool":                d.Trade.Pool,
		"trade.slippage":            d.Trade.Slippage,
		"trade.priority_fee":        d.Trade.PriorityFee,
		"trade.initial_buy":         d.Trade.InitialBuy,
		"trade.denominated_in_sol":  d.Trade.DenominatedInSol,
		"trade.timeout":             d.Trade.Timeout,
		"registry.driver":           d.Registry.Driver,
		"registry.dsn":              d.Registry.DSN,
		"registry.base_url":         d.Registry.BaseURL,
		"registry.timeout":          d.Registry.Timeout,
		"events.brokers":            d.Events.Brokers,
		"events.topic":              d.Events.Topic,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// fillCollections restores default backends and profiles a file did not override.
func fillCollections(cfg *Config) {
	if len(cfg.Upload.Backends) == 0 {
		cfg.Upload.Backends = DefaultBackends()
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]VanityProfile)
	}
	for name, p := range DefaultProfiles() {
		if _, ok := cfg.Profiles[name]; !ok {
			cfg.Profiles[name] = p
		}
	}
	cfg.RPC.Logger = Default().RPC.Logger
}
