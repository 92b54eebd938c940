package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/viraltok/tokmint/pkg/vanity"
)

// Vanity profile names shipped by default.
const (
	ProfileRegular  = "regular"
	ProfileOfficial = "official"
)

// VanityProfile is an explicit suffix policy. Regular and official tokens use
// different suffixes and timeouts; nothing infers one from the other.
type VanityProfile struct {
	Suffix        string        `mapstructure:"suffix"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Workers       int           `mapstructure:"workers"`
	CaseSensitive bool          `mapstructure:"case_sensitive"`
	// BestEffort returns the longest partial suffix match on timeout.
	BestEffort bool `mapstructure:"best_effort"`
	// FallbackRandom mints with a random address when the search times out.
	FallbackRandom bool `mapstructure:"fallback_random"`
}

// BackendConfig is one upload provider.
type BackendConfig struct {
	Name     string            `mapstructure:"name"`
	Endpoint string            `mapstructure:"endpoint"`
	Headers  map[string]string `mapstructure:"headers"`
}

// UploadConfig configures the metadata upload client.
type UploadConfig struct {
	Backends        []BackendConfig `mapstructure:"backends"`
	MaxTries        uint            `mapstructure:"max_tries"`
	InitialInterval time.Duration   `mapstructure:"initial_interval"`
	MaxInterval     time.Duration   `mapstructure:"max_interval"`
	AttemptTimeout  time.Duration   `mapstructure:"attempt_timeout"`
	Gateway         string          `mapstructure:"gateway"`
}

// TradeConfig configures the trade API and mint defaults.
type TradeConfig struct {
	Endpoint         string        `mapstructure:"endpoint"`
	APIKey           string        `mapstructure:"api_key"`
	Pool             string        `mapstructure:"pool"`
	Slippage         int           `mapstructure:"slippage"`
	PriorityFee      string        `mapstructure:"priority_fee"`
	InitialBuy       string        `mapstructure:"initial_buy"`
	DenominatedInSol bool          `mapstructure:"denominated_in_sol"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// PriorityFeeDecimal parses PriorityFee.
func (t TradeConfig) PriorityFeeDecimal() (decimal.Decimal, error) {
	return parseDecimal("trade.priority_fee", t.PriorityFee)
}

// InitialBuyDecimal parses InitialBuy.
func (t TradeConfig) InitialBuyDecimal() (decimal.Decimal, error) {
	return parseDecimal("trade.initial_buy", t.InitialBuy)
}

func parseDecimal(field, v string) (decimal.Decimal, error) {
	if strings.TrimSpace(v) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// Registry drivers.
const (
	RegistryMemory   = "memory"
	RegistryPostgres = "postgres"
	RegistryRemote   = "remote"
)

// RegistryConfig selects where minted tokens are recorded.
type RegistryConfig struct {
	Driver  string        `mapstructure:"driver"`
	DSN     string        `mapstructure:"dsn"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EventsConfig enables minted-token events. Empty brokers disables publishing.
type EventsConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// JitoConfig routes broadcasts through the Jito block engine.
type JitoConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	UUID      string   `mapstructure:"uuid"`
	Endpoints []string `mapstructure:"endpoints"`
}

// Config is the full application configuration.
type Config struct {
	LogLevel            string                   `mapstructure:"log_level"`
	RPC                 RPCConfig                `mapstructure:"rpc"`
	Jito                JitoConfig               `mapstructure:"jito"`
	VanityProfile       string                   `mapstructure:"vanity_profile"`
	Profiles            map[string]VanityProfile `mapstructure:"profiles"`
	Upload              UploadConfig             `mapstructure:"upload"`
	Trade               TradeConfig              `mapstructure:"trade"`
	Registry            RegistryConfig           `mapstructure:"registry"`
	Events              EventsConfig             `mapstructure:"events"`
	ConfirmationTimeout time.Duration            `mapstructure:"confirmation_timeout"`
	VerifyWallet        bool                     `mapstructure:"verify_wallet"`
}

// DefaultProfiles returns the regular ("tok", 30s, random fallback) and
// official ("vfun", 10m, best effort) profiles.
func DefaultProfiles() map[string]VanityProfile {
	return map[string]VanityProfile{
		ProfileRegular: {
			Suffix:         "tok",
			Timeout:        30 * time.Second,
			FallbackRandom: true,
		},
		ProfileOfficial: {
			Suffix:     "vfun",
			Timeout:    600 * time.Second,
			BestEffort: true,
		},
	}
}

// DefaultBackends returns the pump.fun IPFS endpoint followed by a self-hosted proxy.
func DefaultBackends() []BackendConfig {
	return []BackendConfig{
		{Name: "pump.fun", Endpoint: "https://pump.fun/api/ipfs"},
		{Name: "ipfs-local", Endpoint: "http://localhost:3000/api/ipfs"},
	}
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		LogLevel:      "info",
		RPC:           DefaultRPCConfig(),
		VanityProfile: ProfileRegular,
		Profiles:      DefaultProfiles(),
		Upload: UploadConfig{
			Backends:        DefaultBackends(),
			MaxTries:        4,
			InitialInterval: time.Second,
			MaxInterval:     8 * time.Second,
			AttemptTimeout:  30 * time.Second,
			Gateway:         "https://ipfs.io/ipfs/",
		},
		Trade: TradeConfig{
			Endpoint:         "https://pumpportal.fun/api/trade-local",
			Pool:             "pump",
			Slippage:         10,
			PriorityFee:      "0.0005",
			InitialBuy:       "0",
			DenominatedInSol: true,
			Timeout:          30 * time.Second,
		},
		Registry: RegistryConfig{
			Driver:  RegistryMemory,
			Timeout: 10 * time.Second,
		},
		Events: EventsConfig{
			Topic: "tokmint.minted",
		},
		ConfirmationTimeout: 60 * time.Second,
		VerifyWallet:        true,
	}
}

// Profile returns the named vanity profile. An empty name selects VanityProfile.
func (c Config) Profile(name string) (VanityProfile, error) {
	if name == "" {
		name = c.VanityProfile
	}
	p, ok := c.Profiles[name]
	if !ok {
		names := make([]string, 0, len(c.Profiles))
		for n := range c.Profiles {
			names = append(names, n)
		}
		sort.Strings(names)
		return VanityProfile{}, fmt.Errorf("unknown vanity profile %q (have %s)", name, strings.Join(names, ", "))
	}
	return p, nil
}

// Validate checks the configuration for values that would fail at runtime.
func (c Config) Validate() error {
	if c.RPC.ResolveRPCURL() == "" {
		return fmt.Errorf("rpc.url is required for network %q", c.RPC.Network)
	}
	if _, err := c.Profile(""); err != nil {
		return err
	}
	for name, p := range c.Profiles {
		if p.Timeout <= 0 {
			return fmt.Errorf("profiles.%s.timeout must be positive", name)
		}
		if !vanity.ValidSuffix(p.Suffix, p.CaseSensitive) {
			return fmt.Errorf("profiles.%s.suffix %q can never match a base58 address", name, p.Suffix)
		}
	}
	if len(c.Upload.Backends) == 0 {
		return fmt.Errorf("upload.backends is empty")
	}
	for i, b := range c.Upload.Backends {
		if err := validateHTTPURL(b.Endpoint); err != nil {
			return fmt.Errorf("upload.backends[%d] (%s): %w", i, b.Name, err)
		}
	}
	if err := validateHTTPURL(c.Trade.Endpoint); err != nil {
		return fmt.Errorf("trade.endpoint: %w", err)
	}
	if c.Trade.Slippage < 0 || c.Trade.Slippage > 100 {
		return fmt.Errorf("trade.slippage must be within [0, 100]")
	}
	if _, err := c.Trade.PriorityFeeDecimal(); err != nil {
		return err
	}
	if _, err := c.Trade.InitialBuyDecimal(); err != nil {
		return err
	}
	switch c.Registry.Driver {
	case RegistryMemory:
	case RegistryPostgres:
		if c.Registry.DSN == "" {
			return fmt.Errorf("registry.dsn is required for the postgres driver")
		}
	case RegistryRemote:
		if err := validateHTTPURL(c.Registry.BaseURL); err != nil {
			return fmt.Errorf("registry.base_url: %w", err)
		}
	default:
		return fmt.Errorf("unknown registry driver %q", c.Registry.Driver)
	}
	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		return fmt.Errorf("events.topic is required when brokers are set")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}
