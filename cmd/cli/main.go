package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/viraltok/tokmint/pkg/config"
	"github.com/viraltok/tokmint/pkg/events"
	"github.com/viraltok/tokmint/pkg/jito"
	"github.com/viraltok/tokmint/pkg/mint"
	"github.com/viraltok/tokmint/pkg/registry"
	"github.com/viraltok/tokmint/pkg/registry/memory"
	"github.com/viraltok/tokmint/pkg/registry/postgres"
	"github.com/viraltok/tokmint/pkg/registry/remote"
	tokrpc "github.com/viraltok/tokmint/pkg/rpc"
	"github.com/viraltok/tokmint/pkg/session"
	"github.com/viraltok/tokmint/pkg/tradeapi"
	"github.com/viraltok/tokmint/pkg/txbuilder"
	"github.com/viraltok/tokmint/pkg/upload"
	"github.com/viraltok/tokmint/pkg/wallet"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalOpts struct {
	configPath     string
	rpcURL         string
	commitment     string
	keypairPath    string
	signerEndpoint string
	signerPubkey   string
	retryAttempts  int
	rateLimitRPS   float64
	logLevel       string
	timeoutSec     int
	jito           bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}

	root := &cobra.Command{
		Use:           "tokmint",
		Short:         "Mint and trade video tokens on pump.fun",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&opts.rpcURL, "rpc-url", "", "RPC endpoint (overrides config)")
	root.PersistentFlags().StringVar(&opts.commitment, "commitment", "", "confirmation level (processed|confirmed|finalized)")
	root.PersistentFlags().StringVar(&opts.keypairPath, "keypair", "", "path to solana-keygen json for the paying wallet")
	root.PersistentFlags().StringVar(&opts.signerEndpoint, "signer-endpoint", "", "remote signing service URL")
	root.PersistentFlags().StringVar(&opts.signerPubkey, "signer-pubkey", "", "wallet address served by --signer-endpoint")
	root.PersistentFlags().IntVar(&opts.retryAttempts, "retry-attempts", 0, "RPC retry attempts (0 keeps config)")
	root.PersistentFlags().Float64Var(&opts.rateLimitRPS, "rate-limit-rps", -1, "RPC rate limit (0 disables, negative keeps config)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	root.PersistentFlags().IntVar(&opts.timeoutSec, "timeout-sec", 0, "RPC timeout seconds (0 keeps config)")
	root.PersistentFlags().BoolVar(&opts.jito, "jito", false, "broadcast through the Jito block engine")

	root.AddCommand(
		newConfigCmd(opts),
		newVanityCmd(opts),
		newUploadCmd(opts),
		newMintCmd(opts),
		newTradeCmd(opts),
		newRegistryCmd(opts),
	)
	return root
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts *globalOpts) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.rpcURL != "" {
		cfg.RPC.RPCURL = opts.rpcURL
	}
	if opts.commitment != "" {
		cfg.RPC.Commitment = opts.commitment
	}
	if opts.retryAttempts > 0 {
		cfg.RPC.Retry.MaxAttempts = opts.retryAttempts
	}
	if opts.rateLimitRPS >= 0 {
		cfg.RPC.RateLimit.RPS = opts.rateLimitRPS
	}
	if opts.timeoutSec > 0 {
		cfg.RPC.Timeout = time.Duration(opts.timeoutSec) * time.Second
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.jito {
		cfg.Jito.Enabled = true
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, level string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
		Level(parseLogLevel(level)).
		With().Timestamp().Logger()
}

func parseLogLevel(lvl string) zerolog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// runtimeDeps is everything a command may need, built from one config.
type runtimeDeps struct {
	cfg      *config.Config
	log      zerolog.Logger
	rpc      *tokrpc.Client
	builder  *txbuilder.Builder
	uploader *upload.Client
	trade    *tradeapi.Client
	closers  []func()
}

func (d *runtimeDeps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func newRuntime(cmd *cobra.Command, opts *globalOpts) (*runtimeDeps, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log := newLogger(cmd, cfg.LogLevel)

	rpcCfg := cfg.RPC
	rpcCfg.Logger = log.With().Str("component", "rpc").Logger()
	client := tokrpc.NewClient(rpcCfg)

	builder := txbuilder.NewBuilder(client, txbuilder.ConfirmationLevel(cfg.RPC.Commitment)).
		WithMaxRetries(cfg.RPC.MaxSendRetries).
		WithLogger(log)
	if cfg.Jito.Enabled {
		sender := jito.NewClient(cfg.Jito.Endpoints, cfg.Jito.UUID).
			WithLogger(log.With().Str("component", "jito").Logger())
		builder = builder.WithSender(sender)
	}

	uploader := upload.NewClientFromConfig(cfg.Upload, upload.WithLogger(log.With().Str("component", "upload").Logger()))
	trade := tradeapi.NewClient(cfg.Trade.Endpoint, cfg.Trade.Timeout, log.With().Str("component", "tradeapi").Logger()).
		WithAPIKey(cfg.Trade.APIKey)

	return &runtimeDeps{
		cfg:      cfg,
		log:      log,
		rpc:      client,
		builder:  builder,
		uploader: uploader,
		trade:    trade,
	}, nil
}

// signer resolves the paying wallet from --keypair or --signer-endpoint.
func (d *runtimeDeps) signer(opts *globalOpts) (wallet.Signer, error) {
	switch {
	case opts.keypairPath != "":
		return wallet.NewLocalFromKeygen(opts.keypairPath)
	case opts.signerEndpoint != "":
		pub, err := parsePubkey("--signer-pubkey", opts.signerPubkey)
		if err != nil {
			return nil, err
		}
		return wallet.NewHTTPSigner(opts.signerEndpoint, pub, &http.Client{Timeout: 2 * time.Minute}), nil
	default:
		return nil, fmt.Errorf("a wallet is required (use --keypair or --signer-endpoint)")
	}
}

// openRegistry connects the configured registry driver.
func (d *runtimeDeps) openRegistry(ctx context.Context) (registry.Saver, registry.Lister, registry.Store, error) {
	switch d.cfg.Registry.Driver {
	case config.RegistryPostgres:
		pool, err := postgres.NewPool(ctx, d.cfg.Registry.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		d.closers = append(d.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, nil, nil, err
		}
		s := postgres.NewStore(pool)
		return s, s, s, nil
	case config.RegistryRemote:
		c := remote.New(d.cfg.Registry.BaseURL, d.cfg.Registry.Timeout,
			remote.WithLogger(d.log.With().Str("component", "registry").Logger()))
		return c, c, nil, nil
	default:
		s := memory.New()
		return s, s, s, nil
	}
}

func (d *runtimeDeps) publisher() (events.Publisher, error) {
	if len(d.cfg.Events.Brokers) == 0 {
		return events.Nop{}, nil
	}
	p, err := events.NewKafkaPublisher(d.cfg.Events.Brokers, d.cfg.Events.Topic, d.log.With().Str("component", "events").Logger())
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, func() {
		if err := p.Close(); err != nil {
			d.log.Warn().Err(err).Msg("close kafka writer")
		}
	})
	return p, nil
}

// orchestrator wires a mint.Orchestrator. A nil chain uses the builder.
func (d *runtimeDeps) orchestrator(ctx context.Context, cmd *cobra.Command, profile string, chain mint.Chain, persist bool) (*mint.Orchestrator, error) {
	p, err := d.cfg.Profile(profile)
	if err != nil {
		return nil, err
	}
	fee, err := d.cfg.Trade.PriorityFeeDecimal()
	if err != nil {
		return nil, err
	}
	if chain == nil {
		chain = d.builder
	}

	deps := mint.Deps{
		Uploader: d.uploader,
		Trade:    d.trade,
		Chain:    chain,
	}
	if persist {
		saver, _, _, err := d.openRegistry(ctx)
		if err != nil {
			return nil, err
		}
		pub, err := d.publisher()
		if err != nil {
			return nil, err
		}
		deps.Registry = saver
		deps.Events = pub
	}
	if d.cfg.VerifyWallet {
		deps.Verifier = session.NewVerifier(session.WithLogger(d.log))
	}

	return mint.New(deps,
		mint.WithProfile(p),
		mint.WithTradeDefaults(mint.TradeDefaults{
			Slippage:    d.cfg.Trade.Slippage,
			PriorityFee: fee,
			Pool:        d.cfg.Trade.Pool,
		}),
		mint.WithConfirmationTimeout(d.cfg.ConfirmationTimeout),
		mint.WithLogger(d.log),
		mint.WithStatus(printStatus(cmd)),
	)
}

func newConfigCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "network=%s\nrpc=%s\ncommitment=%s\n", cfg.RPC.Network, cfg.RPC.ResolveRPCURL(), cfg.RPC.Commitment)
			fmt.Fprintf(out, "jito=%t\ntrade=%s pool=%s slippage=%d priority_fee=%s\n",
				cfg.Jito.Enabled, cfg.Trade.Endpoint, cfg.Trade.Pool, cfg.Trade.Slippage, cfg.Trade.PriorityFee)
			fmt.Fprintf(out, "registry=%s\nvanity_profile=%s\n", cfg.Registry.Driver, cfg.VanityProfile)
			for _, name := range sortedKeys(cfg.Profiles) {
				p := cfg.Profiles[name]
				fmt.Fprintf(out, "  %s: suffix=%q timeout=%s best_effort=%t fallback_random=%t\n",
					name, p.Suffix, p.Timeout, p.BestEffort, p.FallbackRandom)
			}
			return nil
		},
	}
}
