// Package mint runs the token mint pipeline: vanity address, asset upload,
// transaction request, two-party signing, broadcast, confirmation and
// registry persistence.
package mint

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/viraltok/tokmint/pkg/config"
	"github.com/viraltok/tokmint/pkg/events"
	"github.com/viraltok/tokmint/pkg/pda"
	"github.com/viraltok/tokmint/pkg/registry"
	"github.com/viraltok/tokmint/pkg/session"
	"github.com/viraltok/tokmint/pkg/tradeapi"
	"github.com/viraltok/tokmint/pkg/txbuilder"
	"github.com/viraltok/tokmint/pkg/types"
	"github.com/viraltok/tokmint/pkg/upload"
	"github.com/viraltok/tokmint/pkg/vanity"
	"github.com/viraltok/tokmint/pkg/wallet"
)

// Uploader stores the image and metadata document.
type Uploader interface {
	Upload(ctx context.Context, req upload.Request) (*upload.Result, error)
}

// TransactionRequester obtains unsigned transaction bytes.
type TransactionRequester interface {
	RequestTransaction(ctx context.Context, req tradeapi.Request) ([]byte, error)
}

// Chain broadcasts signed transactions and waits for them to land.
// *txbuilder.Builder implements it.
type Chain interface {
	Broadcast(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	Confirm(ctx context.Context, sig solana.Signature) (*txbuilder.Confirmation, error)
}

// Deps are the collaborators of an Orchestrator. Registry, Events and
// Verifier are optional.
type Deps struct {
	Uploader Uploader
	Trade    TransactionRequester
	Chain    Chain
	Registry registry.Saver
	Events   events.Publisher
	Verifier *session.Verifier
}

// TradeDefaults fill fields a Request leaves zero.
type TradeDefaults struct {
	Slippage    int
	PriorityFee decimal.Decimal
	Pool        string
}

// DefaultTradeDefaults are 10% slippage, a 0.0005 SOL priority fee and the pump pool.
func DefaultTradeDefaults() TradeDefaults {
	return TradeDefaults{
		Slippage:    10,
		PriorityFee: decimal.RequireFromString("0.0005"),
		Pool:        "pump",
	}
}

// Orchestrator runs mint and trade pipelines. It holds no per-run state and is
// safe for concurrent use.
type Orchestrator struct {
	deps                Deps
	profile             config.VanityProfile
	trade               TradeDefaults
	confirmationTimeout time.Duration
	onStatus            StatusFunc
	log                 zerolog.Logger
	now                 func() time.Time
	search              func(context.Context, vanity.Options) (*vanity.Result, error)
	randomKey           func() (solana.PrivateKey, error)
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithProfile sets the default vanity profile.
func WithProfile(p config.VanityProfile) Option {
	return func(o *Orchestrator) { o.profile = p }
}

// WithTradeDefaults overrides slippage, priority fee and pool defaults.
func WithTradeDefaults(d TradeDefaults) Option {
	return func(o *Orchestrator) { o.trade = d }
}

// WithConfirmationTimeout bounds broadcast plus confirmation.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.confirmationTimeout = d }
}

// WithStatus registers the status callback.
func WithStatus(fn StatusFunc) Option {
	return func(o *Orchestrator) { o.onStatus = fn }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithKeySearch replaces the vanity search, e.g. with a deterministic one in tests.
func WithKeySearch(fn func(context.Context, vanity.Options) (*vanity.Result, error)) Option {
	return func(o *Orchestrator) { o.search = fn }
}

// New validates deps and builds an Orchestrator.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Uploader == nil:
		return nil, errors.New("mint: uploader is required")
	case deps.Trade == nil:
		return nil, errors.New("mint: transaction requester is required")
	case deps.Chain == nil:
		return nil, errors.New("mint: chain is required")
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	o := &Orchestrator{
		deps:                deps,
		profile:             config.DefaultProfiles()[config.ProfileRegular],
		trade:               DefaultTradeDefaults(),
		confirmationTimeout: 60 * time.Second,
		log:                 zerolog.Nop(),
		now:                 time.Now,
		search:              vanity.Search,
		randomKey:           solana.NewRandomPrivateKey,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Request describes a token to mint.
type Request struct {
	Name        string
	Symbol      string
	Description string

	Image            []byte
	ImageName        string
	ImageContentType string

	Twitter  string
	Telegram string
	Website  string

	VideoURL string

	// InitialBuy is the SOL spent buying the new token in the same transaction.
	InitialBuy decimal.Decimal
	// Zero values fall back to the orchestrator's TradeDefaults.
	Slippage    int
	PriorityFee decimal.Decimal
	Pool        string

	// Profile overrides the orchestrator's vanity profile for this run.
	Profile *config.VanityProfile
}

// MaxImageSize is the largest accepted token image.
const MaxImageSize = 4 << 20

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Validate checks the request before any network call.
func (r Request) Validate() error {
	if err := types.ValidateTokenName(r.Name); err != nil {
		return err
	}
	if err := types.ValidateSymbol(r.Symbol); err != nil {
		return err
	}
	if len(r.Image) == 0 {
		return types.NewValidationError("image", "is required")
	}
	if len(r.Image) > MaxImageSize {
		return types.NewValidationError("image", "is too large, maximum size is 4MB")
	}
	contentType := r.ImageContentType
	if contentType == "" {
		contentType = http.DetectContentType(r.Image)
	}
	if !imageTypes[contentType] {
		return types.NewValidationError("image", fmt.Sprintf("unsupported type %q, use JPG, PNG, GIF or WebP", contentType))
	}
	for field, v := range map[string]string{"twitter": r.Twitter, "telegram": r.Telegram, "website": r.Website, "videoUrl": r.VideoURL} {
		if err := types.ValidateOptionalURL(field, v); err != nil {
			return err
		}
	}
	if err := types.ValidateAmount("initialBuy", r.InitialBuy); err != nil {
		return err
	}
	return types.ValidateSlippage(r.Slippage)
}

// VanitySummary describes how the mint address was obtained.
type VanitySummary struct {
	Outcome    vanity.Outcome
	Suffix     string
	MatchedLen int
	Attempts   uint64
	Duration   time.Duration
	// Fallback is set when the address is random because the search timed out.
	Fallback bool
}

// Result is a minted token. Warnings hold non-fatal failures such as
// *types.PersistenceWarning.
type Result struct {
	Record       *registry.Record
	Signature    solana.Signature
	Confirmation *txbuilder.Confirmation
	Asset        *upload.Result
	Vanity       VanitySummary
	Warnings     []error
}

var videoIDPattern = regexp.MustCompile(`video/(\d+)`)

// VideoID extracts the numeric id from a video URL, or "".
func VideoID(url string) string {
	if m := videoIDPattern.FindStringSubmatch(url); len(m) > 1 {
		return m[1]
	}
	return ""
}

// Mint runs the full pipeline for req with signer as the paying wallet.
//
// The mint keypair signs before the wallet is asked. Once the transaction is
// handed to the network the remaining steps run detached from ctx, bounded by
// the confirmation timeout; cancelling ctx then only silences status updates.
func (o *Orchestrator) Mint(ctx context.Context, req Request, signer wallet.Signer) (*Result, error) {
	t := newTracker(ctx, o.onStatus)
	if signer == nil {
		return nil, t.fail(types.ErrNilSigner)
	}
	if err := req.Validate(); err != nil {
		return nil, t.fail(err)
	}
	user := signer.PublicKey()
	log := o.log.With().Str("wallet", user.String()).Str("symbol", req.Symbol).Logger()
	res := &Result{}

	if o.deps.Verifier != nil {
		t.enter(StageVerifyingWallet, "Verifying wallet ownership...")
		if err := o.deps.Verifier.Verify(ctx, signer); err != nil {
			return nil, t.fail(err)
		}
	}

	t.enter(StageGeneratingAddress, "Generating token address...")
	mintKey, summary, err := o.generateAddress(ctx, req, t)
	if err != nil {
		return nil, t.fail(err)
	}
	res.Vanity = summary
	if summary.Fallback {
		res.Warnings = append(res.Warnings, &types.SearchTimeoutError{Suffix: summary.Suffix, Attempts: summary.Attempts})
	}
	mint := mintKey.PublicKey()
	log = log.With().Str("mint", mint.String()).Logger()
	log.Info().Str("outcome", summary.Outcome.String()).Uint64("attempts", summary.Attempts).Msg("mint address ready")

	t.enter(StageUploadingAssets, "Uploading token metadata and images...")
	description := req.Description
	if description == "" {
		description = "TikTok token for: " + req.VideoURL
	}
	asset, err := o.deps.Uploader.Upload(ctx, upload.Request{
		Image:       req.Image,
		FileName:    req.ImageName,
		ContentType: req.ImageContentType,
		Name:        req.Name,
		Symbol:      req.Symbol,
		Description: description,
		Twitter:     req.Twitter,
		Telegram:    req.Telegram,
		Website:     req.Website,
	})
	if err != nil {
		return nil, t.fail(err)
	}
	res.Asset = asset

	t.enter(StageRequestingTransaction, "Requesting transaction from PumpPortal...")
	meta := &tradeapi.TokenMetadata{Name: req.Name, Symbol: req.Symbol, URI: asset.MetadataURI}
	if asset.Metadata.Name != "" {
		meta.Name = asset.Metadata.Name
	}
	if asset.Metadata.Symbol != "" {
		meta.Symbol = asset.Metadata.Symbol
	}
	tx, err := o.requestTransaction(ctx, tradeapi.Request{
		PublicKey:        user,
		Action:           tradeapi.ActionCreate,
		Mint:             mint,
		TokenMetadata:    meta,
		DenominatedInSol: true,
		Amount:           req.InitialBuy,
		Slippage:         o.slippage(req.Slippage),
		PriorityFee:      o.priorityFee(req.PriorityFee),
		Pool:             o.pool(req.Pool),
	}, user, mint)
	if err != nil {
		return nil, t.fail(err)
	}
	if accts, err := pda.ForMint(mint); err == nil {
		log.Debug().
			Str("bonding_curve", accts.BondingCurve.String()).
			Str("associated_bonding_curve", accts.AssociatedBondingCurve.String()).
			Msg("derived pump accounts")
	}

	t.enter(StageSigningWithMint, "Signing transaction with mintKeypair...")
	if err := txbuilder.SignPartial(tx, mintKey); err != nil {
		return nil, t.fail(err)
	}

	t.enter(StageSigningWithWallet, "Please sign transaction with your wallet...")
	sig, sent, err := o.signWithWallet(ctx, tx, signer)
	if err != nil {
		return nil, t.fail(err)
	}

	dctx, cancel := o.detach(ctx)
	defer cancel()

	if sent {
		t.enter(StageBroadcasting, "Transaction sent via wallet")
	} else {
		t.enter(StageBroadcasting, "Sending transaction to Solana network...")
		sig, err = o.deps.Chain.Broadcast(dctx, tx)
		if err != nil {
			return nil, t.fail(err)
		}
	}
	res.Signature = sig
	log = log.With().Str("signature", sig.String()).Logger()

	t.enter(StageConfirming, "Transaction sent! Waiting for confirmation...")
	conf, err := o.deps.Chain.Confirm(dctx, sig)
	if err != nil {
		return nil, t.fail(err)
	}
	res.Confirmation = conf
	log.Info().Msg("transaction confirmed")

	t.enter(StagePersisting, "Transaction confirmed successfully!")
	rec := registry.NewRecord(o.now())
	rec.Address = mint.String()
	rec.Name = req.Name
	rec.Symbol = req.Symbol
	rec.ImageURL = asset.ImageURL
	rec.MetadataURI = asset.MetadataURI
	rec.Creator = user.String()
	rec.VideoURL = req.VideoURL
	rec.VideoID = VideoID(req.VideoURL)
	rec.Signature = sig.String()
	res.Record = rec

	if o.deps.Registry != nil {
		if err := o.deps.Registry.Save(dctx, rec); err != nil {
			warn := &types.PersistenceWarning{Address: rec.Address, Err: err}
			res.Warnings = append(res.Warnings, warn)
			log.Warn().Err(err).Msg("failed to save token info")
		}
	}
	if err := o.deps.Events.PublishMinted(dctx, mintedEvent(rec)); err != nil {
		res.Warnings = append(res.Warnings, fmt.Errorf("publish minted event: %w", err))
		log.Warn().Err(err).Msg("failed to publish minted event")
	}

	t.enter(StageDone, "Token created")
	return res, nil
}

// generateAddress runs the vanity search and applies the profile's timeout policy.
func (o *Orchestrator) generateAddress(ctx context.Context, req Request, t *tracker) (solana.PrivateKey, VanitySummary, error) {
	profile := o.profile
	if req.Profile != nil {
		profile = *req.Profile
	}
	if !vanity.ValidSuffix(profile.Suffix, profile.CaseSensitive) {
		return nil, VanitySummary{Suffix: profile.Suffix},
			types.NewValidationError("suffix", fmt.Sprintf("%q can never match a base58 address", profile.Suffix))
	}
	difficulty := float64(vanity.EstimateDifficulty(len(profile.Suffix), profile.CaseSensitive))

	vr, err := o.search(ctx, vanity.Options{
		Suffix:        profile.Suffix,
		Timeout:       profile.Timeout,
		Workers:       profile.Workers,
		CaseSensitive: profile.CaseSensitive,
		BestEffort:    profile.BestEffort,
		OnProgress: func(p vanity.Progress) {
			frac := 0.0
			if difficulty > 0 {
				frac = math.Min(float64(p.Attempts)/difficulty, 0.99)
			}
			t.progress(p.String(), stageProgress[StageGeneratingAddress]+frac*(stageProgress[StageUploadingAssets]-stageProgress[StageGeneratingAddress]))
		},
	})
	summary := VanitySummary{Suffix: profile.Suffix}
	if vr != nil {
		summary.Outcome = vr.Outcome
		summary.MatchedLen = vr.MatchedLen
		summary.Attempts = vr.Attempts
		summary.Duration = vr.Duration
	}
	if err != nil {
		return nil, summary, err
	}
	if vr.Found() {
		return vr.PrivateKey, summary, nil
	}
	if !profile.FallbackRandom {
		return nil, summary, &types.SearchTimeoutError{Suffix: profile.Suffix, Attempts: summary.Attempts}
	}

	key, err := o.randomKey()
	if err != nil {
		return nil, summary, fmt.Errorf("generate fallback keypair: %w", err)
	}
	summary.Fallback = true
	o.log.Warn().Str("suffix", profile.Suffix).Uint64("attempts", summary.Attempts).Msg("vanity search timed out, using random address")
	return key, summary, nil
}

// requestTransaction fetches and decodes the unsigned transaction and checks
// that every expected party must sign it.
func (o *Orchestrator) requestTransaction(ctx context.Context, req tradeapi.Request, signers ...solana.PublicKey) (*solana.Transaction, error) {
	blob, err := o.deps.Trade.RequestTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	tx, err := txbuilder.Deserialize(blob)
	if err != nil {
		return nil, err
	}
	if err := txbuilder.RequireSigners(tx, signers...); err != nil {
		return nil, &types.DeserializationError{Err: err}
	}
	return tx, nil
}

// signWithWallet asks the wallet to sign. A wallet that can send is preferred;
// sent reports whether it already broadcast the transaction.
func (o *Orchestrator) signWithWallet(ctx context.Context, tx *solana.Transaction, signer wallet.Signer) (sig solana.Signature, sent bool, err error) {
	switch s := signer.(type) {
	case wallet.SendingSigner:
		sig, err = s.SignAndSendTransaction(ctx, tx)
		if err != nil {
			return sig, false, walletError(signer, err, true)
		}
		return sig, true, nil
	case wallet.TransactionSigner:
		if err := s.SignTransaction(ctx, tx); err != nil {
			return sig, false, walletError(signer, err, false)
		}
		if err := txbuilder.VerifySignatures(tx); err != nil {
			return sig, false, fmt.Errorf("wallet returned an incomplete transaction: %w", err)
		}
		return tx.Signatures[0], false, nil
	default:
		return sig, false, types.ErrSignerUnsupported
	}
}

func walletError(signer wallet.Signer, err error, sending bool) error {
	if wallet.IsRejection(err) {
		return &types.SignatureRejectedError{Signer: signer.PublicKey().String(), Err: err}
	}
	if sending {
		return &types.BroadcastError{Err: err}
	}
	return fmt.Errorf("wallet sign: %w", err)
}

func (o *Orchestrator) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if o.confirmationTimeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, o.confirmationTimeout)
}

func (o *Orchestrator) slippage(v int) int {
	if v == 0 {
		return o.trade.Slippage
	}
	return v
}

func (o *Orchestrator) priorityFee(v decimal.Decimal) decimal.Decimal {
	if v.IsZero() {
		return o.trade.PriorityFee
	}
	return v
}

func (o *Orchestrator) pool(v string) string {
	if v == "" {
		return o.trade.Pool
	}
	return v
}

func mintedEvent(r *registry.Record) events.MintedEvent {
	return events.MintedEvent{
		ID:          r.ID.String(),
		Address:     r.Address,
		Name:        r.Name,
		Symbol:      r.Symbol,
		Creator:     r.Creator,
		Signature:   r.Signature,
		MetadataURI: r.MetadataURI,
		ImageURL:    r.ImageURL,
		VideoURL:    r.VideoURL,
		VideoID:     r.VideoID,
		Timestamp:   r.Timestamp,
	}
}
