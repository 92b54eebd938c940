// Package session tracks which wallets proved ownership during the current session.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/viraltok/tokmint/pkg/types"
	"github.com/viraltok/tokmint/pkg/wallet"
)

// MessagePrefix is the text a wallet signs to prove ownership.
const MessagePrefix = "Verify wallet ownership for ViralTok: "

// Verifier holds per-address verification state. A zero TTL keeps a
// verification until Invalidate or Reset.
type Verifier struct {
	mu       sync.Mutex
	verified map[solana.PublicKey]time.Time
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithTTL expires verifications after d.
func WithTTL(d time.Duration) Option {
	return func(v *Verifier) { v.ttl = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// WithLogger sets the verifier logger.
func WithLogger(log zerolog.Logger) Option {
	return func(v *Verifier) { v.log = log }
}

// NewVerifier returns an empty Verifier.
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{
		verified: make(map[solana.PublicKey]time.Time),
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Message builds the ownership challenge for instant t.
func Message(t time.Time) []byte {
	return []byte(fmt.Sprintf("%s%d", MessagePrefix, t.UnixMilli()))
}

// Verify asks signer to sign the ownership challenge unless its address is
// already verified. A declined request is a SignatureRejectedError.
func (v *Verifier) Verify(ctx context.Context, signer wallet.Signer) error {
	if signer == nil {
		return types.ErrNilSigner
	}
	pub := signer.PublicKey()
	if v.IsVerified(pub) {
		return nil
	}

	msg := Message(v.now())
	sig, err := signer.SignMessage(ctx, msg)
	if err != nil {
		if wallet.IsRejection(err) {
			return &types.SignatureRejectedError{Signer: pub.String(), Err: err}
		}
		return fmt.Errorf("sign ownership message: %w", err)
	}
	if !sig.Verify(pub, msg) {
		return fmt.Errorf("%w: signature does not match %s", types.ErrWalletUnverified, pub)
	}

	v.mu.Lock()
	v.verified[pub] = v.now()
	v.mu.Unlock()
	v.log.Info().Str("wallet", pub.String()).Msg("wallet ownership verified")
	return nil
}

// IsVerified reports whether pub has a live verification.
func (v *Verifier) IsVerified(pub solana.PublicKey) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	at, ok := v.verified[pub]
	if !ok {
		return false
	}
	if v.ttl > 0 && v.now().Sub(at) > v.ttl {
		delete(v.verified, pub)
		return false
	}
	return true
}

// Invalidate forgets pub, e.g. after a wallet switch or disconnect.
func (v *Verifier) Invalidate(pub solana.PublicKey) {
	v.mu.Lock()
	delete(v.verified, pub)
	v.mu.Unlock()
}

// Reset forgets every address.
func (v *Verifier) Reset() {
	v.mu.Lock()
	v.verified = make(map[solana.PublicKey]time.Time)
	v.mu.Unlock()
}
