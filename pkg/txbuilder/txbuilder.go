package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/viraltok/tokmint/pkg/types"
	"github.com/viraltok/tokmint/pkg/wallet"
)

// ConfirmationLevel represents transaction confirmation depth.
type ConfirmationLevel string

const (
	ConfirmationProcessed ConfirmationLevel = "processed"
	ConfirmationConfirmed ConfirmationLevel = "confirmed"
	ConfirmationFinalized ConfirmationLevel = "finalized"
)

// RPC is the node surface the builder needs. *rpc.Client implements it.
type RPC interface {
	SendRawTransaction(ctx context.Context, raw []byte, opts solanarpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatus(ctx context.Context, sig solana.Signature) (*solanarpc.SignatureStatusesResult, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction, opts *solanarpc.SimulateTransactionOpts) (*solanarpc.SimulateTransactionResponse, error)
}

// Sender is an alternative broadcast path, such as the Jito block engine.
type Sender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Deserialize decodes wire bytes returned by the trade API. Any failure is a
// DeserializationError.
func Deserialize(blob []byte) (*solana.Transaction, error) {
	if len(blob) == 0 {
		return nil, &types.DeserializationError{Err: errors.New("empty transaction payload")}
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(blob))
	if err != nil {
		return nil, &types.DeserializationError{Err: err}
	}
	if len(tx.Message.AccountKeys) == 0 || tx.Message.Header.NumRequiredSignatures == 0 {
		return nil, &types.DeserializationError{Err: errors.New("transaction has no signers")}
	}
	if int(tx.Message.Header.NumRequiredSignatures) > len(tx.Message.AccountKeys) {
		return nil, &types.DeserializationError{Err: errors.New("not enough account keys for required signatures")}
	}
	return tx, nil
}

// RequireSigners checks that every key is among the transaction's required signers.
func RequireSigners(tx *solana.Transaction, keys ...solana.PublicKey) error {
	for _, k := range keys {
		if _, err := wallet.SignerIndex(tx, k); err != nil {
			return fmt.Errorf("%w: %s", types.ErrMissingSigner, k)
		}
	}
	return nil
}

// SignPartial fills the signature slots of the given keys and leaves every
// other slot untouched.
func SignPartial(tx *solana.Transaction, keys ...solana.PrivateKey) error {
	if tx == nil {
		return fmt.Errorf("transaction is nil")
	}
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	for _, k := range keys {
		sig, err := k.Sign(messageBytes)
		if err != nil {
			return fmt.Errorf("sign message for %s: %w", k.PublicKey(), err)
		}
		if err := wallet.ApplySignature(tx, k.PublicKey(), sig); err != nil {
			return err
		}
	}
	return nil
}

// VerifySignatures checks that every required slot holds a valid signature.
func VerifySignatures(tx *solana.Transaction) error {
	if tx == nil {
		return fmt.Errorf("transaction is nil")
	}
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) < required {
		return fmt.Errorf("expected %d signatures, got %d", required, len(tx.Signatures))
	}
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	for i := 0; i < required; i++ {
		pk := tx.Message.AccountKeys[i]
		if tx.Signatures[i].IsZero() {
			return fmt.Errorf("missing signature for %s", pk)
		}
		if !tx.Signatures[i].Verify(pk, messageBytes) {
			return fmt.Errorf("invalid signature for %s", pk)
		}
	}
	return nil
}

// Confirmation is the observed status of a broadcast transaction.
type Confirmation struct {
	Signature solana.Signature
	Slot      uint64
	Status    solanarpc.ConfirmationStatusType
}

// Builder broadcasts signed transactions and waits for them to land.
type Builder struct {
	client        RPC
	level         ConfirmationLevel
	skipPreflight bool
	maxRetries    uint
	sender        Sender
	pollInterval  time.Duration
	log           zerolog.Logger
}

// NewBuilder constructs a builder. Preflight is skipped and the node retries
// the send up to three times unless configured otherwise.
func NewBuilder(client RPC, level ConfirmationLevel) *Builder {
	if level == "" {
		level = ConfirmationConfirmed
	}
	return &Builder{
		client:        client,
		level:         level,
		skipPreflight: true,
		maxRetries:    3,
		pollInterval:  500 * time.Millisecond,
		log:           zerolog.Nop(),
	}
}

// WithSkipPreflight configures whether to skip preflight.
func (b *Builder) WithSkipPreflight(skip bool) *Builder {
	b.skipPreflight = skip
	return b
}

// WithMaxRetries sets the node-side maxRetries for sendTransaction.
func (b *Builder) WithMaxRetries(n uint) *Builder {
	b.maxRetries = n
	return b
}

// WithSender routes broadcasts through s instead of the RPC node.
// Pass nil to use standard RPC.
func (b *Builder) WithSender(s Sender) *Builder {
	b.sender = s
	return b
}

// WithPollInterval sets the signature status poll interval.
func (b *Builder) WithPollInterval(d time.Duration) *Builder {
	if d > 0 {
		b.pollInterval = d
	}
	return b
}

// WithLogger sets the builder logger.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// HasSender reports whether an alternative broadcast path is configured.
func (b *Builder) HasSender() bool {
	return b.sender != nil
}

// Broadcast sends a fully signed transaction. Failures are BroadcastErrors.
func (b *Builder) Broadcast(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if tx == nil {
		return solana.Signature{}, &types.BroadcastError{Err: errors.New("transaction is nil")}
	}
	if b.sender != nil {
		sig, err := b.sender.SendTransaction(ctx, tx)
		if err != nil {
			return solana.Signature{}, &types.BroadcastError{Err: err}
		}
		return sig, nil
	}
	if b.client == nil {
		return solana.Signature{}, &types.BroadcastError{Err: types.ErrNilRPC}
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, &types.BroadcastError{Err: fmt.Errorf("marshal transaction: %w", err)}
	}
	maxRetries := b.maxRetries
	opts := solanarpc.TransactionOpts{
		SkipPreflight:       b.skipPreflight,
		PreflightCommitment: toCommitment(b.level),
		MaxRetries:          &maxRetries,
	}
	sig, err := b.client.SendRawTransaction(ctx, raw, opts)
	if err != nil {
		return solana.Signature{}, &types.BroadcastError{Err: err}
	}
	b.log.Debug().Str("signature", sig.String()).Msg("transaction sent")
	return sig, nil
}

// Confirm polls the signature status until the configured level is reached or
// ctx ends. A landed transaction carrying an error yields a ConfirmationError.
func (b *Builder) Confirm(ctx context.Context, sig solana.Signature) (*Confirmation, error) {
	if b.client == nil {
		return nil, types.ErrNilRPC
	}

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		status, err := b.client.GetSignatureStatus(ctx, sig)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				b.log.Debug().Str("signature", sig.String()).Err(err).Msg("signature status poll failed")
			}
		case status != nil:
			conf := &Confirmation{Signature: sig, Slot: status.Slot, Status: status.ConfirmationStatus}
			if status.Err != nil {
				return conf, types.NewConfirmationError(sig.String(), status.Err)
			}
			if reached(status.ConfirmationStatus, b.level) {
				return conf, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w for %s: %w", types.ErrConfirmationTimeout, sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Simulate runs tx against the node without signature verification.
func (b *Builder) Simulate(ctx context.Context, tx *solana.Transaction) (*solanarpc.SimulateTransactionResponse, error) {
	if b.client == nil {
		return nil, types.ErrNilRPC
	}
	opts := &solanarpc.SimulateTransactionOpts{
		SigVerify:  false,
		Commitment: toCommitment(b.level),
	}
	return b.client.SimulateTransaction(ctx, tx, opts)
}

func reached(status solanarpc.ConfirmationStatusType, level ConfirmationLevel) bool {
	switch level {
	case ConfirmationProcessed:
		return true
	case ConfirmationFinalized:
		return status == solanarpc.ConfirmationStatusFinalized
	default:
		return status == solanarpc.ConfirmationStatusConfirmed ||
			status == solanarpc.ConfirmationStatusFinalized
	}
}

func toCommitment(level ConfirmationLevel) solanarpc.CommitmentType {
	switch level {
	case ConfirmationProcessed:
		return solanarpc.CommitmentProcessed
	case ConfirmationFinalized:
		return solanarpc.CommitmentFinalized
	default:
		return solanarpc.CommitmentConfirmed
	}
}
