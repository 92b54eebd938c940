package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ErrUserRejected is returned by signers when the owner declines a request.
var ErrUserRejected = errors.New("user rejected the request")

// Signer performs detached signatures over arbitrary messages.
type Signer interface {
	PublicKey() solana.PublicKey
	SignMessage(ctx context.Context, message []byte) (solana.Signature, error)
}

// TransactionSigner adds its signature to a transaction in place, leaving
// signatures already present untouched.
type TransactionSigner interface {
	Signer
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// SendingSigner signs and submits a transaction itself, returning the signature.
type SendingSigner interface {
	Signer
	SignAndSendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// IsRejection reports whether err means the wallet owner declined to sign.
// Browser and remote wallets report this as free text, so a few known
// phrasings are matched as well.
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserRejected) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range []string{"user rejected", "rejected the request", "user denied", "request rejected", "cancelled by user"} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// SignerIndex returns the position of pub among tx's required signers.
func SignerIndex(tx *solana.Transaction, pub solana.PublicKey) (int, error) {
	if tx == nil {
		return -1, fmt.Errorf("transaction is nil")
	}
	required := int(tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(pub) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%s is not a required signer", pub)
}

// ApplySignature stores sig in pub's signature slot, growing the signature
// list to the required length if the transaction arrived without one.
func ApplySignature(tx *solana.Transaction, pub solana.PublicKey, sig solana.Signature) error {
	idx, err := SignerIndex(tx, pub)
	if err != nil {
		return err
	}
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) < required {
		sigs := make([]solana.Signature, required)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	tx.Signatures[idx] = sig
	return nil
}

// HasSignature reports whether pub's slot holds a non-zero signature.
func HasSignature(tx *solana.Transaction, pub solana.PublicKey) bool {
	idx, err := SignerIndex(tx, pub)
	if err != nil || idx >= len(tx.Signatures) {
		return false
	}
	return !tx.Signatures[idx].IsZero()
}

func signTransactionWith(ctx context.Context, s Signer, tx *solana.Transaction) error {
	if _, err := SignerIndex(tx, s.PublicKey()); err != nil {
		return err
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	sig, err := s.SignMessage(ctx, msg)
	if err != nil {
		return err
	}
	return ApplySignature(tx, s.PublicKey(), sig)
}

// Local wraps a local private key.
type Local struct {
	key solana.PrivateKey
}

// NewLocalFromKeygen loads a solana-keygen JSON file.
func NewLocalFromKeygen(path string) (Local, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return Local{}, fmt.Errorf("load keypair: %w", err)
	}
	return Local{key: key}, nil
}

// NewLocalFromBase58 constructs a local signer from base58-encoded key.
func NewLocalFromBase58(privateKey string) (Local, error) {
	key, err := solana.PrivateKeyFromBase58(privateKey)
	if err != nil {
		return Local{}, fmt.Errorf("decode base58 key: %w", err)
	}
	return Local{key: key}, nil
}

// NewLocalFromPrivateKey constructs a local signer from existing private key.
func NewLocalFromPrivateKey(key solana.PrivateKey) Local {
	return Local{key: key}
}

// PublicKey returns the associated public key.
func (l Local) PublicKey() solana.PublicKey {
	return l.key.PublicKey()
}

// SignMessage signs the provided message bytes.
func (l Local) SignMessage(ctx context.Context, message []byte) (solana.Signature, error) {
	select {
	case <-ctx.Done():
		return solana.Signature{}, ctx.Err()
	default:
		sig, err := l.key.Sign(message)
		if err != nil {
			return solana.Signature{}, fmt.Errorf("sign message: %w", err)
		}
		return sig, nil
	}
}

// SignTransaction fills this key's signature slot.
func (l Local) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	return signTransactionWith(ctx, l, tx)
}

// RemoteSigner signs by delegating to an external signer function.
type RemoteSigner struct {
	pub      solana.PublicKey
	SignFunc func(ctx context.Context, message []byte) ([]byte, error)
}

// NewRemoteSigner constructs a remote signer.
func NewRemoteSigner(pub solana.PublicKey, fn func(ctx context.Context, message []byte) ([]byte, error)) RemoteSigner {
	return RemoteSigner{
		pub:      pub,
		SignFunc: fn,
	}
}

// PublicKey returns the attached public key.
func (r RemoteSigner) PublicKey() solana.PublicKey {
	return r.pub
}

// SignMessage obtains a signature from the remote function.
func (r RemoteSigner) SignMessage(ctx context.Context, message []byte) (solana.Signature, error) {
	if r.SignFunc == nil {
		return solana.Signature{}, fmt.Errorf("sign func not set")
	}
	raw, err := r.SignFunc(ctx, message)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("remote sign: %w", err)
	}
	if len(raw) != solana.SignatureLength {
		return solana.Signature{}, fmt.Errorf("invalid signature length: got %d", len(raw))
	}
	var sig solana.Signature
	copy(sig[:], raw)
	if !sig.Verify(r.pub, message) {
		return solana.Signature{}, fmt.Errorf("remote signer returned a signature that does not verify for %s", r.pub)
	}
	return sig, nil
}

// SignTransaction asks the remote signer for this key's signature slot.
func (r RemoteSigner) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	return signTransactionWith(ctx, r, tx)
}

var (
	_ TransactionSigner = Local{}
	_ TransactionSigner = RemoteSigner{}
)
