package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

// twoSignerTx requires payer and other to sign, in that order.
func twoSignerTx(t *testing.T, payer, other solana.PublicKey) *solana.Transaction {
	t.Helper()
	ix := system.NewTransferInstruction(1, other, payer).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{}, solana.TransactionPayer(payer))
	require.NoError(t, err)
	require.Equal(t, uint8(2), tx.Message.Header.NumRequiredSignatures)
	return tx
}

func TestLocalSignTransactionFillsOwnSlot(t *testing.T) {
	payer, mint := newKey(t), newKey(t)
	tx := twoSignerTx(t, payer.PublicKey(), mint.PublicKey())

	local := NewLocalFromPrivateKey(mint)
	require.NoError(t, local.SignTransaction(context.Background(), tx))

	require.Len(t, tx.Signatures, 2)
	assert.True(t, HasSignature(tx, mint.PublicKey()))
	assert.False(t, HasSignature(tx, payer.PublicKey()))

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	idx, err := SignerIndex(tx, mint.PublicKey())
	require.NoError(t, err)
	assert.True(t, tx.Signatures[idx].Verify(mint.PublicKey(), msg))
}

func TestSignTransactionRejectsNonSigner(t *testing.T) {
	payer, mint, stranger := newKey(t), newKey(t), newKey(t)
	tx := twoSignerTx(t, payer.PublicKey(), mint.PublicKey())

	err := NewLocalFromPrivateKey(stranger).SignTransaction(context.Background(), tx)
	require.Error(t, err)
	assert.Empty(t, tx.Signatures)
}

func TestRemoteSignerVerifiesSignature(t *testing.T) {
	owner, impostor := newKey(t), newKey(t)
	r := NewRemoteSigner(owner.PublicKey(), func(_ context.Context, msg []byte) ([]byte, error) {
		sig, err := impostor.Sign(msg)
		return sig[:], err
	})
	_, err := r.SignMessage(context.Background(), []byte("hello"))
	require.Error(t, err)

	r = NewRemoteSigner(owner.PublicKey(), func(_ context.Context, msg []byte) ([]byte, error) {
		return []byte{1, 2, 3}, nil
	})
	_, err = r.SignMessage(context.Background(), []byte("hello"))
	require.Error(t, err)
}

func TestHTTPSigner(t *testing.T) {
	owner := newKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req signRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, owner.PublicKey().String(), req.PublicKey)
		msg, err := base64.StdEncoding.DecodeString(req.Message)
		require.NoError(t, err)
		sig, err := owner.Sign(msg)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(signResponse{Signature: sig.String()})
	}))
	defer srv.Close()

	payer, mint := owner, newKey(t)
	tx := twoSignerTx(t, payer.PublicKey(), mint.PublicKey())

	signer := NewHTTPSigner(srv.URL, owner.PublicKey(), srv.Client())
	require.NoError(t, signer.SignTransaction(context.Background(), tx))
	assert.True(t, HasSignature(tx, owner.PublicKey()))
}

func TestHTTPSignerRejection(t *testing.T) {
	owner := newKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"User rejected the request."}`))
	}))
	defer srv.Close()

	_, err := NewHTTPSigner(srv.URL, owner.PublicKey(), srv.Client()).SignMessage(context.Background(), []byte("m"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserRejected)
	assert.True(t, IsRejection(err))
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(errors.New("WalletSignTransactionError: User rejected the request.")))
	assert.True(t, IsRejection(errors.New("Transaction cancelled by user")))
	assert.False(t, IsRejection(errors.New("blockhash not found")))
	assert.False(t, IsRejection(nil))
}
