package txbuilder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viraltok/tokmint/pkg/types"
)

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

// mintTx mimics a create transaction: the user pays and the mint co-signs.
func mintTx(t *testing.T, user, mint solana.PublicKey) *solana.Transaction {
	t.Helper()
	ix := system.NewTransferInstruction(1, mint, user).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{}, solana.TransactionPayer(user))
	require.NoError(t, err)
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	return tx
}

type fakeRPC struct {
	mu       sync.Mutex
	sent     [][]byte
	opts     []solanarpc.TransactionOpts
	sendErr  error
	statuses []*solanarpc.SignatureStatusesResult
	polls    int
}

func (f *fakeRPC) SendRawTransaction(_ context.Context, raw []byte, opts solanarpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sent = append(f.sent, raw)
	f.opts = append(f.opts, opts)
	tx, err := Deserialize(raw)
	if err != nil {
		return solana.Signature{}, err
	}
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatus(_ context.Context, _ solana.Signature) (*solanarpc.SignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.statuses) == 0 {
		return nil, nil
	}
	s := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return s, nil
}

func (f *fakeRPC) SimulateTransaction(_ context.Context, _ *solana.Transaction, _ *solanarpc.SimulateTransactionOpts) (*solanarpc.SimulateTransactionResponse, error) {
	return &solanarpc.SimulateTransactionResponse{}, nil
}

func TestDeserializeRoundTripsWireBytes(t *testing.T) {
	user, mint := newKey(t), newKey(t)
	raw, err := mintTx(t, user.PublicKey(), mint.PublicKey()).MarshalBinary()
	require.NoError(t, err)

	tx, err := Deserialize(raw)
	require.NoError(t, err)
	assert.NoError(t, RequireSigners(tx, user.PublicKey(), mint.PublicKey()))
	assert.ErrorIs(t, RequireSigners(tx, newKey(t).PublicKey()), types.ErrMissingSigner)
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	for _, blob := range [][]byte{nil, {}, []byte("<html>rate limited</html>"), {0x01}} {
		_, err := Deserialize(blob)
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrDeserialization)
		assert.NotErrorIs(t, err, types.ErrBroadcast)
	}
}

func TestSignPartialOnlyFillsOwnSlot(t *testing.T) {
	user, mint := newKey(t), newKey(t)
	tx := mintTx(t, user.PublicKey(), mint.PublicKey())

	require.NoError(t, SignPartial(tx, mint))
	assert.True(t, tx.Signatures[0].IsZero(), "user slot must stay empty")
	assert.False(t, tx.Signatures[1].IsZero())
	assert.Error(t, VerifySignatures(tx))

	require.NoError(t, SignPartial(tx, user))
	assert.NoError(t, VerifySignatures(tx))
}

func TestSignPartialRejectsStranger(t *testing.T) {
	user, mint := newKey(t), newKey(t)
	tx := mintTx(t, user.PublicKey(), mint.PublicKey())
	assert.Error(t, SignPartial(tx, newKey(t)))
}

func TestBroadcastSkipsPreflight(t *testing.T) {
	user, mint := newKey(t), newKey(t)
	tx := mintTx(t, user.PublicKey(), mint.PublicKey())
	require.NoError(t, SignPartial(tx, mint, user))

	rpc := &fakeRPC{}
	sig, err := NewBuilder(rpc, ConfirmationConfirmed).Broadcast(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0], sig)

	require.Len(t, rpc.opts, 1)
	assert.True(t, rpc.opts[0].SkipPreflight)
	require.NotNil(t, rpc.opts[0].MaxRetries)
	assert.Equal(t, uint(3), *rpc.opts[0].MaxRetries)
}

func TestBroadcastFailureIsTyped(t *testing.T) {
	user, mint := newKey(t), newKey(t)
	tx := mintTx(t, user.PublicKey(), mint.PublicKey())
	require.NoError(t, SignPartial(tx, mint, user))

	_, err := NewBuilder(&fakeRPC{sendErr: errors.New("node unhealthy")}, "").Broadcast(context.Background(), tx)
	assert.ErrorIs(t, err, types.ErrBroadcast)
}

type fakeSender struct{ called bool }

func (s *fakeSender) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	s.called = true
	return tx.Signatures[0], nil
}

func TestBroadcastUsesSender(t *testing.T) {
	user, mint := newKey(t), newKey(t)
	tx := mintTx(t, user.PublicKey(), mint.PublicKey())
	require.NoError(t, SignPartial(tx, mint, user))

	rpc, sender := &fakeRPC{}, &fakeSender{}
	_, err := NewBuilder(rpc, "").WithSender(sender).Broadcast(context.Background(), tx)
	require.NoError(t, err)
	assert.True(t, sender.called)
	assert.Empty(t, rpc.sent)
}

func TestConfirmWaitsForLevel(t *testing.T) {
	rpc := &fakeRPC{statuses: []*solanarpc.SignatureStatusesResult{
		nil,
		{Slot: 10, ConfirmationStatus: solanarpc.ConfirmationStatusProcessed},
		{Slot: 11, ConfirmationStatus: solanarpc.ConfirmationStatusConfirmed},
	}}
	b := NewBuilder(rpc, ConfirmationConfirmed).WithPollInterval(time.Millisecond)

	conf, err := b.Confirm(context.Background(), solana.Signature{1})
	require.NoError(t, err)
	assert.Equal(t, uint64(11), conf.Slot)
	assert.Equal(t, solanarpc.ConfirmationStatusConfirmed, conf.Status)
	assert.Equal(t, 3, rpc.polls)
}

func TestConfirmSurfacesOnChainError(t *testing.T) {
	onChain := map[string]interface{}{
		"InstructionError": []interface{}{float64(2), map[string]interface{}{"Custom": float64(6002)}},
	}
	rpc := &fakeRPC{statuses: []*solanarpc.SignatureStatusesResult{
		{Slot: 5, ConfirmationStatus: solanarpc.ConfirmationStatusProcessed, Err: onChain},
	}}
	b := NewBuilder(rpc, ConfirmationConfirmed).WithPollInterval(time.Millisecond)

	_, err := b.Confirm(context.Background(), solana.Signature{2})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrOnChain)

	var ce *types.ConfirmationError
	require.ErrorAs(t, err, &ce)
	assert.JSONEq(t, `{"InstructionError":[2,{"Custom":6002}]}`, ce.Detail)
	require.NotNil(t, ce.Program)
	assert.Equal(t, 6002, ce.Program.Code)
}

func TestConfirmTimesOut(t *testing.T) {
	b := NewBuilder(&fakeRPC{}, ConfirmationConfirmed).WithPollInterval(time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Confirm(ctx, solana.Signature{3})
	assert.ErrorIs(t, err, types.ErrConfirmationTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
