package main

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"

	"github.com/viraltok/tokmint/pkg/txbuilder"
	"github.com/viraltok/tokmint/pkg/types"
)

type nopSender struct{}

func (nopSender) SendTransaction(context.Context, *solana.Transaction) (solana.Signature, error) {
	return solana.Signature{}, nil
}

func TestBroadcastRoute(t *testing.T) {
	b := txbuilder.NewBuilder(nil, txbuilder.ConfirmationConfirmed)
	assert.Equal(t, "rpc", broadcastRoute(b))
	assert.Equal(t, "jito", broadcastRoute(b.WithSender(nopSender{})))
}

func TestAnnotateFailure(t *testing.T) {
	transient := &types.BroadcastError{Err: errors.New("connection reset")}
	err := annotateFailure(transient)
	assert.ErrorIs(t, err, types.ErrBroadcast)
	assert.Contains(t, err.Error(), "rerunning may succeed")

	invalid := types.NewValidationError("name", "required")
	assert.Equal(t, error(invalid), annotateFailure(invalid))

	rejected := &types.SignatureRejectedError{}
	assert.Equal(t, error(rejected), annotateFailure(rejected))

	assert.NoError(t, annotateFailure(nil))
}
