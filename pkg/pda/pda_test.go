package pda

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBondingCurveIsDeterministic(t *testing.T) {
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	mint := k.PublicKey()

	a, err := BondingCurve(mint)
	require.NoError(t, err)
	b, err := BondingCurve(mint)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestForMintMatchesHelpers(t *testing.T) {
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	mint := k.PublicKey()

	accts, err := ForMint(mint)
	require.NoError(t, err)

	curve, err := BondingCurve(mint)
	require.NoError(t, err)
	assoc, err := AssociatedBondingCurve(mint)
	require.NoError(t, err)
	ata, _, err := solana.FindAssociatedTokenAddress(curve, mint)
	require.NoError(t, err)

	assert.Equal(t, curve, accts.BondingCurve)
	assert.Equal(t, assoc, accts.AssociatedBondingCurve)
	assert.Equal(t, ata, assoc)
	assert.NotEqual(t, accts.BondingCurve, accts.Metadata)
}
