package quote

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viraltok/tokmint/pkg/pda"
)

// Initial pump curve reserves.
var freshCurve = BondingCurve{
	VirtualTokenReserves: 1_073_000_000_000_000,
	VirtualSolReserves:   30_000_000_000,
	RealTokenReserves:    793_100_000_000_000,
	TokenTotalSupply:     1_000_000_000_000_000,
}

func encode(bc BondingCurve, withCreator bool) []byte {
	var buf bytes.Buffer
	buf.Write(BondingCurveDiscriminator)
	for _, v := range []uint64{bc.VirtualTokenReserves, bc.VirtualSolReserves, bc.RealTokenReserves, bc.RealSolReserves, bc.TokenTotalSupply} {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	if bc.Complete {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	if withCreator {
		buf.Write(bc.Creator[:])
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	creator := solana.NewWallet().PublicKey()
	bc := freshCurve
	bc.Creator = creator

	got, err := Decode(encode(bc, true))
	require.NoError(t, err)
	assert.Equal(t, bc, *got)

	legacy, err := Decode(encode(freshCurve, false))
	require.NoError(t, err)
	assert.True(t, legacy.Creator.IsZero())
	assert.Equal(t, freshCurve.VirtualSolReserves, legacy.VirtualSolReserves)
}

func TestDecodeRejectsForeignAccounts(t *testing.T) {
	data := encode(freshCurve, true)
	data[0] ^= 0xff
	_, err := Decode(data)
	assert.Error(t, err)

	_, err = Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestBuyAndSell(t *testing.T) {
	bc := freshCurve

	buy := bc.Buy(1_000_000_000, 10)
	// 1e9 * 1.073e15 / 31e9
	assert.Equal(t, uint64(34_612_903_225_806), buy.ExpectedOut)
	assert.Equal(t, buy.ExpectedOut*90/100, buy.MinOut)
	assert.Greater(t, buy.PriceImpactBps, uint64(0))

	sell := bc.Sell(buy.ExpectedOut, 0)
	assert.Equal(t, sell.ExpectedOut, sell.MinOut)
	assert.Less(t, sell.ExpectedOut, uint64(1_000_000_000))

	bc.Complete = true
	assert.Zero(t, bc.Buy(1_000_000_000, 0).ExpectedOut)
}

func TestPriceSOL(t *testing.T) {
	p := freshCurve.PriceSOL()
	// 30 SOL / 1.073e9 tokens
	assert.Equal(t, "0.000000028", p.StringFixed(9))
}

type fakeFetcher map[solana.PublicKey][]byte

func (f fakeFetcher) GetAccountData(_ context.Context, account solana.PublicKey) ([]byte, error) {
	return f[account], nil
}

func TestFetchBondingCurve(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	addr, err := pda.BondingCurve(mint)
	require.NoError(t, err)

	bc, err := FetchBondingCurve(context.Background(), fakeFetcher{addr: encode(freshCurve, true)}, mint)
	require.NoError(t, err)
	assert.Equal(t, freshCurve.VirtualTokenReserves, bc.VirtualTokenReserves)

	_, err = FetchBondingCurve(context.Background(), fakeFetcher{}, mint)
	assert.ErrorIs(t, err, ErrCurveNotFound)
}
