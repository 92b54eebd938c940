// Package quote estimates pump bonding-curve trades before they are requested.
//
// Quotes are computed from the curve's virtual reserves and are non-binding:
// the price can move between the quote and execution.
//
// Example usage:
//
//	bc, err := quote.FetchBondingCurve(ctx, rpcClient, mint)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	q := bc.Buy(10_000_000, 10) // 0.01 SOL, 10% slippage
//	fmt.Printf("Expected tokens: %d\n", q.ExpectedOut)
package quote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/viraltok/tokmint/pkg/pda"
	"github.com/viraltok/tokmint/pkg/types"
)

// Pump tokens have 6 decimals.
const TokenDecimals = 6

// BondingCurveDiscriminator prefixes every bonding curve account.
var BondingCurveDiscriminator = []byte{23, 183, 248, 55, 96, 216, 172, 96}

// ErrCurveNotFound means the mint has no bonding curve account yet.
var ErrCurveNotFound = errors.New("bonding curve not found")

// AccountFetcher reads raw account data. *rpc.Client implements it.
type AccountFetcher interface {
	GetAccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
}

// BondingCurve is the on-chain state of a pump bonding curve.
type BondingCurve struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
	Creator              solana.PublicKey
}

// Decode parses account data, discriminator included. Accounts created before
// the creator field existed decode with a zero Creator.
func Decode(data []byte) (*BondingCurve, error) {
	if len(data) < 8+41 {
		return nil, fmt.Errorf("bonding curve account too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], BondingCurveDiscriminator) {
		return nil, fmt.Errorf("invalid bonding curve discriminator")
	}
	body := data[8:]
	if len(body) < 8*5+1+32 {
		padded := make([]byte, 8*5+1+32)
		copy(padded, body)
		body = padded
	}
	var bc BondingCurve
	if err := bin.NewBorshDecoder(body).Decode(&bc); err != nil {
		return nil, fmt.Errorf("decode bonding curve: %w", err)
	}
	return &bc, nil
}

// FetchBondingCurve loads the curve for mint.
func FetchBondingCurve(ctx context.Context, rpc AccountFetcher, mint solana.PublicKey) (*BondingCurve, error) {
	if rpc == nil {
		return nil, types.ErrNilRPC
	}
	addr, err := pda.BondingCurve(mint)
	if err != nil {
		return nil, fmt.Errorf("derive bonding curve: %w", err)
	}
	data, err := rpc.GetAccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w for mint %s", ErrCurveNotFound, mint)
	}
	return Decode(data)
}

// Result is an estimated trade outcome.
type Result struct {
	// ExpectedOut is tokens for a buy, lamports for a sell.
	ExpectedOut uint64
	// MinOut is ExpectedOut less slippage.
	MinOut uint64
	// PriceImpactBps compares the execution price with the spot price.
	PriceImpactBps uint64
}

// Buy estimates the tokens received for lamports:
// tokens_out = sol_in * virtual_token_reserves / (virtual_sol_reserves + sol_in).
func (bc *BondingCurve) Buy(lamports uint64, slippagePercent int) Result {
	if lamports == 0 || bc.Complete {
		return Result{}
	}
	out := mulDiv(lamports, bc.VirtualTokenReserves, bc.VirtualSolReserves, lamports)
	if out > bc.RealTokenReserves && bc.RealTokenReserves > 0 {
		out = bc.RealTokenReserves
	}
	return Result{
		ExpectedOut:    out,
		MinOut:         applySlippage(out, slippagePercent),
		PriceImpactBps: impactBps(bc.spotPrice(), price(lamports, out), true),
	}
}

// Sell estimates the lamports received for tokens:
// sol_out = token_in * virtual_sol_reserves / (virtual_token_reserves + token_in).
func (bc *BondingCurve) Sell(tokens uint64, slippagePercent int) Result {
	if tokens == 0 || bc.Complete {
		return Result{}
	}
	out := mulDiv(tokens, bc.VirtualSolReserves, bc.VirtualTokenReserves, tokens)
	return Result{
		ExpectedOut:    out,
		MinOut:         applySlippage(out, slippagePercent),
		PriceImpactBps: impactBps(bc.spotPrice(), price(out, tokens), false),
	}
}

// PriceSOL is the spot price of one whole token in SOL.
func (bc *BondingCurve) PriceSOL() decimal.Decimal {
	if bc.VirtualTokenReserves == 0 {
		return decimal.Zero
	}
	sol := decimal.NewFromInt(int64(bc.VirtualSolReserves)).Shift(-9)
	tokens := decimal.NewFromInt(int64(bc.VirtualTokenReserves)).Shift(-TokenDecimals)
	return sol.Div(tokens)
}

// spotPrice is lamports per base unit, scaled by 1e9.
func (bc *BondingCurve) spotPrice() uint64 {
	return price(bc.VirtualSolReserves, bc.VirtualTokenReserves)
}

func price(lamports, tokens uint64) uint64 {
	if tokens == 0 {
		return 0
	}
	p := new(big.Int).SetUint64(lamports)
	p.Mul(p, big.NewInt(1e9))
	p.Div(p, new(big.Int).SetUint64(tokens))
	return p.Uint64()
}

// mulDiv returns a*b/(c+d) without overflow.
func mulDiv(a, b, c, d uint64) uint64 {
	num := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	den := new(big.Int).Add(new(big.Int).SetUint64(c), new(big.Int).SetUint64(d))
	if den.Sign() == 0 {
		return 0
	}
	return num.Div(num, den).Uint64()
}

func impactBps(spot, exec uint64, isBuy bool) uint64 {
	if spot == 0 {
		return 0
	}
	if isBuy && exec > spot {
		return (exec - spot) * 10000 / spot
	}
	if !isBuy && spot > exec {
		return (spot - exec) * 10000 / spot
	}
	return 0
}

func applySlippage(amount uint64, percent int) uint64 {
	if percent <= 0 {
		return amount
	}
	if percent >= 100 {
		return 0
	}
	return amount * uint64(100-percent) / 100
}
