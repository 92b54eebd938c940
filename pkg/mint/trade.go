package mint

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/viraltok/tokmint/pkg/tradeapi"
	"github.com/viraltok/tokmint/pkg/txbuilder"
	"github.com/viraltok/tokmint/pkg/types"
	"github.com/viraltok/tokmint/pkg/wallet"
)

// TradeRequest is a buy or sell of an existing token.
type TradeRequest struct {
	Action           tradeapi.Action
	Mint             solana.PublicKey
	Amount           decimal.Decimal
	DenominatedInSol bool
	Slippage         int
	PriorityFee      decimal.Decimal
	Pool             string
}

// TradeResult is a confirmed trade.
type TradeResult struct {
	Signature    solana.Signature
	Confirmation *txbuilder.Confirmation
}

// Trade requests, signs, broadcasts and confirms a buy or sell. Only the
// wallet signs; the status sequence skips the mint-signing and persisting stages.
func (o *Orchestrator) Trade(ctx context.Context, req TradeRequest, signer wallet.Signer) (*TradeResult, error) {
	t := newTracker(ctx, o.onStatus)
	if signer == nil {
		return nil, t.fail(types.ErrNilSigner)
	}
	if req.Action != tradeapi.ActionBuy && req.Action != tradeapi.ActionSell {
		return nil, t.fail(types.NewValidationError("action", "must be buy or sell"))
	}
	user := signer.PublicKey()
	log := o.log.With().
		Str("wallet", user.String()).
		Str("mint", req.Mint.String()).
		Str("action", string(req.Action)).
		Logger()

	t.enter(StageRequestingTransaction, "Requesting transaction from PumpPortal...")
	tx, err := o.requestTransaction(ctx, tradeapi.Request{
		PublicKey:        user,
		Action:           req.Action,
		Mint:             req.Mint,
		DenominatedInSol: req.DenominatedInSol,
		Amount:           req.Amount,
		Slippage:         o.slippage(req.Slippage),
		PriorityFee:      o.priorityFee(req.PriorityFee),
		Pool:             o.pool(req.Pool),
	}, user)
	if err != nil {
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
		if sig, err = o.deps.Chain.Broadcast(dctx, tx); err != nil {
			return nil, t.fail(err)
		}
	}

	t.enter(StageConfirming, "Transaction sent! Waiting for confirmation...")
	conf, err := o.deps.Chain.Confirm(dctx, sig)
	if err != nil {
		return nil, t.fail(err)
	}
	log.Info().Str("signature", sig.String()).Msg("trade confirmed")

	t.enter(StageDone, "Transaction confirmed successfully!")
	return &TradeResult{Signature: sig, Confirmation: conf}, nil
}
