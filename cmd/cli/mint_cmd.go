package main

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/viraltok/tokmint/pkg/mint"
	"github.com/viraltok/tokmint/pkg/quote"
	"github.com/viraltok/tokmint/pkg/tradeapi"
	"github.com/viraltok/tokmint/pkg/txbuilder"
)

func newMintCmd(opts *globalOpts) *cobra.Command {
	var (
		name        string
		symbol      string
		description string
		imagePath   string
		videoURL    string
		twitter     string
		telegram    string
		website     string
		initialBuy  string
		slippage    int
		priorityFee string
		pool        string
		profile     string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a token for a video",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := newRuntime(cmd, opts)
			if err != nil {
				return err
			}
			defer deps.Close()

			signer, err := deps.signer(opts)
			if err != nil {
				return err
			}
			image, imageName, contentType, err := readImage(imagePath)
			if err != nil {
				return err
			}
			if initialBuy == "" {
				initialBuy = deps.cfg.Trade.InitialBuy
			}
			buy, err := parseDecimal("--initial-buy", initialBuy)
			if err != nil {
				return err
			}
			fee, err := parseDecimal("--priority-fee", priorityFee)
			if err != nil {
				return err
			}

			var chain mint.Chain
			var sim *simulatingChain
			if dryRun {
				sim = &simulatingChain{builder: deps.builder}
				chain = sim
			}
			orch, err := deps.orchestrator(ctx, cmd, profile, chain, !dryRun)
			if err != nil {
				return err
			}

			res, err := orch.Mint(ctx, mint.Request{
				Name:             name,
				Symbol:           symbol,
				Description:      description,
				Image:            image,
				ImageName:        imageName,
				ImageContentType: contentType,
				Twitter:          twitter,
				Telegram:         telegram,
				Website:          website,
				VideoURL:         videoURL,
				InitialBuy:       buy,
				Slippage:         slippage,
				PriorityFee:      fee,
				Pool:             pool,
			}, signer)
			if err != nil {
				return annotateFailure(err)
			}

			out := cmd.OutOrStdout()
			if sim != nil {
				printSimResult(cmd, sim.result)
				fmt.Fprintf(out, "mint (not created): %s\n", res.Record.Address)
				return nil
			}
			fmt.Fprintf(out, "mint: %s\n", res.Record.Address)
			fmt.Fprintf(out, "tx signature: %s (via %s)\n", res.Signature, broadcastRoute(deps.builder))
			fmt.Fprintf(out, "metadata: %s\nimage: %s\n", res.Asset.MetadataURI, res.Asset.ImageURL)
			fmt.Fprintf(out, "vanity: %s (%d attempts, %s)\n", res.Vanity.Outcome, res.Vanity.Attempts, res.Vanity.Duration)
			fmt.Fprintf(out, "https://pump.fun/%s\n", res.Record.Address)
			if len(res.Warnings) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", joinWarnings(res.Warnings))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "token name (max 32 chars)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "token symbol (max 10 chars)")
	cmd.Flags().StringVar(&description, "description", "", "description (defaults to the video URL)")
	cmd.Flags().StringVar(&imagePath, "image", "", "path to a jpg, png, gif or webp image (max 4MB)")
	cmd.Flags().StringVar(&videoURL, "video-url", "", "source video URL")
	cmd.Flags().StringVar(&twitter, "twitter", "", "twitter URL")
	cmd.Flags().StringVar(&telegram, "telegram", "", "telegram URL")
	cmd.Flags().StringVar(&website, "website", "", "website URL")
	cmd.Flags().StringVar(&initialBuy, "initial-buy", "", "SOL to buy at creation (default from config)")
	cmd.Flags().IntVar(&slippage, "slippage", 0, "slippage percent (0 uses config)")
	cmd.Flags().StringVar(&priorityFee, "priority-fee", "", "priority fee in SOL (empty uses config)")
	cmd.Flags().StringVar(&pool, "pool", "", "trade pool (empty uses config)")
	cmd.Flags().StringVar(&profile, "profile", "", "vanity profile (regular|official)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate instead of broadcasting; nothing is recorded")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

// simulatingChain stands in for the network during --dry-run.
type simulatingChain struct {
	builder *txbuilder.Builder
	result  *solanarpc.SimulateTransactionResponse
}

func (s *simulatingChain) Broadcast(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	res, err := s.builder.Simulate(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	s.result = res
	if res != nil && res.Value != nil && res.Value.Err != nil {
		return solana.Signature{}, fmt.Errorf("simulation failed: %v", res.Value.Err)
	}
	return tx.Signatures[0], nil
}

func (s *simulatingChain) Confirm(_ context.Context, sig solana.Signature) (*txbuilder.Confirmation, error) {
	return &txbuilder.Confirmation{Signature: sig}, nil
}

func newTradeCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Buy or sell an existing token",
	}
	cmd.AddCommand(
		newTradeActionCmd(opts, tradeapi.ActionBuy, "Buy a token"),
		newTradeActionCmd(opts, tradeapi.ActionSell, "Sell a token"),
	)
	return cmd
}

func newTradeActionCmd(opts *globalOpts, action tradeapi.Action, short string) *cobra.Command {
	var (
		mintStr     string
		amount      string
		inSol       bool
		slippage    int
		priorityFee string
		pool        string
		quoteOnly   bool
	)

	cmd := &cobra.Command{
		Use:   string(action),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := newRuntime(cmd, opts)
			if err != nil {
				return err
			}
			defer deps.Close()

			mintPK, err := parsePubkey("--mint", mintStr)
			if err != nil {
				return err
			}
			amt, err := parseDecimal("--amount", amount)
			if err != nil {
				return err
			}
			fee, err := parseDecimal("--priority-fee", priorityFee)
			if err != nil {
				return err
			}

			if err := printQuote(ctx, cmd, deps, action, mintPK, amt, inSol, slippage); err != nil {
				if quoteOnly {
					return err
				}
				deps.log.Warn().Err(err).Msg("quote unavailable")
			}
			if quoteOnly {
				return nil
			}

			signer, err := deps.signer(opts)
			if err != nil {
				return err
			}

			orch, err := deps.orchestrator(ctx, cmd, "", nil, false)
			if err != nil {
				return err
			}
			res, err := orch.Trade(ctx, mint.TradeRequest{
				Action:           action,
				Mint:             mintPK,
				Amount:           amt,
				DenominatedInSol: inSol,
				Slippage:         slippage,
				PriorityFee:      fee,
				Pool:             pool,
			}, signer)
			if err != nil {
				return annotateFailure(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tx signature: %s (via %s)\n", res.Signature, broadcastRoute(deps.builder))
			return nil
		},
	}

	cmd.Flags().StringVar(&mintStr, "mint", "", "token mint address")
	cmd.Flags().StringVar(&amount, "amount", "", "amount of SOL or tokens")
	cmd.Flags().BoolVar(&inSol, "in-sol", action == tradeapi.ActionBuy, "amount is SOL rather than tokens")
	cmd.Flags().IntVar(&slippage, "slippage", 0, "slippage percent (0 uses config)")
	cmd.Flags().StringVar(&priorityFee, "priority-fee", "", "priority fee in SOL (empty uses config)")
	cmd.Flags().StringVar(&pool, "pool", "", "trade pool (empty uses config)")
	cmd.Flags().BoolVar(&quoteOnly, "quote-only", false, "print the bonding-curve estimate and exit")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// printQuote estimates the trade from the bonding curve. Only SOL-denominated
// buys and token-denominated sells can be quoted.
func printQuote(ctx context.Context, cmd *cobra.Command, deps *runtimeDeps, action tradeapi.Action, mintPK solana.PublicKey, amount decimal.Decimal, inSol bool, slippage int) error {
	if slippage == 0 {
		slippage = deps.cfg.Trade.Slippage
	}
	bc, err := quote.FetchBondingCurve(ctx, deps.rpc, mintPK)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "price: %s SOL\n", bc.PriceSOL().StringFixed(12))
	switch {
	case action == tradeapi.ActionBuy && inSol:
		q := bc.Buy(uint64(amount.Shift(9).IntPart()), slippage)
		fmt.Fprintf(out, "expected tokens: %s (min %s), impact %d bps\n",
			decimal.NewFromInt(int64(q.ExpectedOut)).Shift(-quote.TokenDecimals),
			decimal.NewFromInt(int64(q.MinOut)).Shift(-quote.TokenDecimals),
			q.PriceImpactBps)
	case action == tradeapi.ActionSell && !inSol:
		q := bc.Sell(uint64(amount.Shift(quote.TokenDecimals).IntPart()), slippage)
		fmt.Fprintf(out, "expected SOL: %s (min %s), impact %d bps\n",
			decimal.NewFromInt(int64(q.ExpectedOut)).Shift(-9),
			decimal.NewFromInt(int64(q.MinOut)).Shift(-9),
			q.PriceImpactBps)
	default:
		return fmt.Errorf("cannot quote a %s denominated in %s", action, map[bool]string{true: "SOL", false: "tokens"}[inSol])
	}
	return nil
}
