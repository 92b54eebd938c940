package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/viraltok/tokmint/pkg/mint"
	"github.com/viraltok/tokmint/pkg/registry"
	"github.com/viraltok/tokmint/pkg/txbuilder"
	"github.com/viraltok/tokmint/pkg/types"
)

// parsePubkey converts base58 string to PublicKey.
func parsePubkey(label, v string) (solana.PublicKey, error) {
	if v == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", label)
	}
	pk, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s invalid pubkey: %w", label, err)
	}
	return pk, nil
}

func parseDecimal(label, v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", label, err)
	}
	return d, nil
}

// readImage loads an image file and sniffs its content type.
func readImage(path string) (data []byte, name, contentType string, err error) {
	if path == "" {
		return nil, "", "", fmt.Errorf("--image is required")
	}
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, "", "", fmt.Errorf("read image: %w", err)
	}
	return data, filepath.Base(path), http.DetectContentType(data), nil
}

func printStatus(cmd *cobra.Command) mint.StatusFunc {
	out := cmd.ErrOrStderr()
	return func(s mint.Status) {
		if s.Stage == mint.StageFailed {
			fmt.Fprintf(out, "[%3.0f%%] failed at %s: %s\n", s.Progress*100, s.FailedAt, s.Message)
			return
		}
		fmt.Fprintf(out, "[%3.0f%%] %s\n", s.Progress*100, s.Message)
	}
}

func printRecords(cmd *cobra.Command, recs []*registry.Record) {
	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "no tokens")
		return
	}
	for _, r := range recs {
		fmt.Fprintf(out, "%s  %-10s %-32s %s\n", r.Address, r.Symbol, r.Name, r.ImageURL)
	}
}

func printSimResult(cmd *cobra.Command, res *solanarpc.SimulateTransactionResponse) {
	if res == nil || res.Value == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "no simulation result\n")
		return
	}
	if res.Value.Err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "simulation error: %v\n", res.Value.Err)
	}
	if len(res.Value.Logs) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "logs:")
		for _, l := range res.Value.Logs {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", l)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinWarnings(warnings []error) string {
	parts := make([]string, 0, len(warnings))
	for _, w := range warnings {
		parts = append(parts, w.Error())
	}
	return strings.Join(parts, "; ")
}

// annotateFailure adds a hint to errors that a rerun may get past.
func annotateFailure(err error) error {
	if err == nil || !types.IsRetryableError(err) || types.IsCancellation(err) {
		return err
	}
	return fmt.Errorf("%w (transient, rerunning may succeed)", err)
}

func broadcastRoute(b *txbuilder.Builder) string {
	if b.HasSender() {
		return "jito"
	}
	return "rpc"
}
