package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/viraltok/tokmint/pkg/ipfsurl"
	"github.com/viraltok/tokmint/pkg/registry"
)

func newRegistryCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect and repair recorded tokens",
	}
	cmd.AddCommand(
		newRegistryListCmd(opts),
		newRegistryRandomCmd(opts),
		newRegistryFixCmd(opts),
		newRegistryCheckCmd(opts),
	)
	return cmd
}

// withStore opens the configured registry for one command.
func withStore(cmd *cobra.Command, opts *globalOpts, fn func(ctx context.Context, deps *runtimeDeps, lister registry.Lister, store registry.Store) error) error {
	deps, err := newRuntime(cmd, opts)
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx := cmd.Context()
	_, lister, store, err := deps.openRegistry(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, deps, lister, store)
}

func requireStore(store registry.Store) error {
	if store == nil {
		return fmt.Errorf("this command needs a memory or postgres registry")
	}
	return nil
}

func newRegistryListCmd(opts *globalOpts) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tokens, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(ctx context.Context, _ *runtimeDeps, lister registry.Lister, _ registry.Store) error {
				recs, err := lister.List(ctx, limit)
				if err != nil {
					return err
				}
				printRecords(cmd, recs)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum tokens (0 = all)")
	return cmd
}

func newRegistryRandomCmd(opts *globalOpts) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "random",
		Short: "Show a few random tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(ctx context.Context, _ *runtimeDeps, lister registry.Lister, _ registry.Store) error {
				recs, err := lister.Random(ctx, n)
				if err != nil {
					return err
				}
				printRecords(cmd, recs)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 3, "number of tokens")
	return cmd
}

func newRegistryFixCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "fix-image-urls",
		Short: "Rewrite proxied or gateway image URLs to the canonical gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(ctx context.Context, deps *runtimeDeps, _ registry.Lister, store registry.Store) error {
				if err := requireStore(store); err != nil {
					return err
				}
				report, err := registry.FixImageURLs(ctx, store, ipfsurl.New(deps.cfg.Upload.Gateway))
				fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d updated=%d failed=%d\n", report.Scanned, report.Updated, report.Failed)
				return err
			})
		},
	}
}

func newRegistryCheckCmd(opts *globalOpts) *cobra.Command {
	var (
		address     string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "check-image",
		Short: "Verify image URLs resolve and repair them from metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(ctx context.Context, deps *runtimeDeps, _ registry.Lister, store registry.Store) error {
				if err := requireStore(store); err != nil {
					return err
				}
				checker := registry.NewImageChecker(
					&http.Client{Timeout: 15 * time.Second},
					ipfsurl.New(deps.cfg.Upload.Gateway),
					deps.log,
				)

				var results []registry.CheckResult
				if address != "" {
					res, err := checker.Check(ctx, store, address)
					if err != nil {
						return err
					}
					results = append(results, res)
				} else {
					all, err := checker.CheckAll(ctx, store, concurrency)
					if err != nil {
						return err
					}
					results = all
				}
				for _, r := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "%s valid=%t updated=%t %s\n", r.Address, r.Valid, r.Updated, r.ImageURL)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "check a single token (default all)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "parallel checks")
	return cmd
}
