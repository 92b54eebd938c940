package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/viraltok/tokmint/pkg/vanity"
)

func newVanityCmd(opts *globalOpts) *cobra.Command {
	var (
		profile       string
		suffix        string
		timeout       time.Duration
		workers       int
		caseSensitive bool
		bestEffort    bool
		showSecret    bool
	)

	cmd := &cobra.Command{
		Use:   "vanity",
		Short: "Search for a mint keypair whose address ends with a suffix",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			p, err := cfg.Profile(profile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("suffix") {
				p.Suffix = suffix
			}
			if cmd.Flags().Changed("timeout") {
				p.Timeout = timeout
			}
			if cmd.Flags().Changed("workers") {
				p.Workers = workers
			}
			if cmd.Flags().Changed("case-sensitive") {
				p.CaseSensitive = caseSensitive
			}
			if cmd.Flags().Changed("best-effort") {
				p.BestEffort = bestEffort
			}
			if !vanity.ValidSuffix(p.Suffix, p.CaseSensitive) {
				return fmt.Errorf("suffix %q contains characters outside the base58 alphabet", p.Suffix)
			}

			log := newLogger(cmd, cfg.LogLevel)
			log.Info().
				Str("suffix", p.Suffix).
				Dur("timeout", p.Timeout).
				Uint64("expected_attempts", vanity.EstimateDifficulty(len(p.Suffix), p.CaseSensitive)).
				Msg("searching")

			res, err := vanity.Search(cmd.Context(), vanity.Options{
				Suffix:        p.Suffix,
				Timeout:       p.Timeout,
				Workers:       p.Workers,
				CaseSensitive: p.CaseSensitive,
				BestEffort:    p.BestEffort,
				OnProgress: func(pr vanity.Progress) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\r%s", pr)
				},
			})
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "outcome: %s\nattempts: %d\nduration: %s\n", res.Outcome, res.Attempts, res.Duration.Round(time.Millisecond))
			if !res.Found() {
				return fmt.Errorf("no address ending with %q found", p.Suffix)
			}
			fmt.Fprintf(out, "address: %s\nmatched: %d/%d\n", res.Address, res.MatchedLen, len(p.Suffix))
			if showSecret {
				fmt.Fprintf(out, "secret: %s\n", res.PrivateKey.String())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "vanity profile from config")
	cmd.Flags().StringVar(&suffix, "suffix", "", "override the profile suffix")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "override the profile timeout")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker goroutines (0 = NumCPU)")
	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "match case exactly")
	cmd.Flags().BoolVar(&bestEffort, "best-effort", false, "return the best partial match on timeout")
	cmd.Flags().BoolVar(&showSecret, "show-secret", false, "print the base58 private key")
	return cmd
}
