package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aidecisionlog/server/internal/decisionlog/service"
	"github.com/aidecisionlog/server/internal/decisionlog/types"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Reason string
	Digest string
}

func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a reason text against an on-chain reason hash",
		Long: `Check a reason text against an on-chain reason hash.  No ledger
access is needed; the hash may carry a 0x prefix and either case.

Exits 1 when the text does not match.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Reason, "reason", "", "original reason text")
	cmd.Flags().StringVar(&opts.Digest, "digest", "", "on-chain reason hash (required)")
	_ = cmd.MarkFlagRequired("digest")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	v := service.Explain(opts.Reason, opts.Digest)
	out := cmd.OutOrStdout()

	if opts.Format == "json" {
		if err := writeJSON(out, types.VerifyResponse{
			Verified:       v.Verified,
			CalculatedHash: v.Calculated.Hex(),
			OnChainHash:    v.OnChain,
			Hints:          v.Hints,
		}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Calculated hash: %s\n", v.Calculated.Hex())
		fmt.Fprintf(out, "On-chain hash:   %s\n", v.OnChain)
		if v.Verified {
			fmt.Fprintln(out, "Verification Status: SUCCESS")
		} else {
			fmt.Fprintln(out, "Verification Status: FAILED")
			for _, h := range v.Hints {
				fmt.Fprintf(out, "  - %s\n", h)
			}
		}
	}

	if !v.Verified {
		return NewExitError(ExitFailure, "reason does not match the on-chain hash")
	}
	return nil
}
