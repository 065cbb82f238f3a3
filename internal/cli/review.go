package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aidecisionlog/server/internal/decisionlog/service"
)

// ReviewOptions holds flags for the review command.
type ReviewOptions struct {
	*RootOptions
	FromBlock uint64
	ToBlock   int64
}

// NewReviewCommand walks every entry and asks the operator for the original
// reason text, which lives off-chain with whoever logged the decision.
func NewReviewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReviewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Interactively verify each decision against its original reason",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(opts, cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.FromBlock, "from-block", 0, "first block to search")
	cmd.Flags().Int64Var(&opts.ToBlock, "to-block", -1, "last block to search (default latest)")

	return cmd
}

type reviewSummary struct {
	Verified int `json:"verified"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

func runReview(opts *ReviewOptions, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Fetching recorded decisions...")
	entries, err := fetchEntries(cmd, opts.RootOptions, opts.FromBlock, opts.ToBlock)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No decisions found on the ledger.")
		return nil
	}

	in := bufio.NewReader(cmd.InOrStdin())
	var sum reviewSummary

	for i, e := range entries {
		writeEntryText(out, i, e)
		fmt.Fprintf(out, "Enter the ORIGINAL reason text for agent %q and action %q (blank to skip): ", e.AgentID, e.Action)

		reason, err := readLine(in)
		if err != nil && err != io.EOF {
			return WrapExitError(ExitCommandError, "failed to read input", err)
		}
		if reason == "" {
			fmt.Fprintln(out, "Verification skipped for this entry.")
			sum.Skipped++
			if err == io.EOF {
				sum.Skipped += len(entries) - i - 1
				break
			}
			continue
		}

		v := service.Explain(reason, e.ReasonDigest.Hex())
		fmt.Fprintf(out, "Calculated hash: %s\n", v.Calculated.Hex())
		if v.Verified {
			fmt.Fprintln(out, "Verification Status: SUCCESS")
			sum.Verified++
		} else {
			fmt.Fprintln(out, "Verification Status: FAILED")
			fmt.Fprintln(out, "  HASH MISMATCH: the provided text does not match the on-chain hash.")
			for _, h := range v.Hints {
				fmt.Fprintf(out, "  - %s\n", h)
			}
			sum.Failed++
		}
		if err == io.EOF {
			sum.Skipped += len(entries) - i - 1
			break
		}
	}

	fmt.Fprintf(out, "\nReviewed %d decision(s): %d verified, %d failed, %d skipped.\n",
		len(entries), sum.Verified, sum.Failed, sum.Skipped)
	if sum.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d decision(s) failed verification", sum.Failed))
	}
	return nil
}

// readLine strips only the line terminator; every other byte is part of
// the text being verified.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, err
}
