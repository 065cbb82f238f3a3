package cli

import (
	"github.com/spf13/cobra"

	"github.com/aidecisionlog/server/internal/decisionlog/service"
	"github.com/aidecisionlog/server/internal/decisionlog/types"
)

// EntriesOptions holds flags for the entries command.
type EntriesOptions struct {
	*RootOptions
	FromBlock uint64
	ToBlock   int64 // < 0 means latest
}

func NewEntriesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EntriesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List committed decisions in ledger order",
		Long: `List every DecisionRecorded event of the contract in ledger order.

Examples:
  decisionlog entries
  decisionlog entries --from-block 100 --to-block 200
  decisionlog entries --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntries(opts, cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.FromBlock, "from-block", 0, "first block to search")
	cmd.Flags().Int64Var(&opts.ToBlock, "to-block", -1, "last block to search (default latest)")

	return cmd
}

func fetchEntries(cmd *cobra.Command, root *RootOptions, from uint64, to int64) ([]types.LedgerEntry, error) {
	ledger, err := root.Connect(cmd.Context(), false)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect to ledger", err)
	}
	if ledger.Close != nil {
		defer ledger.Close()
	}

	var toBlock *uint64
	if to >= 0 {
		v := uint64(to)
		toBlock = &v
	}

	reader := service.NewReader(ledger.Net, ledger.Contract, root.logger(cmd))
	entries, err := reader.FetchAll(cmd.Context(), from, toBlock)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to fetch decisions", err)
	}
	return entries, nil
}

func runEntries(opts *EntriesOptions, cmd *cobra.Command) error {
	entries, err := fetchEntries(cmd, opts.RootOptions, opts.FromBlock, opts.ToBlock)
	if err != nil {
		return err
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), types.EntriesResponse{Entries: entries})
	}
	writeEntriesText(cmd.OutOrStdout(), entries)
	return nil
}
