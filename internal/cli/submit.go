package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidecisionlog/server/internal/decisionlog/record"
	"github.com/aidecisionlog/server/internal/decisionlog/service"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	AgentID   string
	Action    string
	Reason    string
	Timestamp string
}

func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Commit one decision to the ledger",
		Long: `Commit one decision to the ledger.  Only the Keccak-256 hash of the
reason is written; keep the reason text to verify the entry later.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.AgentID, "agent-id", "", "agent identifier (required)")
	cmd.Flags().StringVar(&opts.Action, "action", "", "action taken (required)")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason text (required)")
	cmd.Flags().StringVar(&opts.Timestamp, "timestamp", "", "record timestamp (default now, UTC)")
	_ = cmd.MarkFlagRequired("agent-id")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func runSubmit(opts *SubmitOptions, cmd *cobra.Command) error {
	in := record.Input{AgentID: opts.AgentID, Action: opts.Action, Reason: opts.Reason}
	if cmd.Flags().Changed("timestamp") {
		ts := opts.Timestamp
		in.Timestamp = &ts
	}
	// Reject bad input before dialing anything.
	if _, err := record.New(in, time.Now()); err != nil {
		return WrapExitError(ExitCommandError, "invalid decision", err)
	}

	ledger, err := opts.Connect(cmd.Context(), true)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect to ledger", err)
	}
	if ledger.Close != nil {
		defer ledger.Close()
	}

	logger := opts.logger(cmd)
	cfg := ledger.Config
	submitter := service.NewSubmitter(ledger.Net, ledger.Contract, ledger.Signer, service.SubmitterConfig{
		GasLimit:       cfg.GasLimit,
		GasPrice:       cfg.GasPriceWei(),
		ReceiptTimeout: cfg.ReceiptTimeout,
		PollInterval:   cfg.ReceiptPoll,
	}, logger)
	svc := service.NewDecisionService(submitter, service.NewReader(ledger.Net, ledger.Contract, logger), nil, logger)

	resp, err := svc.Log(cmd.Context(), in)
	if err != nil {
		return WrapExitError(ExitCommandError, "submission failed", err)
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, resp)
	}
	fmt.Fprintln(out, resp.Message)
	fmt.Fprintf(out, "Transaction Hash: %s\n", resp.TxHash)
	fmt.Fprintf(out, "Reason Hash: %s\n", resp.ReasonHash.Hex())
	fmt.Fprintf(out, "Timestamp: %s\n", resp.LoggedData.Timestamp)
	return nil
}
