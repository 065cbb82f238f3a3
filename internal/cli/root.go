// Package cli is the operator command line: read the decision log back,
// verify reasons against it and submit decisions by hand.
package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"

	"github.com/spf13/cobra"

	"github.com/aidecisionlog/server/internal/chain"
	"github.com/aidecisionlog/server/internal/config"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Ledger is what a command needs to talk to the decision contract.
type Ledger struct {
	Net      chain.Network
	Contract *chain.Contract
	Signer   *chain.KeySigner // nil unless requested
	Config   config.Config
	Close    func()
}

// ConnectFunc opens the ledger.  withSigner asks for the submission key too.
type ConnectFunc func(ctx context.Context, withSigner bool) (*Ledger, error)

// RootOptions holds global flags and the injected ledger factory.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Connect ConnectFunc
}

func (o *RootOptions) logger(cmd *cobra.Command) *log.Logger {
	if o.Verbose {
		return log.New(cmd.ErrOrStderr(), "decisionlog ", log.LstdFlags|log.LUTC)
	}
	return log.New(io.Discard, "", 0)
}

// NewRootCommand creates the root command.  A nil connect uses the
// environment configuration and a real JSON-RPC endpoint.
func NewRootCommand(connect ConnectFunc) *cobra.Command {
	if connect == nil {
		connect = DefaultConnect
	}
	opts := &RootOptions{Connect: connect}

	cmd := &cobra.Command{
		Use:   "decisionlog",
		Short: "Inspect and verify the on-chain AI decision log",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewEntriesCommand(opts))
	cmd.AddCommand(NewReviewCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewDigestCommand(opts))
	cmd.AddCommand(NewSubmitCommand(opts))

	return cmd
}

// DefaultConnect dials the configured provider and loads the contract.
func DefaultConnect(ctx context.Context, withSigner bool) (*Ledger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.ProviderURL == "" || cfg.ContractAddress == "" {
		return nil, fmt.Errorf("%w: DECISIONLOG_PROVIDER_URL and DECISIONLOG_CONTRACT_ADDRESS are required", config.ErrLedgerConfig)
	}
	if withSigner {
		if err := cfg.ValidateLedger(); err != nil {
			return nil, err
		}
	}

	contract, err := chain.LoadContract(cfg.ContractAddress, cfg.ABIPath)
	if err != nil {
		return nil, err
	}
	client, err := chain.Dial(ctx, cfg.ProviderURL)
	if err != nil {
		return nil, err
	}

	l := &Ledger{Net: client, Contract: contract, Config: cfg, Close: client.Close}
	if withSigner {
		chainID, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("chain id: %w", err)
		}
		l.Signer, err = chain.NewKeySigner(cfg.PrivateKey, chainID, cfg.AccountAddress)
		if err != nil {
			client.Close()
			return nil, err
		}
	}
	return l, nil
}
