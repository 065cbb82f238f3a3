package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aidecisionlog/server/internal/decisionlog/digest"
)

// DigestOptions holds flags for the digest command.
type DigestOptions struct {
	*RootOptions
	Stdin bool
}

func NewDigestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DigestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "digest [text]",
		Short: "Print the Keccak-256 reason hash of a text",
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.Stdin {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Stdin, "stdin", false, "hash standard input byte for byte")

	return cmd
}

func runDigest(opts *DigestOptions, cmd *cobra.Command, args []string) error {
	var d digest.Digest
	if opts.Stdin {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		d = digest.OfBytes(b)
	} else {
		d = digest.Of(args[0])
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"reason_hash": d.Hex()})
	}
	fmt.Fprintln(cmd.OutOrStdout(), d.Hex())
	return nil
}
