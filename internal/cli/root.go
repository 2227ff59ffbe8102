package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	airdropservice "faucet/contexts/token-distribution/airdrop-service"

	"github.com/spf13/cobra"
)

// Backend is what the operator commands need from the composition root.
type Backend interface {
	Airdrop() airdropservice.Module
	Migrate(ctx context.Context) error
	Close() error
}

// BackendFactory opens a backend for one command invocation.
type BackendFactory func(ctx context.Context) (Backend, error)

type RootOptions struct {
	Format string
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand(open BackendFactory) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "faucetctl",
		Short: "Operator tooling for the faucet airdrop ledger",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newMigrateCommand(opts, open))
	cmd.AddCommand(newLookupCommand(opts, open))
	cmd.AddCommand(newReopenCommand(opts, open))
	cmd.AddCommand(newSweepCommand(opts, open))
	return cmd
}

// withBackend opens a backend, runs fn and always closes it.
func withBackend(cmd *cobra.Command, open BackendFactory, fn func(context.Context, Backend) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	backend, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, backend)
}

func writeResult(w io.Writer, opts *RootOptions, payload any, text string) error {
	if opts.Format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(payload)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
