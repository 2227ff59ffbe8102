package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *RootOptions, open BackendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, backend Backend) error {
				if err := backend.Migrate(ctx); err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), opts, map[string]string{"status": "migrated"}, "schema up to date")
			})
		},
	}
}

func newLookupCommand(opts *RootOptions, open BackendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <address>",
		Short: "Show the disbursement record for an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, backend Backend) error {
				record, err := backend.Airdrop().Handler.GetDisbursementHandler(ctx, args[0])
				if err != nil {
					return err
				}
				text := fmt.Sprintf("%s status=%s", record.Recipient, record.Status)
				if record.Amount != "" {
					text += " amount=" + record.Amount.String()
				}
				if record.TxHash != "" {
					text += " tx=" + record.TxHash
				}
				if record.FailureReason != "" {
					text += " reason=" + record.FailureReason
				}
				return writeResult(cmd.OutOrStdout(), opts, record, text)
			})
		},
	}
}

func newReopenCommand(opts *RootOptions, open BackendFactory) *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "reopen <address>",
		Short: "Clear a failed disbursement so the address may request again",
		Long: `Clear a failed disbursement so the address may request again.

Only failed records can be reopened. Check the chain first: a failed
record with a transaction hash may still have paid out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(operator) == "" {
				return fmt.Errorf("--operator is required")
			}
			return withBackend(cmd, open, func(ctx context.Context, backend Backend) error {
				if err := backend.Airdrop().Handler.ReopenHandler(ctx, args[0], operator); err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), opts,
					map[string]string{"recipient": args[0], "status": "reopened"},
					args[0]+" reopened")
			})
		},
	}
	cmd.Flags().StringVar(&operator, "operator", os.Getenv("USER"), "operator name recorded in the log")
	return cmd
}

func newSweepCommand(opts *RootOptions, open BackendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail abandoned reservations and report stuck submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(ctx context.Context, backend Backend) error {
				report, err := backend.Airdrop().Sweeper.RunOnce(ctx)
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), opts,
					map[string]int{"failed": report.Failed, "stuck": report.Stuck, "conflict": report.Conflict},
					fmt.Sprintf("failed=%d stuck=%d conflict=%d", report.Failed, report.Stuck, report.Conflict))
			})
		},
	}
}
