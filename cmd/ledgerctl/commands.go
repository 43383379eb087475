package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"crmbot/internal/adapters/storage"
	"crmbot/internal/admin"
	"crmbot/internal/importer"

	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	var telegramID int64

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a CSV of past calls into a manager's ledger",
		Long: `Reads a ';' or ',' separated file (company, tax id, contact, phone,
first contact, next contact, comment, ...) and upserts every row into the
manager's ledger and the aggregated ledger. Bad rows are reported and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if err := storage.ValidateImportFile(path, info.Size()); err != nil {
				return err
			}

			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			report, err := e.admin.Import(cmd.Context(), telegramID, filepath.Base(path), f)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().Int64Var(&telegramID, "manager", 0, "Telegram id of the manager owning the ledger")
	_ = cmd.MarkFlagRequired("manager")
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Bring every ledger's header row in line with the current layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			plans, err := e.admin.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			if failed := printPlans(cmd.OutOrStdout(), plans); failed > 0 {
				return fmt.Errorf("%d ledger(s) failed to reconcile", failed)
			}
			return nil
		},
	}
}

func refreshCmd() *cobra.Command {
	var (
		telegramID int64
		taxID      string
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch company data and overwrite the enrichment columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			res, err := e.admin.Refresh(cmd.Context(), telegramID, taxID)
			if err != nil {
				return err
			}
			printRefresh(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().Int64Var(&telegramID, "manager", 0, "Telegram id of the manager owning the ledger")
	cmd.Flags().StringVar(&taxID, "tax-id", "", "Tax id of the company (10 or 12 digits)")
	_ = cmd.MarkFlagRequired("manager")
	_ = cmd.MarkFlagRequired("tax-id")
	return cmd
}

func printReport(w io.Writer, r importer.Report) {
	fmt.Fprintf(w, "imported: %d\nfailed:   %d\n", r.Imported, r.Failed)
	for _, e := range r.Errors {
		if e.TaxID != "" {
			fmt.Fprintf(w, "  line %d (%s): %s\n", e.Line, e.TaxID, e.Message)
		} else {
			fmt.Fprintf(w, "  line %d: %s\n", e.Line, e.Message)
		}
	}
	if r.ArchiveKey != "" {
		fmt.Fprintf(w, "archived: %s\n", r.ArchiveKey)
	}
	fmt.Fprintf(w, "ledger:   %s\n", r.LedgerURL)
}

// printPlans returns the number of ledgers that failed.
func printPlans(w io.Writer, plans []admin.LedgerPlan) int {
	failed := 0
	for _, p := range plans {
		label := p.Kind + " " + p.LedgerID
		if p.Owner != "" {
			label += " (" + p.Owner + ")"
		}
		switch {
		case p.Err != nil:
			failed++
			fmt.Fprintf(w, "%s: FAILED %v\n", label, p.Err)
		case p.Plan.NoOp():
			fmt.Fprintf(w, "%s: up to date\n", label)
		default:
			fmt.Fprintf(w, "%s: migrated (moved %d, added %d, dropped %v)\n",
				label, len(p.Plan.Moves), len(p.Plan.Added), p.Plan.Dropped)
		}
	}
	return failed
}

func printRefresh(w io.Writer, r admin.RefreshResult) {
	fmt.Fprintf(w, "tax id:    %s\nfetch:     %s\noperator:  %s\naggregate: %s\n",
		r.TaxID, r.Status, r.Outcome.Operator.Action, r.Outcome.Aggregate.Action)
}
