// Command ledgerctl runs ledger maintenance outside the chat: bulk import for
// a manager, schema reconciliation and explicit re-enrichment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Ledger maintenance for the sales-call bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(importCmd(), reconcileCmd(), refreshCmd())
	return cmd
}
