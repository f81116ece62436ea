package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/felixkade/ledgersync/internal/ofx"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <connection-id> <file.ofx>",
		Short: "Import transactions from an OFX/QFX file",
		Long: `Import a downloaded statement file into a connection's ledger.

Transactions are keyed by their FITID, so re-importing a file, or
importing a file that overlaps a synced window, never duplicates rows.
Imported transactions are categorized like synced ones.`,
		Args: cobra.ExactArgs(2),
		RunE: runImport,
	}
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	connID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	conn, err := store.GetConnection(ctx, connID)
	if err != nil {
		return err
	}

	file, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	transactions, err := ofx.NewParser(nil).ParseFile(ctx, conn.ID, file)
	if err != nil {
		return err
	}

	var imported, skipped int
	for i := range transactions {
		inserted, err := store.InsertTransaction(ctx, &transactions[i])
		if err != nil {
			return err
		}
		if inserted {
			imported++
		} else {
			skipped++
		}
	}

	eng, err := initEngine(store)
	if err != nil {
		return err
	}
	stats, err := eng.ClassifyConnection(ctx, conn.ID, conn.UserID)
	if err != nil {
		return err
	}

	cmd.Printf("Imported %d transactions (%d already known), %d categorized\n",
		imported, skipped, stats.RuleMatched+stats.AIClassified)
	return nil
}
