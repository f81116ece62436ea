package main

import (
	"fmt"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/felixkade/ledgersync/internal/model"
	syncer "github.com/felixkade/ledgersync/internal/sync"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [connection-id]",
		Short: "Sync transactions from connected banks",
		Long: `Fetch new transactions for a connection and categorize them.

With --all, every active connection is synced, a few in parallel.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSync,
	}

	cmd.Flags().Bool("all", false, "sync every active connection")

	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	all, _ := cmd.Flags().GetBool("all")

	if !all && len(args) == 0 {
		return fmt.Errorf("pass a connection ID or --all")
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	orchestrator, err := initOrchestrator(store)
	if err != nil {
		return err
	}

	if all {
		return runSyncAll(cmd, orchestrator)
	}

	connID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return err
	}

	result, err := orchestrator.SyncConnection(ctx, connID)
	if err != nil {
		return err
	}
	printSyncResult(cmd, connID, result)
	return nil
}

func runSyncAll(cmd *cobra.Command, orchestrator *syncer.Orchestrator) error {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("syncing connections"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
	)

	results, err := orchestrator.SyncAll(cmd.Context(), func(syncer.ConnectionResult) {
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	cmd.Println()
	if err != nil {
		return err
	}

	var failures int
	for _, r := range results {
		if r.Err != nil {
			failures++
			cmd.PrintErrf("connection %d (%s): %v\n", r.Connection.ID, r.Connection.ExternalAccountID, r.Err)
			continue
		}
		printSyncResult(cmd, r.Connection.ID, r.Result)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d connections failed to sync", failures, len(results))
	}
	return nil
}

func printSyncResult(cmd *cobra.Command, connID int64, result *model.SyncResult) {
	switch result.Code {
	case model.SyncCodeTokenExpired:
		cmd.Printf("connection %d: token expired, reconnect with 'ledgersync connect'\n", connID)
	case model.SyncCodeSCAExceeded:
		cmd.Printf("connection %d: bank requires re-authentication, reconnect with 'ledgersync connect'\n", connID)
	case model.SyncCodeAlreadySynced:
		cmd.Printf("connection %d: already up to date (%d known transactions)\n", connID, result.Skipped)
	default:
		cmd.Printf("connection %d: %d new, %d known, %d categorized\n",
			connID, result.Synced, result.Skipped, result.Categorized)
	}
}
