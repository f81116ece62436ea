package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/felixkade/ledgersync/internal/model"
)

func connectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "List bank connections and their sync state",
		RunE:  runConnections,
	}
	return cmd
}

func runConnections(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tACCOUNT\tSTATUS\tLAST SYNC\tLAST ERROR")

	statuses := []model.ConnectionStatus{
		model.ConnectionPending,
		model.ConnectionActive,
		model.ConnectionError,
		model.ConnectionExpired,
		model.ConnectionRevoked,
	}
	for _, status := range statuses {
		connections, err := store.ListConnectionsByStatus(ctx, status)
		if err != nil {
			return err
		}
		for _, conn := range connections {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				conn.ID, conn.UserID, conn.ExternalAccountID, conn.Status,
				formatTime(conn.LastSyncAt), conn.LastSyncError)
		}
	}
	return w.Flush()
}
