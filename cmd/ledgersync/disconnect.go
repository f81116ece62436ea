package main

import (
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/felixkade/ledgersync/internal/model"
)

func disconnectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disconnect <connection-id>",
		Short: "Revoke a bank connection",
		Long: `Revoke a bank connection's tokens with the provider and mark it revoked.

Disconnecting an already terminal connection deletes it, along with its
transactions.`,
		Args: cobra.ExactArgs(1),
		RunE: runDisconnect,
	}
	return cmd
}

func runDisconnect(cmd *cobra.Command, args []string) error {
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

	if conn.Status.IsTerminal() {
		if err := store.DeleteConnection(ctx, conn.ID); err != nil {
			return err
		}
		cmd.Printf("Deleted %s connection %d\n", conn.Status, conn.ID)
		return nil
	}

	client, err := initProvider()
	if err != nil {
		return err
	}

	// Best effort: a failed revocation still revokes locally, the tokens
	// just age out on the provider side.
	if conn.AccessToken != "" {
		if err := client.RevokeToken(ctx, conn.AccessToken); err != nil {
			slog.Warn("provider token revocation failed", "connection_id", conn.ID, "error", err)
		}
	}

	if err := store.SetConnectionStatus(ctx, conn.ID, model.ConnectionRevoked, ""); err != nil {
		return err
	}

	cmd.Printf("Revoked connection %d (%s)\n", conn.ID, conn.ExternalAccountID)
	return nil
}
