package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/felixkade/ledgersync/internal/provider"
	"github.com/felixkade/ledgersync/internal/token"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts <connection-id>",
		Short: "List the provider's accounts and balances",
		Long: `Query the provider for the accounts visible through a connection,
with their current balances. Useful to find the account ID to connect.`,
		Args: cobra.ExactArgs(1),
		RunE: runAccounts,
	}
	return cmd
}

func runAccounts(cmd *cobra.Command, args []string) error {
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

	client, err := initProvider()
	if err != nil {
		return err
	}

	tokens := token.NewManager(store, client, provider.IsPermanentAuthError)
	accessToken, err := tokens.EnsureValidToken(ctx, conn)
	if err != nil {
		return err
	}

	accounts, err := client.ListAccounts(ctx, accessToken)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCURRENCY\tBALANCE")
	for _, account := range accounts {
		balance, err := client.GetBalance(ctx, accessToken, account.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n",
			account.ID, account.Name, account.Currency, balance.Amount)
	}
	return w.Flush()
}
