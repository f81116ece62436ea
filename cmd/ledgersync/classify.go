package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <connection-id>",
		Short: "Categorize unclassified transactions",
		Long: `Run the categorization pipeline over a connection's unclassified
transactions: rules first, then the AI classifier for whatever the rules
did not match.`,
		Args: cobra.ExactArgs(1),
		RunE: runClassify,
	}
	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
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

	eng, err := initEngine(store)
	if err != nil {
		return err
	}

	stats, err := eng.ClassifyConnection(ctx, conn.ID, conn.UserID)
	if err != nil {
		return err
	}

	cmd.Printf("%d transactions: %d rule-matched (%d auto-approved), %d AI-classified, %d need review\n",
		stats.Total, stats.RuleMatched, stats.AutoApproved, stats.AIClassified, stats.NeedsReview)
	return nil
}
