package main

import (
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/felixkade/ledgersync/internal/feedback"
)

func correctCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct <transaction-id> <category>",
		Short: "Correct a transaction's category",
		Long: `Assign the final category to a transaction, overriding any suggestion.

Corrections are remembered: once the same description has been corrected
to the same category enough times, a rule is created so future
transactions match without the AI.`,
		Args: cobra.ExactArgs(2),
		RunE: runCorrect,
	}

	cmd.Flags().Int("deductible-percent", -1, "override the deductibility percentage for this transaction")

	return cmd
}

func runCorrect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	txnID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return err
	}

	user, err := requireUser()
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	category, err := store.GetCategoryByName(ctx, args[1])
	if err != nil {
		return err
	}

	var override *int
	if percent, _ := cmd.Flags().GetInt("deductible-percent"); percent >= 0 {
		override = &percent
	}

	learner := feedback.NewLearner(store, viper.GetInt("feedback.promotion_threshold"), nil)
	outcome, err := learner.RecordCorrection(ctx, user, txnID, category.ID, override)
	if err != nil {
		return err
	}

	cmd.Printf("Transaction %d categorized as %s\n", txnID, category.Name)
	if outcome.PromotedRule != nil {
		cmd.Printf("Created rule: descriptions containing %q now suggest %s\n",
			outcome.PromotedRule.Pattern, category.Name)
	}
	return nil
}
