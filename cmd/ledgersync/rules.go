package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/felixkade/ledgersync/internal/model"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesDeactivateCmd())

	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active rules in evaluation order",
		RunE:  runRulesList,
	}
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	user, err := requireUser()
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rules, err := store.ListActiveRules(ctx, user)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRIORITY\tPATTERN\tMATCH\tSOURCE\tAUTO-APPROVE\tCATEGORY")
	for _, rule := range rules {
		category, err := store.GetCategory(ctx, rule.CategoryID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%t\t%s\n",
			rule.ID, rule.Priority, rule.Pattern, rule.MatchType, rule.Source,
			rule.AutoApprove, category.Name)
	}
	return w.Flush()
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <pattern> <category>",
		Short: "Add a categorization rule",
		Long: `Add a rule that assigns a category to matching transactions.

The pattern matches against the normalized (lowercased) description.`,
		Args: cobra.ExactArgs(2),
		RunE: runRulesAdd,
	}

	cmd.Flags().String("match", string(model.MatchContains), "match type (exact, contains, regex)")
	cmd.Flags().Int("priority", 100, "evaluation priority, lower runs first")
	cmd.Flags().Bool("auto-approve", false, "assign the category directly instead of suggesting it")
	cmd.Flags().String("direction", "", "restrict to a direction (debit, credit)")

	return cmd
}

func runRulesAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

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

	matchType, _ := cmd.Flags().GetString("match")
	priority, _ := cmd.Flags().GetInt("priority")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")

	rule := &model.CategorizationRule{
		Pattern:     args[0],
		MatchType:   model.RuleMatchType(matchType),
		CategoryID:  category.ID,
		Priority:    priority,
		Source:      model.RuleSourceUser,
		UserID:      &user,
		Active:      true,
		AutoApprove: autoApprove,
	}

	if direction, _ := cmd.Flags().GetString("direction"); direction != "" {
		d := model.TransactionDirection(direction)
		if d != model.DirectionDebit && d != model.DirectionCredit {
			return fmt.Errorf("invalid direction %q", direction)
		}
		rule.Direction = &d
	}

	if err := store.CreateRule(ctx, rule); err != nil {
		return err
	}

	cmd.Printf("Created rule %d: %s %q -> %s\n", rule.ID, rule.MatchType, rule.Pattern, category.Name)
	return nil
}

func rulesDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <rule-id>",
		Short: "Deactivate a rule",
		Args:  cobra.ExactArgs(1),
		RunE:  runRulesDeactivate,
	}
}

func runRulesDeactivate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ruleID, err := strconv.ParseInt(args[0], 10, 64)
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

	rule, err := store.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	if !rule.OwnedBy(user) {
		return fmt.Errorf("rule %d is not owned by %s", rule.ID, user)
	}

	if err := store.DeactivateRule(ctx, rule.ID); err != nil {
		return err
	}

	cmd.Printf("Deactivated rule %d (%q)\n", rule.ID, rule.Pattern)
	return nil
}
