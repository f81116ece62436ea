package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List categories and their tax treatment",
		RunE:  runCategories,
	}
	return cmd
}

func runCategories(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	categories, err := store.ListCategories(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tDEDUCTIBLE\tTAX CODE")
	for _, cat := range categories {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d%%\t%s\n",
			cat.ID, cat.Name, cat.Type, cat.DefaultDeductiblePercent, cat.TaxCode)
	}
	return w.Flush()
}
