package main

import (
	"fmt"
	"text/tabwriter"

	"leadfunnel_backend/internal/funnels/templates"

	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the built-in funnel templates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		intent, _ := cmd.Flags().GetString("intent")

		list, err := templates.System()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tINTENT\tSTEPS\tNAME")
		for _, t := range templates.ByIntent(list, intent) {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.Key, t.Intent, len(t.Steps), t.Name)
		}
		return w.Flush()
	},
}

func init() {
	templatesCmd.Flags().String("intent", "", "filter by intent (buyer, seller, investor, renter)")
	rootCmd.AddCommand(templatesCmd)
}
