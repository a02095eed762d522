package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepSessionsCmd = &cobra.Command{
	Use:   "sweep-sessions",
	Short: "Abandon funnel sessions idle for longer than --idle",
	RunE: func(cmd *cobra.Command, _ []string) error {
		idle, _ := cmd.Flags().GetDuration("idle")
		if idle <= 0 {
			idle = cfg.GetSessionIdleTTL()
		}

		m, closeFn, err := openFunnels(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		n, err := m.Machine().AbandonIdleSessions(cmd.Context(), idle)
		if err != nil {
			return fmt.Errorf("sweep sessions: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Abandoned %d sessions idle for more than %s\n", n, idle)
		return nil
	},
}

func init() {
	sweepSessionsCmd.Flags().Duration("idle", 0, "idle window (default SESSION_IDLE_TTL)")
	rootCmd.AddCommand(sweepSessionsCmd)
}
