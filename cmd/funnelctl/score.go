package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"leadfunnel_backend/internal/funnels/domain"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// -- rescore --

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute and store the score of every lead",
	Long: `Recompute the qualification score of every lead with the current model
version and upsert it. Per-lead failures are logged and skipped.

Examples:
  # Rescore everything
  funnelctl rescore

  # Rescore one client's leads
  funnelctl rescore --client 5b1c...`,
	RunE: runRescore,
}

func runRescore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clientID, err := optionalUUID(cmd, "client")
	if err != nil {
		return err
	}

	m, closeFn, err := openFunnels(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := m.ScoringService().RecalculateAll(ctx, clientID)
	if err != nil {
		return fmt.Errorf("rescore: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recalculated scores for %d leads\n", n)
	return nil
}

// -- score --

var scoreCmd = &cobra.Command{
	Use:   "score <leadId>",
	Short: "Score one lead",
	Long:  "Score one lead. Without --save the result is printed and not stored.",
	Args:  cobra.ExactArgs(1),
	RunE:  runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	leadID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid lead id %q", args[0])
	}
	save, _ := cmd.Flags().GetBool("save")
	format, _ := cmd.Flags().GetString("format")

	m, closeFn, err := openFunnels(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	var score domain.Score
	if save {
		score, err = m.ScoringService().ScoreAndSave(cmd.Context(), leadID)
	} else {
		score, err = m.ScoringService().Calculate(cmd.Context(), leadID)
	}
	if err != nil {
		return fmt.Errorf("score lead %s: %w", leadID, err)
	}
	return printScore(cmd, score, format)
}

func printScore(cmd *cobra.Command, s domain.Score, format string) error {
	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Lead\t%s\n", s.LeadID)
	fmt.Fprintf(w, "Timeline\t%d\n", s.Timeline)
	fmt.Fprintf(w, "Financial readiness\t%d\n", s.FinancialReadiness)
	fmt.Fprintf(w, "Engagement\t%d\n", s.Engagement)
	fmt.Fprintf(w, "Response speed\t%d\n", s.ResponseSpeed)
	fmt.Fprintf(w, "Specificity\t%d\n", s.Specificity)
	fmt.Fprintf(w, "Total\t%d\n", s.Total)
	fmt.Fprintf(w, "Tier\t%s\n", s.Tier)
	fmt.Fprintf(w, "Version\t%s\n", s.Version)
	return w.Flush()
}

func optionalUUID(cmd *cobra.Command, flag string) (*uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString(flag)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q", flag, raw)
	}
	return &id, nil
}

func init() {
	rescoreCmd.Flags().String("client", "", "limit rescoring to one client id")
	scoreCmd.Flags().Bool("save", false, "store the score")
	scoreCmd.Flags().String("format", "table", "output format: table or json")

	rootCmd.AddCommand(rescoreCmd, scoreCmd)
}
