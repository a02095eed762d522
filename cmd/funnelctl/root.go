package main

import (
	"context"
	"fmt"
	"os"

	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnels"
	"leadfunnel_backend/internal/funnels/repository"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/db"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"

	"github.com/spf13/cobra"
)

var (
	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "funnelctl",
	Short: "Operate the lead funnel backend",
	Long:  "Rescores leads, inspects scores and closes idle funnel sessions against the production database.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		log = logger.New(cfg.Env)
		return nil
	},
	SilenceUsage: true,
}

// openFunnels connects to the database and builds the funnels module. The
// returned func releases the pool after pending event handlers finish.
func openFunnels(ctx context.Context) (*funnels.Module, func(), error) {
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	bus := events.NewInMemoryBus(log)
	m, err := funnels.NewModule(repository.New(pool), bus, validator.New(), cfg, log, funnels.Deps{})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	return m, func() {
		bus.Wait()
		pool.Close()
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
