package scoring

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RecalculateAll rescores every lead, optionally limited to one client, and
// returns how many succeeded. A failing lead is logged and skipped. Only a
// failure to list the leads is returned as an error.
func (s *Service) RecalculateAll(ctx context.Context, clientID *uuid.UUID) (int, error) {
	ids, err := s.store.ListLeadIDs(ctx, clientID)
	if err != nil {
		return 0, err
	}

	var (
		saved atomic.Int64
		g     errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if _, err := s.ScoreAndSave(ctx, id); err != nil {
				s.log.WithContext(ctx).Error("rescore lead failed", "leadId", id, "error", err)
				return nil
			}
			saved.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	s.log.WithContext(ctx).Info("rescore finished", "candidates", len(ids), "saved", saved.Load())
	return int(saved.Load()), nil
}
