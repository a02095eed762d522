package scheduler

import (
	"context"
	"fmt"

	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// LeadScorer computes and persists one lead's score.
type LeadScorer interface {
	ScoreAndSave(ctx context.Context, leadID uuid.UUID) (domain.Score, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	scorer LeadScorer
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, scorer LeadScorer, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	return newWorker(server, scorer, log), nil
}

func newWorker(server *asynq.Server, scorer LeadScorer, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		scorer: scorer,
		log:    log,
	}

	mux.HandleFunc(TaskLeadScore, w.handleLeadScore)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleLeadScore(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadScorePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	score, err := w.scorer.ScoreAndSave(ctx, leadID)
	if apperr.Is(err, apperr.KindNotFound) {
		w.log.Warn("lead vanished before scoring", "leadId", leadID)
		return nil
	}
	if err != nil {
		return err
	}

	w.log.Info("lead scored", "leadId", leadID, "total", score.Total, "tier", score.Tier)
	return nil
}
