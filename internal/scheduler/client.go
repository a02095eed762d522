package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"leadfunnel_backend/internal/funnels/ports"
	"leadfunnel_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const leadScoreMaxRetry = 5

type Client struct {
	client *asynq.Client
	queue  string
}

var _ ports.ScoreScheduler = (*Client)(nil)

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return newClient(asynq.NewClient(opt), cfg.GetAsynqQueueName()), nil
}

func newClient(client *asynq.Client, queue string) *Client {
	if queue == "" {
		queue = "default"
	}
	return &Client{client: client, queue: queue}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleLeadScoring enqueues one scoring run for the lead. Retries are
// safe because scores are upserted by lead id.
func (c *Client) ScheduleLeadScoring(ctx context.Context, leadID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewLeadScoreTask(LeadScorePayload{LeadID: leadID.String()})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(leadScoreMaxRetry),
		asynq.Timeout(30*time.Second),
	)
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
