package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusworks/dept-admin-api/internal/models"
	"github.com/campusworks/dept-admin-api/pkg/jobs"
)

// WebhookConfig tunes outbound publish notifications.
type WebhookConfig struct {
	Enabled    bool
	Endpoint   string
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// publishEvent is the payload delivered to the configured endpoint.
type publishEvent struct {
	Event       string     `json:"event"`
	PostID      string     `json:"post_id"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	SentAt      time.Time  `json:"sent_at"`
}

// WebhookService pushes post publication events to an external
// endpoint through a background queue. Delivery is best effort; the
// queue retries transport failures.
type WebhookService struct {
	cfg    WebhookConfig
	client *http.Client
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewWebhookService constructs the service and its delivery queue. The
// queue is not started; call Start before enqueueing.
func NewWebhookService(cfg WebhookConfig, logger *zap.Logger) *WebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	s := &WebhookService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	s.queue = jobs.NewQueue("webhooks", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *WebhookService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the workers. Pending deliveries are abandoned.
func (s *WebhookService) Stop() {
	if !s.cfg.Enabled {
		return
	}
	if pending := s.queue.Depth(); pending > 0 {
		s.logger.Warn("stopping webhook queue with pending deliveries", zap.Int("pending", pending))
	}
	s.queue.Stop()
}

// PostPublished enqueues a notification for a post that just became
// publicly visible.
func (s *WebhookService) PostPublished(post *models.Post) {
	if !s.cfg.Enabled || s.cfg.Endpoint == "" || post == nil {
		return
	}
	event := publishEvent{
		Event:       "post.published",
		PostID:      post.ID,
		Slug:        post.Slug,
		Title:       post.Title,
		PublishedAt: post.PublishedAt,
		SentAt:      time.Now().UTC(),
	}
	job := jobs.Job{ID: uuid.NewString(), Type: "post.published", Payload: event}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue publish webhook", zap.String("post_id", post.ID), zap.Error(err))
	}
}

func (s *WebhookService) deliver(ctx context.Context, job jobs.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event", job.Type)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}

	s.logger.Debug("webhook delivered",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("status", resp.StatusCode))
	return nil
}
