package webhooksink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/notify"
)

// SinkConfig is the configuration for the webhook sink.
type SinkConfig struct {
	URL        string
	MaxRetries int
	// RetryInitialInterval is the wait before the first retry, it grows exponentially.
	RetryInitialInterval time.Duration
	HTTPClient           *http.Client
	Logger               log.Logger
}

func (c *SinkConfig) defaults() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 500 * time.Millisecond
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "notify.WebhookSink"})
	return nil
}

// Sink posts the events as JSON to an external URL.
type Sink struct {
	cfg    SinkConfig
	logger log.Logger
}

var _ notify.Sink = &Sink{}

// NewSink returns a new webhook sink.
func NewSink(cfg SinkConfig) (*Sink, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Sink{cfg: cfg, logger: cfg.Logger}, nil
}

func (s *Sink) Name() string { return "webhook" }

// Event is the JSON representation of an event.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	TaskID     string            `json:"task_id"`
	PaymentID  string            `json:"payment_id,omitempty"`
	Recipients []string          `json:"recipients"`
	Message    string            `json:"message"`
	Data       map[string]string `json:"data,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (s *Sink) Send(ctx context.Context, e model.Event) error {
	body, err := json.Marshal(Event{
		ID:         e.ID,
		Type:       string(e.Type),
		TaskID:     e.TaskID,
		PaymentID:  e.PaymentID,
		Recipients: e.Recipients,
		Message:    e.Message,
		Data:       e.Data,
		CreatedAt:  e.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("could not encode event: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.RetryInitialInterval
	retrier := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.MaxRetries)), ctx)

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("could not create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.cfg.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("could not post event: %w", err)
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("webhook rejected the event with %d", resp.StatusCode))
		}
	}, retrier)
}
