package httpgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/slok/taskbroker/internal/gateway"
	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/model"
)

// GatewayConfig is the configuration for the HTTP gateway client.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	// Timeout is applied to every attempt.
	Timeout    time.Duration
	MaxRetries int
	// RetryInitialInterval is the wait before the first retry, it grows exponentially.
	RetryInitialInterval time.Duration
	HTTPClient           *http.Client
	Logger               log.Logger
}

func (c *GatewayConfig) defaults() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")

	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries can't be negative")
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 200 * time.Millisecond
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "gateway.HTTP"})
	return nil
}

// Gateway is a gateway.Gateway that talks JSON over HTTP with the payment processor.
type Gateway struct {
	cfg    GatewayConfig
	logger log.Logger
}

var _ gateway.Gateway = &Gateway{}

// NewGateway returns a new HTTP gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Gateway{cfg: cfg, logger: cfg.Logger}, nil
}

type holdRequest struct {
	PaymentID        string `json:"payment_id"`
	TaskID           string `json:"task_id"`
	ClientID         string `json:"client_id"`
	ContractorID     string `json:"contractor_id"`
	Currency         string `json:"currency"`
	Amount           int64  `json:"amount"`
	ContractorAmount int64  `json:"contractor_amount"`
	CommissionAmount int64  `json:"commission_amount"`
}

type holdResponse struct {
	IntentID string `json:"intent_id"`
	Status   string `json:"status"`
}

type captureResponse struct {
	TransferID string `json:"transfer_id"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type refundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

type refundResponse struct {
	RefundID string `json:"refund_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (g *Gateway) CreateHold(ctx context.Context, r gateway.HoldRequest) (*gateway.Hold, error) {
	req := holdRequest{
		PaymentID:        r.PaymentID,
		TaskID:           r.TaskID,
		ClientID:         r.ClientID,
		ContractorID:     r.ContractorID,
		Currency:         r.Currency,
		Amount:           int64(r.Amount),
		ContractorAmount: int64(r.ContractorAmount),
		CommissionAmount: int64(r.CommissionAmount),
	}

	var resp holdResponse
	if err := g.do(ctx, http.MethodPost, "/v1/holds", r.IdempotencyKey, req, &resp); err != nil {
		return nil, err
	}

	return &gateway.Hold{IntentID: resp.IntentID, Status: gateway.HoldStatus(resp.Status)}, nil
}

func (g *Gateway) GetHold(ctx context.Context, intentID string) (*gateway.Hold, error) {
	var resp holdResponse
	if err := g.do(ctx, http.MethodGet, "/v1/holds/"+url.PathEscape(intentID), "", nil, &resp); err != nil {
		return nil, err
	}

	return &gateway.Hold{IntentID: resp.IntentID, Status: gateway.HoldStatus(resp.Status)}, nil
}

func (g *Gateway) Capture(ctx context.Context, r gateway.CaptureRequest) (*gateway.Capture, error) {
	var resp captureResponse
	if err := g.do(ctx, http.MethodPost, "/v1/holds/"+url.PathEscape(r.IntentID)+"/capture", r.IdempotencyKey, struct{}{}, &resp); err != nil {
		return nil, err
	}

	return &gateway.Capture{TransferID: resp.TransferID}, nil
}

func (g *Gateway) CancelHold(ctx context.Context, r gateway.CancelRequest) error {
	return g.do(ctx, http.MethodPost, "/v1/holds/"+url.PathEscape(r.IntentID)+"/cancel", r.IdempotencyKey, cancelRequest{Reason: r.Reason}, nil)
}

func (g *Gateway) Refund(ctx context.Context, r gateway.RefundRequest) (*gateway.Refund, error) {
	req := refundRequest{Amount: int64(r.Amount), Reason: r.Reason}

	var resp refundResponse
	if err := g.do(ctx, http.MethodPost, "/v1/holds/"+url.PathEscape(r.IntentID)+"/refunds", r.IdempotencyKey, req, &resp); err != nil {
		return nil, err
	}

	return &gateway.Refund{RefundID: resp.RefundID}, nil
}

// do runs the request retrying temporary failures with exponential backoff.
func (g *Gateway) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		payload = b
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.cfg.RetryInitialInterval
	retrier := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(g.cfg.MaxRetries)), ctx)

	notify := func(err error, wait time.Duration) {
		g.logger.Warningf("%s %s failed, retrying in %s: %s", method, path, wait, err)
	}

	err := backoff.RetryNotify(func() error {
		return g.attempt(ctx, method, path, idempotencyKey, payload, out)
	}, retrier, notify)
	if err != nil {
		if errors.Is(err, model.ErrGateway) {
			return err
		}
		return fmt.Errorf("%w: %w", gateway.ErrUnavailable, err)
	}

	return nil
}

func (g *Gateway) attempt(ctx context.Context, method, path, idempotencyKey string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("could not create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", gateway.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: could not read response: %w", gateway.ErrUnavailable, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: could not decode response: %w", gateway.ErrUnavailable, err))
		}
		return nil
	}

	msg := http.StatusText(resp.StatusCode)
	var er errorResponse
	if json.Unmarshal(data, &er) == nil && er.Error != "" {
		msg = er.Error
	}

	if retryableStatus(resp.StatusCode) {
		return fmt.Errorf("%w: %d %s", gateway.ErrUnavailable, resp.StatusCode, msg)
	}
	return backoff.Permanent(fmt.Errorf("%w: %d %s", gateway.ErrDeclined, resp.StatusCode, msg))
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}
