package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/slok/taskbroker/internal/gateway"
	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/model"
)

// GatewayConfig is the configuration for the fake gateway.
type GatewayConfig struct {
	// AutoAuthorize makes new holds authorized right away, as if the client confirmed
	// the payment method at hold creation.
	AutoAuthorize bool
	Logger        log.Logger
}

func (c *GatewayConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "gateway.Fake"})
	return nil
}

// HoldState is the fake gateway bookkeeping of a hold.
type HoldState struct {
	IntentID   string
	Status     gateway.HoldStatus
	Amount     model.Money
	Refunded   model.Money
	TransferID string
	// Captures is the number of captures that moved money.
	Captures int
}

// Gateway is a fake implementation of the gateway.Gateway interface.
// It keeps the money movements in memory and honors idempotency keys.
type Gateway struct {
	holds         map[string]*HoldState
	results       map[string]any
	failures      map[string][]error
	autoAuthorize bool
	mu            sync.Mutex
	logger        log.Logger
}

var _ gateway.Gateway = &Gateway{}

// NewGateway creates a new fake gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Gateway{
		holds:         map[string]*HoldState{},
		results:       map[string]any{},
		failures:      map[string][]error{},
		autoAuthorize: cfg.AutoAuthorize,
		logger:        cfg.Logger,
	}, nil
}

// FailNext makes the next call of the operation (gateway.OpXxx) return err.
// Calls queue, each one fails a single call.
func (g *Gateway) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = append(g.failures[op], err)
}

// Authorize simulates the client confirming the payment method of a hold.
func (g *Gateway) Authorize(intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	h, ok := g.holds[intentID]
	if !ok {
		return fmt.Errorf("hold %s: %w", intentID, model.ErrNotFound)
	}
	if h.Status == gateway.HoldStatusRequiresPaymentMethod {
		h.Status = gateway.HoldStatusRequiresCapture
	}

	return nil
}

// State returns the bookkeeping of a hold.
func (g *Gateway) State(intentID string) (HoldState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	h, ok := g.holds[intentID]
	if !ok {
		return HoldState{}, false
	}
	return *h, true
}

func (g *Gateway) CreateHold(ctx context.Context, r gateway.HoldRequest) (*gateway.Hold, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failure(gateway.OpCreateHold); err != nil {
		return nil, err
	}
	if res, ok := g.results[r.IdempotencyKey].(*gateway.Hold); ok {
		return res, nil
	}
	if r.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %w", gateway.ErrDeclined)
	}

	h := &HoldState{
		IntentID: "pi_" + ulid.Make().String(),
		Status:   gateway.HoldStatusRequiresPaymentMethod,
		Amount:   r.Amount,
	}
	if g.autoAuthorize {
		h.Status = gateway.HoldStatusRequiresCapture
	}
	g.holds[h.IntentID] = h

	res := &gateway.Hold{IntentID: h.IntentID, Status: h.Status}
	g.remember(r.IdempotencyKey, res)
	g.logger.Infof("Created fake hold %s of %s for payment %s", h.IntentID, r.Amount, r.PaymentID)

	return res, nil
}

func (g *Gateway) GetHold(ctx context.Context, intentID string) (*gateway.Hold, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failure(gateway.OpGetHold); err != nil {
		return nil, err
	}
	h, ok := g.holds[intentID]
	if !ok {
		return nil, fmt.Errorf("unknown hold %s: %w", intentID, gateway.ErrDeclined)
	}

	return &gateway.Hold{IntentID: h.IntentID, Status: h.Status}, nil
}

func (g *Gateway) Capture(ctx context.Context, r gateway.CaptureRequest) (*gateway.Capture, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failure(gateway.OpCapture); err != nil {
		return nil, err
	}
	if res, ok := g.results[r.IdempotencyKey].(*gateway.Capture); ok {
		return res, nil
	}

	h, ok := g.holds[r.IntentID]
	if !ok {
		return nil, fmt.Errorf("unknown hold %s: %w", r.IntentID, gateway.ErrDeclined)
	}
	switch h.Status {
	case gateway.HoldStatusSucceeded:
		return &gateway.Capture{TransferID: h.TransferID}, nil
	case gateway.HoldStatusRequiresCapture:
	default:
		return nil, fmt.Errorf("hold %s is %s: %w", h.IntentID, h.Status, gateway.ErrDeclined)
	}

	h.Status = gateway.HoldStatusSucceeded
	h.TransferID = "tr_" + ulid.Make().String()
	h.Captures++

	res := &gateway.Capture{TransferID: h.TransferID}
	g.remember(r.IdempotencyKey, res)
	g.logger.Infof("Captured fake hold %s", h.IntentID)

	return res, nil
}

func (g *Gateway) CancelHold(ctx context.Context, r gateway.CancelRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failure(gateway.OpCancelHold); err != nil {
		return err
	}

	h, ok := g.holds[r.IntentID]
	if !ok {
		return fmt.Errorf("unknown hold %s: %w", r.IntentID, gateway.ErrDeclined)
	}
	switch h.Status {
	case gateway.HoldStatusCanceled:
		return nil
	case gateway.HoldStatusSucceeded:
		return fmt.Errorf("hold %s already captured: %w", h.IntentID, gateway.ErrDeclined)
	}

	h.Status = gateway.HoldStatusCanceled
	g.logger.Infof("Canceled fake hold %s", h.IntentID)

	return nil
}

func (g *Gateway) Refund(ctx context.Context, r gateway.RefundRequest) (*gateway.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failure(gateway.OpRefund); err != nil {
		return nil, err
	}
	if res, ok := g.results[r.IdempotencyKey].(*gateway.Refund); ok {
		return res, nil
	}

	h, ok := g.holds[r.IntentID]
	if !ok {
		return nil, fmt.Errorf("unknown hold %s: %w", r.IntentID, gateway.ErrDeclined)
	}
	if h.Status != gateway.HoldStatusSucceeded {
		return nil, fmt.Errorf("hold %s is %s: %w", h.IntentID, h.Status, gateway.ErrDeclined)
	}
	if r.Amount <= 0 || r.Amount > h.Amount-h.Refunded {
		return nil, fmt.Errorf("refund of %s exceeds refundable amount: %w", r.Amount, gateway.ErrDeclined)
	}

	h.Refunded += r.Amount

	res := &gateway.Refund{RefundID: "re_" + ulid.Make().String()}
	g.remember(r.IdempotencyKey, res)
	g.logger.Infof("Refunded %s of fake hold %s", r.Amount, h.IntentID)

	return res, nil
}

func (g *Gateway) failure(op string) error {
	errs := g.failures[op]
	if len(errs) == 0 {
		return nil
	}
	g.failures[op] = errs[1:]
	return errs[0]
}

func (g *Gateway) remember(key string, res any) {
	if key != "" {
		g.results[key] = res
	}
}
