package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/metrics"
	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/notify"
	"github.com/slok/taskbroker/internal/storage"
)

// PaymentExecutor moves the escrow money on the gateway without storing the payment.
type PaymentExecutor interface {
	LockPayment(ctx context.Context, paymentID string) (unlock func(), err error)
	ExecuteCapture(ctx context.Context, pay model.Payment) (*model.Payment, error)
	ExecuteRefund(ctx context.Context, pay model.Payment, reason string, amount *model.Money) (*model.Payment, error)
}

// ServiceConfig is the configuration for the dispute service.
type ServiceConfig struct {
	Repository storage.Repository
	Payments   PaymentExecutor
	Publisher  notify.Publisher
	Metrics    metrics.Recorder
	Platform   model.PlatformConfig
	TimeNow    func() time.Time
	IDGen      func() string
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Payments == nil {
		return fmt.Errorf("payments is required")
	}
	if c.Publisher == nil {
		c.Publisher = notify.NoopPublisher
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.Platform.Currency == "" {
		c.Platform = model.DefaultPlatformConfig()
	}
	if err := c.Platform.Validate(); err != nil {
		return fmt.Errorf("invalid platform config: %w", err)
	}
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	if c.IDGen == nil {
		c.IDGen = func() string { return ulid.Make().String() }
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Dispute"})
	return nil
}

// Service resolves disputed tasks.
type Service struct {
	repo       storage.Repository
	payments   PaymentExecutor
	publisher  notify.Publisher
	metrics    metrics.Recorder
	commission model.Rate
	splitShare model.Rate
	timeNow    func() time.Time
	idGen      func() string
	logger     log.Logger
}

// NewService returns a new dispute service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:       cfg.Repository,
		payments:   cfg.Payments,
		publisher:  cfg.Publisher,
		metrics:    cfg.Metrics,
		commission: cfg.Platform.CommissionRate,
		splitShare: cfg.Platform.ClientSplitShare,
		timeNow:    cfg.TimeNow,
		idGen:      cfg.IDGen,
		logger:     cfg.Logger,
	}, nil
}

// Resolve settles a disputed task.
//
//   - refund: the task is cancelled and the client gets the money back.
//   - pay_contractor: the task is completed and the money captured if it's held.
//     Payments that aren't held are left as they are.
//   - split: the task is completed, the money captured and the client split share refunded.
//
// The money moves first. The task and the payment are stored together afterwards, if the
// money can't move the task stays disputed and nothing is stored.
func (s *Service) Resolve(ctx context.Context, p model.Principal, taskID string, kind model.DisputeResolutionKind, notes string) (_ *model.DisputeResolution, err error) {
	defer func() { s.metrics.ObserveTransition(ctx, string(model.TaskActionResolve), metrics.ResultFor(err)) }()

	if err := p.RequireRole(model.RoleAdmin); err != nil {
		return nil, err
	}
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	if err := model.CheckTaskTransition(task.Status, model.TaskActionResolve, kind.TaskStatus()); err != nil {
		return nil, err
	}

	pay, err := s.repo.GetLatestTaskPayment(ctx, task.ID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("could not get task payment: %w", err)
	}
	if errors.Is(err, model.ErrNotFound) {
		pay = nil
	}
	if pay != nil {
		unlock, err := s.payments.LockPayment(ctx, pay.ID)
		if err != nil {
			return nil, err
		}
		defer unlock()

		// Read again, a refund may have been stored before the lock was taken.
		pay, err = s.repo.GetPayment(ctx, pay.ID)
		if err != nil {
			return nil, fmt.Errorf("could not get task payment: %w", err)
		}
	}

	var (
		next   *model.Payment
		detail string
	)
	switch kind {
	case model.DisputeResolutionRefund:
		next, detail, err = s.refund(ctx, pay)
	case model.DisputeResolutionPayContractor:
		next, detail, err = s.payContractor(ctx, pay)
	case model.DisputeResolutionSplit:
		next, detail, err = s.split(ctx, pay)
	}
	if err != nil {
		return nil, err
	}

	now := s.timeNow().UTC()
	resolved := *task
	resolved.Status = kind.TaskStatus()
	resolved.UpdatedAt = now
	resolved.CancellationReason = annotation(kind, detail, notes)
	switch resolved.Status {
	case model.TaskStatusCancelled:
		resolved.CancelledAt = &now
	case model.TaskStatusCompleted:
		resolved.CompletedAt = &now
		resolved.SetFinalAmounts(s.commission)
	}
	if err := resolved.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("invalid task after resolution: %w", err)
	}

	var expPay model.PaymentState
	if next != nil {
		expPay = pay.State()
	}
	err = s.repo.UpdateTaskWithPayment(ctx, resolved, model.TaskStatusDisputed, next, expPay)
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			return nil, fmt.Errorf("task %s changed while resolving it: %w", task.ID, model.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("could not store resolution: %w", err)
	}

	s.logger.Infof("Dispute of task %s resolved by %s with %s", task.ID, p.ID, kind)
	s.publisher.Publish(ctx, notify.NewEvent(s.idGen(), model.EventTaskResolved, resolved, next, resolved.CancellationReason, now))
	if next != nil {
		typ := model.EventPaymentRefunded
		if kind == model.DisputeResolutionPayContractor {
			typ = model.EventPaymentCaptured
		}
		s.publisher.Publish(ctx, notify.NewEvent(s.idGen(), typ, resolved, next, "Dispute settled", now))
	}

	return &model.DisputeResolution{Kind: kind, Task: resolved, Payment: next}, nil
}

// Details returns the administrator view of a task dispute.
func (s *Service) Details(ctx context.Context, p model.Principal, taskID string) (*model.DisputeDetails, error) {
	if err := p.RequireRole(model.RoleAdmin); err != nil {
		return nil, err
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	if task.DisputedAt == nil {
		return nil, fmt.Errorf("task %s was never disputed: %w", task.ID, model.ErrNotFound)
	}

	payments, err := s.repo.ListTaskPayments(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("could not list payments: %w", err)
	}
	ratings, err := s.repo.ListTaskRatings(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("could not list ratings: %w", err)
	}

	return &model.DisputeDetails{Task: *task, Payments: payments, Ratings: ratings}, nil
}

func (s *Service) refund(ctx context.Context, pay *model.Payment) (*model.Payment, string, error) {
	if pay == nil || pay.Status == model.PaymentStatusFailed || pay.Status == model.PaymentStatusRefunded {
		return nil, "no money moved", nil
	}

	next, err := s.payments.ExecuteRefund(ctx, *pay, "dispute resolved: refund", nil)
	if err != nil {
		return nil, "", fmt.Errorf("could not refund payment: %w", err)
	}

	refunded := next.Amount
	if pay.Status == model.PaymentStatusCaptured {
		refunded = next.RefundedAmount - pay.RefundedAmount
	}

	return next, fmt.Sprintf("%s %s refunded to the client", refunded, next.Currency), nil
}

func (s *Service) payContractor(ctx context.Context, pay *model.Payment) (*model.Payment, string, error) {
	if pay == nil {
		return nil, "no money moved", nil
	}
	switch pay.Status {
	case model.PaymentStatusCaptured:
		return nil, "payment already captured", nil
	case model.PaymentStatusHeld:
	default:
		return nil, fmt.Sprintf("no money moved, payment is %s", pay.Status), nil
	}

	next, err := s.payments.ExecuteCapture(ctx, *pay)
	if err != nil {
		return nil, "", fmt.Errorf("could not capture payment: %w", err)
	}

	return next, fmt.Sprintf("%s %s paid to the contractor", next.ContractorAmount, next.Currency), nil
}

// split captures the held money and refunds the client split share of it.
func (s *Service) split(ctx context.Context, pay *model.Payment) (*model.Payment, string, error) {
	if pay == nil || (pay.Status != model.PaymentStatusHeld && pay.Status != model.PaymentStatusCaptured) {
		return nil, "no money moved", nil
	}

	captured := pay
	if pay.Status == model.PaymentStatusHeld {
		c, err := s.payments.ExecuteCapture(ctx, *pay)
		if err != nil {
			return nil, "", fmt.Errorf("could not capture payment: %w", err)
		}
		captured = c
	}

	share := model.Commission(captured.Amount, s.splitShare)
	if share > captured.RefundableAmount() {
		share = captured.RefundableAmount()
	}
	if share <= 0 {
		if captured == pay {
			captured = nil
		}
		return captured, fmt.Sprintf("%.2f%% split, nothing left to refund", s.splitShare.Float()*100), nil
	}

	next, err := s.payments.ExecuteRefund(ctx, *captured, "dispute resolved: split", &share)
	if err != nil {
		// Keep the capture, a new resolution retries the refund from the captured payment.
		if captured != pay {
			if uerr := s.repo.UpdatePayment(ctx, *captured, pay.State()); uerr != nil {
				s.logger.Errorf("Could not store the capture of payment %s: %s", pay.ID, uerr)
			}
		}
		return nil, "", fmt.Errorf("could not refund the client share: %w", err)
	}

	return next, fmt.Sprintf("%.2f%% split, %s %s refunded to the client", s.splitShare.Float()*100, share, next.Currency), nil
}

func annotation(kind model.DisputeResolutionKind, detail, notes string) string {
	a := "dispute resolved: " + string(kind)
	if detail != "" {
		a += " (" + detail + ")"
	}
	if strings.TrimSpace(notes) != "" {
		a += ": " + notes
	}
	return a
}
