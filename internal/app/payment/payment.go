package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/taskbroker/internal/gateway"
	"github.com/slok/taskbroker/internal/kv"
	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/metrics"
	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/notify"
	"github.com/slok/taskbroker/internal/storage"
)

// ServiceConfig is the configuration for the payment service.
type ServiceConfig struct {
	Repository storage.Repository
	Gateway    gateway.Gateway
	// Dedupe remembers the processed webhook deliveries and holds the payment locks.
	Dedupe    kv.Store
	Publisher notify.Publisher
	Metrics   metrics.Recorder
	Platform  model.PlatformConfig
	TimeNow   func() time.Time
	IDGen     func() string
	Logger    log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Gateway == nil {
		return fmt.Errorf("gateway is required")
	}
	if c.Dedupe == nil {
		return fmt.Errorf("dedupe store is required")
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Payment"})
	return nil
}

// Service orchestrates the escrow payment of the tasks against the payment gateway.
//
// Every status change is a conditional write on the status the service read. Gateway
// operations use deterministic idempotency keys, repeating an operation after a crash
// or a lost write never moves money twice.
type Service struct {
	repo      storage.Repository
	gw        gateway.Gateway
	dedupe    kv.Store
	publisher notify.Publisher
	metrics   metrics.Recorder
	platform  model.PlatformConfig
	timeNow   func() time.Time
	idGen     func() string
	logger    log.Logger
}

// NewService returns a new payment service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:      cfg.Repository,
		gw:        cfg.Gateway,
		dedupe:    cfg.Dedupe,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		platform:  cfg.Platform,
		timeNow:   cfg.TimeNow,
		idGen:     cfg.IDGen,
		logger:    cfg.Logger,
	}, nil
}

// CreateHold creates the task payment and asks the gateway to hold the task budget.
// The payment is stored as pending before calling the gateway. If the gateway fails the
// payment ends failed.
func (s *Service) CreateHold(ctx context.Context, p model.Principal, taskID string) (*model.Payment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	if !canManage(p, task) {
		return nil, fmt.Errorf("principal %s can't hold funds of task %s: %w", p.ID, task.ID, model.ErrNotAllowed)
	}
	if task.Status != model.TaskStatusAccepted && task.Status != model.TaskStatusInProgress {
		return nil, fmt.Errorf("can't hold funds of a task in %s status: %w", task.Status, model.ErrInvalidTransition)
	}

	latest, err := s.latestPayment(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Status != model.PaymentStatusFailed && latest.Status != model.PaymentStatusRefunded {
		return nil, fmt.Errorf("task %s already has a %s payment: %w", task.ID, latest.Status, model.ErrInvalidTransition)
	}

	now := s.timeNow().UTC()
	split := model.NewSplit(task.BudgetAmount, s.platform.CommissionRate)
	pay := model.Payment{
		ID:               s.idGen(),
		TaskID:           task.ID,
		Currency:         s.platform.Currency,
		Amount:           split.Amount,
		CommissionAmount: split.CommissionAmount,
		ContractorAmount: split.ContractorAmount,
		Status:           model.PaymentStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := pay.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payment: %w", err)
	}

	err = s.repo.CreatePayment(ctx, pay)
	if err != nil {
		if errors.Is(err, model.ErrAlreadyExists) {
			return nil, fmt.Errorf("task %s already has an open payment: %w", task.ID, model.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("could not create payment: %w", err)
	}

	var hold *gateway.Hold
	err = s.callGateway(ctx, gateway.OpCreateHold, func(ctx context.Context) (err error) {
		hold, err = s.gw.CreateHold(ctx, gateway.HoldRequest{
			PaymentID:        pay.ID,
			TaskID:           task.ID,
			ClientID:         task.ClientID,
			ContractorID:     task.ContractorID,
			Currency:         pay.Currency,
			Amount:           pay.Amount,
			ContractorAmount: pay.ContractorAmount,
			CommissionAmount: pay.CommissionAmount,
			IdempotencyKey:   gateway.IdempotencyKey(pay.ID, gateway.OpCreateHold),
		})
		return err
	})
	if err != nil {
		s.markFailed(ctx, task, pay, err)
		return nil, fmt.Errorf("could not create hold: %w", err)
	}

	next := pay
	next.ProcessorIntentID = hold.IntentID
	next.UpdatedAt = s.timeNow().UTC()
	if authorized(hold.Status) {
		next.Status = model.PaymentStatusHeld
	}

	res, applied, err := s.update(ctx, next, pay.State())
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Hold %s of %s created for task %s (payment %s)", hold.IntentID, pay.Amount, task.ID, pay.ID)
	if applied && res.Status == model.PaymentStatusHeld {
		s.publish(ctx, model.EventPaymentHeld, task, res, "Funds are held in escrow")
	}

	return res, nil
}

// ConfirmHold moves a pending payment to held once the gateway reports the hold as
// authorized. Confirming an already held or captured payment returns it unchanged.
// If the task is already completed the payment is captured.
func (s *Service) ConfirmHold(ctx context.Context, p model.Principal, paymentID string) (*model.Payment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	pay, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("could not get payment: %w", err)
	}
	task, err := s.repo.GetTask(ctx, pay.TaskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	if !canManage(p, task) {
		return nil, fmt.Errorf("principal %s can't confirm payment %s: %w", p.ID, pay.ID, model.ErrNotAllowed)
	}

	switch pay.Status {
	case model.PaymentStatusHeld, model.PaymentStatusCaptured:
		return pay, nil
	case model.PaymentStatusPending:
	default:
		return nil, fmt.Errorf("can't confirm a %s payment: %w", pay.Status, model.ErrInvalidTransition)
	}
	if pay.ProcessorIntentID == "" {
		return nil, fmt.Errorf("payment %s has no gateway hold: %w", pay.ID, model.ErrInvalidTransition)
	}

	var hold *gateway.Hold
	err = s.callGateway(ctx, gateway.OpGetHold, func(ctx context.Context) (err error) {
		hold, err = s.gw.GetHold(ctx, pay.ProcessorIntentID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not get hold: %w", err)
	}
	if !authorized(hold.Status) {
		return nil, fmt.Errorf("hold %s is %s: %w", hold.IntentID, hold.Status, model.ErrNotValid)
	}

	held, err := s.markHeld(ctx, task, *pay)
	if err != nil {
		return nil, err
	}

	captured, err := s.CaptureIfReady(ctx, task.ID)
	if err != nil {
		s.logger.Errorf("Could not capture payment %s after confirming the hold: %s", pay.ID, err)
		return held, nil
	}
	if captured != nil {
		return captured, nil
	}

	return held, nil
}

// Capture transfers the held funds of a completed task to the contractor. Capturing
// an already captured payment returns it unchanged.
func (s *Service) Capture(ctx context.Context, p model.Principal, taskID string) (*model.Payment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	if !canManage(p, task) {
		return nil, fmt.Errorf("principal %s can't capture payment of task %s: %w", p.ID, task.ID, model.ErrNotAllowed)
	}

	pay, err := s.latestPayment(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if pay == nil {
		return nil, fmt.Errorf("task %s has no payment: %w", task.ID, model.ErrInvalidTransition)
	}

	switch pay.Status {
	case model.PaymentStatusCaptured:
		return pay, nil
	case model.PaymentStatusHeld:
	default:
		return nil, fmt.Errorf("can't capture a %s payment: %w", pay.Status, model.ErrInvalidTransition)
	}
	if task.Status != model.TaskStatusCompleted {
		return nil, fmt.Errorf("can't capture payment of a task in %s status: %w", task.Status, model.ErrInvalidTransition)
	}

	return s.capture(ctx, task, *pay)
}

// CaptureIfReady captures the task payment when the task is completed and the hold
// confirmed, whatever happened last. It returns nil when there is nothing to capture.
func (s *Service) CaptureIfReady(ctx context.Context, taskID string) (*model.Payment, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	if task.Status != model.TaskStatusCompleted {
		return nil, nil
	}

	pay, err := s.latestPayment(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if pay == nil || pay.Status != model.PaymentStatusHeld {
		return nil, nil
	}

	return s.capture(ctx, task, *pay)
}

// Refund returns the task money to the client. Pending and held payments release the
// hold and only accept a full refund. Captured payments accept partial refunds, the
// payment stays captured until everything is refunded.
func (s *Service) Refund(ctx context.Context, p model.Principal, taskID, reason string, amount *model.Money) (*model.Payment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if !p.IsSystem() && !p.HasRole(model.RoleAdmin) {
		return nil, fmt.Errorf("principal %s can't refund payments: %w", p.ID, model.ErrNotAllowed)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("refund reason is required: %w", model.ErrNotValid)
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	pay, err := s.latestPayment(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if pay == nil {
		return nil, fmt.Errorf("task %s has no payment: %w", task.ID, model.ErrInvalidTransition)
	}

	return s.refund(ctx, task, *pay, reason, amount)
}

// ReleaseForTask fully refunds the current task payment if it is still pending or held.
// It returns nil when there was nothing to release.
func (s *Service) ReleaseForTask(ctx context.Context, taskID, reason string) (*model.Payment, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	pay, err := s.latestPayment(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	if pay == nil || !pay.Status.IsOpen() {
		return nil, nil
	}

	return s.refund(ctx, task, *pay, reason, nil)
}

// ExecuteCapture captures the payment on the gateway and returns the payment as it should
// be stored. It doesn't store anything, callers write it with their own task changes.
func (s *Service) ExecuteCapture(ctx context.Context, pay model.Payment) (*model.Payment, error) {
	switch pay.Status {
	case model.PaymentStatusCaptured:
		return &pay, nil
	case model.PaymentStatusHeld:
	default:
		return nil, fmt.Errorf("can't capture a %s payment: %w", pay.Status, model.ErrInvalidTransition)
	}

	var res *gateway.Capture
	err := s.callGateway(ctx, gateway.OpCapture, func(ctx context.Context) (err error) {
		res, err = s.gw.Capture(ctx, gateway.CaptureRequest{
			IntentID:       pay.ProcessorIntentID,
			IdempotencyKey: gateway.IdempotencyKey(pay.ID, gateway.OpCapture),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not capture payment %s: %w", pay.ID, err)
	}

	pay.Status = model.PaymentStatusCaptured
	pay.ProcessorTransferID = res.TransferID
	pay.UpdatedAt = s.timeNow().UTC()

	return &pay, nil
}

// ExecuteRefund refunds the payment on the gateway and returns the payment as it should
// be stored. A nil amount refunds everything refundable. Like ExecuteCapture it doesn't
// store anything.
func (s *Service) ExecuteRefund(ctx context.Context, pay model.Payment, reason string, amount *model.Money) (*model.Payment, error) {
	switch pay.Status {
	case model.PaymentStatusPending, model.PaymentStatusHeld:
		if amount != nil && *amount != pay.Amount {
			return nil, fmt.Errorf("uncaptured payments only accept full refunds: %w", model.ErrNotValid)
		}

		if pay.ProcessorIntentID != "" {
			err := s.callGateway(ctx, gateway.OpCancelHold, func(ctx context.Context) error {
				return s.gw.CancelHold(ctx, gateway.CancelRequest{
					IntentID:       pay.ProcessorIntentID,
					Reason:         reason,
					IdempotencyKey: gateway.IdempotencyKey(pay.ID, gateway.OpCancelHold),
				})
			})
			if err != nil {
				return nil, fmt.Errorf("could not cancel hold of payment %s: %w", pay.ID, err)
			}
		}
		pay.Status = model.PaymentStatusRefunded

	case model.PaymentStatusCaptured:
		refundable := pay.RefundableAmount()
		refund := refundable
		if amount != nil {
			refund = *amount
		}
		if refund <= 0 || refund > refundable {
			return nil, fmt.Errorf("refund of %s must be positive and up to %s: %w", refund, refundable, model.ErrNotValid)
		}

		// The refunded total identifies each partial refund.
		refunded := pay.RefundedAmount + refund
		err := s.callGateway(ctx, gateway.OpRefund, func(ctx context.Context) error {
			_, err := s.gw.Refund(ctx, gateway.RefundRequest{
				IntentID:       pay.ProcessorIntentID,
				Amount:         refund,
				Reason:         reason,
				IdempotencyKey: gateway.IdempotencyKey(pay.ID, gateway.OpRefund, strconv.FormatInt(int64(refunded), 10)),
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("could not refund payment %s: %w", pay.ID, err)
		}

		pay.RefundedAmount = refunded
		if refunded == pay.Amount {
			pay.Status = model.PaymentStatusRefunded
		}

	default:
		return nil, fmt.Errorf("can't refund a %s payment: %w", pay.Status, model.ErrInvalidTransition)
	}

	pay.RefundReason = reason
	pay.UpdatedAt = s.timeNow().UTC()

	return &pay, nil
}

// GetPayment returns a payment to the task participants and administrators.
func (s *Service) GetPayment(ctx context.Context, p model.Principal, paymentID string) (*model.Payment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	pay, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("could not get payment: %w", err)
	}
	task, err := s.repo.GetTask(ctx, pay.TaskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	if !canView(p, task) {
		return nil, fmt.Errorf("principal %s can't view payment %s: %w", p.ID, pay.ID, model.ErrNotAllowed)
	}

	return pay, nil
}

// ListTaskPayments returns the task payments, newest first.
func (s *Service) ListTaskPayments(ctx context.Context, p model.Principal, taskID string) ([]model.Payment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	if !canView(p, task) {
		return nil, fmt.Errorf("principal %s can't view payments of task %s: %w", p.ID, task.ID, model.ErrNotAllowed)
	}

	payments, err := s.repo.ListTaskPayments(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("could not list payments: %w", err)
	}

	return payments, nil
}

// ContractorEarnings sums the contractor share of the payments of the contractor tasks.
func (s *Service) ContractorEarnings(ctx context.Context, p model.Principal, contractorID string) (*model.Earnings, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.ID != contractorID && !p.HasRole(model.RoleAdmin) {
		return nil, fmt.Errorf("principal %s can't view earnings of %s: %w", p.ID, contractorID, model.ErrNotAllowed)
	}

	tasks, err := s.repo.ListTasks(ctx, storage.TaskListOpts{ContractorID: contractorID})
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}

	earnings := &model.Earnings{ContractorID: contractorID}
	for _, t := range tasks {
		payments, err := s.repo.ListTaskPayments(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("could not list payments of task %s: %w", t.ID, err)
		}

		for _, pay := range payments {
			switch {
			case pay.Status == model.PaymentStatusCaptured:
				earnings.Captured += pay.ContractorNet()
				earnings.CapturedCount++
			case pay.Status.IsOpen():
				earnings.Held += pay.ContractorAmount
				earnings.HeldCount++
			}
		}
	}

	return earnings, nil
}

func (s *Service) capture(ctx context.Context, task *model.Task, pay model.Payment) (*model.Payment, error) {
	next, err := s.ExecuteCapture(ctx, pay)
	if err != nil {
		// Declined captures won't succeed on retry, unavailable ones keep the hold.
		if errors.Is(err, gateway.ErrDeclined) {
			s.markFailed(ctx, task, pay, err)
		}
		return nil, err
	}

	res, applied, err := s.update(ctx, *next, pay.State())
	if err != nil {
		return nil, err
	}
	if applied {
		s.logger.Infof("Payment %s of task %s captured (transfer %s)", res.ID, task.ID, res.ProcessorTransferID)
		s.publish(ctx, model.EventPaymentCaptured, task, res, "Payment transferred to the contractor")
	}

	return res, nil
}

func (s *Service) refund(ctx context.Context, task *model.Task, pay model.Payment, reason string, amount *model.Money) (*model.Payment, error) {
	unlock, err := s.LockPayment(ctx, pay.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Another refund may have been stored before the lock was taken.
	cur, err := s.repo.GetPayment(ctx, pay.ID)
	if err != nil {
		return nil, fmt.Errorf("could not get payment: %w", err)
	}

	next, err := s.ExecuteRefund(ctx, *cur, reason, amount)
	if err != nil {
		return nil, err
	}

	res, applied, err := s.update(ctx, *next, cur.State())
	if err != nil {
		return nil, err
	}
	if applied {
		s.logger.Infof("Payment %s of task %s refunded %s (%s)", res.ID, task.ID, res.RefundedAmount, res.Status)
		s.publish(ctx, model.EventPaymentRefunded, task, res, "Payment refunded to the client")
	}

	return res, nil
}

func (s *Service) markHeld(ctx context.Context, task *model.Task, pay model.Payment) (*model.Payment, error) {
	next := pay
	next.Status = model.PaymentStatusHeld
	next.UpdatedAt = s.timeNow().UTC()

	res, applied, err := s.update(ctx, next, pay.State(), model.PaymentStatusCaptured)
	if err != nil {
		return nil, err
	}
	if applied {
		s.logger.Infof("Payment %s of task %s held", res.ID, task.ID)
		s.publish(ctx, model.EventPaymentHeld, task, res, "Funds are held in escrow")
	}

	return res, nil
}

func (s *Service) markFailed(ctx context.Context, task *model.Task, pay model.Payment, cause error) {
	next := pay
	next.Status = model.PaymentStatusFailed
	next.FailureReason = cause.Error()
	next.UpdatedAt = s.timeNow().UTC()

	res, applied, err := s.update(ctx, next, pay.State())
	if err != nil {
		s.logger.Errorf("Could not mark payment %s as failed: %s", pay.ID, err)
		return
	}
	if applied {
		s.logger.Warningf("Payment %s of task %s failed: %s", res.ID, task.ID, cause)
		s.publish(ctx, model.EventPaymentFailed, task, res, "Payment failed")
	}
}

// update writes the payment if it's still in the from state. When another writer moved the
// payment meanwhile, the payment is read again: if it's already in the target state (or any
// of the settled statuses) it's returned without error and applied is false.
func (s *Service) update(ctx context.Context, next model.Payment, from model.PaymentState, settled ...model.PaymentStatus) (res *model.Payment, applied bool, err error) {
	err = s.repo.UpdatePayment(ctx, next, from)
	if err == nil {
		return &next, true, nil
	}
	if !errors.Is(err, model.ErrConflict) {
		return nil, false, fmt.Errorf("could not update payment: %w", err)
	}

	cur, err := s.repo.GetPayment(ctx, next.ID)
	if err != nil {
		return nil, false, fmt.Errorf("could not get payment: %w", err)
	}
	if cur.Status == next.Status && cur.RefundedAmount == next.RefundedAmount {
		return cur, false, nil
	}
	for _, st := range settled {
		if cur.Status == st {
			return cur, false, nil
		}
	}

	return nil, false, fmt.Errorf("payment %s moved to %s: %w", cur.ID, cur.Status, model.ErrConflict)
}

// LockPayment serializes the refunds of a payment across broker instances, the gateway
// must not see two refunds of the same payment at once. It fails with model.ErrConflict
// while the payment is locked.
func (s *Service) LockPayment(ctx context.Context, paymentID string) (unlock func(), err error) {
	key := "payment-lock:" + paymentID
	ok, err := s.dedupe.SetNX(ctx, key, s.idGen(), s.lockTTL())
	if err != nil {
		return nil, fmt.Errorf("could not lock payment %s: %w", paymentID, err)
	}
	if !ok {
		return nil, fmt.Errorf("payment %s is being refunded: %w", paymentID, model.ErrConflict)
	}

	return func() {
		if err := s.dedupe.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Errorf("Could not unlock payment %s: %s", paymentID, err)
		}
	}, nil
}

// lockTTL outlives every gateway attempt of a refund.
func (s *Service) lockTTL() time.Duration {
	return 2 * s.platform.GatewayTimeout * time.Duration(s.platform.GatewayMaxRetries+1)
}

func (s *Service) latestPayment(ctx context.Context, taskID string) (*model.Payment, error) {
	pay, err := s.repo.GetLatestTaskPayment(ctx, taskID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not get task payment: %w", err)
	}
	return pay, nil
}

func (s *Service) callGateway(ctx context.Context, op string, f func(ctx context.Context) error) error {
	start := time.Now()
	err := f(ctx)

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	s.metrics.ObserveGatewayCall(ctx, op, result, time.Since(start))

	return err
}

func (s *Service) publish(ctx context.Context, typ model.EventType, task *model.Task, pay *model.Payment, msg string) {
	s.publisher.Publish(ctx, notify.NewEvent(s.idGen(), typ, *task, pay, msg, s.timeNow().UTC()))
}

func authorized(st gateway.HoldStatus) bool {
	return st == gateway.HoldStatusRequiresCapture || st == gateway.HoldStatusSucceeded
}

// canManage returns true for the actors that can move the task money on the client side.
func canManage(p model.Principal, t *model.Task) bool {
	return p.IsSystem() || p.HasRole(model.RoleAdmin) || p.ID == t.ClientID
}

func canView(p model.Principal, t *model.Task) bool {
	return p.IsSystem() || p.HasRole(model.RoleAdmin) || t.IsParticipant(p.ID)
}
