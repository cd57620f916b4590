package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slok/taskbroker/internal/model"
)

const (
	webhookResultProcessed  = "processed"
	webhookResultIgnored    = "ignored"
	webhookResultUnknown    = "unknown_payment"
	webhookResultDuplicated = "duplicated"
	webhookResultError      = "error"
)

// HandleWebhook applies a gateway notification to the payment it references. Deliveries
// are deduplicated, an event already applied or that doesn't move the payment forward is
// ignored. When processing fails the delivery is forgotten so the gateway can redeliver it,
// that includes webhooks of payments not stored yet (model.ErrNotFound).
func (s *Service) HandleWebhook(ctx context.Context, e model.WebhookEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}

	eventType := e.ResourceType + "." + firstNonEmpty(e.EventAction, e.Status, e.Result)
	key := "webhook:" + e.Key()

	ok, err := s.dedupe.SetNX(ctx, key, s.timeNow().UTC().Format(time.RFC3339), s.platform.WebhookDedupeTTL)
	if err != nil {
		s.metrics.ObserveWebhook(ctx, eventType, webhookResultError)
		return fmt.Errorf("could not register webhook delivery: %w", err)
	}
	if !ok {
		s.logger.Debugf("Ignoring duplicated webhook %s", key)
		s.metrics.ObserveWebhook(ctx, eventType, webhookResultDuplicated)
		return nil
	}

	result, err := s.handleWebhook(ctx, e)
	if err != nil {
		if derr := s.dedupe.Delete(ctx, key); derr != nil {
			s.logger.Errorf("Could not release webhook delivery %s: %s", key, derr)
		}
		if result == "" {
			result = webhookResultError
		}
		s.metrics.ObserveWebhook(ctx, eventType, result)
		return err
	}

	s.metrics.ObserveWebhook(ctx, eventType, result)
	return nil
}

func (s *Service) handleWebhook(ctx context.Context, e model.WebhookEvent) (string, error) {
	target, ok := webhookTarget(e)
	if !ok {
		return webhookResultIgnored, nil
	}

	var (
		pay *model.Payment
		err error
	)
	switch e.ResourceType {
	case model.WebhookResourcePaymentIntent:
		pay, err = s.repo.GetPaymentByIntentID(ctx, e.ObjectID)
	case model.WebhookResourceTransfer:
		pay, err = s.repo.GetPaymentByTransferID(ctx, e.ObjectID)
	}
	if err != nil {
		// The gateway id is stored after the gateway call returns, an early webhook is
		// rejected so the gateway redelivers it.
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Warningf("Webhook %s references unknown %s %s", e.EventAction, e.ResourceType, e.ObjectID)
			return webhookResultUnknown, fmt.Errorf("%s %s: %w", e.ResourceType, e.ObjectID, model.ErrNotFound)
		}
		return "", fmt.Errorf("could not get payment: %w", err)
	}

	if pay.Status == target || !pay.Status.CanTransitionTo(target) {
		return webhookResultIgnored, nil
	}

	task, err := s.repo.GetTask(ctx, pay.TaskID)
	if err != nil {
		return "", fmt.Errorf("could not get task: %w", err)
	}

	switch target {
	case model.PaymentStatusHeld:
		if _, err := s.markHeld(ctx, task, *pay); err != nil {
			return "", err
		}
		// The capture outcome is stored on the payment, redelivering the webhook won't help.
		if _, err := s.CaptureIfReady(ctx, task.ID); err != nil {
			s.logger.Errorf("Could not capture payment %s after the hold webhook: %s", pay.ID, err)
		}

	case model.PaymentStatusFailed:
		if pay.Status != model.PaymentStatusPending {
			return webhookResultIgnored, nil
		}
		next := *pay
		next.Status = model.PaymentStatusFailed
		next.FailureReason = "gateway: " + firstNonEmpty(e.Result, e.EventAction, e.Status)
		next.UpdatedAt = s.timeNow().UTC()
		res, applied, err := s.update(ctx, next, pay.State())
		if err != nil {
			return "", err
		}
		if applied {
			s.logger.Warningf("Payment %s of task %s failed on the gateway", res.ID, task.ID)
			s.publish(ctx, model.EventPaymentFailed, task, res, "Payment failed")
		}

	case model.PaymentStatusRefunded:
		next := *pay
		next.Status = model.PaymentStatusRefunded
		next.RefundReason = "gateway: " + firstNonEmpty(e.EventAction, e.Status, e.Result)
		if pay.Status == model.PaymentStatusCaptured {
			next.RefundedAmount = next.Amount
		}
		next.UpdatedAt = s.timeNow().UTC()
		res, applied, err := s.update(ctx, next, pay.State())
		if err != nil {
			return "", err
		}
		if applied {
			s.logger.Infof("Payment %s of task %s refunded on the gateway", res.ID, task.ID)
			s.publish(ctx, model.EventPaymentRefunded, task, res, "Payment refunded to the client")
		}
	}

	return webhookResultProcessed, nil
}

var (
	intentTargets = map[string]model.PaymentStatus{
		"succeeded":                 model.PaymentStatusHeld,
		"requires_capture":          model.PaymentStatusHeld,
		"authorized":                model.PaymentStatusHeld,
		"amount_capturable_updated": model.PaymentStatusHeld,
		"failed":                    model.PaymentStatusFailed,
		"payment_failed":            model.PaymentStatusFailed,
		"canceled":                  model.PaymentStatusRefunded,
		"refunded":                  model.PaymentStatusRefunded,
	}
	transferTargets = map[string]model.PaymentStatus{
		"reversed": model.PaymentStatusRefunded,
		"refunded": model.PaymentStatusRefunded,
	}
)

// webhookTarget returns the payment status the event asks for. The event action is
// checked first, then the object status and the result.
func webhookTarget(e model.WebhookEvent) (model.PaymentStatus, bool) {
	targets := intentTargets
	switch e.ResourceType {
	case model.WebhookResourcePaymentIntent:
	case model.WebhookResourceTransfer:
		targets = transferTargets
	default:
		return "", false
	}

	for _, v := range []string{e.EventAction, e.Status, e.Result} {
		v = strings.ToLower(strings.TrimSpace(v))
		// Accept namespaced actions like "payment_intent.succeeded".
		if i := strings.LastIndex(v, "."); i >= 0 {
			v = v[i+1:]
		}
		if st, ok := targets[v]; ok {
			return st, true
		}
	}

	return "", false
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return "unknown"
}
