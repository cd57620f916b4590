package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/slok/taskbroker/internal/model"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// ResultFor returns the result label of an operation error.
func ResultFor(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, model.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, model.ErrNotAllowed):
		return "not_allowed"
	case errors.Is(err, model.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, model.ErrNotValid):
		return "not_valid"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	}
	return ResultError
}

// Recorder knows how to record the broker metrics.
type Recorder interface {
	// ObserveTransition records a task action result (success, invalid, not_allowed...).
	ObserveTransition(ctx context.Context, action, result string)
	ObserveGatewayCall(ctx context.Context, op, result string, duration time.Duration)
	ObserveWebhook(ctx context.Context, eventType, result string)
	ObserveNotification(ctx context.Context, sink, result string)
	ObserveHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration)
}

// Noop is a Recorder that doesn't record anything.
const Noop = noop(0)

type noop int

func (noop) ObserveTransition(context.Context, string, string) {}
func (noop) ObserveGatewayCall(context.Context, string, string, time.Duration) {}
func (noop) ObserveWebhook(context.Context, string, string) {}
func (noop) ObserveNotification(context.Context, string, string) {}
func (noop) ObserveHTTPRequest(context.Context, string, string, int, time.Duration) {}
