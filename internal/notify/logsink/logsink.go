package logsink

import (
	"context"
	"strings"

	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/notify"
)

// Sink writes the events on the log.
type Sink struct {
	logger log.Logger
}

var _ notify.Sink = &Sink{}

// NewSink returns a new log sink.
func NewSink(logger log.Logger) *Sink {
	if logger == nil {
		logger = log.Noop
	}
	return &Sink{logger: logger.WithValues(log.Kv{"svc": "notify.LogSink"})}
}

func (s *Sink) Name() string { return "log" }

func (s *Sink) Send(ctx context.Context, e model.Event) error {
	s.logger.WithCtxValues(ctx).WithValues(log.Kv{
		"event":      e.Type,
		"task-id":    e.TaskID,
		"payment-id": e.PaymentID,
		"recipients": strings.Join(e.Recipients, ","),
	}).Infof("%s", e.Message)
	return nil
}
