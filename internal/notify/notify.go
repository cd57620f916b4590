package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/metrics"
	"github.com/slok/taskbroker/internal/model"
)

// Publisher publishes lifecycle events. Publishing never blocks nor fails the caller.
type Publisher interface {
	Publish(ctx context.Context, e model.Event)
}

// NoopPublisher drops every event.
var NoopPublisher = PublisherFunc(func(context.Context, model.Event) {})

// PublisherFunc is a helper to implement Publisher with a function.
type PublisherFunc func(ctx context.Context, e model.Event)

func (f PublisherFunc) Publish(ctx context.Context, e model.Event) { f(ctx, e) }

// Sink delivers events to an external consumer (push notifications, chat system messages...).
type Sink interface {
	Name() string
	Send(ctx context.Context, e model.Event) error
}

// DispatcherConfig is the configuration for the Dispatcher.
type DispatcherConfig struct {
	Sinks       []Sink
	QueueSize   int
	Workers     int
	SinkTimeout time.Duration
	Metrics     metrics.Recorder
	Logger      log.Logger
}

func (c *DispatcherConfig) defaults() error {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = 5 * time.Second
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "notify.Dispatcher"})
	return nil
}

// Dispatcher is an asynchronous Publisher that fans out events to all the sinks using a
// bounded queue. When the queue is full events are dropped.
type Dispatcher struct {
	queue       chan model.Event
	sinks       []Sink
	workers     int
	sinkTimeout time.Duration
	metrics     metrics.Recorder
	logger      log.Logger
}

var _ Publisher = &Dispatcher{}

// NewDispatcher returns a new dispatcher, events are queued until Run is called.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Dispatcher{
		queue:       make(chan model.Event, cfg.QueueSize),
		sinks:       cfg.Sinks,
		workers:     cfg.Workers,
		sinkTimeout: cfg.SinkTimeout,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}, nil
}

// Publish queues the event for delivery.
func (d *Dispatcher) Publish(ctx context.Context, e model.Event) {
	select {
	case d.queue <- e:
	default:
		d.logger.Warningf("Notification queue full, dropping event %s of task %s", e.Type, e.TaskID)
		d.metrics.ObserveNotification(ctx, "queue", "dropped")
	}
}

// Run delivers queued events until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case e := <-d.queue:
					d.deliver(ctx, e)
				}
			}
		}()
	}

	d.logger.Infof("Notification dispatcher running with %d workers and %d sinks", d.workers, len(d.sinks))
	wg.Wait()

	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, e model.Event) {
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.sinkTimeout)
		err := s.Send(sctx, e)
		cancel()

		if err != nil {
			d.logger.Errorf("Could not deliver event %s of task %s to %s sink: %s", e.Type, e.TaskID, s.Name(), err)
			d.metrics.ObserveNotification(ctx, s.Name(), metrics.ResultError)
			continue
		}
		d.metrics.ObserveNotification(ctx, s.Name(), metrics.ResultSuccess)
	}
}
