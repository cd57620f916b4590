package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/notify"
)

type recordingSink struct {
	name   string
	err    error
	block  chan struct{}
	mu     sync.Mutex
	events []model.Event
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(ctx context.Context, e model.Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) received() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event{}, s.events...)
}

func TestDispatcherFanOut(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("push service down")}
	ok := &recordingSink{name: "ok"}

	d, err := notify.NewDispatcher(notify.DispatcherConfig{
		Sinks:   []notify.Sink{failing, ok},
		Workers: 2,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	d.Publish(ctx, model.Event{Type: model.EventTaskAccepted, TaskID: "t1"})
	d.Publish(ctx, model.Event{Type: model.EventTaskStarted, TaskID: "t1"})

	// A failing sink doesn't stop the delivery to the rest.
	assert.Eventually(t, func() bool { return len(ok.received()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, failing.received(), 2)

	cancel()
	<-done
}

func TestDispatcherPublishDoesNotBlock(t *testing.T) {
	d, err := notify.NewDispatcher(notify.DispatcherConfig{QueueSize: 1})
	require.NoError(t, err)

	// Nobody is consuming, the second event should be dropped without blocking.
	finished := make(chan struct{})
	go func() {
		d.Publish(context.Background(), model.Event{Type: model.EventTaskCreated})
		d.Publish(context.Background(), model.Event{Type: model.EventTaskCreated})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
}

func TestDispatcherSinkTimeout(t *testing.T) {
	slow := &slowSink{}
	d, err := notify.NewDispatcher(notify.DispatcherConfig{
		Sinks:       []notify.Sink{slow},
		SinkTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	d.Publish(ctx, model.Event{Type: model.EventTaskCreated})
	assert.Eventually(t, func() bool {
		slow.mu.Lock()
		defer slow.mu.Unlock()
		return errors.Is(slow.err, context.DeadlineExceeded)
	}, time.Second, 5*time.Millisecond)
}

type slowSink struct {
	mu  sync.Mutex
	err error
}

func (s *slowSink) Name() string { return "slow" }

func (s *slowSink) Send(ctx context.Context, e model.Event) error {
	<-ctx.Done()
	s.mu.Lock()
	s.err = ctx.Err()
	s.mu.Unlock()
	return ctx.Err()
}
