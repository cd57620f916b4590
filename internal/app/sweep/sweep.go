package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/storage"
)

// TimeoutReason is the dispute reason of the tasks that ran out of time.
const TimeoutReason = "timeout"

// Disputer raises disputes on tasks.
type Disputer interface {
	RaiseDispute(ctx context.Context, p model.Principal, taskID, reason string) (*model.Task, error)
}

// ServiceConfig is the configuration for the sweep service.
type ServiceConfig struct {
	Repository storage.TaskRepository
	Disputer   Disputer
	// Timeout is how long a task can stay accepted or in progress. Zero disables the sweep.
	Timeout time.Duration
	TimeNow func() time.Time
	Logger  log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Disputer == nil {
		return fmt.Errorf("disputer is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout can't be negative")
	}
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Sweep"})
	return nil
}

// Service raises disputes on the tasks that have been accepted or in progress for too long.
type Service struct {
	repo     storage.TaskRepository
	disputer Disputer
	timeout  time.Duration
	timeNow  func() time.Time
	logger   log.Logger
}

// NewService returns a new sweep service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:     cfg.Repository,
		disputer: cfg.Disputer,
		timeout:  cfg.Timeout,
		timeNow:  cfg.TimeNow,
		logger:   cfg.Logger,
	}, nil
}

// Run sweeps the tasks once and returns the number of disputes raised. Tasks that moved
// meanwhile are skipped, other failures don't stop the sweep and are returned together.
func (s *Service) Run(ctx context.Context) (int, error) {
	if s.timeout == 0 {
		return 0, nil
	}

	tasks, err := s.repo.ListTasks(ctx, storage.TaskListOpts{
		Statuses: []model.TaskStatus{model.TaskStatusAccepted, model.TaskStatusInProgress},
	})
	if err != nil {
		return 0, fmt.Errorf("could not list tasks: %w", err)
	}

	deadline := s.timeNow().UTC().Add(-s.timeout)
	raised := 0
	var errs []error
	for _, t := range tasks {
		since := t.AcceptedAt
		if t.StartedAt != nil {
			since = t.StartedAt
		}
		if since == nil || since.After(deadline) {
			continue
		}

		_, err := s.disputer.RaiseDispute(ctx, model.SystemPrincipal, t.ID, TimeoutReason)
		if err != nil {
			if errors.Is(err, model.ErrInvalidTransition) {
				s.logger.Debugf("Task %s moved before the timeout dispute", t.ID)
				continue
			}
			errs = append(errs, fmt.Errorf("could not dispute task %s: %w", t.ID, err))
			continue
		}

		s.logger.Infof("Task %s disputed after %s without progress", t.ID, s.timeout)
		raised++
	}

	return raised, errors.Join(errs...)
}
