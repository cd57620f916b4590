package query

import (
	"context"
	"fmt"
	"slices"

	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/storage"
)

// ServiceConfig is the configuration for the query service.
type ServiceConfig struct {
	Repository storage.TaskRepository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Query"})
	return nil
}

// Service lists tasks the principal is allowed to see.
type Service struct {
	repo   storage.TaskRepository
	logger log.Logger
}

// NewService returns a new query service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// ListTasksRequest filters the listed tasks.
type ListTasksRequest struct {
	Statuses     []model.TaskStatus
	ClientID     string
	ContractorID string
}

// ListTasks returns the tasks matching the filter, newest first. Administrators see every
// task, the rest see their own tasks and, if they are contractors, the tasks waiting for one.
func (s *Service) ListTasks(ctx context.Context, p model.Principal, r ListTasksRequest) ([]model.Task, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	for _, st := range r.Statuses {
		if err := st.Validate(); err != nil {
			return nil, err
		}
	}

	tasks, err := s.repo.ListTasks(ctx, storage.TaskListOpts{
		Statuses:     r.Statuses,
		ClientID:     r.ClientID,
		ContractorID: r.ContractorID,
	})
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}

	if p.IsSystem() || p.HasRole(model.RoleAdmin) {
		return tasks, nil
	}

	isContractor := p.HasRole(model.RoleContractor)
	return slices.DeleteFunc(tasks, func(t model.Task) bool {
		open := isContractor && t.Status == model.TaskStatusCreated
		return !open && !t.IsParticipant(p.ID)
	}), nil
}

// ListDisputes returns the disputed tasks waiting for a resolution.
func (s *Service) ListDisputes(ctx context.Context, p model.Principal) ([]model.Task, error) {
	if err := p.RequireRole(model.RoleAdmin); err != nil {
		return nil, err
	}

	tasks, err := s.repo.ListTasks(ctx, storage.TaskListOpts{Statuses: []model.TaskStatus{model.TaskStatusDisputed}})
	if err != nil {
		return nil, fmt.Errorf("could not list disputes: %w", err)
	}

	return tasks, nil
}
