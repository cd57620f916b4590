package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/taskbroker/internal/eligibility"
	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/metrics"
	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/notify"
	"github.com/slok/taskbroker/internal/storage"
)

// Payments is the escrow side the lifecycle drives when a transition moves money.
type Payments interface {
	CreateHold(ctx context.Context, p model.Principal, taskID string) (*model.Payment, error)
	CaptureIfReady(ctx context.Context, taskID string) (*model.Payment, error)
	ReleaseForTask(ctx context.Context, taskID, reason string) (*model.Payment, error)
}

// ServiceConfig is the configuration for the lifecycle service.
type ServiceConfig struct {
	Repository  storage.Repository
	Payments    Payments
	Eligibility eligibility.Gate
	Publisher   notify.Publisher
	Metrics     metrics.Recorder
	Platform    model.PlatformConfig
	TimeNow     func() time.Time
	IDGen       func() string
	Logger      log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Payments == nil {
		return fmt.Errorf("payments is required")
	}
	if c.Platform.Currency == "" {
		c.Platform = model.DefaultPlatformConfig()
	}
	if err := c.Platform.Validate(); err != nil {
		return fmt.Errorf("invalid platform config: %w", err)
	}
	if c.Eligibility == nil {
		c.Eligibility = eligibility.NewStaticGate(c.Platform.VerifiedContractors)
	}
	if c.Publisher == nil {
		c.Publisher = notify.NoopPublisher
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Lifecycle"})
	return nil
}

// Service runs the task state machine. Every transition is a conditional write on the
// status the service read, a transition that loses a race fails with
// model.ErrInvalidTransition and is never retried.
type Service struct {
	repo      storage.Repository
	payments  Payments
	gate      eligibility.Gate
	publisher notify.Publisher
	metrics   metrics.Recorder
	rate      model.Rate
	timeNow   func() time.Time
	idGen     func() string
	logger    log.Logger
}

// NewService returns a new lifecycle service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:      cfg.Repository,
		payments:  cfg.Payments,
		gate:      cfg.Eligibility,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		rate:      cfg.Platform.CommissionRate,
		timeNow:   cfg.TimeNow,
		idGen:     cfg.IDGen,
		logger:    cfg.Logger,
	}, nil
}

// CreateTaskRequest is the data of a new task.
type CreateTaskRequest struct {
	Category    string
	Title       string
	Description string
	Location    model.Location
	Budget      model.Money
	ScheduledAt *time.Time
}

// CreateTask posts a new task for the principal client.
func (s *Service) CreateTask(ctx context.Context, p model.Principal, r CreateTaskRequest) (_ *model.Task, err error) {
	defer func() { s.observe(ctx, "create", err) }()

	if err := p.RequireRole(model.RoleClient); err != nil {
		return nil, err
	}

	now := s.timeNow().UTC()
	task := model.Task{
		ID:           s.idGen(),
		ClientID:     p.ID,
		Category:     strings.TrimSpace(r.Category),
		Title:        strings.TrimSpace(r.Title),
		Description:  r.Description,
		Location:     r.Location,
		ScheduledAt:  r.ScheduledAt,
		BudgetAmount: r.Budget,
		Status:       model.TaskStatusCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	err = s.repo.CreateTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("could not create task: %w", err)
	}

	s.logger.Infof("Task %s created by %s with a budget of %s", task.ID, p.ID, task.BudgetAmount)
	s.publish(ctx, model.EventTaskCreated, task, "New task posted")

	return &task, nil
}

// AcceptTask assigns the task to the principal contractor and asks for the escrow hold.
// Only one contractor can win a task, the rest get model.ErrInvalidTransition. A failed
// hold doesn't undo the acceptance, the payment ends failed and can be created again.
func (s *Service) AcceptTask(ctx context.Context, p model.Principal, taskID string) (_ *model.Task, err error) {
	defer func() { s.observe(ctx, string(model.TaskActionAccept), err) }()

	authorize := func(ctx context.Context, t *model.Task) error {
		if err := p.RequireRole(model.RoleContractor); err != nil {
			return err
		}
		if p.ID == t.ClientID {
			return fmt.Errorf("users can't accept their own tasks: %w", model.ErrNotAllowed)
		}

		ok, err := s.gate.CanAccept(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("could not check contractor eligibility: %w", err)
		}
		if !ok {
			return fmt.Errorf("contractor %s can't accept tasks: %w", p.ID, model.ErrNotEligible)
		}
		return nil
	}

	task, _, err := s.transition(ctx, taskID, model.TaskActionAccept, model.TaskStatusAccepted, authorize, func(t *model.Task, now time.Time) {
		t.ContractorID = p.ID
		t.AcceptedAt = &now
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Task %s accepted by %s", task.ID, p.ID)
	s.publish(ctx, model.EventTaskAccepted, *task, "Your task was accepted")

	if _, err := s.payments.CreateHold(ctx, model.SystemPrincipal, task.ID); err != nil {
		s.logger.Errorf("Could not create the escrow hold of task %s: %s", task.ID, err)
	}

	return task, nil
}

// StartTask marks the task as being worked on by the assigned contractor.
func (s *Service) StartTask(ctx context.Context, p model.Principal, taskID string) (_ *model.Task, err error) {
	defer func() { s.observe(ctx, string(model.TaskActionStart), err) }()

	task, _, err := s.transition(ctx, taskID, model.TaskActionStart, model.TaskStatusInProgress, requireContractor(p), func(t *model.Task, now time.Time) {
		t.StartedAt = &now
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Task %s started", task.ID)
	s.publish(ctx, model.EventTaskStarted, *task, "Work on your task started")

	return task, nil
}

// CompleteTask finishes the task, fixes the final amounts and captures the escrow if
// the hold is already confirmed.
func (s *Service) CompleteTask(ctx context.Context, p model.Principal, taskID string, photos []string) (_ *model.Task, err error) {
	defer func() { s.observe(ctx, string(model.TaskActionComplete), err) }()

	task, _, err := s.transition(ctx, taskID, model.TaskActionComplete, model.TaskStatusCompleted, requireContractor(p), func(t *model.Task, now time.Time) {
		t.CompletedAt = &now
		t.CompletionPhotos = slices.Clone(photos)
		t.SetFinalAmounts(s.rate)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Task %s completed, final amount %s (commission %s)", task.ID, *task.FinalAmount, *task.CommissionAmount)
	s.publish(ctx, model.EventTaskCompleted, *task, "Your task was completed")

	if _, err := s.payments.CaptureIfReady(ctx, task.ID); err != nil {
		s.logger.Errorf("Could not capture the escrow of task %s: %s", task.ID, err)
	}

	return task, nil
}

// CancelTask cancels the task. The client can cancel it until it's accepted, after that
// only the assigned contractor can, and the escrow is released back to the client.
func (s *Service) CancelTask(ctx context.Context, p model.Principal, taskID, reason string) (_ *model.Task, err error) {
	defer func() { s.observe(ctx, string(model.TaskActionCancel), err) }()

	authorize := func(ctx context.Context, t *model.Task) error {
		if err := p.Validate(); err != nil {
			return err
		}
		if t.Status == model.TaskStatusCreated {
			if p.ID != t.ClientID {
				return fmt.Errorf("only the client can cancel a task before acceptance: %w", model.ErrNotAllowed)
			}
			return nil
		}
		if p.ID != t.ContractorID {
			return fmt.Errorf("only the assigned contractor can cancel an accepted task: %w", model.ErrNotAllowed)
		}
		return nil
	}

	task, from, err := s.transition(ctx, taskID, model.TaskActionCancel, model.TaskStatusCancelled, authorize, func(t *model.Task, now time.Time) {
		t.CancelledAt = &now
		t.CancellationReason = reason
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Task %s cancelled by %s", task.ID, p.ID)
	s.publish(ctx, model.EventTaskCancelled, *task, "The task was cancelled")

	if from != model.TaskStatusCreated {
		if _, err := s.payments.ReleaseForTask(ctx, task.ID, "task cancelled: "+reason); err != nil {
			s.logger.Errorf("Could not release the escrow of cancelled task %s: %s", task.ID, err)
		}
	}

	return task, nil
}

// RaiseDispute freezes the task until an administrator resolves it. The payment is left
// untouched.
func (s *Service) RaiseDispute(ctx context.Context, p model.Principal, taskID, reason string) (_ *model.Task, err error) {
	defer func() { s.observe(ctx, string(model.TaskActionRaiseDispute), err) }()

	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("dispute reason is required: %w", model.ErrNotValid)
	}

	authorize := func(ctx context.Context, t *model.Task) error {
		if err := p.Validate(); err != nil {
			return err
		}
		if !p.IsSystem() && !t.IsParticipant(p.ID) {
			return fmt.Errorf("only the task participants can raise a dispute: %w", model.ErrNotAllowed)
		}
		return nil
	}

	task, _, err := s.transition(ctx, taskID, model.TaskActionRaiseDispute, model.TaskStatusDisputed, authorize, func(t *model.Task, now time.Time) {
		t.DisputedAt = &now
		t.CancellationReason = reason
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warningf("Dispute raised on task %s by %s: %s", task.ID, p.ID, reason)
	s.publish(ctx, model.EventTaskDisputed, *task, "A dispute was raised on the task")

	return task, nil
}

// RateRequest is a rating of the other task participant.
type RateRequest struct {
	Score   int
	Comment string
}

// RateTask stores the principal rating of the other participant of a completed task.
// Each participant can rate a task once.
func (s *Service) RateTask(ctx context.Context, p model.Principal, taskID string, r RateRequest) (_ *model.Rating, err error) {
	defer func() { s.observe(ctx, string(model.TaskActionRate), err) }()

	if err := p.Validate(); err != nil {
		return nil, err
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}
	if err := model.CheckTaskTransition(task.Status, model.TaskActionRate, task.Status); err != nil {
		return nil, err
	}
	if !task.IsParticipant(p.ID) {
		return nil, fmt.Errorf("only the task participants can rate it: %w", model.ErrNotAllowed)
	}

	to := task.ContractorID
	if p.ID == task.ContractorID {
		to = task.ClientID
	}
	rating := model.Rating{
		ID:         s.idGen(),
		TaskID:     task.ID,
		FromUserID: p.ID,
		ToUserID:   to,
		Score:      r.Score,
		Comment:    strings.TrimSpace(r.Comment),
		CreatedAt:  s.timeNow().UTC(),
	}
	if err := rating.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rating: %w", err)
	}

	err = s.repo.CreateRating(ctx, rating)
	if err != nil {
		return nil, fmt.Errorf("could not create rating: %w", err)
	}

	s.logger.Infof("Task %s rated %d by %s", task.ID, rating.Score, p.ID)
	s.publish(ctx, model.EventTaskRated, *task, fmt.Sprintf("You were rated %d/5", rating.Score))

	return &rating, nil
}

// AddTip sets the tip the client gives to the contractor of a completed task.
func (s *Service) AddTip(ctx context.Context, p model.Principal, taskID string, tip model.Money) (_ *model.Task, err error) {
	defer func() { s.observe(ctx, string(model.TaskActionTip), err) }()

	if tip < 0 {
		return nil, fmt.Errorf("tip can't be negative: %w", model.ErrNotValid)
	}

	authorize := func(ctx context.Context, t *model.Task) error {
		if err := p.Validate(); err != nil {
			return err
		}
		if p.ID != t.ClientID {
			return fmt.Errorf("only the client can tip: %w", model.ErrNotAllowed)
		}
		return nil
	}

	task, _, err := s.transition(ctx, taskID, model.TaskActionTip, model.TaskStatusCompleted, authorize, func(t *model.Task, _ time.Time) {
		t.TipAmount = tip
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("Task %s tipped with %s", task.ID, tip)
	s.publish(ctx, model.EventTaskTipped, *task, fmt.Sprintf("You got a tip of %s", tip))

	return task, nil
}

// GetTask returns a task to its participants and administrators. Contractors can also
// see tasks still waiting for one.
func (s *Service) GetTask(ctx context.Context, p model.Principal, taskID string) (*model.Task, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not get task: %w", err)
	}

	switch {
	case p.IsSystem(), p.HasRole(model.RoleAdmin), task.IsParticipant(p.ID):
	case task.Status == model.TaskStatusCreated && p.HasRole(model.RoleContractor):
	default:
		return nil, fmt.Errorf("principal %s can't view task %s: %w", p.ID, task.ID, model.ErrNotAllowed)
	}

	return task, nil
}

type authorizer func(ctx context.Context, t *model.Task) error

func requireContractor(p model.Principal) authorizer {
	return func(_ context.Context, t *model.Task) error {
		if err := p.Validate(); err != nil {
			return err
		}
		if p.ID != t.ContractorID {
			return fmt.Errorf("only the assigned contractor can do it: %w", model.ErrNotAllowed)
		}
		return nil
	}
}

// transition loads the task, checks the action and the actor, applies mutate and writes the
// task conditioned on the status it was read with. It returns the new task and the status
// it was moved from.
func (s *Service) transition(ctx context.Context, taskID string, action model.TaskAction, to model.TaskStatus, authorize authorizer, mutate func(t *model.Task, now time.Time)) (*model.Task, model.TaskStatus, error) {
	task, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, "", fmt.Errorf("could not get task: %w", err)
	}

	err = model.CheckTaskTransition(task.Status, action, to)
	if err != nil {
		return nil, "", err
	}
	err = authorize(ctx, task)
	if err != nil {
		return nil, "", err
	}

	from := task.Status
	now := s.timeNow().UTC()
	next := *task
	next.Status = to
	next.UpdatedAt = now
	mutate(&next, now)

	err = next.CheckInvariants()
	if err != nil {
		return nil, "", fmt.Errorf("invalid task after %s: %w", action, err)
	}

	err = s.repo.UpdateTask(ctx, next, from)
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			return nil, "", fmt.Errorf("task %s changed before it could %s: %w", task.ID, action, model.ErrInvalidTransition)
		}
		return nil, "", fmt.Errorf("could not update task: %w", err)
	}

	return &next, from, nil
}

func (s *Service) publish(ctx context.Context, typ model.EventType, t model.Task, msg string) {
	s.publisher.Publish(ctx, notify.NewEvent(s.idGen(), typ, t, nil, msg, s.timeNow().UTC()))
}

func (s *Service) observe(ctx context.Context, action string, err error) {
	s.metrics.ObserveTransition(ctx, action, metrics.ResultFor(err))
}
