package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	tasks    map[string]model.Task
	payments map[string]model.Payment
	ratings  map[string]model.Rating
	mu       sync.RWMutex
	logger   log.Logger
}

var _ storage.Repository = &Repository{}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		tasks:    make(map[string]model.Task),
		payments: make(map[string]model.Payment),
		ratings:  make(map[string]model.Rating),
		logger:   cfg.Logger,
	}, nil
}

// CreateTask creates a new task in the repository.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[t.ID]; ok {
		return fmt.Errorf("task with id %s: %w", t.ID, model.ErrAlreadyExists)
	}

	r.tasks[t.ID] = copyTask(t)
	r.logger.Debugf("Created task in repository: %s", t.ID)

	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	tc := copyTask(t)
	return &tc, nil
}

// ListTasks returns the tasks matching the options, newest first.
func (r *Repository) ListTasks(ctx context.Context, opts storage.TaskListOpts) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := []model.Task{}
	for _, t := range r.tasks {
		if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, t.Status) {
			continue
		}
		if opts.ClientID != "" && t.ClientID != opts.ClientID {
			continue
		}
		if opts.ContractorID != "" && t.ContractorID != opts.ContractorID {
			continue
		}
		tasks = append(tasks, copyTask(t))
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	return tasks, nil
}

// UpdateTask updates a task if it's still in the expected status.
func (r *Repository) UpdateTask(ctx context.Context, t model.Task, expStatus model.TaskStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkTask(t.ID, expStatus); err != nil {
		return err
	}

	r.tasks[t.ID] = copyTask(t)
	r.logger.Debugf("Updated task in repository: %s (%s -> %s)", t.ID, expStatus, t.Status)

	return nil
}

// CreatePayment creates a new payment in the repository.
func (r *Repository) CreatePayment(ctx context.Context, p model.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[p.ID]; ok {
		return fmt.Errorf("payment with id %s: %w", p.ID, model.ErrAlreadyExists)
	}

	if p.Status.IsOpen() {
		for _, existing := range r.payments {
			if existing.TaskID == p.TaskID && existing.Status.IsOpen() {
				return fmt.Errorf("task %s already has open payment %s: %w", p.TaskID, existing.ID, model.ErrAlreadyExists)
			}
		}
	}

	r.payments[p.ID] = p
	r.logger.Debugf("Created payment in repository: %s", p.ID)

	return nil
}

// GetPayment retrieves a payment by ID.
func (r *Repository) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", id, model.ErrNotFound)
	}

	return &p, nil
}

// GetPaymentByIntentID retrieves a payment by its processor intent ID.
func (r *Repository) GetPaymentByIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	return r.findPayment(func(p model.Payment) bool { return intentID != "" && p.ProcessorIntentID == intentID },
		fmt.Sprintf("payment with intent %s", intentID))
}

// GetPaymentByTransferID retrieves a payment by its processor transfer ID.
func (r *Repository) GetPaymentByTransferID(ctx context.Context, transferID string) (*model.Payment, error) {
	return r.findPayment(func(p model.Payment) bool { return transferID != "" && p.ProcessorTransferID == transferID },
		fmt.Sprintf("payment with transfer %s", transferID))
}

func (r *Repository) findPayment(match func(model.Payment) bool, desc string) (*model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.payments {
		if match(p) {
			return &p, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", desc, model.ErrNotFound)
}

// GetLatestTaskPayment returns the current payment of a task.
func (r *Repository) GetLatestTaskPayment(ctx context.Context, taskID string) (*model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p := model.LatestPayment(r.taskPayments(taskID))
	if p == nil {
		return nil, fmt.Errorf("payment for task %s: %w", taskID, model.ErrNotFound)
	}

	return p, nil
}

// ListTaskPayments returns the task payments, newest first.
func (r *Repository) ListTaskPayments(ctx context.Context, taskID string) ([]model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payments := r.taskPayments(taskID)
	sort.SliceStable(payments, func(i, j int) bool {
		if payments[i].CreatedAt.Equal(payments[j].CreatedAt) {
			return payments[i].ID > payments[j].ID
		}
		return payments[i].CreatedAt.After(payments[j].CreatedAt)
	})

	return payments, nil
}

func (r *Repository) taskPayments(taskID string) []model.Payment {
	payments := []model.Payment{}
	for _, p := range r.payments {
		if p.TaskID == taskID {
			payments = append(payments, p)
		}
	}
	return payments
}

// UpdatePayment updates a payment if it's still in the expected state.
func (r *Repository) UpdatePayment(ctx context.Context, p model.Payment, exp model.PaymentState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkPayment(p.ID, exp); err != nil {
		return err
	}

	r.payments[p.ID] = p
	r.logger.Debugf("Updated payment in repository: %s (%s -> %s)", p.ID, exp.Status, p.Status)

	return nil
}

// UpdateTaskWithPayment updates the task and the payment in the same critical section.
func (r *Repository) UpdateTaskWithPayment(ctx context.Context, t model.Task, expTaskStatus model.TaskStatus, p *model.Payment, expPayment model.PaymentState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkTask(t.ID, expTaskStatus); err != nil {
		return err
	}
	if p != nil {
		if err := r.checkPayment(p.ID, expPayment); err != nil {
			return err
		}
		r.payments[p.ID] = *p
	}
	r.tasks[t.ID] = copyTask(t)

	r.logger.Debugf("Updated task %s with payment in repository", t.ID)
	return nil
}

// CreateRating creates a new rating in the repository.
func (r *Repository) CreateRating(ctx context.Context, rt model.Rating) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[rt.TaskID]; !ok {
		return fmt.Errorf("task %s: %w", rt.TaskID, model.ErrNotFound)
	}

	for _, existing := range r.ratings {
		if existing.ID == rt.ID || (existing.TaskID == rt.TaskID && existing.FromUserID == rt.FromUserID) {
			return fmt.Errorf("rating of task %s by %s: %w", rt.TaskID, rt.FromUserID, model.ErrAlreadyExists)
		}
	}

	r.ratings[rt.ID] = rt
	r.logger.Debugf("Created rating in repository: %s", rt.ID)

	return nil
}

// ListTaskRatings returns the ratings of a task, oldest first.
func (r *Repository) ListTaskRatings(ctx context.Context, taskID string) ([]model.Rating, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ratings := []model.Rating{}
	for _, rt := range r.ratings {
		if rt.TaskID == taskID {
			ratings = append(ratings, rt)
		}
	}
	sort.SliceStable(ratings, func(i, j int) bool { return ratings[i].CreatedAt.Before(ratings[j].CreatedAt) })

	return ratings, nil
}

func (r *Repository) checkTask(id string, expStatus model.TaskStatus) error {
	stored, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	if stored.Status != expStatus {
		return fmt.Errorf("task %s is %s, expected %s: %w", id, stored.Status, expStatus, model.ErrConflict)
	}
	return nil
}

func (r *Repository) checkPayment(id string, exp model.PaymentState) error {
	stored, ok := r.payments[id]
	if !ok {
		return fmt.Errorf("payment %s: %w", id, model.ErrNotFound)
	}
	if cur := stored.State(); cur != exp {
		return fmt.Errorf("payment %s is %s, expected %s: %w", id, cur, exp, model.ErrConflict)
	}
	return nil
}

// copyTask returns a task that doesn't share pointers or slices with t.
func copyTask(t model.Task) model.Task {
	c := t
	c.CompletionPhotos = slices.Clone(t.CompletionPhotos)
	c.ScheduledAt = copyPtr(t.ScheduledAt)
	c.FinalAmount = copyPtr(t.FinalAmount)
	c.CommissionAmount = copyPtr(t.CommissionAmount)
	c.AcceptedAt = copyPtr(t.AcceptedAt)
	c.StartedAt = copyPtr(t.StartedAt)
	c.CompletedAt = copyPtr(t.CompletedAt)
	c.CancelledAt = copyPtr(t.CancelledAt)
	c.DisputedAt = copyPtr(t.DisputedAt)
	return c
}

func copyPtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
