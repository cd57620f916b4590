package storage

import (
	"context"

	"github.com/slok/taskbroker/internal/model"
)

// TaskListOpts filters the listed tasks. Empty fields don't filter.
type TaskListOpts struct {
	Statuses     []model.TaskStatus
	ClientID     string
	ContractorID string
}

// TaskRepository is the interface for task persistence.
//
// UpdateTask is a conditional write: it only applies if the stored task is still in
// expStatus, otherwise it returns model.ErrConflict.
type TaskRepository interface {
	CreateTask(ctx context.Context, t model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, opts TaskListOpts) ([]model.Task, error)
	UpdateTask(ctx context.Context, t model.Task, expStatus model.TaskStatus) error
}

// PaymentRepository is the interface for payment persistence.
//
// Payments are never deleted, the latest one of a task by creation time is the current
// one. CreatePayment returns model.ErrAlreadyExists if the task already has a pending or
// held payment. UpdatePayment is conditional on the expected stored state (status and
// refunded amount), it returns model.ErrConflict when the stored payment differs.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, p model.Payment) error
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	GetPaymentByIntentID(ctx context.Context, intentID string) (*model.Payment, error)
	GetPaymentByTransferID(ctx context.Context, transferID string) (*model.Payment, error)
	GetLatestTaskPayment(ctx context.Context, taskID string) (*model.Payment, error)
	// ListTaskPayments returns the task payments, newest first.
	ListTaskPayments(ctx context.Context, taskID string) ([]model.Payment, error)
	UpdatePayment(ctx context.Context, p model.Payment, exp model.PaymentState) error
}

// RatingRepository is the interface for rating persistence.
type RatingRepository interface {
	// CreateRating returns model.ErrAlreadyExists if the user already rated the task.
	CreateRating(ctx context.Context, r model.Rating) error
	ListTaskRatings(ctx context.Context, taskID string) ([]model.Rating, error)
}

//go:generate mockery --case underscore --output storagemock --outpkg storagemock --name Repository --structname MockRepository --filename storagemock.go

// Repository is the full persistence interface.
type Repository interface {
	TaskRepository
	PaymentRepository
	RatingRepository

	// UpdateTaskWithPayment writes a task and optionally its payment all or nothing,
	// both writes are conditional on their expected state.
	UpdateTaskWithPayment(ctx context.Context, t model.Task, expTaskStatus model.TaskStatus, p *model.Payment, expPayment model.PaymentState) error
}

// PlatformConfigRepository knows how to get the platform policy.
type PlatformConfigRepository interface {
	GetPlatformConfig(ctx context.Context) (*model.PlatformConfig, error)
}
