package model

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	// TaskStatusCreated indicates the task is posted and waiting for a contractor.
	TaskStatusCreated TaskStatus = "created"
	// TaskStatusAccepted indicates a contractor took the task.
	TaskStatusAccepted TaskStatus = "accepted"
	// TaskStatusInProgress indicates the contractor started working.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the work is done and amounts are final.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusCancelled indicates the task was cancelled or refunded after a dispute.
	TaskStatusCancelled TaskStatus = "cancelled"
	// TaskStatusDisputed indicates the task waits for an administrator decision.
	TaskStatusDisputed TaskStatus = "disputed"
)

// TaskStatuses are all the known task statuses.
var TaskStatuses = []TaskStatus{
	TaskStatusCreated,
	TaskStatusAccepted,
	TaskStatusInProgress,
	TaskStatusCompleted,
	TaskStatusCancelled,
	TaskStatusDisputed,
}

// Validate checks the status is known.
func (s TaskStatus) Validate() error {
	for _, st := range TaskStatuses {
		if s == st {
			return nil
		}
	}
	return fmt.Errorf("unknown task status %q: %w", s, ErrNotValid)
}

// TaskAction is an operation that can be applied to a task.
type TaskAction string

const (
	TaskActionAccept       TaskAction = "accept"
	TaskActionStart        TaskAction = "start"
	TaskActionComplete     TaskAction = "complete"
	TaskActionCancel       TaskAction = "cancel"
	TaskActionRaiseDispute TaskAction = "raise_dispute"
	TaskActionResolve      TaskAction = "resolve"
	TaskActionRate         TaskAction = "rate"
	TaskActionTip          TaskAction = "tip"
)

// TaskActions are all the known task actions.
var TaskActions = []TaskAction{
	TaskActionAccept,
	TaskActionStart,
	TaskActionComplete,
	TaskActionCancel,
	TaskActionRaiseDispute,
	TaskActionResolve,
	TaskActionRate,
	TaskActionTip,
}

// taskTransitions lists the statuses each action can be applied on and the status the
// task ends in. Resolve can end in cancelled or completed, the resolution kind decides.
var taskTransitions = map[TaskAction]map[TaskStatus][]TaskStatus{
	TaskActionAccept:   {TaskStatusCreated: {TaskStatusAccepted}},
	TaskActionStart:    {TaskStatusAccepted: {TaskStatusInProgress}},
	TaskActionComplete: {TaskStatusInProgress: {TaskStatusCompleted}},
	TaskActionCancel: {
		TaskStatusCreated:    {TaskStatusCancelled},
		TaskStatusAccepted:   {TaskStatusCancelled},
		TaskStatusInProgress: {TaskStatusCancelled},
	},
	TaskActionRaiseDispute: {
		TaskStatusAccepted:   {TaskStatusDisputed},
		TaskStatusInProgress: {TaskStatusDisputed},
	},
	TaskActionResolve: {TaskStatusDisputed: {TaskStatusCancelled, TaskStatusCompleted}},
	TaskActionRate:    {TaskStatusCompleted: {TaskStatusCompleted}},
	TaskActionTip:     {TaskStatusCompleted: {TaskStatusCompleted}},
}

// CheckTaskTransition returns ErrInvalidTransition if the action can't be applied on a task
// in the from status, or if it can't end in the to status.
func CheckTaskTransition(from TaskStatus, action TaskAction, to TaskStatus) error {
	targets, ok := taskTransitions[action][from]
	if !ok {
		return fmt.Errorf("can't %s a task in %s status: %w", action, from, ErrInvalidTransition)
	}
	for _, t := range targets {
		if t == to {
			return nil
		}
	}
	return fmt.Errorf("can't %s a task from %s to %s: %w", action, from, to, ErrInvalidTransition)
}

// TaskActionAllowed returns true if the action can be applied on a task in the status.
func TaskActionAllowed(from TaskStatus, action TaskAction) bool {
	_, ok := taskTransitions[action][from]
	return ok
}

// Location is where the task is performed.
type Location struct {
	Lat     float64
	Lng     float64
	Address string
}

// Validate validates the location.
func (l Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("latitude %v out of range: %w", l.Lat, ErrNotValid)
	}
	if l.Lng < -180 || l.Lng > 180 {
		return fmt.Errorf("longitude %v out of range: %w", l.Lng, ErrNotValid)
	}
	if l.Address == "" {
		return fmt.Errorf("address is required: %w", ErrNotValid)
	}
	return nil
}

const (
	maxTaskTitleLen    = 200
	maxTaskCategoryLen = 50
)

// Task is a unit of paid work posted by a client.
type Task struct {
	ID           string
	ClientID     string
	ContractorID string

	Category    string
	Title       string
	Description string
	Location    Location
	ScheduledAt *time.Time

	BudgetAmount     Money
	FinalAmount      *Money
	CommissionAmount *Money
	TipAmount        Money

	Status             TaskStatus
	CancellationReason string
	CompletionPhotos   []string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	AcceptedAt  *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	DisputedAt  *time.Time
}

// Validate validates the static data of a task.
func (t *Task) Validate() error {
	if t.ClientID == "" {
		return fmt.Errorf("client id is required: %w", ErrNotValid)
	}
	if t.Category == "" || utf8.RuneCountInString(t.Category) > maxTaskCategoryLen {
		return fmt.Errorf("category must be between 1 and %d characters: %w", maxTaskCategoryLen, ErrNotValid)
	}
	if t.Title == "" || utf8.RuneCountInString(t.Title) > maxTaskTitleLen {
		return fmt.Errorf("title must be between 1 and %d characters: %w", maxTaskTitleLen, ErrNotValid)
	}
	if t.BudgetAmount <= 0 {
		return fmt.Errorf("budget must be positive: %w", ErrNotValid)
	}
	if t.TipAmount < 0 {
		return fmt.Errorf("tip can't be negative: %w", ErrNotValid)
	}
	if err := t.Location.Validate(); err != nil {
		return err
	}
	return t.Status.Validate()
}

// CheckInvariants checks the cross-field invariants that must hold for any stored task.
func (t *Task) CheckInvariants() error {
	// A task cancelled before acceptance never had a contractor.
	hasContractor := t.ContractorID != ""
	switch {
	case t.Status == TaskStatusCreated && hasContractor:
		return fmt.Errorf("created task can't have a contractor: %w", ErrNotValid)
	case t.Status != TaskStatusCreated && t.Status != TaskStatusCancelled && !hasContractor:
		return fmt.Errorf("task in %s status requires a contractor: %w", t.Status, ErrNotValid)
	}

	hasAmounts := t.FinalAmount != nil && t.CommissionAmount != nil
	if hasAmounts != (t.Status == TaskStatusCompleted) {
		return fmt.Errorf("final amounts must be set iff task is completed (status %s): %w", t.Status, ErrNotValid)
	}

	return nil
}

// IsParticipant returns true if the user is the client or the assigned contractor.
func (t *Task) IsParticipant(userID string) bool {
	return userID != "" && (userID == t.ClientID || userID == t.ContractorID)
}

// SetFinalAmounts sets the final and commission amounts from the budget.
func (t *Task) SetFinalAmounts(rate Rate) {
	final := t.BudgetAmount
	commission := Commission(final, rate)
	t.FinalAmount = &final
	t.CommissionAmount = &commission
}

// Rating is the score a task participant gives to the other party.
type Rating struct {
	ID         string
	TaskID     string
	FromUserID string
	ToUserID   string
	Score      int
	Comment    string
	CreatedAt  time.Time
}

const maxRatingCommentLen = 500

// Validate validates the rating.
func (r *Rating) Validate() error {
	if r.TaskID == "" || r.FromUserID == "" || r.ToUserID == "" {
		return fmt.Errorf("task, from and to users are required: %w", ErrNotValid)
	}
	if r.FromUserID == r.ToUserID {
		return fmt.Errorf("users can't rate themselves: %w", ErrNotValid)
	}
	if r.Score < 1 || r.Score > 5 {
		return fmt.Errorf("score must be between 1 and 5: %w", ErrNotValid)
	}
	if utf8.RuneCountInString(r.Comment) > maxRatingCommentLen {
		return fmt.Errorf("comment can't exceed %d characters: %w", maxRatingCommentLen, ErrNotValid)
	}
	return nil
}
