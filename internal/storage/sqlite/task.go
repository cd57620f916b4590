package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/storage"
)

const taskColumns = `
	id, client_id, contractor_id,
	category, title, description,
	location_lat, location_lng, location_address, scheduled_at,
	budget_amount, final_amount, commission_amount, tip_amount,
	status, cancellation_reason, completion_photos,
	created_at, updated_at, accepted_at, started_at, completed_at, cancelled_at, disputed_at
`

// CreateTask creates a new task in the repository.
func (r *Repository) CreateTask(ctx context.Context, t model.Task) error {
	photos, err := encodePhotos(t.CompletionPhotos)
	if err != nil {
		return err
	}

	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		t.ID, t.ClientID, t.ContractorID,
		t.Category, t.Title, t.Description,
		t.Location.Lat, t.Location.Lng, t.Location.Address, unixMilliPtr(t.ScheduledAt),
		t.BudgetAmount, moneyPtr(t.FinalAmount), moneyPtr(t.CommissionAmount), t.TipAmount,
		t.Status, t.CancellationReason, photos,
		unixMilli(t.CreatedAt), unixMilli(t.UpdatedAt),
		unixMilliPtr(t.AcceptedAt), unixMilliPtr(t.StartedAt), unixMilliPtr(t.CompletedAt), unixMilliPtr(t.CancelledAt), unixMilliPtr(t.DisputedAt),
	)
	if err != nil {
		if isUniqueErr(err, "tasks") {
			return fmt.Errorf("task with id %s: %w", t.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert task: %w", err)
	}

	r.logger.Debugf("Created task in repository: %s", t.ID)
	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	t, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query task: %w", err)
	}

	return &t, nil
}

// ListTasks returns the tasks matching the options, newest first.
func (r *Repository) ListTasks(ctx context.Context, opts storage.TaskListOpts) ([]model.Task, error) {
	var (
		where []string
		args  []any
	)
	if len(opts.Statuses) > 0 {
		marks := make([]string, 0, len(opts.Statuses))
		for _, st := range opts.Statuses {
			marks = append(marks, "?")
			args = append(args, st)
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if opts.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, opts.ClientID)
	}
	if opts.ContractorID != "" {
		where = append(where, "contractor_id = ?")
		args = append(args, opts.ContractorID)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tasks, nil
}

// UpdateTask updates a task if it's still in the expected status.
func (r *Repository) UpdateTask(ctx context.Context, t model.Task, expStatus model.TaskStatus) error {
	if err := r.updateTask(ctx, r.db, t, expStatus); err != nil {
		return err
	}

	r.logger.Debugf("Updated task in repository: %s (%s -> %s)", t.ID, expStatus, t.Status)
	return nil
}

func (r *Repository) updateTask(ctx context.Context, e execer, t model.Task, expStatus model.TaskStatus) error {
	photos, err := encodePhotos(t.CompletionPhotos)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET
			contractor_id = ?,
			category = ?,
			title = ?,
			description = ?,
			location_lat = ?,
			location_lng = ?,
			location_address = ?,
			scheduled_at = ?,
			final_amount = ?,
			commission_amount = ?,
			tip_amount = ?,
			status = ?,
			cancellation_reason = ?,
			completion_photos = ?,
			updated_at = ?,
			accepted_at = ?,
			started_at = ?,
			completed_at = ?,
			cancelled_at = ?,
			disputed_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := e.ExecContext(ctx, query,
		t.ContractorID,
		t.Category,
		t.Title,
		t.Description,
		t.Location.Lat,
		t.Location.Lng,
		t.Location.Address,
		unixMilliPtr(t.ScheduledAt),
		moneyPtr(t.FinalAmount),
		moneyPtr(t.CommissionAmount),
		t.TipAmount,
		t.Status,
		t.CancellationReason,
		photos,
		unixMilli(t.UpdatedAt),
		unixMilliPtr(t.AcceptedAt),
		unixMilliPtr(t.StartedAt),
		unixMilliPtr(t.CompletedAt),
		unixMilliPtr(t.CancelledAt),
		unixMilliPtr(t.DisputedAt),
		t.ID,
		expStatus,
	)
	if err != nil {
		return fmt.Errorf("could not update task: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return r.missedTaskUpdate(ctx, e, t.ID, expStatus)
	}

	return nil
}

// missedTaskUpdate tells apart a missing task from a stale status.
func (r *Repository) missedTaskUpdate(ctx context.Context, e execer, id string, expStatus model.TaskStatus) error {
	q, ok := e.(interface {
		QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	})
	if !ok {
		return fmt.Errorf("task %s not updated: %w", id, model.ErrConflict)
	}

	var status model.TaskStatus
	err := q.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
		}
		return fmt.Errorf("could not query task status: %w", err)
	}

	return fmt.Errorf("task %s is %s, expected %s: %w", id, status, expStatus, model.ErrConflict)
}

func scanTask(s scanner) (model.Task, error) {
	var (
		t                                  model.Task
		scheduledAt                        sql.NullInt64
		finalAmount, commissionAmount      sql.NullInt64
		photos                             string
		createdAt, updatedAt               int64
		acceptedAt, startedAt, completedAt sql.NullInt64
		cancelledAt, disputedAt            sql.NullInt64
	)

	err := s.Scan(
		&t.ID, &t.ClientID, &t.ContractorID,
		&t.Category, &t.Title, &t.Description,
		&t.Location.Lat, &t.Location.Lng, &t.Location.Address, &scheduledAt,
		&t.BudgetAmount, &finalAmount, &commissionAmount, &t.TipAmount,
		&t.Status, &t.CancellationReason, &photos,
		&createdAt, &updatedAt, &acceptedAt, &startedAt, &completedAt, &cancelledAt, &disputedAt,
	)
	if err != nil {
		return model.Task{}, err
	}

	if err := json.Unmarshal([]byte(photos), &t.CompletionPhotos); err != nil {
		return model.Task{}, fmt.Errorf("could not decode completion photos: %w", err)
	}
	if len(t.CompletionPhotos) == 0 {
		t.CompletionPhotos = nil
	}

	t.ScheduledAt = timePtrFromNull(scheduledAt)
	t.FinalAmount = moneyFromNull(finalAmount)
	t.CommissionAmount = moneyFromNull(commissionAmount)
	t.CreatedAt = timeFromUnixMilli(createdAt)
	t.UpdatedAt = timeFromUnixMilli(updatedAt)
	t.AcceptedAt = timePtrFromNull(acceptedAt)
	t.StartedAt = timePtrFromNull(startedAt)
	t.CompletedAt = timePtrFromNull(completedAt)
	t.CancelledAt = timePtrFromNull(cancelledAt)
	t.DisputedAt = timePtrFromNull(disputedAt)

	return t, nil
}

func encodePhotos(photos []string) (string, error) {
	if len(photos) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(photos)
	if err != nil {
		return "", fmt.Errorf("could not encode completion photos: %w", err)
	}
	return string(b), nil
}

func moneyPtr(m *model.Money) *int64 {
	if m == nil {
		return nil
	}
	v := int64(*m)
	return &v
}

func moneyFromNull(n sql.NullInt64) *model.Money {
	if !n.Valid {
		return nil
	}
	m := model.Money(n.Int64)
	return &m
}
