package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/slok/taskbroker/internal/model"
)

const paymentColumns = `
	id, task_id, currency,
	amount, commission_amount, contractor_amount, refunded_amount,
	processor_intent_id, processor_transfer_id,
	status, refund_reason, failure_reason,
	created_at, updated_at
`

// CreatePayment creates a new payment in the repository.
func (r *Repository) CreatePayment(ctx context.Context, p model.Payment) error {
	query := `INSERT INTO payments (` + paymentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.TaskID, p.Currency,
		p.Amount, p.CommissionAmount, p.ContractorAmount, p.RefundedAmount,
		p.ProcessorIntentID, p.ProcessorTransferID,
		p.Status, p.RefundReason, p.FailureReason,
		unixMilli(p.CreatedAt), unixMilli(p.UpdatedAt),
	)
	if err != nil {
		switch {
		case isUniqueErr(err, "payments"):
			return fmt.Errorf("payment %s of task %s: %w", p.ID, p.TaskID, model.ErrAlreadyExists)
		case isForeignKeyErr(err):
			return fmt.Errorf("task %s: %w", p.TaskID, model.ErrNotFound)
		}
		return fmt.Errorf("could not insert payment: %w", err)
	}

	r.logger.Debugf("Created payment in repository: %s", p.ID)
	return nil
}

// GetPayment retrieves a payment by ID.
func (r *Repository) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id, "payment "+id)
}

// GetPaymentByIntentID retrieves a payment by its processor intent ID.
func (r *Repository) GetPaymentByIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	if intentID == "" {
		return nil, fmt.Errorf("empty intent id: %w", model.ErrNotFound)
	}
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE processor_intent_id = ?`, intentID, "payment with intent "+intentID)
}

// GetPaymentByTransferID retrieves a payment by its processor transfer ID.
func (r *Repository) GetPaymentByTransferID(ctx context.Context, transferID string) (*model.Payment, error) {
	if transferID == "" {
		return nil, fmt.Errorf("empty transfer id: %w", model.ErrNotFound)
	}
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE processor_transfer_id = ?`, transferID, "payment with transfer "+transferID)
}

// GetLatestTaskPayment returns the current payment of a task.
func (r *Repository) GetLatestTaskPayment(ctx context.Context, taskID string) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE task_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`
	return r.getPayment(ctx, query, taskID, "payment for task "+taskID)
}

func (r *Repository) getPayment(ctx context.Context, query string, arg any, desc string) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", desc, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query payment: %w", err)
	}

	return &p, nil
}

// ListTaskPayments returns the task payments, newest first.
func (r *Repository) ListTaskPayments(ctx context.Context, taskID string) ([]model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE task_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("could not query payments: %w", err)
	}
	defer rows.Close()

	payments := []model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return payments, nil
}

// UpdatePayment updates a payment if it's still in the expected state.
func (r *Repository) UpdatePayment(ctx context.Context, p model.Payment, exp model.PaymentState) error {
	if err := r.updatePayment(ctx, r.db, p, exp); err != nil {
		return err
	}

	r.logger.Debugf("Updated payment in repository: %s (%s -> %s)", p.ID, exp.Status, p.Status)
	return nil
}

// UpdateTaskWithPayment updates the task and the payment in a single transaction.
func (r *Repository) UpdateTaskWithPayment(ctx context.Context, t model.Task, expTaskStatus model.TaskStatus, p *model.Payment, expPayment model.PaymentState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.updateTask(ctx, tx, t, expTaskStatus); err != nil {
		return err
	}
	if p != nil {
		if err := r.updatePayment(ctx, tx, *p, expPayment); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	r.logger.Debugf("Updated task %s with payment in repository", t.ID)
	return nil
}

func (r *Repository) updatePayment(ctx context.Context, e execer, p model.Payment, exp model.PaymentState) error {
	query := `
		UPDATE payments
		SET
			refunded_amount = ?,
			processor_intent_id = ?,
			processor_transfer_id = ?,
			status = ?,
			refund_reason = ?,
			failure_reason = ?,
			updated_at = ?
		WHERE id = ? AND status = ? AND refunded_amount = ?
	`

	result, err := e.ExecContext(ctx, query,
		p.RefundedAmount,
		p.ProcessorIntentID,
		p.ProcessorTransferID,
		p.Status,
		p.RefundReason,
		p.FailureReason,
		unixMilli(p.UpdatedAt),
		p.ID,
		exp.Status,
		exp.RefundedAmount,
	)
	if err != nil {
		if isUniqueErr(err, "payments") {
			return fmt.Errorf("payment %s: %w", p.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not update payment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	q, ok := e.(interface {
		QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	})
	if !ok {
		return fmt.Errorf("payment %s not updated: %w", p.ID, model.ErrConflict)
	}
	var cur model.PaymentState
	err = q.QueryRowContext(ctx, `SELECT status, refunded_amount FROM payments WHERE id = ?`, p.ID).Scan(&cur.Status, &cur.RefundedAmount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("payment %s: %w", p.ID, model.ErrNotFound)
		}
		return fmt.Errorf("could not query payment status: %w", err)
	}

	return fmt.Errorf("payment %s is %s, expected %s: %w", p.ID, cur, exp, model.ErrConflict)
}

func scanPayment(s scanner) (model.Payment, error) {
	var (
		p                    model.Payment
		createdAt, updatedAt int64
	)

	err := s.Scan(
		&p.ID, &p.TaskID, &p.Currency,
		&p.Amount, &p.CommissionAmount, &p.ContractorAmount, &p.RefundedAmount,
		&p.ProcessorIntentID, &p.ProcessorTransferID,
		&p.Status, &p.RefundReason, &p.FailureReason,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return model.Payment{}, err
	}

	p.CreatedAt = timeFromUnixMilli(createdAt)
	p.UpdatedAt = timeFromUnixMilli(updatedAt)

	return p, nil
}
