// Package storagetest has the behavior tests every storage.Repository implementation
// must pass.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/storage"
)

// TaskFixture returns a valid created task.
func TaskFixture(id string, createdAt time.Time) model.Task {
	scheduled := createdAt.Add(24 * time.Hour)
	return model.Task{
		ID:           id,
		ClientID:     "client-1",
		Category:     "cleaning",
		Title:        "Clean the flat",
		Description:  "Two rooms and a kitchen",
		Location:     model.Location{Lat: 52.2297, Lng: 21.0122, Address: "Marszalkowska 1, Warszawa"},
		ScheduledAt:  &scheduled,
		BudgetAmount: 10000,
		Status:       model.TaskStatusCreated,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

// PaymentFixture returns a valid pending payment for a task.
func PaymentFixture(id, taskID string, createdAt time.Time) model.Payment {
	return model.Payment{
		ID:                id,
		TaskID:            taskID,
		Currency:          "pln",
		Amount:            10000,
		CommissionAmount:  1700,
		ContractorAmount:  8300,
		ProcessorIntentID: "pi_" + id,
		Status:            model.PaymentStatusPending,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}
}

// TestRepository runs the repository behavior tests. newRepo must return an empty repository.
func TestRepository(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	t.Run("Tasks", func(t *testing.T) { testTasks(t, newRepo) })
	t.Run("TaskConditionalUpdate", func(t *testing.T) { testTaskConditionalUpdate(t, newRepo) })
	t.Run("TaskConcurrentAccept", func(t *testing.T) { testTaskConcurrentAccept(t, newRepo) })
	t.Run("Payments", func(t *testing.T) { testPayments(t, newRepo) })
	t.Run("PaymentSingleOpen", func(t *testing.T) { testPaymentSingleOpen(t, newRepo) })
	t.Run("TaskWithPayment", func(t *testing.T) { testTaskWithPayment(t, newRepo) })
	t.Run("Ratings", func(t *testing.T) { testRatings(t, newRepo) })
}

func testTasks(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	t1 := TaskFixture("t1", now.Add(-time.Minute))
	t2 := TaskFixture("t2", now)
	t2.ClientID = "client-2"
	require.NoError(t, repo.CreateTask(ctx, t1))
	require.NoError(t, repo.CreateTask(ctx, t2))

	err := repo.CreateTask(ctx, t1)
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	got, err := repo.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, t1, *got)

	_, err = repo.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	all, err := repo.ListTasks(ctx, storage.TaskListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "t2", all[0].ID)
	assert.Equal(t, "t1", all[1].ID)

	byClient, err := repo.ListTasks(ctx, storage.TaskListOpts{ClientID: "client-2"})
	require.NoError(t, err)
	require.Len(t, byClient, 1)
	assert.Equal(t, "t2", byClient[0].ID)

	byStatus, err := repo.ListTasks(ctx, storage.TaskListOpts{Statuses: []model.TaskStatus{model.TaskStatusDisputed}})
	require.NoError(t, err)
	assert.Empty(t, byStatus)
}

func testTaskConditionalUpdate(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	task := TaskFixture("t1", now)
	require.NoError(t, repo.CreateTask(ctx, task))

	accepted := task
	accepted.Status = model.TaskStatusAccepted
	accepted.ContractorID = "contractor-1"
	accepted.AcceptedAt = &now
	require.NoError(t, repo.UpdateTask(ctx, accepted, model.TaskStatusCreated))

	// Stale write.
	other := task
	other.Status = model.TaskStatusAccepted
	other.ContractorID = "contractor-2"
	err := repo.UpdateTask(ctx, other, model.TaskStatusCreated)
	assert.ErrorIs(t, err, model.ErrConflict)

	got, err := repo.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "contractor-1", got.ContractorID)
	assert.Equal(t, model.TaskStatusAccepted, got.Status)
	require.NotNil(t, got.AcceptedAt)
	assert.True(t, now.Equal(*got.AcceptedAt))

	missing := TaskFixture("missing", now)
	err = repo.UpdateTask(ctx, missing, model.TaskStatusCreated)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func testTaskConcurrentAccept(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.CreateTask(ctx, TaskFixture("t1", now)))

	const workers = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := TaskFixture("t1", now)
			task.Status = model.TaskStatusAccepted
			task.ContractorID = "contractor-" + string(rune('a'+i))
			if err := repo.UpdateTask(ctx, task, model.TaskStatusCreated); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func testPayments(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.CreateTask(ctx, TaskFixture("t1", now)))

	p1 := PaymentFixture("p1", "t1", now.Add(-time.Minute))
	p1.Status = model.PaymentStatusFailed
	p1.FailureReason = "card declined"
	p2 := PaymentFixture("p2", "t1", now)
	require.NoError(t, repo.CreatePayment(ctx, p1))
	require.NoError(t, repo.CreatePayment(ctx, p2))

	got, err := repo.GetPayment(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, p1, *got)

	_, err = repo.GetPayment(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	byIntent, err := repo.GetPaymentByIntentID(ctx, "pi_p2")
	require.NoError(t, err)
	assert.Equal(t, "p2", byIntent.ID)

	_, err = repo.GetPaymentByTransferID(ctx, "tr_missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	latest, err := repo.GetLatestTaskPayment(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "p2", latest.ID)

	_, err = repo.GetLatestTaskPayment(ctx, "t2")
	assert.ErrorIs(t, err, model.ErrNotFound)

	list, err := repo.ListTaskPayments(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p2", list[0].ID)
	assert.Equal(t, "p1", list[1].ID)

	held := p2
	held.Status = model.PaymentStatusHeld
	held.UpdatedAt = now.Add(time.Second)
	require.NoError(t, repo.UpdatePayment(ctx, held, p2.State()))

	err = repo.UpdatePayment(ctx, held, p2.State())
	assert.ErrorIs(t, err, model.ErrConflict)

	captured := held
	captured.Status = model.PaymentStatusCaptured
	captured.ProcessorTransferID = "tr_1"
	require.NoError(t, repo.UpdatePayment(ctx, captured, held.State()))

	byTransfer, err := repo.GetPaymentByTransferID(ctx, "tr_1")
	require.NoError(t, err)
	assert.Equal(t, captured, *byTransfer)

	// Partial refunds keep the status, the refunded amount guards the write.
	refund1 := captured
	refund1.RefundedAmount = 3000
	refund2 := captured
	refund2.RefundedAmount = 4000
	require.NoError(t, repo.UpdatePayment(ctx, refund1, captured.State()))
	err = repo.UpdatePayment(ctx, refund2, captured.State())
	assert.ErrorIs(t, err, model.ErrConflict)

	got, err = repo.GetPayment(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, model.Money(3000), got.RefundedAmount)
}

func testPaymentSingleOpen(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.CreateTask(ctx, TaskFixture("t1", now)))

	require.NoError(t, repo.CreatePayment(ctx, PaymentFixture("p1", "t1", now)))

	err := repo.CreatePayment(ctx, PaymentFixture("p2", "t1", now.Add(time.Second)))
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	// Once settled a new payment can be created.
	failed := PaymentFixture("p1", "t1", now)
	failed.Status = model.PaymentStatusFailed
	require.NoError(t, repo.UpdatePayment(ctx, failed, model.PaymentState{Status: model.PaymentStatusPending}))
	require.NoError(t, repo.CreatePayment(ctx, PaymentFixture("p2", "t1", now.Add(time.Second))))
}

func testTaskWithPayment(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	task := TaskFixture("t1", now)
	task.Status = model.TaskStatusDisputed
	task.ContractorID = "contractor-1"
	require.NoError(t, repo.CreateTask(ctx, task))
	payment := PaymentFixture("p1", "t1", now)
	payment.Status = model.PaymentStatusHeld
	require.NoError(t, repo.CreatePayment(ctx, payment))

	// Payment precondition fails, nothing should be written.
	cancelled := task
	cancelled.Status = model.TaskStatusCancelled
	refunded := payment
	refunded.Status = model.PaymentStatusRefunded
	err := repo.UpdateTaskWithPayment(ctx, cancelled, model.TaskStatusDisputed, &refunded, model.PaymentState{Status: model.PaymentStatusCaptured})
	assert.ErrorIs(t, err, model.ErrConflict)

	gotTask, err := repo.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusDisputed, gotTask.Status)

	// Both preconditions hold.
	err = repo.UpdateTaskWithPayment(ctx, cancelled, model.TaskStatusDisputed, &refunded, payment.State())
	require.NoError(t, err)

	gotTask, err = repo.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCancelled, gotTask.Status)
	gotPayment, err := repo.GetPayment(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, gotPayment.Status)

	// Without payment only the task is written.
	again := cancelled
	again.CancellationReason = "annotated"
	require.NoError(t, repo.UpdateTaskWithPayment(ctx, again, model.TaskStatusCancelled, nil, model.PaymentState{}))
	gotTask, err = repo.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "annotated", gotTask.CancellationReason)
}

func testRatings(t *testing.T, newRepo func(t *testing.T) storage.Repository) {
	ctx := context.Background()
	repo := newRepo(t)
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.CreateTask(ctx, TaskFixture("t1", now)))

	r1 := model.Rating{ID: "r1", TaskID: "t1", FromUserID: "client-1", ToUserID: "contractor-1", Score: 5, Comment: "Great", CreatedAt: now}
	r2 := model.Rating{ID: "r2", TaskID: "t1", FromUserID: "contractor-1", ToUserID: "client-1", Score: 4, CreatedAt: now.Add(time.Second)}
	require.NoError(t, repo.CreateRating(ctx, r1))
	require.NoError(t, repo.CreateRating(ctx, r2))

	dup := r1
	dup.ID = "r3"
	err := repo.CreateRating(ctx, dup)
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	ratings, err := repo.ListTaskRatings(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []model.Rating{r1, r2}, ratings)
}
