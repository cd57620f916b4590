package dispute_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/taskbroker/internal/app/dispute"
	"github.com/slok/taskbroker/internal/app/payment"
	"github.com/slok/taskbroker/internal/gateway"
	"github.com/slok/taskbroker/internal/gateway/fake"
	kvmemory "github.com/slok/taskbroker/internal/kv/memory"
	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/storage/memory"
	"github.com/slok/taskbroker/internal/storage/storagemock"
	"github.com/slok/taskbroker/internal/storage/storagetest"
)

var (
	t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	client = model.Principal{ID: "client-1", Roles: []model.Role{model.RoleClient}, Status: model.PrincipalStatusActive}
	admin  = model.Principal{ID: "admin-1", Roles: []model.Role{model.RoleAdmin}, Status: model.PrincipalStatusActive}
)

type testEnv struct {
	repo *memory.Repository
	gw   *fake.Gateway
	svc  *dispute.Service
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	gw, err := fake.NewGateway(fake.GatewayConfig{})
	require.NoError(t, err)
	now := func() time.Time { return t0.Add(time.Hour) }

	payments, err := payment.NewService(payment.ServiceConfig{
		Repository: repo,
		Gateway:    gw,
		Dedupe:     kvmemory.NewStore(nil),
		TimeNow:    now,
		Logger:     log.Noop,
	})
	require.NoError(t, err)

	svc, err := dispute.NewService(dispute.ServiceConfig{
		Repository: repo,
		Payments:   payments,
		TimeNow:    now,
		Logger:     log.Noop,
	})
	require.NoError(t, err)

	return testEnv{repo: repo, gw: gw, svc: svc}
}

// seed stores a disputed task and, if status is set, its payment with a real hold on the
// fake gateway.
func (e testEnv) seed(t *testing.T, taskStatus model.TaskStatus, payStatus model.PaymentStatus) {
	t.Helper()
	ctx := context.Background()

	task := storagetest.TaskFixture("task-1", t0)
	task.Status = taskStatus
	task.ContractorID = "contractor-1"
	acceptedAt, disputedAt := t0, t0.Add(time.Minute)
	task.AcceptedAt = &acceptedAt
	if taskStatus == model.TaskStatusDisputed {
		task.DisputedAt = &disputedAt
	}
	require.NoError(t, e.repo.CreateTask(ctx, task))

	if payStatus == "" {
		return
	}

	hold, err := e.gw.CreateHold(ctx, gateway.HoldRequest{PaymentID: "pay-1", Amount: 10000, IdempotencyKey: "seed"})
	require.NoError(t, err)
	if payStatus != model.PaymentStatusPending {
		require.NoError(t, e.gw.Authorize(hold.IntentID))
	}

	pay := storagetest.PaymentFixture("pay-1", "task-1", t0)
	pay.ProcessorIntentID = hold.IntentID
	pay.Status = payStatus
	require.NoError(t, e.repo.CreatePayment(ctx, pay))
}

func (e testEnv) state(t *testing.T) (*model.Task, *model.Payment) {
	t.Helper()
	ctx := context.Background()

	task, err := e.repo.GetTask(ctx, "task-1")
	require.NoError(t, err)
	pay, err := e.repo.GetLatestTaskPayment(ctx, "task-1")
	if err != nil {
		return task, nil
	}
	return task, pay
}

func TestNewService(t *testing.T) {
	_, err := dispute.NewService(dispute.ServiceConfig{Payments: &payment.Service{}})
	assert.Error(t, err)

	_, err = dispute.NewService(dispute.ServiceConfig{Repository: &storagemock.MockRepository{}})
	assert.Error(t, err)

	svc, err := dispute.NewService(dispute.ServiceConfig{Repository: &storagemock.MockRepository{}, Payments: &payment.Service{}})
	assert.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestServiceResolve(t *testing.T) {
	tests := map[string]struct {
		taskStatus model.TaskStatus
		payStatus  model.PaymentStatus
		principal  model.Principal
		kind       model.DisputeResolutionKind
		notes      string
		prepare    func(e testEnv)
		expErr     error
		expTask    model.TaskStatus
		expPay     model.PaymentStatus
		expRefund  model.Money
		expReason  string
	}{
		"Refunding a held payment should cancel the task and release the hold.": {
			taskStatus: model.TaskStatusDisputed,
			payStatus:  model.PaymentStatusHeld,
			principal:  admin,
			kind:       model.DisputeResolutionRefund,
			notes:      "contractor never showed up",
			expTask:    model.TaskStatusCancelled,
			expPay:     model.PaymentStatusRefunded,
			expReason:  "dispute resolved: refund (100.00 pln refunded to the client): contractor never showed up",
		},
		"Refunding a task without payment should only cancel it.": {
			taskStatus: model.TaskStatusDisputed,
			principal:  admin,
			kind:       model.DisputeResolutionRefund,
			expTask:    model.TaskStatusCancelled,
			expReason:  "dispute resolved: refund (no money moved)",
		},
		"Paying the contractor should capture the held payment and complete the task.": {
			taskStatus: model.TaskStatusDisputed,
			payStatus:  model.PaymentStatusHeld,
			principal:  admin,
			kind:       model.DisputeResolutionPayContractor,
			notes:      "work was done",
			expTask:    model.TaskStatusCompleted,
			expPay:     model.PaymentStatusCaptured,
			expReason:  "dispute resolved: pay_contractor (83.00 pln paid to the contractor): work was done",
		},
		"Paying the contractor with a pending payment should complete the task and leave the payment.": {
			taskStatus: model.TaskStatusDisputed,
			payStatus:  model.PaymentStatusPending,
			principal:  admin,
			kind:       model.DisputeResolutionPayContractor,
			expTask:    model.TaskStatusCompleted,
			expPay:     model.PaymentStatusPending,
			expReason:  "dispute resolved: pay_contractor (no money moved, payment is pending)",
		},
		"Paying the contractor with a failed payment should complete the task.": {
			taskStatus: model.TaskStatusDisputed,
			payStatus:  model.PaymentStatusFailed,
			principal:  admin,
			kind:       model.DisputeResolutionPayContractor,
			notes:      "hold expired, paid outside the platform",
			expTask:    model.TaskStatusCompleted,
			expPay:     model.PaymentStatusFailed,
			expReason:  "dispute resolved: pay_contractor (no money moved, payment is failed): hold expired, paid outside the platform",
		},
		"Paying the contractor without payment should complete the task.": {
			taskStatus: model.TaskStatusDisputed,
			principal:  admin,
			kind:       model.DisputeResolutionPayContractor,
			expTask:    model.TaskStatusCompleted,
			expReason:  "dispute resolved: pay_contractor (no money moved)",
		},
		"Administrator notes should be stored verbatim.": {
			taskStatus: model.TaskStatusDisputed,
			principal:  admin,
			kind:       model.DisputeResolutionRefund,
			notes:      "  client said:\n\"never again\"  ",
			expTask:    model.TaskStatusCancelled,
			expReason:  "dispute resolved: refund (no money moved):   client said:\n\"never again\"  ",
		},
		"Splitting a held payment should capture it and refund the client share.": {
			taskStatus: model.TaskStatusDisputed,
			payStatus:  model.PaymentStatusHeld,
			principal:  admin,
			kind:       model.DisputeResolutionSplit,
			notes:      "half done",
			expTask:    model.TaskStatusCompleted,
			expPay:     model.PaymentStatusCaptured,
			expRefund:  5000,
			expReason:  "dispute resolved: split (50.00% split, 50.00 pln refunded to the client): half done",
		},
		"Splitting without a capturable payment should complete the task without money.": {
			taskStatus: model.TaskStatusDisputed,
			payStatus:  model.PaymentStatusFailed,
			principal:  admin,
			kind:       model.DisputeResolutionSplit,
			expTask:    model.TaskStatusCompleted,
			expPay:     model.PaymentStatusFailed,
			expReason:  "dispute resolved: split (no money moved)",
		},
		"A failed capture should leave the dispute untouched.": {
			taskStatus: model.TaskStatusDisputed,
			payStatus:  model.PaymentStatusHeld,
			principal:  admin,
			kind:       model.DisputeResolutionPayContractor,
			prepare:    func(e testEnv) { e.gw.FailNext(gateway.OpCapture, gateway.ErrUnavailable) },
			expErr:     model.ErrGateway,
			expTask:    model.TaskStatusDisputed,
			expPay:     model.PaymentStatusHeld,
		},
		"Only administrators should resolve disputes.": {
			taskStatus: model.TaskStatusDisputed,
			payStatus:  model.PaymentStatusHeld,
			principal:  client,
			kind:       model.DisputeResolutionRefund,
			expErr:     model.ErrNotAllowed,
			expTask:    model.TaskStatusDisputed,
			expPay:     model.PaymentStatusHeld,
		},
		"An unknown resolution should fail without changes.": {
			taskStatus: model.TaskStatusDisputed,
			payStatus:  model.PaymentStatusHeld,
			principal:  admin,
			kind:       "coin_flip",
			expErr:     model.ErrNotValid,
			expTask:    model.TaskStatusDisputed,
			expPay:     model.PaymentStatusHeld,
		},
		"Resolving a task that is not disputed should fail.": {
			taskStatus: model.TaskStatusInProgress,
			payStatus:  model.PaymentStatusHeld,
			principal:  admin,
			kind:       model.DisputeResolutionRefund,
			expErr:     model.ErrInvalidTransition,
			expTask:    model.TaskStatusInProgress,
			expPay:     model.PaymentStatusHeld,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			e := newTestEnv(t)
			e.seed(t, test.taskStatus, test.payStatus)
			if test.prepare != nil {
				test.prepare(e)
			}

			res, err := e.svc.Resolve(context.Background(), test.principal, "task-1", test.kind, test.notes)

			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
				assert.Nil(t, res)
			} else if assert.NoError(t, err) {
				assert.Equal(t, test.expTask, res.Task.Status)
				assert.Equal(t, test.expReason, res.Task.CancellationReason)
			}

			task, pay := e.state(t)
			assert.Equal(t, test.expTask, task.Status)
			assert.NoError(t, task.CheckInvariants())
			if test.expPay == "" {
				assert.Nil(t, pay)
			} else {
				require.NotNil(t, pay)
				assert.Equal(t, test.expPay, pay.Status)
				assert.Equal(t, test.expRefund, pay.RefundedAmount)
			}
		})
	}
}

func TestServiceResolveSplitRetriesRefund(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.seed(t, model.TaskStatusDisputed, model.PaymentStatusHeld)
	e.gw.FailNext(gateway.OpRefund, gateway.ErrUnavailable)

	_, err := e.svc.Resolve(ctx, admin, "task-1", model.DisputeResolutionSplit, "")
	require.ErrorIs(t, err, gateway.ErrUnavailable)

	// The capture is kept, the task waits for a new resolution.
	task, pay := e.state(t)
	assert.Equal(t, model.TaskStatusDisputed, task.Status)
	assert.Equal(t, model.PaymentStatusCaptured, pay.Status)

	res, err := e.svc.Resolve(ctx, admin, "task-1", model.DisputeResolutionSplit, "")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, res.Task.Status)
	assert.Equal(t, model.Money(5000), res.Payment.RefundedAmount)

	st, ok := e.gw.State(pay.ProcessorIntentID)
	require.True(t, ok)
	assert.Equal(t, 1, st.Captures)
	assert.Equal(t, model.Money(5000), st.Refunded)
}

func TestServiceDetails(t *testing.T) {
	ctx := context.Background()

	e := newTestEnv(t)
	e.seed(t, model.TaskStatusDisputed, model.PaymentStatusHeld)

	got, err := e.svc.Details(ctx, admin, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "task-1", got.Task.ID)
	assert.Len(t, got.Payments, 1)
	assert.Empty(t, got.Ratings)

	_, err = e.svc.Details(ctx, client, "task-1")
	assert.ErrorIs(t, err, model.ErrNotAllowed)

	e2 := newTestEnv(t)
	e2.seed(t, model.TaskStatusAccepted, "")
	_, err = e2.svc.Details(ctx, admin, "task-1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
