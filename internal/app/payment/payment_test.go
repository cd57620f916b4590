package payment_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/taskbroker/internal/app/payment"
	"github.com/slok/taskbroker/internal/gateway"
	"github.com/slok/taskbroker/internal/gateway/fake"
	"github.com/slok/taskbroker/internal/gateway/gatewaymock"
	kvmemory "github.com/slok/taskbroker/internal/kv/memory"
	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/notify"
	"github.com/slok/taskbroker/internal/storage/memory"
	"github.com/slok/taskbroker/internal/storage/storagemock"
	"github.com/slok/taskbroker/internal/storage/storagetest"
)

var (
	t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	client     = model.Principal{ID: "client-1", Roles: []model.Role{model.RoleClient}, Status: model.PrincipalStatusActive}
	contractor = model.Principal{ID: "contractor-1", Roles: []model.Role{model.RoleContractor}, Status: model.PrincipalStatusActive}
	admin      = model.Principal{ID: "admin-1", Roles: []model.Role{model.RoleAdmin}, Status: model.PrincipalStatusActive}
)

// clock returns a time source that moves one second forward on every call.
func clock() func() time.Time {
	var (
		mu sync.Mutex
		n  int
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
}

type testEnv struct {
	repo   *memory.Repository
	gw     *fake.Gateway
	dedupe *kvmemory.Store
	svc    *payment.Service
	events *eventRecorder
}

type eventRecorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *eventRecorder) Publish(_ context.Context, e model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) count(typ model.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func newTestEnv(t *testing.T, autoAuthorize bool) testEnv {
	t.Helper()

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	gw, err := fake.NewGateway(fake.GatewayConfig{AutoAuthorize: autoAuthorize})
	require.NoError(t, err)
	dedupe := kvmemory.NewStore(nil)
	events := &eventRecorder{}

	svc, err := payment.NewService(payment.ServiceConfig{
		Repository: repo,
		Gateway:    gw,
		Dedupe:     dedupe,
		Publisher:  events,
		TimeNow:    clock(),
		Logger:     log.Noop,
	})
	require.NoError(t, err)

	return testEnv{repo: repo, gw: gw, dedupe: dedupe, svc: svc, events: events}
}

func (e testEnv) seedTask(t *testing.T, status model.TaskStatus) model.Task {
	t.Helper()

	task := storagetest.TaskFixture("task-1", t0)
	task.Status = status
	if status != model.TaskStatusCreated {
		task.ContractorID = contractor.ID
		acceptedAt := t0
		task.AcceptedAt = &acceptedAt
	}
	if status == model.TaskStatusCompleted {
		task.SetFinalAmounts(1700)
	}
	require.NoError(t, e.repo.CreateTask(context.Background(), task))

	return task
}

func (e testEnv) completeTask(t *testing.T, taskID string) {
	t.Helper()

	ctx := context.Background()
	task, err := e.repo.GetTask(ctx, taskID)
	require.NoError(t, err)
	prev := task.Status
	task.Status = model.TaskStatusCompleted
	task.SetFinalAmounts(1700)
	require.NoError(t, e.repo.UpdateTask(ctx, *task, prev))
}

func (e testEnv) latest(t *testing.T, taskID string) *model.Payment {
	t.Helper()

	p, err := e.repo.GetLatestTaskPayment(context.Background(), taskID)
	require.NoError(t, err)
	return p
}

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		config payment.ServiceConfig
		expErr bool
	}{
		"valid config should create service": {
			config: payment.ServiceConfig{
				Repository: &storagemock.MockRepository{},
				Gateway:    &gatewaymock.MockGateway{},
				Dedupe:     kvmemory.NewStore(nil),
			},
		},
		"missing repository should fail": {
			config: payment.ServiceConfig{
				Gateway: &gatewaymock.MockGateway{},
				Dedupe:  kvmemory.NewStore(nil),
			},
			expErr: true,
		},
		"missing gateway should fail": {
			config: payment.ServiceConfig{
				Repository: &storagemock.MockRepository{},
				Dedupe:     kvmemory.NewStore(nil),
			},
			expErr: true,
		},
		"missing dedupe store should fail": {
			config: payment.ServiceConfig{
				Repository: &storagemock.MockRepository{},
				Gateway:    &gatewaymock.MockGateway{},
			},
			expErr: true,
		},
		"invalid platform config should fail": {
			config: payment.ServiceConfig{
				Repository: &storagemock.MockRepository{},
				Gateway:    &gatewaymock.MockGateway{},
				Dedupe:     kvmemory.NewStore(nil),
				Platform:   model.PlatformConfig{Currency: "pln", CommissionRate: 20000},
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			svc, err := payment.NewService(test.config)
			if test.expErr {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestServiceCreateHold(t *testing.T) {
	tests := map[string]struct {
		autoAuthorize bool
		status        model.TaskStatus
		principal     model.Principal
		prepare       func(t *testing.T, e testEnv)
		expErr        error
		expStatus     model.PaymentStatus
	}{
		"A client should create a pending hold for an accepted task.": {
			status:    model.TaskStatusAccepted,
			principal: client,
			expStatus: model.PaymentStatusPending,
		},
		"An hold authorized by the gateway should be held right away.": {
			autoAuthorize: true,
			status:        model.TaskStatusAccepted,
			principal:     model.SystemPrincipal,
			expStatus:     model.PaymentStatusHeld,
		},
		"A gateway failure should leave the payment failed.": {
			status:    model.TaskStatusAccepted,
			principal: client,
			prepare: func(t *testing.T, e testEnv) {
				e.gw.FailNext(gateway.OpCreateHold, gateway.ErrDeclined)
			},
			expErr:    model.ErrGateway,
			expStatus: model.PaymentStatusFailed,
		},
		"Holding funds of a created task should fail.": {
			status:    model.TaskStatusCreated,
			principal: client,
			expErr:    model.ErrInvalidTransition,
		},
		"Only the task client should hold funds.": {
			status:    model.TaskStatusAccepted,
			principal: contractor,
			expErr:    model.ErrNotAllowed,
		},
		"A task with an open payment can't get another one.": {
			status:    model.TaskStatusAccepted,
			principal: client,
			prepare: func(t *testing.T, e testEnv) {
				_, err := e.svc.CreateHold(context.Background(), client, "task-1")
				require.NoError(t, err)
			},
			expErr:    model.ErrInvalidTransition,
			expStatus: model.PaymentStatusPending,
		},
		"A failed payment should be replaced by a new hold.": {
			status:    model.TaskStatusInProgress,
			principal: client,
			prepare: func(t *testing.T, e testEnv) {
				e.gw.FailNext(gateway.OpCreateHold, gateway.ErrUnavailable)
				_, err := e.svc.CreateHold(context.Background(), client, "task-1")
				require.ErrorIs(t, err, model.ErrGateway)
			},
			expStatus: model.PaymentStatusPending,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			e := newTestEnv(t, test.autoAuthorize)
			e.seedTask(t, test.status)
			if test.prepare != nil {
				test.prepare(t, e)
			}

			got, err := e.svc.CreateHold(context.Background(), test.principal, "task-1")

			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
			} else if assert.NoError(t, err) {
				assert.Equal(t, test.expStatus, got.Status)
				assert.NotEmpty(t, got.ProcessorIntentID)
				assert.Equal(t, model.Money(10000), got.Amount)
				assert.Equal(t, model.Money(1700), got.CommissionAmount)
				assert.Equal(t, model.Money(8300), got.ContractorAmount)
			}

			if test.expStatus != "" {
				latest := e.latest(t, "task-1")
				assert.Equal(t, test.expStatus, latest.Status)
				if latest.Status == model.PaymentStatusFailed {
					assert.NotEmpty(t, latest.FailureReason)
				}
			}
		})
	}
}

func TestServiceConfirmAndCapture(t *testing.T) {
	tests := map[string]struct {
		autoAuthorize bool
		actions       func(ctx context.Context, t *testing.T, e testEnv)
	}{
		"Confirming an hold not authorized by the gateway should fail.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusAccepted)
				p, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)

				_, err = e.svc.ConfirmHold(ctx, client, p.ID)
				assert.ErrorIs(t, err, model.ErrNotValid)
				assert.Equal(t, model.PaymentStatusPending, e.latest(t, "task-1").Status)
			},
		},

		"Confirming an authorized hold should be idempotent.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusAccepted)
				p, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)
				require.NoError(t, e.gw.Authorize(p.ProcessorIntentID))

				got, err := e.svc.ConfirmHold(ctx, client, p.ID)
				require.NoError(t, err)
				assert.Equal(t, model.PaymentStatusHeld, got.Status)

				got, err = e.svc.ConfirmHold(ctx, client, p.ID)
				require.NoError(t, err)
				assert.Equal(t, model.PaymentStatusHeld, got.Status)
				assert.Equal(t, 1, e.events.count(model.EventPaymentHeld))
			},
		},

		"Completing the task before confirming the hold should capture on confirm.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusInProgress)
				p, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)
				e.completeTask(t, "task-1")
				require.NoError(t, e.gw.Authorize(p.ProcessorIntentID))

				got, err := e.svc.ConfirmHold(ctx, client, p.ID)
				require.NoError(t, err)
				assert.Equal(t, model.PaymentStatusCaptured, got.Status)
				assert.NotEmpty(t, got.ProcessorTransferID)
			},
		},

		"Capturing twice should move the money once.": {
			autoAuthorize: true,
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusInProgress)
				p, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)
				e.completeTask(t, "task-1")

				c1, err := e.svc.Capture(ctx, admin, "task-1")
				require.NoError(t, err)
				c2, err := e.svc.Capture(ctx, client, "task-1")
				require.NoError(t, err)
				assert.Equal(t, c1, c2)

				none, err := e.svc.CaptureIfReady(ctx, "task-1")
				require.NoError(t, err)
				assert.Nil(t, none)

				st, ok := e.gw.State(p.ProcessorIntentID)
				require.True(t, ok)
				assert.Equal(t, 1, st.Captures)
				assert.Equal(t, 1, e.events.count(model.EventPaymentCaptured))
			},
		},

		"Capturing a task that is not completed should fail.": {
			autoAuthorize: true,
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusInProgress)
				_, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)

				_, err = e.svc.Capture(ctx, admin, "task-1")
				assert.ErrorIs(t, err, model.ErrInvalidTransition)

				none, err := e.svc.CaptureIfReady(ctx, "task-1")
				require.NoError(t, err)
				assert.Nil(t, none)
			},
		},

		"A declined capture should fail the payment.": {
			autoAuthorize: true,
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusInProgress)
				_, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)
				e.completeTask(t, "task-1")
				e.gw.FailNext(gateway.OpCapture, gateway.ErrDeclined)

				_, err = e.svc.Capture(ctx, admin, "task-1")
				assert.ErrorIs(t, err, gateway.ErrDeclined)
				assert.Equal(t, model.PaymentStatusFailed, e.latest(t, "task-1").Status)
			},
		},

		"An unavailable gateway on capture should keep the funds held.": {
			autoAuthorize: true,
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusInProgress)
				_, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)
				e.completeTask(t, "task-1")
				e.gw.FailNext(gateway.OpCapture, gateway.ErrUnavailable)

				_, err = e.svc.Capture(ctx, admin, "task-1")
				assert.ErrorIs(t, err, gateway.ErrUnavailable)
				assert.Equal(t, model.PaymentStatusHeld, e.latest(t, "task-1").Status)

				got, err := e.svc.Capture(ctx, admin, "task-1")
				require.NoError(t, err)
				assert.Equal(t, model.PaymentStatusCaptured, got.Status)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			test.actions(context.Background(), t, newTestEnv(t, test.autoAuthorize))
		})
	}
}

func TestServiceRefund(t *testing.T) {
	money := func(m model.Money) *model.Money { return &m }

	tests := map[string]struct {
		actions func(ctx context.Context, t *testing.T, e testEnv)
	}{
		"Partial refunds should accumulate until the payment is refunded.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusInProgress)
				p, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)
				require.NoError(t, e.gw.Authorize(p.ProcessorIntentID))
				_, err = e.svc.ConfirmHold(ctx, client, p.ID)
				require.NoError(t, err)
				e.completeTask(t, "task-1")
				_, err = e.svc.Capture(ctx, admin, "task-1")
				require.NoError(t, err)

				got, err := e.svc.Refund(ctx, admin, "task-1", "damaged sofa", money(3000))
				require.NoError(t, err)
				assert.Equal(t, model.PaymentStatusCaptured, got.Status)
				assert.Equal(t, model.Money(3000), got.RefundedAmount)

				_, err = e.svc.Refund(ctx, admin, "task-1", "too much", money(7001))
				assert.ErrorIs(t, err, model.ErrNotValid)

				got, err = e.svc.Refund(ctx, admin, "task-1", "goodwill", nil)
				require.NoError(t, err)
				assert.Equal(t, model.PaymentStatusRefunded, got.Status)
				assert.Equal(t, model.Money(10000), got.RefundedAmount)

				_, err = e.svc.Refund(ctx, admin, "task-1", "again", nil)
				assert.ErrorIs(t, err, model.ErrInvalidTransition)

				st, _ := e.gw.State(p.ProcessorIntentID)
				assert.Equal(t, model.Money(10000), st.Refunded)
			},
		},

		"Refunding a pending payment should cancel the hold.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusAccepted)
				p, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)

				got, err := e.svc.Refund(ctx, model.SystemPrincipal, "task-1", "cancelled", nil)
				require.NoError(t, err)
				assert.Equal(t, model.PaymentStatusRefunded, got.Status)
				assert.Equal(t, "cancelled", got.RefundReason)

				st, _ := e.gw.State(p.ProcessorIntentID)
				assert.Equal(t, gateway.HoldStatusCanceled, st.Status)
			},
		},

		"Partially refunding a held payment should fail.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusAccepted)
				p, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)
				require.NoError(t, e.gw.Authorize(p.ProcessorIntentID))
				_, err = e.svc.ConfirmHold(ctx, client, p.ID)
				require.NoError(t, err)

				_, err = e.svc.Refund(ctx, admin, "task-1", "partial", money(100))
				assert.ErrorIs(t, err, model.ErrNotValid)
				assert.Equal(t, model.PaymentStatusHeld, e.latest(t, "task-1").Status)
			},
		},

		"Only administrators should refund.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusAccepted)
				_, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)

				_, err = e.svc.Refund(ctx, client, "task-1", "please", nil)
				assert.ErrorIs(t, err, model.ErrNotAllowed)
			},
		},

		"Releasing a task without open payments should do nothing.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusAccepted)

				got, err := e.svc.ReleaseForTask(ctx, "task-1", "cancelled")
				require.NoError(t, err)
				assert.Nil(t, got)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			test.actions(context.Background(), t, newTestEnv(t, false))
		})
	}
}

// slowRefundGateway keeps the first refund inside the gateway until release is closed.
type slowRefundGateway struct {
	*fake.Gateway

	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *slowRefundGateway) Refund(ctx context.Context, r gateway.RefundRequest) (*gateway.Refund, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.Gateway.Refund(ctx, r)
}

func TestServiceConcurrentPartialRefunds(t *testing.T) {
	ctx := context.Background()
	money := func(m model.Money) *model.Money { return &m }

	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	fgw, err := fake.NewGateway(fake.GatewayConfig{AutoAuthorize: true})
	require.NoError(t, err)
	gw := &slowRefundGateway{Gateway: fgw, entered: make(chan struct{}), release: make(chan struct{})}
	svc, err := payment.NewService(payment.ServiceConfig{
		Repository: repo,
		Gateway:    gw,
		Dedupe:     kvmemory.NewStore(nil),
		TimeNow:    clock(),
	})
	require.NoError(t, err)
	e := testEnv{repo: repo, gw: fgw, svc: svc}

	e.seedTask(t, model.TaskStatusInProgress)
	p, err := svc.CreateHold(ctx, client, "task-1")
	require.NoError(t, err)
	e.completeTask(t, "task-1")
	_, err = svc.Capture(ctx, admin, "task-1")
	require.NoError(t, err)

	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Refund(ctx, admin, "task-1", "first", money(3000))
		firstErr <- err
	}()
	<-gw.entered

	// The first refund is still on the gateway.
	_, err = svc.Refund(ctx, admin, "task-1", "second", money(4000))
	assert.ErrorIs(t, err, model.ErrConflict)

	close(gw.release)
	require.NoError(t, <-firstErr)

	st, _ := fgw.State(p.ProcessorIntentID)
	assert.Equal(t, model.Money(3000), st.Refunded)
	assert.Equal(t, model.Money(3000), e.latest(t, "task-1").RefundedAmount)

	got, err := svc.Refund(ctx, admin, "task-1", "second", money(4000))
	require.NoError(t, err)
	assert.Equal(t, model.Money(7000), got.RefundedAmount)

	st, _ = fgw.State(p.ProcessorIntentID)
	assert.Equal(t, model.Money(7000), st.Refunded)
}

func TestServiceHandleWebhook(t *testing.T) {
	intentEvent := func(intentID, action string) model.WebhookEvent {
		return model.WebhookEvent{ResourceType: model.WebhookResourcePaymentIntent, EventAction: action, ObjectID: intentID}
	}

	tests := map[string]struct {
		actions func(ctx context.Context, t *testing.T, e testEnv)
	}{
		"A succeeded webhook should hold the payment once.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusAccepted)
				p, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)
				require.NoError(t, e.gw.Authorize(p.ProcessorIntentID))

				ev := intentEvent(p.ProcessorIntentID, "succeeded")
				require.NoError(t, e.svc.HandleWebhook(ctx, ev))
				require.NoError(t, e.svc.HandleWebhook(ctx, ev))
				assert.Equal(t, model.PaymentStatusHeld, e.latest(t, "task-1").Status)

				got, err := e.svc.ConfirmHold(ctx, client, p.ID)
				require.NoError(t, err)
				assert.Equal(t, model.PaymentStatusHeld, got.Status)
				assert.Equal(t, 1, e.events.count(model.EventPaymentHeld))
			},
		},

		"A hold webhook on a completed task should capture the payment.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusInProgress)
				p, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)
				e.completeTask(t, "task-1")
				require.NoError(t, e.gw.Authorize(p.ProcessorIntentID))

				require.NoError(t, e.svc.HandleWebhook(ctx, intentEvent(p.ProcessorIntentID, "payment_intent.amount_capturable_updated")))
				assert.Equal(t, model.PaymentStatusCaptured, e.latest(t, "task-1").Status)
			},
		},

		"A failed webhook should fail pending payments only.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusAccepted)
				p, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)

				ev := intentEvent(p.ProcessorIntentID, "payment_failed")
				ev.Result = "card_declined"
				require.NoError(t, e.svc.HandleWebhook(ctx, ev))

				latest := e.latest(t, "task-1")
				assert.Equal(t, model.PaymentStatusFailed, latest.Status)
				assert.Equal(t, "gateway: card_declined", latest.FailureReason)
			},
		},

		"A failed webhook should be ignored on held payments.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusAccepted)
				p, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)
				require.NoError(t, e.gw.Authorize(p.ProcessorIntentID))
				_, err = e.svc.ConfirmHold(ctx, client, p.ID)
				require.NoError(t, err)

				require.NoError(t, e.svc.HandleWebhook(ctx, intentEvent(p.ProcessorIntentID, "payment_failed")))
				assert.Equal(t, model.PaymentStatusHeld, e.latest(t, "task-1").Status)
			},
		},

		"A webhook arriving before its payment is stored should be redelivered.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusAccepted)
				ev := intentEvent("pi_pay-1", "succeeded")

				err := e.svc.HandleWebhook(ctx, ev)
				assert.ErrorIs(t, err, model.ErrNotFound)
				_, err = e.dedupe.Get(ctx, "webhook:"+ev.Key())
				assert.ErrorIs(t, err, model.ErrNotFound)

				require.NoError(t, e.repo.CreatePayment(ctx, storagetest.PaymentFixture("pay-1", "task-1", t0)))
				require.NoError(t, e.svc.HandleWebhook(ctx, ev))
				assert.Equal(t, model.PaymentStatusHeld, e.latest(t, "task-1").Status)
			},
		},

		"A webhook without object should fail.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				err := e.svc.HandleWebhook(ctx, model.WebhookEvent{ResourceType: model.WebhookResourcePaymentIntent})
				assert.ErrorIs(t, err, model.ErrNotValid)
			},
		},

		"Concurrent confirms and webhooks should converge on a single hold.": {
			actions: func(ctx context.Context, t *testing.T, e testEnv) {
				e.seedTask(t, model.TaskStatusAccepted)
				p, err := e.svc.CreateHold(ctx, client, "task-1")
				require.NoError(t, err)
				require.NoError(t, e.gw.Authorize(p.ProcessorIntentID))

				var (
					wg       sync.WaitGroup
					failures atomic.Int32
				)
				for i := 0; i < 10; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						var err error
						if i%2 == 0 {
							_, err = e.svc.ConfirmHold(ctx, client, p.ID)
						} else {
							ev := intentEvent(p.ProcessorIntentID, "succeeded")
							ev.Result = fmt.Sprintf("delivery-%d", i)
							err = e.svc.HandleWebhook(ctx, ev)
						}
						if err != nil {
							failures.Add(1)
						}
					}(i)
				}
				wg.Wait()

				assert.Zero(t, failures.Load())
				assert.Equal(t, model.PaymentStatusHeld, e.latest(t, "task-1").Status)
				assert.Equal(t, 1, e.events.count(model.EventPaymentHeld))
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			test.actions(context.Background(), t, newTestEnv(t, false))
		})
	}
}

func TestServiceHandleWebhookReleasesDeliveryOnError(t *testing.T) {
	repo := &storagemock.MockRepository{}
	repo.On("GetPaymentByIntentID", mock.Anything, "pi_1").Once().Return(nil, fmt.Errorf("database is locked"))
	dedupe := kvmemory.NewStore(nil)

	svc, err := payment.NewService(payment.ServiceConfig{
		Repository: repo,
		Gateway:    &gatewaymock.MockGateway{},
		Dedupe:     dedupe,
		Publisher:  notify.NoopPublisher,
	})
	require.NoError(t, err)

	ev := model.WebhookEvent{ResourceType: model.WebhookResourcePaymentIntent, EventAction: "succeeded", ObjectID: "pi_1"}
	err = svc.HandleWebhook(context.Background(), ev)
	assert.Error(t, err)

	_, err = dedupe.Get(context.Background(), "webhook:"+ev.Key())
	assert.ErrorIs(t, err, model.ErrNotFound)
	repo.AssertExpectations(t)
}

func TestServiceContractorEarnings(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t, true)
	e.seedTask(t, model.TaskStatusInProgress)

	_, err := e.svc.CreateHold(ctx, client, "task-1")
	require.NoError(t, err)

	got, err := e.svc.ContractorEarnings(ctx, contractor, contractor.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Earnings{ContractorID: contractor.ID, Held: 8300, HeldCount: 1}, *got)

	e.completeTask(t, "task-1")
	_, err = e.svc.Capture(ctx, admin, "task-1")
	require.NoError(t, err)
	amount := model.Money(5000)
	_, err = e.svc.Refund(ctx, admin, "task-1", "split", &amount)
	require.NoError(t, err)

	got, err = e.svc.ContractorEarnings(ctx, admin, contractor.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Earnings{ContractorID: contractor.ID, Captured: 3300, CapturedCount: 1}, *got)

	_, err = e.svc.ContractorEarnings(ctx, client, contractor.ID)
	assert.ErrorIs(t, err, model.ErrNotAllowed)
}
