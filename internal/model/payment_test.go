package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/taskbroker/internal/model"
)

func TestPaymentStatusTransitions(t *testing.T) {
	tests := map[string]struct {
		from model.PaymentStatus
		to   model.PaymentStatus
		exp  bool
	}{
		"Pending to held should be allowed.": {
			from: model.PaymentStatusPending,
			to:   model.PaymentStatusHeld,
			exp:  true,
		},

		"Held to captured should be allowed.": {
			from: model.PaymentStatusHeld,
			to:   model.PaymentStatusCaptured,
			exp:  true,
		},

		"Captured to refunded should be allowed.": {
			from: model.PaymentStatusCaptured,
			to:   model.PaymentStatusRefunded,
			exp:  true,
		},

		"Pending to captured should not be allowed.": {
			from: model.PaymentStatusPending,
			to:   model.PaymentStatusCaptured,
		},

		"Refunded should be terminal.": {
			from: model.PaymentStatusRefunded,
			to:   model.PaymentStatusHeld,
		},

		"Failed should be terminal.": {
			from: model.PaymentStatusFailed,
			to:   model.PaymentStatusPending,
		},

		"Captured to failed should not be allowed.": {
			from: model.PaymentStatusCaptured,
			to:   model.PaymentStatusFailed,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, test.from.CanTransitionTo(test.to))
		})
	}
}

func TestLatestPayment(t *testing.T) {
	now := time.Now()
	payments := []model.Payment{
		{ID: "p1", CreatedAt: now.Add(-2 * time.Minute)},
		{ID: "p3", CreatedAt: now},
		{ID: "p2", CreatedAt: now.Add(-1 * time.Minute)},
	}

	got := model.LatestPayment(payments)
	require.NotNil(t, got)
	assert.Equal(t, "p3", got.ID)

	assert.Nil(t, model.LatestPayment(nil))
}

func TestPaymentValidate(t *testing.T) {
	tests := map[string]struct {
		payment model.Payment
		expErr  bool
	}{
		"A valid payment should not fail.": {
			payment: model.Payment{ID: "p1", TaskID: "t1", Amount: 10000, CommissionAmount: 1700, ContractorAmount: 8300, Status: model.PaymentStatusPending},
		},
		"A lossy split should fail.": {
			payment: model.Payment{ID: "p1", TaskID: "t1", Amount: 10000, CommissionAmount: 1700, ContractorAmount: 8000, Status: model.PaymentStatusPending},
			expErr:  true,
		},
		"Refunding more than the amount should fail.": {
			payment: model.Payment{ID: "p1", TaskID: "t1", Amount: 10000, CommissionAmount: 1700, ContractorAmount: 8300, RefundedAmount: 10001, Status: model.PaymentStatusCaptured},
			expErr:  true,
		},
		"Unknown status should fail.": {
			payment: model.Payment{ID: "p1", TaskID: "t1", Amount: 10000, CommissionAmount: 1700, ContractorAmount: 8300, Status: "lost"},
			expErr:  true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := test.payment.Validate()
			if test.expErr {
				assert.ErrorIs(t, err, model.ErrNotValid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPrincipalRequireRole(t *testing.T) {
	tests := map[string]struct {
		principal model.Principal
		role      model.Role
		expErr    error
	}{
		"A principal with the role should be allowed.": {
			principal: model.Principal{ID: "u1", Roles: []model.Role{model.RoleClient}, Status: model.PrincipalStatusActive},
			role:      model.RoleClient,
		},
		"A principal without the role should not be allowed.": {
			principal: model.Principal{ID: "u1", Roles: []model.Role{model.RoleClient}},
			role:      model.RoleAdmin,
			expErr:    model.ErrNotAllowed,
		},
		"A blocked principal should not be allowed.": {
			principal: model.Principal{ID: "u1", Roles: []model.Role{model.RoleAdmin}, Status: model.PrincipalStatusBlocked},
			role:      model.RoleAdmin,
			expErr:    model.ErrNotAllowed,
		},
		"A principal without id should not be valid.": {
			principal: model.Principal{Roles: []model.Role{model.RoleAdmin}},
			role:      model.RoleAdmin,
			expErr:    model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := test.principal.RequireRole(test.role)
			if test.expErr != nil {
				assert.ErrorIs(t, err, test.expErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPlatformConfigValidate(t *testing.T) {
	assert.NoError(t, model.DefaultPlatformConfig().Validate())

	cfg := model.DefaultPlatformConfig()
	cfg.CommissionRate = 20000
	assert.ErrorIs(t, cfg.Validate(), model.ErrNotValid)

	cfg = model.DefaultPlatformConfig()
	cfg.Currency = ""
	assert.ErrorIs(t, cfg.Validate(), model.ErrNotValid)
}
