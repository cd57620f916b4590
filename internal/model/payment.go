package model

import (
	"fmt"
	"time"
)

// PaymentStatus represents the state of an escrow payment.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the hold was requested but not authorized yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusHeld indicates the funds are authorized and reserved.
	PaymentStatusHeld PaymentStatus = "held"
	// PaymentStatusCaptured indicates the funds were transferred.
	PaymentStatusCaptured PaymentStatus = "captured"
	// PaymentStatusRefunded indicates the hold was released or the funds returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
	// PaymentStatusFailed indicates the gateway rejected the payment.
	PaymentStatusFailed PaymentStatus = "failed"
)

// PaymentStatuses are all the known payment statuses.
var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusHeld,
	PaymentStatusCaptured,
	PaymentStatusRefunded,
	PaymentStatusFailed,
}

// Validate checks the status is known.
func (s PaymentStatus) Validate() error {
	for _, st := range PaymentStatuses {
		if s == st {
			return nil
		}
	}
	return fmt.Errorf("unknown payment status %q: %w", s, ErrNotValid)
}

// IsOpen returns true for statuses where money is still reserved and not settled.
// Only one open payment can exist per task.
func (s PaymentStatus) IsOpen() bool {
	return s == PaymentStatusPending || s == PaymentStatusHeld
}

// paymentTransitions lists the statuses each payment status can move to.
// Held to failed happens when a capture hard-fails.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:  {PaymentStatusHeld, PaymentStatusRefunded, PaymentStatusFailed},
	PaymentStatusHeld:     {PaymentStatusCaptured, PaymentStatusRefunded, PaymentStatusFailed},
	PaymentStatusCaptured: {PaymentStatusRefunded},
}

// CanTransitionTo returns true if a payment can move from s to to.
func (s PaymentStatus) CanTransitionTo(to PaymentStatus) bool {
	for _, t := range paymentTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Payment is the escrow record of a task's money movement.
type Payment struct {
	ID       string
	TaskID   string
	Currency string

	Amount           Money
	CommissionAmount Money
	ContractorAmount Money
	RefundedAmount   Money

	ProcessorIntentID   string
	ProcessorTransferID string

	Status        PaymentStatus
	RefundReason  string
	FailureReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Split returns the amount split of the payment.
func (p *Payment) Split() Split {
	return Split{
		Amount:           p.Amount,
		CommissionAmount: p.CommissionAmount,
		ContractorAmount: p.ContractorAmount,
	}
}

// RefundableAmount is the captured amount not yet returned to the client.
func (p *Payment) RefundableAmount() Money {
	return p.Amount - p.RefundedAmount
}

// PaymentState is the part of a stored payment that conditional writes compare.
type PaymentState struct {
	Status         PaymentStatus
	RefundedAmount Money
}

func (s PaymentState) String() string {
	return fmt.Sprintf("%s with %s refunded", s.Status, s.RefundedAmount)
}

// State returns the payment state a conditional write of the next version expects.
func (p *Payment) State() PaymentState {
	return PaymentState{Status: p.Status, RefundedAmount: p.RefundedAmount}
}

// Validate validates the payment.
func (p *Payment) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if p.TaskID == "" {
		return fmt.Errorf("task id is required: %w", ErrNotValid)
	}
	if err := p.Split().Validate(); err != nil {
		return err
	}
	if p.RefundedAmount < 0 || p.RefundedAmount > p.Amount {
		return fmt.Errorf("refunded amount %s out of range: %w", p.RefundedAmount, ErrNotValid)
	}
	return p.Status.Validate()
}

// LatestPayment returns the most recent payment by creation time, nil if there are none.
func LatestPayment(payments []Payment) *Payment {
	var latest *Payment
	for i := range payments {
		p := payments[i]
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) || (p.CreatedAt.Equal(latest.CreatedAt) && p.ID > latest.ID) {
			latest = &p
		}
	}
	return latest
}

// WebhookEvent is an asynchronous notification sent by the payment gateway.
type WebhookEvent struct {
	ResourceType string
	EventAction  string
	ObjectID     string
	Status       string
	Result       string
}

const (
	// WebhookResourcePaymentIntent events reference a payment by its processor intent id.
	WebhookResourcePaymentIntent = "payment_intent"
	// WebhookResourceTransfer events reference a payment by its processor transfer id.
	WebhookResourceTransfer = "transfer"
)

// Validate validates the webhook event shape.
func (w WebhookEvent) Validate() error {
	if w.ResourceType == "" || w.ObjectID == "" {
		return fmt.Errorf("resource type and object id are required: %w", ErrNotValid)
	}
	return nil
}

// Key identifies the webhook delivery, duplicated deliveries share the key.
func (w WebhookEvent) Key() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", w.ResourceType, w.ObjectID, w.EventAction, w.Status, w.Result)
}

// Earnings is the contractor view of the escrowed money of their tasks.
type Earnings struct {
	ContractorID string
	// Captured is the contractor share already transferred. Refunds reduce the
	// contractor share first.
	Captured Money
	// Held is the contractor share reserved in pending or held payments.
	Held          Money
	CapturedCount int
	HeldCount     int
}

// ContractorNet is the contractor share left after the refunds.
func (p *Payment) ContractorNet() Money {
	net := p.ContractorAmount - p.RefundedAmount
	if net < 0 {
		return 0
	}
	return net
}
