package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/slok/taskbroker/internal/model"
)

// HoldStatus is the status of a hold on the gateway side.
type HoldStatus string

const (
	// HoldStatusRequiresPaymentMethod means the client didn't authorize the hold yet.
	HoldStatusRequiresPaymentMethod HoldStatus = "requires_payment_method"
	// HoldStatusRequiresCapture means the funds are authorized and can be captured.
	HoldStatusRequiresCapture HoldStatus = "requires_capture"
	// HoldStatusSucceeded means the funds were captured.
	HoldStatusSucceeded HoldStatus = "succeeded"
	// HoldStatusCanceled means the hold was released.
	HoldStatusCanceled HoldStatus = "canceled"
)

var (
	// ErrDeclined is returned when the gateway permanently rejects an operation.
	// Declined operations must not be retried.
	ErrDeclined = fmt.Errorf("declined: %w", model.ErrGateway)
	// ErrUnavailable is returned when the gateway could not be reached or failed
	// temporarily.
	ErrUnavailable = fmt.Errorf("unavailable: %w", model.ErrGateway)
)

// HoldRequest asks the gateway to authorize and reserve the client funds.
type HoldRequest struct {
	PaymentID        string
	TaskID           string
	ClientID         string
	ContractorID     string
	Currency         string
	Amount           model.Money
	ContractorAmount model.Money
	CommissionAmount model.Money
	IdempotencyKey   string
}

// Hold is the gateway representation of reserved funds.
type Hold struct {
	IntentID string
	Status   HoldStatus
}

// CaptureRequest asks the gateway to transfer held funds.
type CaptureRequest struct {
	IntentID       string
	IdempotencyKey string
}

// Capture is the result of a capture.
type Capture struct {
	TransferID string
}

// CancelRequest asks the gateway to release a hold.
type CancelRequest struct {
	IntentID       string
	Reason         string
	IdempotencyKey string
}

// RefundRequest asks the gateway to return captured funds.
type RefundRequest struct {
	IntentID string
	// Amount is the amount to refund, it must be positive.
	Amount         model.Money
	Reason         string
	IdempotencyKey string
}

// Refund is the result of a refund.
type Refund struct {
	RefundID string
}

//go:generate mockery --case underscore --output gatewaymock --outpkg gatewaymock --name Gateway --structname MockGateway --filename gatewaymock.go

// Gateway is the payment processor that holds, captures and refunds escrowed money.
// Every mutating operation carries an idempotency key so retries don't move money twice.
type Gateway interface {
	CreateHold(ctx context.Context, r HoldRequest) (*Hold, error)
	GetHold(ctx context.Context, intentID string) (*Hold, error)
	Capture(ctx context.Context, r CaptureRequest) (*Capture, error)
	CancelHold(ctx context.Context, r CancelRequest) error
	Refund(ctx context.Context, r RefundRequest) (*Refund, error)
}

// Operation names used for idempotency keys and metrics.
const (
	OpCreateHold = "create_hold"
	OpGetHold    = "get_hold"
	OpCapture    = "capture"
	OpCancelHold = "cancel_hold"
	OpRefund     = "refund"
)

var idempotencyNamespace = uuid.MustParse("6f1c7c1e-3c9a-4c55-9a43-2b8f3f0b9a10")

// IdempotencyKey returns a deterministic key for an operation on a payment, the same
// operation on the same payment always gets the same key. Extra parts differentiate
// operations that can happen more than once (e.g. partial refunds).
func IdempotencyKey(paymentID, op string, extra ...string) string {
	name := paymentID + "/" + op
	for _, e := range extra {
		name += "/" + e
	}
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}
