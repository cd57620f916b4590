package api

import (
	"time"

	"github.com/slok/taskbroker/internal/model"
)

// Amounts are integer minor units on the wire.

type locationJSON struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

type taskJSON struct {
	ID                 string       `json:"id"`
	ClientID           string       `json:"client_id"`
	ContractorID       string       `json:"contractor_id,omitempty"`
	Category           string       `json:"category"`
	Title              string       `json:"title"`
	Description        string       `json:"description,omitempty"`
	Location           locationJSON `json:"location"`
	ScheduledAt        *time.Time   `json:"scheduled_at,omitempty"`
	BudgetAmount       int64        `json:"budget_amount"`
	FinalAmount        *int64       `json:"final_amount,omitempty"`
	CommissionAmount   *int64       `json:"commission_amount,omitempty"`
	TipAmount          int64        `json:"tip_amount"`
	Status             string       `json:"status"`
	CancellationReason string       `json:"cancellation_reason,omitempty"`
	CompletionPhotos   []string     `json:"completion_photos,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	AcceptedAt         *time.Time   `json:"accepted_at,omitempty"`
	StartedAt          *time.Time   `json:"started_at,omitempty"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
	CancelledAt        *time.Time   `json:"cancelled_at,omitempty"`
	DisputedAt         *time.Time   `json:"disputed_at,omitempty"`
}

func moneyPtr(m *model.Money) *int64 {
	if m == nil {
		return nil
	}
	v := int64(*m)
	return &v
}

func mapTask(t model.Task) taskJSON {
	return taskJSON{
		ID:                 t.ID,
		ClientID:           t.ClientID,
		ContractorID:       t.ContractorID,
		Category:           t.Category,
		Title:              t.Title,
		Description:        t.Description,
		Location:           locationJSON{Lat: t.Location.Lat, Lng: t.Location.Lng, Address: t.Location.Address},
		ScheduledAt:        t.ScheduledAt,
		BudgetAmount:       int64(t.BudgetAmount),
		FinalAmount:        moneyPtr(t.FinalAmount),
		CommissionAmount:   moneyPtr(t.CommissionAmount),
		TipAmount:          int64(t.TipAmount),
		Status:             string(t.Status),
		CancellationReason: t.CancellationReason,
		CompletionPhotos:   t.CompletionPhotos,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
		AcceptedAt:         t.AcceptedAt,
		StartedAt:          t.StartedAt,
		CompletedAt:        t.CompletedAt,
		CancelledAt:        t.CancelledAt,
		DisputedAt:         t.DisputedAt,
	}
}

func mapTasks(ts []model.Task) []taskJSON {
	res := make([]taskJSON, 0, len(ts))
	for _, t := range ts {
		res = append(res, mapTask(t))
	}
	return res
}

type paymentJSON struct {
	ID                  string    `json:"id"`
	TaskID              string    `json:"task_id"`
	Currency            string    `json:"currency"`
	Amount              int64     `json:"amount"`
	CommissionAmount    int64     `json:"commission_amount"`
	ContractorAmount    int64     `json:"contractor_amount"`
	RefundedAmount      int64     `json:"refunded_amount"`
	ProcessorIntentID   string    `json:"processor_intent_id,omitempty"`
	ProcessorTransferID string    `json:"processor_transfer_id,omitempty"`
	Status              string    `json:"status"`
	RefundReason        string    `json:"refund_reason,omitempty"`
	FailureReason       string    `json:"failure_reason,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func mapPayment(p model.Payment) paymentJSON {
	return paymentJSON{
		ID:                  p.ID,
		TaskID:              p.TaskID,
		Currency:            p.Currency,
		Amount:              int64(p.Amount),
		CommissionAmount:    int64(p.CommissionAmount),
		ContractorAmount:    int64(p.ContractorAmount),
		RefundedAmount:      int64(p.RefundedAmount),
		ProcessorIntentID:   p.ProcessorIntentID,
		ProcessorTransferID: p.ProcessorTransferID,
		Status:              string(p.Status),
		RefundReason:        p.RefundReason,
		FailureReason:       p.FailureReason,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func mapPayments(ps []model.Payment) []paymentJSON {
	res := make([]paymentJSON, 0, len(ps))
	for _, p := range ps {
		res = append(res, mapPayment(p))
	}
	return res
}

type ratingJSON struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	Score      int       `json:"score"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func mapRating(r model.Rating) ratingJSON {
	return ratingJSON{
		ID:         r.ID,
		TaskID:     r.TaskID,
		FromUserID: r.FromUserID,
		ToUserID:   r.ToUserID,
		Score:      r.Score,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt,
	}
}

type earningsJSON struct {
	ContractorID  string `json:"contractor_id"`
	Captured      int64  `json:"captured"`
	Held          int64  `json:"held"`
	CapturedCount int    `json:"captured_count"`
	HeldCount     int    `json:"held_count"`
}

type disputeDetailsJSON struct {
	Task     taskJSON      `json:"task"`
	Payments []paymentJSON `json:"payments"`
	Ratings  []ratingJSON  `json:"ratings"`
}

type resolutionJSON struct {
	Kind    string       `json:"kind"`
	Task    taskJSON     `json:"task"`
	Payment *paymentJSON `json:"payment,omitempty"`
}

type createTaskRequestJSON struct {
	Category     string       `json:"category"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Location     locationJSON `json:"location"`
	BudgetAmount int64        `json:"budget_amount"`
	ScheduledAt  *time.Time   `json:"scheduled_at"`
}

type completeRequestJSON struct {
	Photos []string `json:"photos"`
}

type reasonRequestJSON struct {
	Reason string `json:"reason"`
}

type rateRequestJSON struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

type tipRequestJSON struct {
	Amount int64 `json:"amount"`
}

type refundRequestJSON struct {
	Reason string `json:"reason"`
	Amount *int64 `json:"amount"`
}

type resolveRequestJSON struct {
	Kind  string `json:"kind"`
	Notes string `json:"notes"`
}

// webhookRequestJSON is the gateway notification envelope.
type webhookRequestJSON struct {
	Payload struct {
		ResourceType string `json:"resource_type"`
		Action       string `json:"action"`
		Object       struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Result string `json:"result"`
		} `json:"object"`
	} `json:"payload"`
}

func (w webhookRequestJSON) event() model.WebhookEvent {
	return model.WebhookEvent{
		ResourceType: w.Payload.ResourceType,
		EventAction:  w.Payload.Action,
		ObjectID:     w.Payload.Object.ID,
		Status:       w.Payload.Object.Status,
		Result:       w.Payload.Object.Result,
	}
}
