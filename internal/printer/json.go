package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/taskbroker/internal/model"
)

// JSONPrinter prints broker information in JSON format. Amounts are minor units.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// taskListItem represents a task in the list output (subset of fields).
type taskListItem struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	ClientID     string    `json:"client_id"`
	ContractorID string    `json:"contractor_id,omitempty"`
	BudgetAmount int64     `json:"budget_amount"`
	CreatedAt    time.Time `json:"created_at"`
}

type taskOutput struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Category           string     `json:"category"`
	Status             string     `json:"status"`
	ClientID           string     `json:"client_id"`
	ContractorID       string     `json:"contractor_id,omitempty"`
	Address            string     `json:"address"`
	BudgetAmount       int64      `json:"budget_amount"`
	FinalAmount        *int64     `json:"final_amount"`
	CommissionAmount   *int64     `json:"commission_amount"`
	TipAmount          int64      `json:"tip_amount"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	AcceptedAt         *time.Time `json:"accepted_at"`
	StartedAt          *time.Time `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at"`
	CancelledAt        *time.Time `json:"cancelled_at"`
	DisputedAt         *time.Time `json:"disputed_at"`
}

type paymentOutput struct {
	ID               string    `json:"id"`
	TaskID           string    `json:"task_id"`
	Status           string    `json:"status"`
	Currency         string    `json:"currency"`
	Amount           int64     `json:"amount"`
	CommissionAmount int64     `json:"commission_amount"`
	ContractorAmount int64     `json:"contractor_amount"`
	RefundedAmount   int64     `json:"refunded_amount"`
	FailureReason    string    `json:"failure_reason,omitempty"`
	RefundReason     string    `json:"refund_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type ratingOutput struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Score      int    `json:"score"`
	Comment    string `json:"comment,omitempty"`
}

type disputeOutput struct {
	Task     taskOutput      `json:"task"`
	Payments []paymentOutput `json:"payments"`
	Ratings  []ratingOutput  `json:"ratings"`
}

type resolutionOutput struct {
	Kind    string         `json:"kind"`
	Task    taskOutput     `json:"task"`
	Payment *paymentOutput `json:"payment"`
}

type messageOutput struct {
	Message string `json:"message"`
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func moneyPtr(m *model.Money) *int64 {
	if m == nil {
		return nil
	}
	v := int64(*m)
	return &v
}

func mapTask(t model.Task) taskOutput {
	return taskOutput{
		ID:                 t.ID,
		Title:              t.Title,
		Category:           t.Category,
		Status:             string(t.Status),
		ClientID:           t.ClientID,
		ContractorID:       t.ContractorID,
		Address:            t.Location.Address,
		BudgetAmount:       int64(t.BudgetAmount),
		FinalAmount:        moneyPtr(t.FinalAmount),
		CommissionAmount:   moneyPtr(t.CommissionAmount),
		TipAmount:          int64(t.TipAmount),
		CancellationReason: t.CancellationReason,
		CreatedAt:          t.CreatedAt.UTC(),
		AcceptedAt:         utcPtr(t.AcceptedAt),
		StartedAt:          utcPtr(t.StartedAt),
		CompletedAt:        utcPtr(t.CompletedAt),
		CancelledAt:        utcPtr(t.CancelledAt),
		DisputedAt:         utcPtr(t.DisputedAt),
	}
}

func mapPayments(payments []model.Payment) []paymentOutput {
	items := make([]paymentOutput, len(payments))
	for i, p := range payments {
		items[i] = mapPayment(p)
	}
	return items
}

func mapPayment(p model.Payment) paymentOutput {
	return paymentOutput{
		ID:               p.ID,
		TaskID:           p.TaskID,
		Status:           string(p.Status),
		Currency:         p.Currency,
		Amount:           int64(p.Amount),
		CommissionAmount: int64(p.CommissionAmount),
		ContractorAmount: int64(p.ContractorAmount),
		RefundedAmount:   int64(p.RefundedAmount),
		FailureReason:    p.FailureReason,
		RefundReason:     p.RefundReason,
		CreatedAt:        p.CreatedAt.UTC(),
	}
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintTaskList prints tasks in JSON format with a subset of fields.
func (j *JSONPrinter) PrintTaskList(tasks []model.Task) error {
	items := make([]taskListItem, len(tasks))
	for i, t := range tasks {
		items[i] = taskListItem{
			ID:           t.ID,
			Title:        t.Title,
			Status:       string(t.Status),
			ClientID:     t.ClientID,
			ContractorID: t.ContractorID,
			BudgetAmount: int64(t.BudgetAmount),
			CreatedAt:    t.CreatedAt.UTC(),
		}
	}
	return j.encode(items)
}

// PrintTask prints the task in JSON format.
func (j *JSONPrinter) PrintTask(task model.Task) error {
	return j.encode(mapTask(task))
}

// PrintPaymentList prints payments in JSON format.
func (j *JSONPrinter) PrintPaymentList(payments []model.Payment) error {
	return j.encode(mapPayments(payments))
}

// PrintDispute prints the dispute details in JSON format.
func (j *JSONPrinter) PrintDispute(d model.DisputeDetails) error {
	out := disputeOutput{
		Task:     mapTask(d.Task),
		Payments: mapPayments(d.Payments),
		Ratings:  make([]ratingOutput, len(d.Ratings)),
	}
	for i, r := range d.Ratings {
		out.Ratings[i] = ratingOutput{FromUserID: r.FromUserID, ToUserID: r.ToUserID, Score: r.Score, Comment: r.Comment}
	}
	return j.encode(out)
}

// PrintResolution prints the dispute resolution in JSON format.
func (j *JSONPrinter) PrintResolution(res model.DisputeResolution) error {
	out := resolutionOutput{Kind: string(res.Kind), Task: mapTask(res.Task)}
	if res.Payment != nil {
		p := mapPayment(*res.Payment)
		out.Payment = &p
	}
	return j.encode(out)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}
