package notify

import (
	"strconv"
	"time"

	"github.com/slok/taskbroker/internal/model"
)

// NewEvent returns an event about a task addressed to its participants. The payment
// is optional.
func NewEvent(id string, typ model.EventType, t model.Task, p *model.Payment, msg string, at time.Time) model.Event {
	recipients := []string{t.ClientID}
	if t.ContractorID != "" {
		recipients = append(recipients, t.ContractorID)
	}

	data := map[string]string{
		"task_status": string(t.Status),
		"task_title":  t.Title,
	}
	e := model.Event{
		ID:         id,
		Type:       typ,
		TaskID:     t.ID,
		Recipients: recipients,
		Message:    msg,
		Data:       data,
		CreatedAt:  at,
	}

	if p != nil {
		e.PaymentID = p.ID
		data["payment_status"] = string(p.Status)
		data["amount"] = strconv.FormatInt(int64(p.Amount), 10)
		data["currency"] = p.Currency
	}

	return e
}
