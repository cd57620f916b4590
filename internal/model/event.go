package model

import "time"

// EventType is the kind of lifecycle event sent to notification consumers.
type EventType string

const (
	EventTaskCreated   EventType = "task.created"
	EventTaskAccepted  EventType = "task.accepted"
	EventTaskStarted   EventType = "task.started"
	EventTaskCompleted EventType = "task.completed"
	EventTaskCancelled EventType = "task.cancelled"
	EventTaskDisputed  EventType = "task.disputed"
	EventTaskResolved  EventType = "task.resolved"
	EventTaskRated     EventType = "task.rated"
	EventTaskTipped    EventType = "task.tipped"

	EventPaymentHeld     EventType = "payment.held"
	EventPaymentCaptured EventType = "payment.captured"
	EventPaymentRefunded EventType = "payment.refunded"
	EventPaymentFailed   EventType = "payment.failed"
)

// Event is a fire-and-forget notification about something that happened to a task.
type Event struct {
	ID        string
	Type      EventType
	TaskID    string
	PaymentID string
	// Recipients are the user IDs that should be notified.
	Recipients []string
	Message    string
	Data       map[string]string
	CreatedAt  time.Time
}
