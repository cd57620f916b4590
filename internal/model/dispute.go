package model

import "fmt"

// DisputeResolutionKind is the outcome an administrator picks for a disputed task.
type DisputeResolutionKind string

const (
	// DisputeResolutionRefund returns the money to the client and cancels the task.
	DisputeResolutionRefund DisputeResolutionKind = "refund"
	// DisputeResolutionPayContractor captures the escrow and completes the task.
	DisputeResolutionPayContractor DisputeResolutionKind = "pay_contractor"
	// DisputeResolutionSplit completes the task dividing the escrow between both parties.
	DisputeResolutionSplit DisputeResolutionKind = "split"
)

// DisputeResolutionKinds are all the known resolution kinds.
var DisputeResolutionKinds = []DisputeResolutionKind{
	DisputeResolutionRefund,
	DisputeResolutionPayContractor,
	DisputeResolutionSplit,
}

// Validate checks the kind is known.
func (k DisputeResolutionKind) Validate() error {
	for _, kk := range DisputeResolutionKinds {
		if k == kk {
			return nil
		}
	}
	return fmt.Errorf("unknown dispute resolution %q: %w", k, ErrNotValid)
}

// TaskStatus returns the status a disputed task ends in after the resolution.
func (k DisputeResolutionKind) TaskStatus() TaskStatus {
	if k == DisputeResolutionRefund {
		return TaskStatusCancelled
	}
	return TaskStatusCompleted
}

// DisputeDetails is the administrator view of a disputed task.
type DisputeDetails struct {
	Task     Task
	Payments []Payment
	Ratings  []Rating
}

// DisputeResolution is the result of resolving a dispute.
type DisputeResolution struct {
	Kind    DisputeResolutionKind
	Task    Task
	Payment *Payment
}
