package printer

import "github.com/slok/taskbroker/internal/model"

// Printer knows how to print broker information in different formats.
type Printer interface {
	PrintTaskList(tasks []model.Task) error
	PrintTask(task model.Task) error
	PrintPaymentList(payments []model.Payment) error
	PrintDispute(details model.DisputeDetails) error
	PrintResolution(res model.DisputeResolution) error
	PrintMessage(msg string) error
}
