package printer_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/printer"
)

func taskFixture() model.Task {
	createdAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	completedAt := createdAt.Add(3 * time.Hour)
	final, commission := model.Money(10000), model.Money(1700)
	return model.Task{
		ID:               "01J0TASK",
		ClientID:         "client-1",
		ContractorID:     "contractor-1",
		Category:         "cleaning",
		Title:            "Clean the flat",
		Location:         model.Location{Address: "Marszalkowska 1, Warszawa"},
		BudgetAmount:     10000,
		FinalAmount:      &final,
		CommissionAmount: &commission,
		TipAmount:        500,
		Status:           model.TaskStatusCompleted,
		CreatedAt:        createdAt,
		CompletedAt:      &completedAt,
	}
}

func paymentFixture() model.Payment {
	return model.Payment{
		ID:               "01J0PAY",
		TaskID:           "01J0TASK",
		Currency:         "pln",
		Amount:           10000,
		CommissionAmount: 1700,
		ContractorAmount: 8300,
		RefundedAmount:   5000,
		Status:           model.PaymentStatusCaptured,
		CreatedAt:        time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC),
	}
}

func TestTablePrinterPrintTask(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf, "pln")

	err := p.PrintTask(taskFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Status:      completed")
	assert.Contains(t, out, "Budget:      100.00 PLN")
	assert.Contains(t, out, "Commission:  17.00 PLN")
	assert.Contains(t, out, "Tip:         5.00 PLN")
	assert.Contains(t, out, "Completed:   2026-01-30 13:00:00 UTC")
	assert.NotContains(t, out, "Cancelled:")
}

func TestTablePrinterPrintDispute(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf, "pln")

	err := p.PrintDispute(model.DisputeDetails{
		Task:     taskFixture(),
		Payments: []model.Payment{paymentFixture()},
		Ratings:  []model.Rating{{FromUserID: "client-1", ToUserID: "contractor-1", Score: 2, Comment: "late"}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Payments:")
	assert.Contains(t, out, "01J0PAY")
	assert.Contains(t, out, "50.00 PLN")
	assert.Contains(t, out, "Ratings:")
	assert.Contains(t, out, "late")
}

func TestJSONPrinterPrintTask(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintTask(taskFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"status": "completed"`)
	assert.Contains(t, out, `"final_amount": 10000`)
	assert.Contains(t, out, `"commission_amount": 1700`)
	assert.Contains(t, out, `"started_at": null`)
}

func TestJSONPrinterPrintResolution(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	pay := paymentFixture()
	err := p.PrintResolution(model.DisputeResolution{Kind: model.DisputeResolutionSplit, Task: taskFixture(), Payment: &pay})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"kind": "split"`)
	assert.Contains(t, out, `"refunded_amount": 5000`)
}

func TestTablePrinterPrintEmptyLists(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf, "pln")

	require.NoError(t, p.PrintTaskList(nil))
	require.NoError(t, p.PrintPaymentList(nil))
	assert.Empty(t, buf.String())
}

func TestTablePrinterPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf, "pln")

	err := p.PrintMessage("ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", strings.TrimSpace(buf.String()))
}
