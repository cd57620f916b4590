package printer

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/slok/taskbroker/internal/model"
)

// TablePrinter prints broker information in a table format.
type TablePrinter struct {
	writer   io.Writer
	currency string
	timeNow  func() time.Time
}

// NewTablePrinter creates a new table printer. Task amounts are shown in the currency.
func NewTablePrinter(w io.Writer, currency string) *TablePrinter {
	return &TablePrinter{writer: w, currency: currency, timeNow: time.Now}
}

// PrintTaskList prints tasks in a table format.
func (t *TablePrinter) PrintTaskList(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tCLIENT\tCONTRACTOR\tBUDGET\tCREATED")
	for _, task := range tasks {
		contractor := task.ContractorID
		if contractor == "" {
			contractor = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			task.ID,
			task.Title,
			task.Status,
			task.ClientID,
			contractor,
			FormatMoney(task.BudgetAmount, t.currency),
			TimeAgo(task.CreatedAt, t.timeNow()),
		)
	}

	return nil
}

// PrintTask prints detailed task information.
func (t *TablePrinter) PrintTask(task model.Task) error {
	fmt.Fprintf(t.writer, "ID:          %s\n", task.ID)
	fmt.Fprintf(t.writer, "Title:       %s\n", task.Title)
	fmt.Fprintf(t.writer, "Category:    %s\n", task.Category)
	fmt.Fprintf(t.writer, "Status:      %s\n", task.Status)
	fmt.Fprintf(t.writer, "Client:      %s\n", task.ClientID)
	if task.ContractorID != "" {
		fmt.Fprintf(t.writer, "Contractor:  %s\n", task.ContractorID)
	}
	fmt.Fprintf(t.writer, "Address:     %s\n", task.Location.Address)
	fmt.Fprintf(t.writer, "Budget:      %s\n", FormatMoney(task.BudgetAmount, t.currency))
	if task.FinalAmount != nil && task.CommissionAmount != nil {
		fmt.Fprintf(t.writer, "Final:       %s\n", FormatMoney(*task.FinalAmount, t.currency))
		fmt.Fprintf(t.writer, "Commission:  %s\n", FormatMoney(*task.CommissionAmount, t.currency))
	}
	if task.TipAmount > 0 {
		fmt.Fprintf(t.writer, "Tip:         %s\n", FormatMoney(task.TipAmount, t.currency))
	}
	if task.CancellationReason != "" {
		fmt.Fprintf(t.writer, "Reason:      %s\n", task.CancellationReason)
	}

	fmt.Fprintf(t.writer, "Created:     %s\n", FormatTimestamp(task.CreatedAt))
	for _, ts := range []struct {
		label string
		at    *time.Time
	}{
		{"Accepted:    ", task.AcceptedAt},
		{"Started:     ", task.StartedAt},
		{"Completed:   ", task.CompletedAt},
		{"Cancelled:   ", task.CancelledAt},
		{"Disputed:    ", task.DisputedAt},
	} {
		if ts.at != nil {
			fmt.Fprintf(t.writer, "%s%s\n", ts.label, FormatTimestamp(*ts.at))
		}
	}

	return nil
}

// PrintPaymentList prints payments in a table format.
func (t *TablePrinter) PrintPaymentList(payments []model.Payment) error {
	if len(payments) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tSTATUS\tAMOUNT\tCOMMISSION\tCONTRACTOR\tREFUNDED\tCREATED")
	for _, p := range payments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID,
			p.Status,
			FormatMoney(p.Amount, p.Currency),
			FormatMoney(p.CommissionAmount, p.Currency),
			FormatMoney(p.ContractorAmount, p.Currency),
			FormatMoney(p.RefundedAmount, p.Currency),
			TimeAgo(p.CreatedAt, t.timeNow()),
		)
	}

	return nil
}

// PrintDispute prints a disputed task with its payments and ratings.
func (t *TablePrinter) PrintDispute(d model.DisputeDetails) error {
	if err := t.PrintTask(d.Task); err != nil {
		return err
	}

	if len(d.Payments) > 0 {
		fmt.Fprintln(t.writer)
		fmt.Fprintln(t.writer, "Payments:")
		if err := t.PrintPaymentList(d.Payments); err != nil {
			return err
		}
	}

	if len(d.Ratings) > 0 {
		fmt.Fprintln(t.writer)
		fmt.Fprintln(t.writer, "Ratings:")
		tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "FROM\tTO\tSCORE\tCOMMENT")
		for _, r := range d.Ratings {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.FromUserID, r.ToUserID, r.Score, r.Comment)
		}
		return tw.Flush()
	}

	return nil
}

// PrintResolution prints the outcome of a dispute resolution.
func (t *TablePrinter) PrintResolution(res model.DisputeResolution) error {
	fmt.Fprintf(t.writer, "Resolution:  %s\n", res.Kind)
	fmt.Fprintf(t.writer, "Task:        %s (%s)\n", res.Task.ID, res.Task.Status)
	fmt.Fprintf(t.writer, "Notes:       %s\n", res.Task.CancellationReason)
	if res.Payment != nil {
		p := res.Payment
		fmt.Fprintf(t.writer, "Payment:     %s (%s)\n", p.ID, p.Status)
		fmt.Fprintf(t.writer, "Refunded:    %s\n", FormatMoney(p.RefundedAmount, p.Currency))
	}
	return nil
}

// PrintMessage prints a simple message.
func (t *TablePrinter) PrintMessage(msg string) error {
	_, err := fmt.Fprintln(t.writer, msg)
	return err
}
