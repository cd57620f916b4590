package printer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/printer"
)

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		time     time.Time
		expected string
	}{
		"1 second ago":   {time: now.Add(-1 * time.Second), expected: "1 second ago (UTC)"},
		"30 seconds ago": {time: now.Add(-30 * time.Second), expected: "30 seconds ago (UTC)"},
		"1 minute ago":   {time: now.Add(-1 * time.Minute), expected: "1 minute ago (UTC)"},
		"45 minutes ago": {time: now.Add(-45 * time.Minute), expected: "45 minutes ago (UTC)"},
		"5 hours ago":    {time: now.Add(-5 * time.Hour), expected: "5 hours ago (UTC)"},
		"1 day ago":      {time: now.Add(-24 * time.Hour), expected: "1 day ago (UTC)"},
		"3 days ago":     {time: now.Add(-72 * time.Hour), expected: "3 days ago (UTC)"},
		"future":         {time: now.Add(time.Hour), expected: "in the future (UTC)"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.TimeAgo(test.time, now))
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 30, 10, 5, 3, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2026-01-30 09:05:03 UTC", printer.FormatTimestamp(ts))
}

func TestFormatMoney(t *testing.T) {
	tests := map[string]struct {
		amount   model.Money
		currency string
		expected string
	}{
		"With currency":    {amount: 10050, currency: "pln", expected: "100.50 PLN"},
		"Without currency": {amount: 5, expected: "0.05"},
		"Negative":         {amount: -1234, currency: "eur", expected: "-12.34 EUR"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, printer.FormatMoney(test.amount, test.currency))
		})
	}
}
