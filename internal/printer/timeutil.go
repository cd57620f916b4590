package printer

import (
	"fmt"
	"strings"
	"time"

	"github.com/slok/taskbroker/internal/model"
)

// TimeAgo returns a human-readable relative time string in UTC from now.
// Examples: "5 seconds ago (UTC)", "2 minutes ago (UTC)", "3 days ago (UTC)".
func TimeAgo(t, now time.Time) string {
	diff := now.UTC().Sub(t.UTC())
	if diff < 0 {
		return "in the future (UTC)"
	}

	plural := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s ago (UTC)", unit)
		}
		return fmt.Sprintf("%d %ss ago (UTC)", n, unit)
	}

	switch {
	case diff < time.Minute:
		return plural(int(diff.Seconds()), "second")
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	}
	return plural(int(diff.Hours()/24), "day")
}

// FormatTimestamp returns a formatted timestamp string in UTC.
// Format: "2006-01-02 15:04:05 UTC".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// FormatMoney returns the amount with its currency, e.g. "100.00 PLN".
func FormatMoney(m model.Money, currency string) string {
	if currency == "" {
		return m.String()
	}
	return m.String() + " " + strings.ToUpper(currency)
}
