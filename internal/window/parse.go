package window

import (
	"strings"
	"time"
)

// transactionDateLayouts is the single source of truth for the textual date
// formats the warehouse feed is known to emit, in priority order. ISO first;
// first successful parse wins.
var transactionDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
}

// ParseTransactionDate parses a raw transaction date string against the known
// layouts and returns its calendar date in UTC. The second return is false
// when no layout matches; the caller discards such rows without failing.
func ParseTransactionDate(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range transactionDateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return Day(t), true
		}
	}
	return time.Time{}, false
}
