package window

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/labelsweep/internal/obs"
	"github.com/noah-isme/labelsweep/internal/store"
)

// UPSPrefix is the carrier prefix every candidate tracking number must carry.
const UPSPrefix = "1Z"

// CandidateSource supplies raw transaction rows.
type CandidateSource interface {
	CandidateRows(ctx context.Context) ([]store.CandidateRow, error)
}

// Selection is the outcome of candidate selection: the deduplicated,
// lexically ordered tracking numbers plus the row counts a run reports for
// observability.
type Selection struct {
	TrackingNumbers []string
	RowsScanned     int
	RowsUnparsable  int
	RowsOutside     int
	RowsOffCarrier  int
}

// Selector extracts candidate tracking numbers for one run.
type Selector struct {
	Source CandidateSource
	Window DateWindow
	Prefix string
	Logger *zerolog.Logger
}

// Select queries the transaction source and keeps rows whose parsed date
// falls inside the window and whose tracking number matches the carrier
// prefix. Rows with unparsable dates are discarded and counted, never an
// error.
func (s Selector) Select(ctx context.Context) (Selection, error) {
	rows, err := s.Source.CandidateRows(ctx)
	if err != nil {
		return Selection{}, err
	}
	prefix := s.Prefix
	if prefix == "" {
		prefix = UPSPrefix
	}

	sel := Selection{RowsScanned: len(rows)}
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		tn := strings.TrimSpace(row.TrackingNumber)
		if !strings.HasPrefix(tn, prefix) {
			sel.RowsOffCarrier++
			continue
		}
		date, ok := ParseTransactionDate(row.TransactionDate)
		if !ok {
			sel.RowsUnparsable++
			continue
		}
		if !s.Window.Contains(date) {
			sel.RowsOutside++
			continue
		}
		if _, dup := seen[tn]; dup {
			continue
		}
		seen[tn] = struct{}{}
		sel.TrackingNumbers = append(sel.TrackingNumbers, tn)
	}
	sort.Strings(sel.TrackingNumbers)

	obs.AddDiscardedRows(sel.RowsUnparsable)
	if s.Logger != nil {
		s.Logger.Info().
			Str("window", s.Window.String()).
			Int("rows_scanned", sel.RowsScanned).
			Int("rows_unparsable", sel.RowsUnparsable).
			Int("rows_outside_window", sel.RowsOutside).
			Int("rows_off_carrier", sel.RowsOffCarrier).
			Int("candidates", len(sel.TrackingNumbers)).
			Msg("candidate selection complete")
	}
	return sel, nil
}
