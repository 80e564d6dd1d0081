package window

import (
	"fmt"
	"time"

	"github.com/noah-isme/labelsweep/internal/common"
)

// DateWindow is an inclusive range of calendar dates. Both bounds are
// midnight-UTC dates with no time component.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the calendar date d falls inside the window.
func (w DateWindow) Contains(d time.Time) bool {
	day := Day(d)
	return !day.Before(w.Start) && !day.After(w.End)
}

func (w DateWindow) String() string {
	return fmt.Sprintf("[%s, %s]", w.Start.Format(time.DateOnly), w.End.Format(time.DateOnly))
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Compute derives the inclusive window [today-startOffset, today-endOffset].
// Both offsets count backwards from today. startOffset must exceed endOffset
// and endOffset must be at least minEndOffset, so shipments too recent to
// carry a final status never enter a run.
func Compute(today time.Time, startOffset, endOffset, minEndOffset int) (DateWindow, error) {
	if startOffset <= endOffset {
		return DateWindow{}, common.NewAppError(common.CodeConfigInvalid,
			fmt.Sprintf("window start offset (%d) must exceed end offset (%d)", startOffset, endOffset), nil)
	}
	if endOffset < minEndOffset {
		return DateWindow{}, common.NewAppError(common.CodeConfigInvalid,
			fmt.Sprintf("window end offset (%d) is below the recency floor (%d)", endOffset, minEndOffset), nil)
	}
	base := Day(today)
	return DateWindow{
		Start: base.AddDate(0, 0, -startOffset),
		End:   base.AddDate(0, 0, -endOffset),
	}, nil
}
