package result

import (
	"sync"

	"github.com/noah-isme/labelsweep/internal/classify"
)

// ResultSet is the full output of one run. Field names line up with the
// artifact the downstream void/cancel automation consumes.
type ResultSet struct {
	LabelOnly []classify.Outcome `json:"label_only_tracking_numbers"`
	Excluded  []classify.Outcome `json:"excluded_tracking_numbers"`
	Errors    []classify.Outcome `json:"api_errors"`

	TotalProcessed int `json:"total_processed"`
	TotalLabelOnly int `json:"total_label_only"`
	TotalExcluded  int `json:"total_excluded"`
	TotalErrors    int `json:"total_errors"`

	// Duplicates counts identifiers seen more than once. Selection guarantees
	// uniqueness, so anything non-zero means the upstream guarantee broke;
	// duplicates are still recorded rather than overwritten.
	Duplicates int `json:"duplicate_tracking_numbers,omitempty"`
	// Partial marks a run cut short by its timeout budget.
	Partial bool `json:"partial,omitempty"`
}

// Aggregator accumulates outcomes into a ResultSet. Appends are mutex-guarded
// so a bounded worker pool can report concurrently; within each bucket the
// order outcomes were processed is preserved.
type Aggregator struct {
	mu   sync.Mutex
	rs   ResultSet
	seen map[string]int
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{seen: make(map[string]int)}
}

// Append records one outcome in its bucket.
func (a *Aggregator) Append(o classify.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seen[o.TrackingNumber]++
	if a.seen[o.TrackingNumber] > 1 {
		a.rs.Duplicates++
	}

	a.rs.TotalProcessed++
	switch o.Bucket {
	case classify.BucketLabelOnly:
		a.rs.LabelOnly = append(a.rs.LabelOnly, o)
		a.rs.TotalLabelOnly++
	case classify.BucketError:
		a.rs.Errors = append(a.rs.Errors, o)
		a.rs.TotalErrors++
	default:
		a.rs.Excluded = append(a.rs.Excluded, o)
		a.rs.TotalExcluded++
	}
}

// MarkPartial flags the run as cut short.
func (a *Aggregator) MarkPartial() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rs.Partial = true
}

// Result hands the accumulated set over. Call once, after every worker has
// finished appending; the returned set is not written to afterwards.
func (a *Aggregator) Result() *ResultSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	rs := a.rs
	return &rs
}
