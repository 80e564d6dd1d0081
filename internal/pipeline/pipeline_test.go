package pipeline_test

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/labelsweep/internal/classify"
	"github.com/noah-isme/labelsweep/internal/common"
	"github.com/noah-isme/labelsweep/internal/pipeline"
	"github.com/noah-isme/labelsweep/internal/result"
	"github.com/noah-isme/labelsweep/internal/store"
	"github.com/noah-isme/labelsweep/internal/ups"
	"github.com/noah-isme/labelsweep/internal/window"
)

type staticSource struct {
	rows []store.CandidateRow
}

func (s staticSource) CandidateRows(context.Context) ([]store.CandidateRow, error) {
	return s.rows, nil
}

type fakeTracker struct {
	responses map[string]*ups.TrackingResponse
	errs      map[string]error
	delay     time.Duration
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
}

func (f *fakeTracker) Track(ctx context.Context, tn string) (*ups.TrackingResponse, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxSeen.Load()
		if cur <= prev || f.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, common.NewAppError(common.CodeTransientRequest, "track "+tn, ctx.Err())
		case <-time.After(f.delay):
		}
	}
	if err, ok := f.errs[tn]; ok {
		return nil, err
	}
	if resp, ok := f.responses[tn]; ok {
		return resp, nil
	}
	return &ups.TrackingResponse{TrackResponse: &ups.TrackResponseBody{}}, nil
}

func singleActivity(desc string) *ups.TrackingResponse {
	return &ups.TrackingResponse{TrackResponse: &ups.TrackResponseBody{
		Shipments: []ups.Shipment{{Packages: []ups.Package{{Activities: []ups.Activity{{
			Status: &ups.ActivityStatus{Description: desc, Code: "MP", Type: "M"},
		}}}}}},
	}}
}

func twoActivities() *ups.TrackingResponse {
	return &ups.TrackingResponse{TrackResponse: &ups.TrackResponseBody{
		Shipments: []ups.Shipment{{Packages: []ups.Package{{Activities: []ups.Activity{
			{Status: &ups.ActivityStatus{Description: "Departed from facility", Code: "DP", Type: "I"}},
			{Status: &ups.ActivityStatus{Description: classify.LabelCreatedDescription, Code: "MP", Type: "M"}},
		}}}}},
	}}
}

func testWindow(t *testing.T) window.DateWindow {
	t.Helper()
	today := time.Date(2025, 8, 29, 0, 0, 0, 0, time.UTC)
	w, err := window.Compute(today, 89, 30, 7)
	require.NoError(t, err)
	return w
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	src := staticSource{rows: []store.CandidateRow{
		{TrackingNumber: "1Z0001", TransactionDate: "2025-06-01"},
		{TrackingNumber: "1Z0002", TransactionDate: "2025-06-02"},
		{TrackingNumber: "1Z0003", TransactionDate: "2025-06-03"},
	}}
	tracker := &fakeTracker{
		responses: map[string]*ups.TrackingResponse{
			"1Z0001": singleActivity(classify.LabelCreatedDescription),
			"1Z0002": twoActivities(),
		},
		errs: map[string]error{
			"1Z0003": common.NewAppError(common.CodeTransientRequest, "track 1Z0003: timeout after retries", context.DeadlineExceeded),
		},
	}

	p := &pipeline.Pipeline{
		Selector:    window.Selector{Source: src, Window: testWindow(t)},
		Tracker:     tracker,
		Writer:      result.Writer{Dir: t.TempDir()},
		Concurrency: 2,
		Logger:      zerolog.Nop(),
	}

	run, err := p.Run(context.Background(), "e2e")
	require.NoError(t, err)

	rs := run.Set
	require.Equal(t, 3, rs.TotalProcessed)
	require.Equal(t, 1, rs.TotalLabelOnly)
	require.Equal(t, 1, rs.TotalExcluded)
	require.Equal(t, 1, rs.TotalErrors)
	require.Equal(t, "1Z0001", rs.LabelOnly[0].TrackingNumber)
	require.Equal(t, "1Z0002", rs.Excluded[0].TrackingNumber)
	require.Equal(t, "1Z0003", rs.Errors[0].TrackingNumber)
	require.False(t, rs.Partial)

	// detail artifact round-trips the counts
	loaded, err := result.Load(run.DetailPath)
	require.NoError(t, err)
	require.Equal(t, rs.TotalProcessed, loaded.TotalProcessed)
	require.Equal(t, rs.TotalLabelOnly, loaded.TotalLabelOnly)
}

func TestRunBoundedConcurrencyProcessesAll(t *testing.T) {
	t.Parallel()

	const n = 40
	var rows []store.CandidateRow
	for i := 0; i < n; i++ {
		rows = append(rows, store.CandidateRow{
			TrackingNumber:  fmt.Sprintf("1Z%04d", i),
			TransactionDate: "2025-06-10",
		})
	}
	tracker := &fakeTracker{delay: 2 * time.Millisecond}

	p := &pipeline.Pipeline{
		Selector:    window.Selector{Source: staticSource{rows: rows}, Window: testWindow(t)},
		Tracker:     tracker,
		Writer:      result.Writer{Dir: t.TempDir()},
		Concurrency: 4,
		Logger:      zerolog.Nop(),
	}

	run, err := p.Run(context.Background(), "bounded")
	require.NoError(t, err)
	require.Equal(t, n, run.Set.TotalProcessed)
	require.Equal(t, n, run.Set.TotalLabelOnly+run.Set.TotalExcluded+run.Set.TotalErrors)
	require.LessOrEqual(t, tracker.maxSeen.Load(), int32(4))
}

func TestRunTimeoutPersistsPartialResults(t *testing.T) {
	t.Parallel()

	var rows []store.CandidateRow
	for i := 0; i < 50; i++ {
		rows = append(rows, store.CandidateRow{
			TrackingNumber:  fmt.Sprintf("1Z%04d", i),
			TransactionDate: "2025-06-10",
		})
	}
	tracker := &fakeTracker{delay: 20 * time.Millisecond}

	p := &pipeline.Pipeline{
		Selector:    window.Selector{Source: staticSource{rows: rows}, Window: testWindow(t)},
		Tracker:     tracker,
		Writer:      result.Writer{Dir: t.TempDir()},
		Concurrency: 2,
		Logger:      zerolog.Nop(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	run, err := p.Run(ctx, "partial")
	require.NoError(t, err)
	require.True(t, run.Set.Partial)
	require.Less(t, run.Set.TotalProcessed, 50)

	// the partial set was still persisted
	loaded, err := result.Load(run.DetailPath)
	require.NoError(t, err)
	require.True(t, loaded.Partial)
}

type authFailTracker struct {
	calls atomic.Int32
}

func (a *authFailTracker) Track(ctx context.Context, tn string) (*ups.TrackingResponse, error) {
	a.calls.Add(1)
	return nil, common.NewAppError(common.CodeAuthFailed, "token exchange: status 403", nil)
}

func TestRunAbortsOnCredentialFailure(t *testing.T) {
	t.Parallel()

	src := staticSource{rows: []store.CandidateRow{
		{TrackingNumber: "1Z0001", TransactionDate: "2025-06-01"},
		{TrackingNumber: "1Z0002", TransactionDate: "2025-06-02"},
		{TrackingNumber: "1Z0003", TransactionDate: "2025-06-03"},
	}}
	tracker := &authFailTracker{}
	dir := t.TempDir()

	p := &pipeline.Pipeline{
		Selector:    window.Selector{Source: src, Window: testWindow(t)},
		Tracker:     tracker,
		Writer:      result.Writer{Dir: dir},
		Concurrency: 1,
		Logger:      zerolog.Nop(),
	}

	run, err := p.Run(context.Background(), "badcreds")
	require.Error(t, err)
	require.True(t, common.HasCode(err, common.CodeAuthFailed))
	require.Nil(t, run)

	// the run aborts early instead of burning the whole batch
	require.LessOrEqual(t, tracker.calls.Load(), int32(2))

	// nothing is persisted for an aborted run
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

type failingSaver struct{}

func (failingSaver) Save(*result.ResultSet, string) (string, string, error) {
	return "", "", common.NewAppError(common.CodePersistenceFailed, "disk full", nil)
}

func TestRunSurfacesPersistenceFailure(t *testing.T) {
	t.Parallel()

	p := &pipeline.Pipeline{
		Selector: window.Selector{
			Source: staticSource{rows: []store.CandidateRow{{TrackingNumber: "1Z0001", TransactionDate: "2025-06-10"}}},
			Window: testWindow(t),
		},
		Tracker:     &fakeTracker{},
		Writer:      failingSaver{},
		Concurrency: 1,
		Logger:      zerolog.Nop(),
	}

	_, err := p.Run(context.Background(), "doomed")
	require.Error(t, err)
	require.True(t, common.HasCode(err, common.CodePersistenceFailed))
}
