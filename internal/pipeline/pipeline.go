package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/labelsweep/internal/classify"
	"github.com/noah-isme/labelsweep/internal/common"
	"github.com/noah-isme/labelsweep/internal/obs"
	"github.com/noah-isme/labelsweep/internal/result"
	"github.com/noah-isme/labelsweep/internal/ups"
	"github.com/noah-isme/labelsweep/internal/window"
)

// Tracker is the carrier lookup dependency.
type Tracker interface {
	Track(ctx context.Context, trackingNumber string) (*ups.TrackingResponse, error)
}

// Saver persists a finished ResultSet.
type Saver interface {
	Save(rs *result.ResultSet, runLabel string) (string, string, error)
}

// RunResult describes one finished run.
type RunResult struct {
	Set         *result.ResultSet
	Selection   window.Selection
	DetailPath  string
	SummaryPath string
}

// Pipeline wires selection, tracking, classification, aggregation and
// persistence into one run. Lookups run on a bounded worker pool; a
// per-identifier failure becomes an Error outcome and never aborts the
// batch, with one exception: a failed credential exchange is fatal, since
// every remaining lookup would fail the same way.
// When the run context expires no new lookups are issued, whatever has been
// gathered is flagged partial and still persisted.
type Pipeline struct {
	Selector    window.Selector
	Tracker     Tracker
	Writer      Saver
	Concurrency int
	Logger      zerolog.Logger
}

// Run executes one sweep and returns the persisted result set. The returned
// error is non-nil only for run-level failures: selection, credential
// exchange, or persistence.
func (p *Pipeline) Run(ctx context.Context, runLabel string) (*RunResult, error) {
	sel, err := p.Selector.Select(ctx)
	if err != nil {
		return nil, err
	}

	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	agg := result.NewAggregator()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, tn := range sel.TrackingNumbers {
		if gctx.Err() != nil {
			agg.MarkPartial()
			p.Logger.Warn().
				Str("tracking_number", tn).
				Msg("run context done, not issuing further lookups")
			break
		}
		tn := tn
		g.Go(func() error {
			return p.process(gctx, tn, agg)
		})
	}
	if runErr := g.Wait(); runErr != nil {
		// credential exchange failed: the run aborts, nothing is persisted,
		// but the counts gathered so far are still reported
		p.logCounts(agg.Result(), "", "")
		return nil, runErr
	}
	if ctx.Err() != nil {
		agg.MarkPartial()
	}

	rs := agg.Result()
	detailPath, summaryPath, err := p.Writer.Save(rs, runLabel)
	p.logCounts(rs, detailPath, summaryPath)
	if err != nil {
		return nil, err
	}
	return &RunResult{Set: rs, Selection: sel, DetailPath: detailPath, SummaryPath: summaryPath}, nil
}

// process runs one lookup and appends its outcome. It returns an error only
// for a failed credential exchange, which cancels the dispatch group and
// aborts the run; every other failure stays isolated to its identifier.
func (p *Pipeline) process(ctx context.Context, tn string, agg *result.Aggregator) error {
	started := time.Now()
	resp, err := p.Tracker.Track(ctx, tn)
	elapsed := float64(time.Since(started).Milliseconds())

	var outcome classify.Outcome
	if err != nil {
		if common.HasCode(err, common.CodeAuthFailed) {
			p.Logger.Error().Str("tracking_number", tn).Err(err).Msg("credential exchange failed, aborting run")
			return err
		}
		outcome = classify.ErrorOutcome(tn, err)
		p.Logger.Warn().Str("tracking_number", tn).Err(err).Msg("lookup failed")
	} else {
		outcome = classify.Classify(tn, resp)
		p.Logger.Debug().
			Str("tracking_number", tn).
			Str("bucket", string(outcome.Bucket)).
			Str("reason", outcome.Reason).
			Msg("classified")
	}
	obs.ObserveTrackLookup(string(outcome.Bucket), elapsed)
	agg.Append(outcome)
	return nil
}

// logCounts reports the per-bucket totals. This runs on every exit path, so a
// run always ends with its counts even when cut short or failing to persist.
func (p *Pipeline) logCounts(rs *result.ResultSet, detailPath, summaryPath string) {
	p.Logger.Info().
		Int("total_processed", rs.TotalProcessed).
		Int("total_label_only", rs.TotalLabelOnly).
		Int("total_excluded", rs.TotalExcluded).
		Int("total_errors", rs.TotalErrors).
		Int("duplicates", rs.Duplicates).
		Bool("partial", rs.Partial).
		Str("detail", detailPath).
		Str("summary", summaryPath).
		Msg("run complete")
}
