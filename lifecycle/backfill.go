package lifecycle

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"proofcheck/logging"
	"proofcheck/types"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// intakeResult is one finished item of a backfill run
type intakeResult struct {
	SubmissionID string
	Status       types.SubmissionStatus
	Err          error
}

// BackfillStats summarizes a ScorePending run
type BackfillStats struct {
	Total    int
	Approved int
	Pending  int
	Errors   int
	Elapsed  time.Duration
}

// progressTracker counts results and optionally draws a progress bar
type progressTracker struct {
	stats BackfillStats
	bar   *progressbar.ProgressBar
	wg    sync.WaitGroup
	mu    sync.Mutex
}

func newProgressTracker(total int, out io.Writer, results <-chan intakeResult) *progressTracker {
	p := &progressTracker{stats: BackfillStats{Total: total}}

	if out != nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("scoring"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
		)
	}

	p.wg.Add(1)
	go p.processResults(results)
	return p
}

func (p *progressTracker) processResults(results <-chan intakeResult) {
	defer p.wg.Done()
	for result := range results {
		p.mu.Lock()
		switch {
		case result.Err != nil:
			p.stats.Errors++
			logging.LogError("Intake of submission %s failed: %v", result.SubmissionID, result.Err)
		case result.Status == types.SubmissionApproved:
			p.stats.Approved++
		default:
			p.stats.Pending++
		}
		if p.bar != nil {
			if p.stats.Errors > 0 {
				p.bar.Describe(fmt.Sprintf("scoring (errors: %d)", p.stats.Errors))
			}
			_ = p.bar.Add(1)
		}
		p.mu.Unlock()
	}
}

// stop waits for the results channel to drain and returns the totals
func (p *progressTracker) stop() BackfillStats {
	p.wg.Wait()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
	return p.stats
}

// ScorePending runs intake for every submission that was stored but never
// scored, for example when the process exited between insert and intake.
// Work is spread over the manager's worker count. Per-submission failures are
// counted and logged; only listing errors and cancellation are returned.
// A progress bar is drawn on out when it is not nil.
func (m *Manager) ScorePending(ctx context.Context, out io.Writer) (BackfillStats, error) {
	start := time.Now()
	subs, err := m.store.ListUnscored(ctx)
	if err != nil {
		return BackfillStats{}, err
	}
	if len(subs) == 0 {
		return BackfillStats{}, nil
	}
	logging.LogInfo("Scoring %d unscored submissions with %d workers", len(subs), m.workers)

	results := make(chan intakeResult, len(subs))
	tracker := newProgressTracker(len(subs), out, results)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, sub := range subs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome, err := m.Intake(gctx, sub.ID)
			results <- intakeResult{SubmissionID: sub.ID, Status: outcome.Status, Err: err}
			return nil
		})
	}
	g.Wait()
	close(results)

	stats := tracker.stop()
	stats.Elapsed = time.Since(start)
	logging.LogInfo("Scored %d submissions in %v: %d approved, %d pending, %d errors",
		stats.Total, stats.Elapsed.Round(time.Millisecond), stats.Approved, stats.Pending, stats.Errors)

	return stats, ctx.Err()
}
