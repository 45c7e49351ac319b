package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/prospect"
	"github.com/sells-group/prospect-cli/internal/store"
	"github.com/sells-group/prospect-cli/pkg/overpass"
)

// Discovery orchestrates prospect discovery runs: fetch businesses for
// each requested area, drop the ones already stored, and bulk insert the
// rest.
type Discovery struct {
	source overpass.Client
	store  store.Store
	opts   DiscoveryOpts
}

// DiscoveryOpts configures a discovery run.
type DiscoveryOpts struct {
	Concurrency int        // max areas queried in parallel
	RateLimit   rate.Limit // upstream queries per second
	AreaTimeout time.Duration
}

// DefaultDiscoveryOpts returns conservative settings that respect the
// public Overpass usage policy. Sequential areas at one query per second.
func DefaultDiscoveryOpts() DiscoveryOpts {
	return DiscoveryOpts{
		Concurrency: 1,
		RateLimit:   rate.Limit(1),
		AreaTimeout: 3 * time.Minute,
	}
}

// Report summarizes a discovery run.
type Report struct {
	RunID    string
	Fetched  int64 // elements returned by the source
	Inserted int64 // new prospects stored
	Known    int64 // dropped before insert, osm id already stored
	Rejected int64 // rejected at insert time, duplicate email
	Failed   []string
}

// counters copies the report tallies into a run record for bookkeeping.
func (r *Report) counters() *model.Run {
	return &model.Run{
		Fetched:  r.Fetched,
		Inserted: r.Inserted,
		Known:    r.Known,
		Rejected: r.Rejected,
	}
}

// NewDiscovery creates a discovery orchestrator.
func NewDiscovery(source overpass.Client, st store.Store, opts DiscoveryOpts) *Discovery {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultDiscoveryOpts().Concurrency
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultDiscoveryOpts().RateLimit
	}
	if opts.AreaTimeout <= 0 {
		opts.AreaTimeout = DefaultDiscoveryOpts().AreaTimeout
	}
	return &Discovery{source: source, store: st, opts: opts}
}

// Run executes a discovery run across the given areas. The source is
// probed once up front so an unreachable upstream fails fast instead of
// failing once per area. Individual area failures are recorded and do
// not abort the other areas.
func (d *Discovery) Run(ctx context.Context, areas []string) (*Report, error) {
	log := zap.L().With(zap.String("component", "pipeline.discovery"))

	if len(areas) == 0 {
		return nil, eris.New("pipeline: no areas given")
	}

	if err := d.source.VerifyConnectivity(ctx); err != nil {
		return nil, eris.Wrap(err, "pipeline: source connectivity check")
	}

	runID, err := d.store.CreateRun(ctx, areas)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log.Info("discovery run started", zap.String("run_id", runID), zap.Strings("areas", areas))

	var fetched, inserted, known, rejected atomic.Int64
	var failedMu sync.Mutex
	var failed []string

	limiter := rate.NewLimiter(d.opts.RateLimit, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)

	for _, area := range areas {
		g.Go(func() error {
			aLog := log.With(zap.String("area", area))

			if err := limiter.Wait(gctx); err != nil {
				return err
			}

			areaCtx, cancel := context.WithTimeout(gctx, d.opts.AreaTimeout)
			defer cancel()

			if err := d.runArea(areaCtx, aLog, area, &fetched, &inserted, &known, &rejected); err != nil {
				aLog.Error("area discovery failed", zap.Error(err))
				failedMu.Lock()
				failed = append(failed, area)
				failedMu.Unlock()
				return nil // other areas keep going
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		run := d.snapshot(runID, &fetched, &inserted, &known, &rejected, failed)
		if failErr := d.store.FailRun(ctx, runID, err.Error()); failErr != nil {
			log.Error("failed to record run failure", zap.Error(failErr))
		}
		return run, eris.Wrap(err, "pipeline: discovery run aborted")
	}

	report := d.snapshot(runID, &fetched, &inserted, &known, &rejected, failed)
	if err := d.store.CompleteRun(ctx, runID, report.counters()); err != nil {
		log.Error("failed to record run completion", zap.Error(err))
	}

	log.Info("discovery run complete",
		zap.String("run_id", runID),
		zap.Int64("fetched", report.Fetched),
		zap.Int64("inserted", report.Inserted),
		zap.Int64("known", report.Known),
		zap.Int64("rejected", report.Rejected),
		zap.Int("failed_areas", len(report.Failed)),
	)
	return report, nil
}

func (d *Discovery) runArea(ctx context.Context, log *zap.Logger, area string, fetched, inserted, known, rejected *atomic.Int64) error {
	elements, err := d.source.FindBusinesses(ctx, area)
	if err != nil {
		return eris.Wrapf(err, "pipeline: fetch businesses for %q", area)
	}
	fetched.Add(int64(len(elements)))
	log.Debug("businesses fetched", zap.Int("count", len(elements)))

	fresh, dupes, err := prospect.Partition(ctx, elements, d.store.ExistsByOSMID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: partition results for %q", area)
	}
	known.Add(int64(len(dupes)))

	if len(fresh) == 0 {
		log.Info("no new prospects", zap.Int("known", len(dupes)))
		return nil
	}

	report, err := d.store.InsertProspects(ctx, prospect.NormalizeAll(fresh))
	if err != nil {
		return eris.Wrapf(err, "pipeline: insert prospects for %q", area)
	}
	inserted.Add(int64(report.Inserted))
	known.Add(int64(report.Skipped))
	rejected.Add(int64(report.Rejected))

	log.Info("area discovered",
		zap.Int("inserted", report.Inserted),
		zap.Int("known", len(dupes)+report.Skipped),
		zap.Int("rejected", report.Rejected),
	)
	return nil
}

func (d *Discovery) snapshot(runID string, fetched, inserted, known, rejected *atomic.Int64, failed []string) *Report {
	return &Report{
		RunID:    runID,
		Fetched:  fetched.Load(),
		Inserted: inserted.Load(),
		Known:    known.Load(),
		Rejected: rejected.Load(),
		Failed:   failed,
	}
}
