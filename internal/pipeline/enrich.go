package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/browser"
	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/resilience"
)

// DriverFactory produces a fresh browser driver for each enrichment
// session. Each prospect gets its own browser so a crashed page never
// poisons the next lookup.
type DriverFactory func() browser.Driver

// EnrichResult captures what a Maps lookup learned about one prospect.
type EnrichResult struct {
	Query          string
	Classification browser.Classification
	ConsentHandled bool
	ModalDismissed bool
}

// Enricher looks prospects up on Maps and classifies the result page.
type Enricher struct {
	newDriver DriverFactory
	cfg       browser.Config
	retry     resilience.RetryConfig
}

// NewEnricher creates an enricher backed by the given driver factory.
// Browser launches fail sporadically under load, so each lookup retries
// on launch failures and transient network errors with a fresh session.
func NewEnricher(factory DriverFactory, cfg browser.Config) *Enricher {
	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = func(err error) bool {
		return eris.Is(err, browser.ErrLaunchFailure) || resilience.IsTransient(err)
	}
	retry.OnRetry = resilience.RetryLogger("browser", "enrich")
	return &Enricher{newDriver: factory, cfg: cfg, retry: retry}
}

// Enrich runs the full lookup flow for a single prospect.
func (e *Enricher) Enrich(ctx context.Context, p model.Prospect) (*EnrichResult, error) {
	return resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*EnrichResult, error) {
		return e.lookup(ctx, p)
	})
}

// lookup performs one session: launch, open a page under a randomized
// user agent, load the Maps landing page, clear the consent dialog and
// any secondary modal, search for the prospect, and classify what came
// back. The session is always closed, whatever the outcome.
func (e *Enricher) lookup(ctx context.Context, p model.Prospect) (*EnrichResult, error) {
	log := zap.L().With(
		zap.String("component", "pipeline.enrich"),
		zap.Int64("osm_id", p.OSMID),
	)

	session := browser.NewSession(e.newDriver(), e.cfg)
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("session close failed", zap.Error(err))
		}
	}()

	if err := session.Launch(ctx); err != nil {
		return nil, eris.Wrap(err, "pipeline: launch browser")
	}
	if err := session.OpenPage(ctx); err != nil {
		return nil, eris.Wrap(err, "pipeline: open page")
	}
	if err := session.Navigate(ctx, e.cfg.BaseURL); err != nil {
		return nil, eris.Wrap(err, "pipeline: load landing page")
	}

	consented, err := session.ResolveConsent(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve consent")
	}
	dismissed, err := session.DismissModal(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: dismiss modal")
	}

	query := searchQuery(p)
	if err := session.Search(ctx, query); err != nil {
		return nil, eris.Wrapf(err, "pipeline: search %q", query)
	}

	verdict, err := session.Classify(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: classify result page")
	}

	log.Info("prospect enriched",
		zap.String("query", query),
		zap.String("classification", string(verdict)),
	)
	return &EnrichResult{
		Query:          query,
		Classification: verdict,
		ConsentHandled: consented,
		ModalDismissed: dismissed,
	}, nil
}

// searchQuery builds the Maps query for a prospect. City narrows the
// search when known; the bare name still works without it.
func searchQuery(p model.Prospect) string {
	if p.City == "" {
		return p.Name
	}
	return p.Name + " " + p.City
}
