package browser

import (
	"context"
	"net/url"
	"time"

	ua "github.com/EDDYCJY/fake-useragent"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is the browser session lifecycle state.
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateLaunched        State = "launched"
	StatePageOpen        State = "page_open"
	StateNavigated       State = "navigated"
	StateConsentPending  State = "consent_pending"
	StateConsentResolved State = "consent_resolved"
	StateSearching       State = "searching"
	StateClassified      State = "classified"
	StateClosed          State = "closed"
)

// Classification is the terminal verdict on a navigated page.
type Classification string

const (
	ClassListing       Classification = "listing"
	ClassSingleProfile Classification = "single_profile"
	ClassUnknown       Classification = "unknown"
)

// ErrLaunchFailure indicates the browser process could not start. Fatal to
// the enrichment flow; there is no meaningful continuation without a
// browser handle.
var ErrLaunchFailure = eris.New("browser: launch failure")

// ErrInvalidTransition indicates an operation was called from a state that
// does not permit it.
var ErrInvalidTransition = eris.New("browser: invalid state transition")

// Target-site selectors. Consent dialogs are rendered inconsistently, which
// is why every dismissal step is tolerant rather than a hard precondition.
const (
	consentButtonSelector = `button[aria-label="Tout accepter"]`
	consentInputSelector  = `input[value="Tout accepter"]`
	webModalSelector      = `[class*="qgMOee"]`
	listingPaneSelector   = `.ml-pane.with-searchbox`
	profilePaneSelector   = `.ml-pane:not(.with-searchbox)`
)

// Config holds session tuning knobs.
type Config struct {
	BaseURL        string        // maps landing page
	ConsentTimeout time.Duration // max wait for the consent control to become visible
	SettleDelay    time.Duration // pause after a successful modal click
	SearchSettle   time.Duration // pause after navigating to a search URL
}

// DefaultConfig returns the production session configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://www.google.fr/maps",
		ConsentTimeout: 10 * time.Second,
		SettleDelay:    1 * time.Second,
		SearchSettle:   3 * time.Second,
	}
}

// Session is a state machine over a Driver. One session exclusively owns
// its browser and page handle for its whole lifetime; it is not safe for
// concurrent use and is never shared across enrichment runs.
type Session struct {
	id             string
	driver         Driver
	cfg            Config
	state          State
	userAgent      string
	classification Classification
	log            *zap.Logger
}

// NewSession creates a session in the Uninitialized state.
func NewSession(driver Driver, cfg Config) *Session {
	id := uuid.New().String()
	return &Session{
		id:     id,
		driver: driver,
		cfg:    cfg,
		state:  StateUninitialized,
		log:    zap.L().With(zap.String("component", "browser.session"), zap.String("session", id)),
	}
}

// ID returns the session correlation id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Classification returns the verdict of the last Classify call, or empty.
func (s *Session) Classification() Classification { return s.classification }

// UserAgent returns the user-agent assigned at OpenPage, or empty.
func (s *Session) UserAgent() string { return s.userAgent }

// require validates that the session is in one of the allowed states.
func (s *Session) require(op string, allowed ...State) error {
	for _, a := range allowed {
		if s.state == a {
			return nil
		}
	}
	return eris.Wrapf(ErrInvalidTransition, "%s called in state %s", op, s.state)
}

// Launch starts the browser process. A start failure is fatal: the session
// moves to Closed and ErrLaunchFailure is propagated.
func (s *Session) Launch(ctx context.Context) error {
	if err := s.require("launch", StateUninitialized); err != nil {
		return err
	}

	if err := s.driver.Start(ctx); err != nil {
		s.state = StateClosed
		return eris.Wrapf(ErrLaunchFailure, "start browser: %v", err)
	}

	s.state = StateLaunched
	s.log.Info("browser launched")
	return nil
}

// OpenPage opens the session page and assigns a randomized user-agent.
// One user-agent per session lifetime; it is not rotated mid-session.
func (s *Session) OpenPage(ctx context.Context) error {
	if err := s.require("open page", StateLaunched); err != nil {
		return err
	}

	s.userAgent = ua.Random()
	if err := s.driver.NewPage(ctx, s.userAgent); err != nil {
		return eris.Wrap(err, "browser: open page")
	}

	s.state = StatePageOpen
	s.log.Debug("page opened", zap.String("user_agent", s.userAgent))
	return nil
}

// Navigate loads a URL. Repeatable: a Navigated session may navigate again.
func (s *Session) Navigate(ctx context.Context, target string) error {
	if err := s.require("navigate", StatePageOpen, StateNavigated); err != nil {
		return err
	}

	if err := s.driver.Navigate(ctx, target); err != nil {
		return eris.Wrapf(err, "browser: navigate %s", target)
	}

	s.state = StateNavigated
	s.log.Debug("navigated", zap.String("url", target))
	return nil
}

// ResolveConsent locates the consent-accept control by its primary selector,
// falling back to the input variant, waits for it to become visible, and
// clicks it. The dialog is not always present, so failure to find or click
// is a non-fatal outcome: the session always advances to ConsentResolved
// and the boolean reports whether the dialog was actually dismissed.
func (s *Session) ResolveConsent(ctx context.Context) (bool, error) {
	if err := s.require("resolve consent", StateNavigated); err != nil {
		return false, err
	}
	s.state = StateConsentPending

	active := consentButtonSelector
	if found, err := s.driver.Exists(ctx, consentButtonSelector); err != nil || !found {
		active = consentInputSelector
	}

	resolved := false
	if err := s.driver.WaitVisible(ctx, active, s.cfg.ConsentTimeout); err == nil {
		if err := s.driver.Click(ctx, active); err == nil {
			if err := s.settle(ctx, s.cfg.SettleDelay); err != nil {
				return false, err
			}
			resolved = true
		}
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	s.state = StateConsentResolved
	if resolved {
		s.log.Info("consent dialog accepted", zap.String("selector", active))
	} else {
		s.log.Warn("consent dialog not resolved, continuing")
	}
	return resolved, nil
}

// DismissModal dismisses the secondary web modal with the same tolerant
// pattern as ResolveConsent. It runs regardless of the first step's
// outcome and never fails the flow.
func (s *Session) DismissModal(ctx context.Context) (bool, error) {
	if err := s.require("dismiss modal", StateConsentResolved); err != nil {
		return false, err
	}

	dismissed := false
	if found, err := s.driver.Exists(ctx, webModalSelector); err == nil && found {
		if err := s.driver.Click(ctx, webModalSelector); err == nil {
			if err := s.settle(ctx, s.cfg.SettleDelay); err != nil {
				return false, err
			}
			dismissed = true
		}
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if dismissed {
		s.log.Info("web modal dismissed")
	} else {
		s.log.Warn("web modal not dismissed, continuing")
	}
	return dismissed, nil
}

// Search navigates to the maps search URL for the query and waits for the
// page to settle. The session ends up Navigated, ready for Classify.
func (s *Session) Search(ctx context.Context, query string) error {
	if err := s.require("search", StateConsentResolved, StateClassified); err != nil {
		return err
	}
	s.state = StateSearching

	searchURL := s.cfg.BaseURL + "/search/" + url.PathEscape(query)
	if err := s.driver.Navigate(ctx, searchURL); err != nil {
		return eris.Wrapf(err, "browser: search %q", query)
	}
	if err := s.settle(ctx, s.cfg.SearchSettle); err != nil {
		return err
	}

	s.state = StateNavigated
	s.log.Info("search navigated", zap.String("query", query))
	return nil
}

// Classify probes the page for the results-list pane marker, then the
// single-profile pane marker. Both probes are best-effort: a marker the
// page has not rendered reads as absent, never as an error, and a page
// with neither marker is a valid Unknown verdict.
func (s *Session) Classify(ctx context.Context) (Classification, error) {
	if err := s.require("classify", StateNavigated); err != nil {
		return "", err
	}

	verdict := ClassUnknown
	if found, err := s.driver.Exists(ctx, listingPaneSelector); err == nil && found {
		verdict = ClassListing
	} else if found, err := s.driver.Exists(ctx, profilePaneSelector); err == nil && found {
		verdict = ClassSingleProfile
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	s.state = StateClassified
	s.classification = verdict
	s.log.Info("page classified", zap.String("classification", string(verdict)))
	return verdict, nil
}

// Close shuts the session down from any state. Idempotent: closing an
// already-closed or never-launched session is a no-op.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	prev := s.state
	s.state = StateClosed

	if prev == StateUninitialized {
		return nil
	}
	if err := s.driver.Close(); err != nil {
		return eris.Wrap(err, "browser: close")
	}
	s.log.Info("session closed")
	return nil
}

// settle pauses for the given delay, honoring context cancellation.
func (s *Session) settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
