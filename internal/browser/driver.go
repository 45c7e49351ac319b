// Package browser drives a headless browser session for prospect
// enrichment: navigation, consent dismissal, and page classification.
package browser

import (
	"context"
	"time"
)

// Driver abstracts the automation engine behind the session. Only the
// primitives the session needs: navigate, query, click, wait, user-agent
// override, and process shutdown.
type Driver interface {
	// Start launches the browser process.
	Start(ctx context.Context) error
	// NewPage opens a fresh page with the given user-agent string.
	NewPage(ctx context.Context, userAgent string) error
	// Navigate loads the URL in the current page.
	Navigate(ctx context.Context, url string) error
	// Exists reports whether at least one element matches the selector.
	// A page that has not rendered the selector yields (false, nil).
	Exists(ctx context.Context, selector string) (bool, error)
	// WaitVisible blocks until the selector is visible or the timeout
	// elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Click clicks the first element matching the selector.
	Click(ctx context.Context, selector string) error
	// Close shuts the browser process down.
	Close() error
}
