package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// ChromeDriver implements Driver on top of chromedp. One driver owns one
// Chrome process and one page; it is never shared across sessions.
type ChromeDriver struct {
	headless bool

	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	pageCtx     context.Context
	pageCancel  context.CancelFunc
}

// NewChromeDriver creates an unstarted Chrome driver.
func NewChromeDriver(headless bool) *ChromeDriver {
	return &ChromeDriver{headless: headless}
}

func (d *ChromeDriver) Start(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.headless),
		chromedp.Flag("disable-infobars", true),
		chromedp.NoSandbox,
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Run with no actions forces the browser process to start now, so a
	// missing or broken Chrome binary surfaces here rather than on the
	// first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return eris.Wrap(err, "chromedp: start browser")
	}

	d.allocCancel = allocCancel
	d.browserCtx = browserCtx
	d.cancel = cancel
	return nil
}

func (d *ChromeDriver) NewPage(ctx context.Context, userAgent string) error {
	if d.browserCtx == nil {
		return eris.New("chromedp: browser not started")
	}

	pageCtx, pageCancel := chromedp.NewContext(d.browserCtx)
	if err := runUnder(ctx, pageCtx, emulation.SetUserAgentOverride(userAgent)); err != nil {
		pageCancel()
		return eris.Wrap(err, "chromedp: open page")
	}

	d.pageCtx = pageCtx
	d.pageCancel = pageCancel
	return nil
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	if d.pageCtx == nil {
		return eris.New("chromedp: no page open")
	}
	if err := runUnder(ctx, d.pageCtx, chromedp.Navigate(url)); err != nil {
		return eris.Wrapf(err, "chromedp: navigate %s", url)
	}
	return nil
}

func (d *ChromeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	if d.pageCtx == nil {
		return false, eris.New("chromedp: no page open")
	}

	// AtLeast(0) makes the probe return immediately with whatever is in
	// the DOM instead of blocking until the selector appears.
	var nodes []*cdp.Node
	err := runUnder(ctx, d.pageCtx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return false, eris.Wrapf(err, "chromedp: query %s", selector)
	}
	return len(nodes) > 0, nil
}

func (d *ChromeDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if d.pageCtx == nil {
		return eris.New("chromedp: no page open")
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := runUnder(waitCtx, d.pageCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return eris.Wrapf(err, "chromedp: wait for %s", selector)
	}
	return nil
}

func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	if d.pageCtx == nil {
		return eris.New("chromedp: no page open")
	}
	if err := runUnder(ctx, d.pageCtx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return eris.Wrapf(err, "chromedp: click %s", selector)
	}
	return nil
}

func (d *ChromeDriver) Close() error {
	if d.pageCancel != nil {
		d.pageCancel()
		d.pageCancel = nil
		d.pageCtx = nil
	}
	if d.browserCtx != nil {
		// Graceful browser shutdown before tearing the allocator down.
		_ = chromedp.Cancel(d.browserCtx)
		d.browserCtx = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.allocCancel != nil {
		d.allocCancel()
		d.allocCancel = nil
	}
	return nil
}

// runUnder executes chromedp actions on target, aborting early when the
// caller's ctx is cancelled. chromedp actions only honor their own context
// chain, so the caller's deadline is bridged in.
func runUnder(ctx context.Context, target context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithCancel(target)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
