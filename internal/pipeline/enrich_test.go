package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/browser"
	"github.com/sells-group/prospect-cli/internal/model"
)

// scriptedDriver implements browser.Driver with canned page contents.
type scriptedDriver struct {
	startErr    error
	present     map[string]bool
	navigations []string
	closed      bool
}

func (d *scriptedDriver) Start(context.Context) error { return d.startErr }

func (d *scriptedDriver) NewPage(context.Context, string) error { return nil }

func (d *scriptedDriver) Navigate(_ context.Context, url string) error {
	d.navigations = append(d.navigations, url)
	return nil
}

func (d *scriptedDriver) Exists(_ context.Context, selector string) (bool, error) {
	return d.present[selector], nil
}

func (d *scriptedDriver) WaitVisible(_ context.Context, selector string, _ time.Duration) error {
	if !d.present[selector] {
		return eris.Errorf("selector %s not visible", selector)
	}
	return nil
}

func (d *scriptedDriver) Click(context.Context, string) error { return nil }

func (d *scriptedDriver) Close() error {
	d.closed = true
	return nil
}

func enrichConfig() browser.Config {
	cfg := browser.DefaultConfig()
	cfg.ConsentTimeout = 20 * time.Millisecond
	cfg.SettleDelay = 0
	cfg.SearchSettle = 0
	return cfg
}

func TestEnrich_ListingResult(t *testing.T) {
	t.Parallel()

	d := &scriptedDriver{present: map[string]bool{
		`button[aria-label="Tout accepter"]`: true,
		".ml-pane.with-searchbox":            true,
	}}
	e := NewEnricher(func() browser.Driver { return d }, enrichConfig())

	result, err := e.Enrich(context.Background(), model.Prospect{
		OSMID: 1, Name: "Boulangerie Martin", City: "Iffendic",
	})
	require.NoError(t, err)

	assert.Equal(t, browser.ClassListing, result.Classification)
	assert.Equal(t, "Boulangerie Martin Iffendic", result.Query)
	assert.True(t, result.ConsentHandled)
	assert.True(t, d.closed, "session must be closed after enrichment")

	last := d.navigations[len(d.navigations)-1]
	assert.Equal(t, "https://www.google.fr/maps/search/Boulangerie%20Martin%20Iffendic", last)
}

func TestEnrich_SingleProfileWithoutConsentDialog(t *testing.T) {
	t.Parallel()

	d := &scriptedDriver{present: map[string]bool{
		".ml-pane:not(.with-searchbox)": true,
	}}
	e := NewEnricher(func() browser.Driver { return d }, enrichConfig())

	result, err := e.Enrich(context.Background(), model.Prospect{OSMID: 2, Name: "Garage Leroy"})
	require.NoError(t, err)

	assert.Equal(t, browser.ClassSingleProfile, result.Classification)
	assert.False(t, result.ConsentHandled)
	assert.Equal(t, "Garage Leroy", result.Query)
}

func TestEnrich_UnknownPage(t *testing.T) {
	t.Parallel()

	d := &scriptedDriver{}
	e := NewEnricher(func() browser.Driver { return d }, enrichConfig())

	result, err := e.Enrich(context.Background(), model.Prospect{OSMID: 3, Name: "Café du Centre"})
	require.NoError(t, err)
	assert.Equal(t, browser.ClassUnknown, result.Classification)
}

func TestEnrich_LaunchFailureClosesSession(t *testing.T) {
	t.Parallel()

	d := &scriptedDriver{startErr: eris.New("chrome not found")}
	e := NewEnricher(func() browser.Driver { return d }, enrichConfig())
	e.retry.InitialBackoff = time.Millisecond
	e.retry.MaxBackoff = time.Millisecond

	_, err := e.Enrich(context.Background(), model.Prospect{OSMID: 4, Name: "Tabac Presse"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, browser.ErrLaunchFailure))
}

func TestEnrich_RetriesAfterLaunchFailure(t *testing.T) {
	t.Parallel()

	failing := &scriptedDriver{startErr: eris.New("chrome not found")}
	healthy := &scriptedDriver{present: map[string]bool{".ml-pane.with-searchbox": true}}

	var calls int
	e := NewEnricher(func() browser.Driver {
		calls++
		if calls == 1 {
			return failing
		}
		return healthy
	}, enrichConfig())
	e.retry.InitialBackoff = time.Millisecond
	e.retry.MaxBackoff = time.Millisecond

	result, err := e.Enrich(context.Background(), model.Prospect{OSMID: 5, Name: "Pharmacie Centrale"})
	require.NoError(t, err)
	assert.Equal(t, browser.ClassListing, result.Classification)
	assert.Equal(t, 2, calls, "a fresh driver per attempt")
}
