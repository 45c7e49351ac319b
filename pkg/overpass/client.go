// Package overpass provides a client for the Overpass OpenStreetMap query API.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrSourceUnavailable indicates the Overpass endpoint was unreachable or
// returned a non-success status. Fatal to the discovery flow; callers decide
// whether to retry a whole run, the client never retries internally.
var ErrSourceUnavailable = eris.New("overpass: source unavailable")

// Element is a raw tagged OSM element as returned by Overpass.
type Element struct {
	ID   int64             `json:"id"`
	Type string            `json:"type"`
	Tags map[string]string `json:"tags"`
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
}

type queryResponse struct {
	Elements []Element `json:"elements"`
}

// Client defines the Overpass operations used by the discovery flow.
type Client interface {
	// FindBusinesses returns all shop/amenity/craft/office nodes inside the
	// named area. An area with no matches yields an empty slice, not an error.
	FindBusinesses(ctx context.Context, area string) ([]Element, error)
	// VerifyConnectivity issues a trivial probe query, used as a fail-fast
	// precondition before bulk queries.
	VerifyConnectivity(ctx context.Context) error
}

// Option configures the Overpass client.
type Option func(*httpClient)

// WithBaseURL sets a custom interpreter endpoint (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the HTTP request timeout. Overpass area queries can
// run for minutes on busy public instances.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a new Overpass client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://overpass-api.de/api/interpreter",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// businessQuery builds the Overpass QL body selecting business-tagged nodes
// within the named area.
func businessQuery(area string) string {
	return fmt.Sprintf(`[out:json];
area[name=%q]->.searchArea;
(
    node["shop"](area.searchArea);
    node["amenity"](area.searchArea);
    node["craft"](area.searchArea);
    node["office"](area.searchArea);
);
out body;`, area)
}

func (c *httpClient) FindBusinesses(ctx context.Context, area string) ([]Element, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(businessQuery(area)))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: create request")
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(ErrSourceUnavailable, "find businesses in %q: %v", area, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrapf(ErrSourceUnavailable, "find businesses in %q: status %d", area, resp.StatusCode)
	}

	var result queryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "overpass: unmarshal response")
	}

	zap.L().Debug("overpass query complete",
		zap.String("area", area),
		zap.Int("elements", len(result.Elements)),
	)

	return result.Elements, nil
}

func (c *httpClient) VerifyConnectivity(ctx context.Context) error {
	probeURL := c.baseURL + "?data=" + url.QueryEscape("[out:json];node(1);out;")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return eris.Wrap(err, "overpass: create probe request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(ErrSourceUnavailable, "connectivity probe: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return eris.Wrapf(ErrSourceUnavailable, "connectivity probe: status %d", resp.StatusCode)
	}

	return nil
}
