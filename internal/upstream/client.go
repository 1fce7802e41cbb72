// Package upstream fetches aircraft data from the OpenSky and adsb.lol public APIs, caching every answer briefly.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cinascorp/Peyda/internal/cache"
	"github.com/cinascorp/Peyda/internal/constants"
	"github.com/cinascorp/Peyda/internal/flights"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config holds the upstream access configuration.
type Config struct {
	// Username and Password are passed to OpenSky as basic credentials, only when both are set.
	Username string
	Password string

	// Timeout bounds every upstream request.
	Timeout time.Duration
	// SnapshotTTL is how long a feed snapshot is served from cache.
	SnapshotTTL time.Duration

	// OpenSkyURL and ADSBURL override the API base URLs.
	OpenSkyURL string
	ADSBURL    string
}

// Snapshot is the normalized answer of one feed.
type Snapshot struct {
	// Time is the feed's own timestamp, in epoch seconds.
	Time    int64
	Flights []flights.Flight
}

// StatusError is returned when an upstream answers with an error status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.URL, e.StatusCode)
}

// Client owns the transport, credentials and caches used to reach the upstream feeds.
// It is safe for concurrent use.
type Client struct {
	http *http.Client
	conf Config
	now  func() time.Time

	snapshots *cache.Cache[Snapshot]
	tracks    *cache.Cache[[]flights.TrackPoint]

	fetches  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

type options struct {
	registry   prometheus.Registerer
	httpClient *http.Client
	now        func() time.Time
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithRegisterer registers the fetch and cache metrics in reg.
func WithRegisterer(reg prometheus.Registerer) Options {
	return func(o *options) {
		o.registry = reg
	}
}

// New creates a Client. Zero timeouts and URLs are replaced by their defaults.
// Its two caches each hold an expiry goroutine that is never stopped, so a Client should be created once and shared.
func New(conf Config, args ...Options) *Client {
	opts := options{now: time.Now}
	for _, opt := range args {
		opt(&opts)
	}

	if conf.Timeout <= 0 {
		conf.Timeout = constants.DefaultUpstreamTimeout
	}
	if conf.SnapshotTTL <= 0 {
		conf.SnapshotTTL = constants.DefaultSnapshotTTL
	}
	if conf.OpenSkyURL == "" {
		conf.OpenSkyURL = constants.DefaultOpenSkyURL
	}
	if conf.ADSBURL == "" {
		conf.ADSBURL = constants.DefaultADSBURL
	}
	conf.OpenSkyURL = strings.TrimRight(conf.OpenSkyURL, "/")
	conf.ADSBURL = strings.TrimRight(conf.ADSBURL, "/")

	if (conf.Username == "") != (conf.Password == "") {
		slog.Warn("Only one of the upstream username and password is set, requests will be anonymous")
	}

	httpClient := opts.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = conf.Timeout

	reg := opts.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	var cacheOpts []cache.Options
	if opts.registry != nil {
		cacheOpts = append(cacheOpts, cache.WithRegisterer(opts.registry))
	}

	return &Client{
		http: httpClient,
		conf: conf,
		now:  opts.now,

		snapshots: cache.New[Snapshot]("snapshots", constants.SnapshotCacheSize, conf.SnapshotTTL, cacheOpts...),
		tracks:    cache.New[[]flights.TrackPoint]("tracks", constants.TrackCacheSize, constants.TrackCacheTTL, cacheOpts...),

		fetches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "peyda_upstream_fetches_total",
				Help: "Tracks the number of requests sent to upstream feeds, by result.",
			}, []string{"source", "result"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "peyda_upstream_fetch_duration_seconds",
				Help:    "Tracks the latencies of requests sent to upstream feeds.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 9),
			}, []string{"source"},
		),
	}
}

func (c *Client) hasCredentials() bool {
	return c.conf.Username != "" && c.conf.Password != ""
}

// getJSON sends a GET request and decodes the JSON answer into v.
// Error statuses are returned as *StatusError.
func (c *Client) getJSON(ctx context.Context, source, endpoint string, query url.Values, withAuth bool, v any) (err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		c.fetches.WithLabelValues(source, result).Inc()
		c.duration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	if withAuth && c.hasCredentials() {
		req.SetBasicAuth(c.conf.Username, c.conf.Password)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return &StatusError{URL: endpoint, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}

// epochSeconds converts an upstream timestamp to epoch seconds, accepting milliseconds.
func epochSeconds(v float64) int64 {
	if v > 1e11 {
		return int64(v / 1000)
	}
	return int64(v)
}
