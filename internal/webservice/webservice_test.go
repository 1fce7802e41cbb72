package webservice_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cinascorp/Peyda/internal/aggregator"
	"github.com/cinascorp/Peyda/internal/flights"
	"github.com/cinascorp/Peyda/internal/testutils"
	"github.com/cinascorp/Peyda/internal/webservice"
	"github.com/cinascorp/Peyda/internal/webservice/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultStaticConfig = webservice.StaticConfig{
	ListenHost:     "localhost",
	MetricsHost:    "localhost",
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   10 * time.Second,
	RequestTimeout: 3 * time.Second,
	MaxHeaderBytes: 1 << 13,
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		loadErr error

		wantErr bool
	}{
		"Valid": {},

		"Origins load error errors": {loadErr: assert.AnError, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			om := &testOriginsManager{origins: []string{"*"}, loadErr: tc.loadErr}
			s, err := webservice.New(t.Context(), om, newAPI(nil, nil), prometheus.NewRegistry(), defaultStaticConfig)
			if tc.wantErr {
				require.Error(t, err)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
			assert.Empty(t, s.Addr(), "no address before Run")
		})
	}
}

func TestServeMulti(t *testing.T) {
	t.Parallel()

	agg := &testAggregator{res: aggregator.Result{
		Now: 1700000001,
		Flights: []flights.Flight{{
			ID:       "opensky:abc123",
			ICAO24:   ptr("abc123"),
			Callsign: ptr("RCH123"),
			Lat:      ptr(10.0),
			Lon:      ptr(20.0),
			Source:   "opensky",
			Military: true,
		}},
		SourceCounts: map[string]int{"opensky": 1, "adsb.lol": 1, "merged": 1},
	}}
	s := createServerAndWaitReady(t, &testOriginsManager{origins: []string{"https://map.example.com"}}, newAPI(agg, nil), nil, defaultStaticConfig, false)

	tests := map[string]struct {
		method string
		path   string
		origin string

		wantStatus      int
		wantAllowOrigin string
		wantBodyPart    string
		wantGoldenBody  bool
	}{
		"Health":  {path: "/health", wantStatus: http.StatusOK, wantBodyPart: `"ok":true`},
		"Version": {path: "/version", wantStatus: http.StatusOK, wantGoldenBody: true},
		"Flights": {path: "/flights?bbox=1,2,3,4", wantStatus: http.StatusOK, wantGoldenBody: true},
		"Track":   {path: "/track/abc123", wantStatus: http.StatusOK, wantGoldenBody: true},
		"Allowed origin gets CORS headers": {
			path:            "/health",
			origin:          "https://map.example.com",
			wantStatus:      http.StatusOK,
			wantAllowOrigin: "https://map.example.com",
		},
		"Preflight is answered": {
			method:          http.MethodOptions,
			path:            "/flights",
			origin:          "https://map.example.com",
			wantStatus:      http.StatusNoContent,
			wantAllowOrigin: "https://map.example.com",
		},

		"Path NotFound":               {path: "/nope", wantStatus: http.StatusNotFound},
		"Track without id NotFound":   {path: "/track/", wantStatus: http.StatusNotFound},
		"Bad method MethodNotAllowed": {method: http.MethodPost, path: "/flights", wantStatus: http.StatusMethodNotAllowed},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if tc.method == "" {
				tc.method = http.MethodGet
			}

			req, err := http.NewRequest(tc.method, "http://"+s.Addr()+tc.path, nil)
			require.NoError(t, err, "Setup: failed to create request")
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, tc.wantStatus, resp.StatusCode, "unexpected status")
			assert.Equal(t, tc.wantAllowOrigin, resp.Header.Get("Access-Control-Allow-Origin"), "unexpected allowed origin")
			if tc.wantBodyPart != "" {
				assert.Contains(t, string(body), tc.wantBodyPart)
			}
			if tc.wantGoldenBody {
				want := testutils.LoadWithUpdateFromGolden(t, string(body))
				assert.Equal(t, want, string(body), "Response body should match golden file")
			}
		})
	}
}

func TestRunSingle(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		sc  func(webservice.StaticConfig) webservice.StaticConfig
		om  testOriginsManager
		agg testAggregator

		path string

		wantStatus int
		wantErr    bool
	}{
		"Flights": {path: "/flights"},
		"Upstream failure is a bad gateway": {
			agg:        testAggregator{err: assert.AnError},
			path:       "/flights",
			wantStatus: http.StatusBadGateway,
		},
		"Slow upstream times out": {
			sc: func(sc webservice.StaticConfig) webservice.StaticConfig {
				sc.RequestTimeout = 100 * time.Millisecond
				return sc
			},
			agg:        testAggregator{delay: time.Second},
			path:       "/flights",
			wantStatus: http.StatusServiceUnavailable,
		},
		"Rate limited": {
			sc: func(sc webservice.StaticConfig) webservice.StaticConfig {
				sc.RateLimit = 0.001
				sc.RateBurst = 1
				return sc
			},
			// Waiting for /version consumes the only token.
			path:       "/health",
			wantStatus: http.StatusTooManyRequests,
		},

		// Bad server configurations
		"Bad port": {
			sc: func(sc webservice.StaticConfig) webservice.StaticConfig {
				sc.ListenPort = -1
				return sc
			},
			wantErr: true,
		},
		"Bad metrics port": {
			sc: func(sc webservice.StaticConfig) webservice.StaticConfig {
				sc.MetricsPort = -1
				return sc
			},
			wantErr: true,
		},
		"New watcher error": {
			om:      testOriginsManager{newWatcherErr: assert.AnError},
			wantErr: true,
		},
		"Watch error": {
			om:      testOriginsManager{watchErr: assert.AnError},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			sc := defaultStaticConfig
			if tc.sc != nil {
				sc = tc.sc(sc)
			}
			if tc.wantStatus == 0 {
				tc.wantStatus = http.StatusOK
			}

			s := createServerAndWaitReady(t, &tc.om, newAPI(&tc.agg, nil), nil, sc, tc.wantErr)
			if tc.wantErr {
				return
			}

			resp, err := http.Get("http://" + s.Addr() + tc.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.wantStatus, resp.StatusCode, "unexpected status")
		})
	}
}

func TestMetricsAreServed(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s := createServerAndWaitReady(t, &testOriginsManager{}, newAPI(nil, nil), reg, defaultStaticConfig, false)

	resp, err := http.Get("http://" + s.Addr() + "/flights")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get("http://" + s.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `http_requests_total{code="200",handler="flights",method="get"} 1`)
	assert.Contains(t, string(body), `handler="version"`, "readiness checks are counted too")
}

func TestQuit(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		force bool
	}{
		"Graceful": {},
		"Forced":   {force: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, runErr := startServer(t, &testOriginsManager{}, newAPI(nil, nil), nil, defaultStaticConfig)
			host, port := splitAddr(t, s.Addr())
			mHost, mPort := splitAddr(t, s.MetricsAddr())

			s.Quit(tc.force)

			select {
			case err := <-runErr:
				if !tc.force {
					require.NoError(t, err, "graceful quit should not fail Run")
				}
			case <-time.After(3 * time.Second):
				require.Fail(t, "Run should return after Quit")
			}
			testutils.WaitForPortClosed(t, host, port, 3*time.Second)
			testutils.WaitForPortClosed(t, mHost, mPort, 3*time.Second)
		})
	}
}

func TestRunAfterQuitErrors(t *testing.T) {
	t.Parallel()

	s, runErr := startServer(t, &testOriginsManager{}, newAPI(nil, nil), nil, defaultStaticConfig)
	host, port := splitAddr(t, s.Addr())

	s.Quit(false)
	<-runErr
	testutils.WaitForPortClosed(t, host, port, 3*time.Second)

	secondRun := make(chan error, 1)
	go func() {
		defer close(secondRun)
		secondRun <- s.Run()
	}()

	select {
	case err := <-secondRun:
		require.Error(t, err, "Server should have errored after second run")
	case <-time.After(time.Second):
		require.Fail(t, "Server should have errored after second run")
	}
	require.False(t, testutils.PortOpen(t, host, port), "Server should not be running after second (failed) run")
}

type testOriginsManager struct {
	origins       []string
	loadErr       error
	newWatcherErr error
	watchErr      error
}

func (m *testOriginsManager) Load() error {
	return m.loadErr
}

func (m *testOriginsManager) Watch(ctx context.Context) (<-chan struct{}, <-chan error, error) {
	if m.newWatcherErr != nil {
		return nil, nil, m.newWatcherErr
	}

	changes := make(chan struct{})
	errs := make(chan error, 1)
	go func() {
		defer close(changes)
		defer close(errs)

		if m.watchErr != nil {
			errs <- m.watchErr
			return
		}
		<-ctx.Done()
	}()

	return changes, errs, nil
}

func (m *testOriginsManager) AllowedOrigins() []string {
	return m.origins
}

type testAggregator struct {
	res   aggregator.Result
	err   error
	delay time.Duration
}

func (a *testAggregator) Aggregate(ctx context.Context, _ string) (aggregator.Result, error) {
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return aggregator.Result{}, ctx.Err()
	}
	return a.res, a.err
}

type testTracks struct{}

func (testTracks) FetchTrack(context.Context, string) []flights.TrackPoint {
	return nil
}

func ptr[T any](v T) *T { return &v }

func newAPI(agg handlers.Aggregator, tracks handlers.TrackFetcher) *handlers.API {
	if agg == nil {
		agg = &testAggregator{}
	}
	if tracks == nil {
		tracks = testTracks{}
	}
	return handlers.New(agg, tracks)
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()

	host, p, err := net.SplitHostPort(addr)
	require.NoError(t, err, "Setup: bad address %q", addr)
	port, err := strconv.Atoi(p)
	require.NoError(t, err, "Setup: bad port in %q", addr)
	return host, port
}

var muStart sync.Mutex

// startServer creates a server and runs it in the background, waiting for it to listen.
func startServer(t *testing.T, om *testOriginsManager, api *handlers.API, reg *prometheus.Registry, sc webservice.StaticConfig) (*webservice.Server, <-chan error) {
	t.Helper()

	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s, err := webservice.New(t.Context(), om, api, reg, sc)
	require.NoError(t, err, "Setup: failed to create server")
	t.Cleanup(func() { s.Quit(true) })

	runErr := make(chan error, 1)
	go func() {
		defer close(runErr)
		runErr <- s.Run()
	}()

	deadline := time.Now().Add(3 * time.Second)
	for s.Addr() == "" && time.Now().Before(deadline) {
		select {
		case err := <-runErr:
			return s, replay(err)
		case <-time.After(10 * time.Millisecond):
		}
	}
	return s, runErr
}

// replay returns a closed channel holding err.
func replay(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	close(ch)
	return ch
}

// createServerAndWaitReady starts a server and waits for /version to answer.
// If expectErr is true, it expects Run to fail before serving instead.
func createServerAndWaitReady(t *testing.T, om *testOriginsManager, api *handlers.API, reg *prometheus.Registry, sc webservice.StaticConfig, expectErr bool) *webservice.Server {
	t.Helper()

	muStart.Lock()
	defer muStart.Unlock()

	s, runErr := startServer(t, om, api, reg, sc)

	select {
	case err := <-runErr:
		if expectErr {
			require.Error(t, err, "Run should fail")
			return s
		}
		require.NoError(t, err, "Run should not fail")
	case <-time.After(500 * time.Millisecond):
		require.False(t, expectErr, "Expected Run to fail with error, but it did not")
	}

	require.NotEmpty(t, s.Addr(), "Server should be listening")
	testutils.WaitForStatus(t, "http://"+s.Addr()+"/version", http.StatusOK, 5*time.Second)
	require.NotEmpty(t, s.MetricsAddr(), "Metrics should be listening")

	return s
}
