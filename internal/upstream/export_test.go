package upstream

import (
	"net/http"
	"time"
)

// WithNow overrides the wall clock used for missing upstream timestamps and track anchors.
func WithNow(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(c *http.Client) Options {
	return func(o *options) {
		o.httpClient = c
	}
}

// Conf returns the effective configuration of the client.
func (c *Client) Conf() Config {
	return c.conf
}

// EpochSeconds exposes epochSeconds for tests.
var EpochSeconds = epochSeconds
