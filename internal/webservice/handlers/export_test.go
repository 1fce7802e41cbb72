package handlers

import "time"

// WithNow overrides the clock used by the health endpoint.
func WithNow(now func() time.Time) Options {
	return func(o *options) {
		o.now = now
	}
}
