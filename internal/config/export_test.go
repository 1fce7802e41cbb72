package config

import "log/slog"

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}
