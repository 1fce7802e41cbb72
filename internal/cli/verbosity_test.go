package cli_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/cinascorp/Peyda/internal/cli"
	"github.com/cinascorp/Peyda/internal/constants"
	"github.com/stretchr/testify/assert"
)

// hacky way to allow us to reset the default logger.
var defaultLogger = *slog.Default()

func TestSetVerbosity(t *testing.T) {
	tests := map[string]struct {
		pattern []int
	}{
		"info":            {pattern: []int{1}},
		"none":            {pattern: []int{0}},
		"info none":       {pattern: []int{1, 0}},
		"info debug":      {pattern: []int{1, 2}},
		"info debug none": {pattern: []int{1, 2, 0}},
		"debug":           {pattern: []int{2}},
		"very verbose":    {pattern: []int{5}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			slog.SetDefault(&defaultLogger)

			for _, p := range tc.pattern {
				cli.SetVerbosity(p)

				want := slog.LevelDebug
				switch p {
				case 0:
					want = constants.DefaultLogLevel
				case 1:
					want = slog.LevelInfo
				}
				assert.True(t, slog.Default().Enabled(context.Background(), want), "level %v should be enabled", want)
				assert.False(t, slog.Default().Enabled(context.Background(), want-1), "level below %v should be disabled", want)
			}
		})
	}
}

func TestSetSlog(t *testing.T) {
	tests := map[string]struct {
		level   int
		jsonLog bool
	}{
		"info":       {level: 1},
		"none":       {level: 0},
		"info json":  {level: 1, jsonLog: true},
		"debug json": {level: 2, jsonLog: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			slog.SetDefault(&defaultLogger)
			cli.SetSlog(tc.level, tc.jsonLog)

			_, isJSON := slog.Default().Handler().(*slog.JSONHandler)
			assert.Equal(t, tc.jsonLog, isJSON, "unexpected log handler type")
		})
	}
	slog.SetDefault(&defaultLogger)
}
