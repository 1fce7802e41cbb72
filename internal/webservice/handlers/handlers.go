// Package handlers provides the HTTP handlers of the flight API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cinascorp/Peyda/internal/aggregator"
	"github.com/cinascorp/Peyda/internal/flights"
	"github.com/google/uuid"
)

// Aggregator builds the merged view of both feeds.
type Aggregator interface {
	Aggregate(ctx context.Context, bbox string) (aggregator.Result, error)
}

// TrackFetcher returns the recent positions of an aircraft. It never fails.
type TrackFetcher interface {
	FetchTrack(ctx context.Context, icao24 string) []flights.TrackPoint
}

// API serves the flight endpoints.
type API struct {
	agg    Aggregator
	tracks TrackFetcher
	now    func() time.Time
}

type options struct {
	now func() time.Time
}

// Options represents an optional function to override API default values.
type Options func(*options)

// New creates the API handlers on top of agg and tracks.
func New(agg Aggregator, tracks TrackFetcher, args ...Options) *API {
	opts := options{now: time.Now}
	for _, opt := range args {
		opt(&opts)
	}

	return &API{
		agg:    agg,
		tracks: tracks,
		now:    opts.now,
	}
}

// requestID tags the request for the logs and echoes the tag to the client.
func requestID(w http.ResponseWriter) string {
	reqID := uuid.New().String()
	w.Header().Set("X-Request-ID", reqID)
	return reqID
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any, reqID string) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", "req_id", reqID, "err", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(b); err != nil {
		slog.Debug("Failed to write response", "req_id", reqID, "err", err)
	}
}
