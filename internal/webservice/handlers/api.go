package handlers

import (
	"log/slog"
	"net/http"

	"github.com/cinascorp/Peyda/internal/flights"
)

type healthResponse struct {
	OK   bool  `json:"ok"`
	Time int64 `json:"time"`
}

type flightsResponse struct {
	Now          int64            `json:"now"`
	SourceCounts map[string]int   `json:"source_counts"`
	Flights      []flights.Flight `json:"flights"`
}

type trackResponse struct {
	ICAO24 string               `json:"icao24"`
	Points []flights.TrackPoint `json:"points"`
}

// Health reports the service is up, with the current time.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{OK: true, Time: a.now().Unix()}, "")
}

// Flights serves the merged snapshot of both feeds, optionally restricted by the bbox query parameter.
// An upstream failure is answered with 502.
func (a *API) Flights(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	bbox := r.URL.Query().Get("bbox")
	slog.Info("Request recv'd", "req_id", reqID, "path", r.URL.Path, "bbox", bbox)

	res, err := a.agg.Aggregate(r.Context(), bbox)
	if err != nil {
		slog.Error("Failed to aggregate flights", "req_id", reqID, "err", err)
		http.Error(w, "Upstream feeds unavailable", http.StatusBadGateway)
		return
	}

	fl := res.Flights
	if fl == nil {
		fl = []flights.Flight{}
	}
	writeJSON(w, http.StatusOK, flightsResponse{
		Now:          res.Now,
		SourceCounts: res.SourceCounts,
		Flights:      fl,
	}, reqID)
}

// Track serves the recent positions of the aircraft named in the path. Unknown or failing tracks are empty.
func (a *API) Track(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w)
	icao24 := r.PathValue("icao24")
	slog.Info("Request recv'd", "req_id", reqID, "path", r.URL.Path, "icao24", icao24)

	pts := a.tracks.FetchTrack(r.Context(), icao24)
	if pts == nil {
		pts = []flights.TrackPoint{}
	}
	writeJSON(w, http.StatusOK, trackResponse{ICAO24: icao24, Points: pts}, reqID)
}
