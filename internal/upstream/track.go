package upstream

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/cinascorp/Peyda/internal/flights"
)

const trackSource = "opensky-tracks"

type trackResponse struct {
	Path []any `json:"path"`
}

// trackPointObject is the keyed form of a track point.
type trackPointObject struct {
	Timestamp    *float64 `mapstructure:"timestamp"`
	Time         *float64 `mapstructure:"time"`
	Lat          *float64 `mapstructure:"lat"`
	Lon          *float64 `mapstructure:"lon"`
	BaroAltitude *float64 `mapstructure:"baro_altitude"`
}

// FetchTrack returns the recent positions of one aircraft, oldest first.
//
// It never fails: any upstream or decoding error yields an empty track, which is not cached.
func (c *Client) FetchTrack(ctx context.Context, icao24 string) []flights.TrackPoint {
	icao24 = strings.ToLower(strings.TrimSpace(icao24))
	key := "track:" + icao24
	if pts, ok := c.tracks.Get(key); ok {
		slog.Debug("Serving cached track", "icao24", icao24)
		return pts
	}

	query := url.Values{
		"icao24": {icao24},
		"time":   {strconv.FormatInt(c.now().Unix(), 10)},
	}

	var resp trackResponse
	if err := c.getJSON(ctx, trackSource, c.conf.OpenSkyURL+"/tracks/all", query, true, &resp); err != nil {
		slog.Warn("Track unavailable, returning an empty one", "icao24", icao24, "err", err)
		return []flights.TrackPoint{}
	}

	pts := make([]flights.TrackPoint, 0, len(resp.Path))
	for _, raw := range resp.Path {
		p, ok := parseTrackPoint(raw)
		if !ok {
			continue
		}
		pts = append(pts, p)
	}

	slog.Info("Fetched track", "icao24", icao24, "points", len(pts))
	c.tracks.Put(key, pts)
	return pts
}

// parseTrackPoint accepts both OpenSky's positional [time, lat, lon, baro_altitude, ...] form and a keyed object.
func parseTrackPoint(raw any) (flights.TrackPoint, bool) {
	var o trackPointObject
	switch v := raw.(type) {
	case []any:
		o.Time = pointNumber(v, 0)
		o.Lat = pointNumber(v, 1)
		o.Lon = pointNumber(v, 2)
		o.BaroAltitude = pointNumber(v, 3)
	case map[string]any:
		if err := flights.DecodeWeak(v, &o); err != nil {
			return flights.TrackPoint{}, false
		}
	default:
		return flights.TrackPoint{}, false
	}

	if o.Lat == nil || o.Lon == nil {
		return flights.TrackPoint{}, false
	}

	p := flights.TrackPoint{Lat: *o.Lat, Lon: *o.Lon, Alt: o.BaroAltitude}
	ts := o.Timestamp
	if ts == nil {
		ts = o.Time
	}
	if ts != nil {
		t := int64(*ts)
		p.Time = &t
	}
	return p, true
}

func pointNumber(v []any, i int) *float64 {
	if i >= len(v) {
		return nil
	}
	f, ok := v[i].(float64)
	if !ok {
		return nil
	}
	return &f
}
