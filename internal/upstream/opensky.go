package upstream

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/cinascorp/Peyda/internal/constants"
	"github.com/cinascorp/Peyda/internal/flights"
	"github.com/ubuntu/decorate"
)

type statesResponse struct {
	Time   *float64 `json:"time"`
	States [][]any  `json:"states"`
}

// FetchOpenSky returns the civil state vectors, restricted to bbox when it parses.
//
// A malformed bbox is ignored and the whole feed is fetched. Answers are cached per bbox string for the
// snapshot TTL. Records without a position are dropped.
func (c *Client) FetchOpenSky(ctx context.Context, bbox string) (snap Snapshot, err error) {
	defer decorate.OnError(&err, "could not fetch %s states", constants.SourceOpenSky)

	key := constants.SourceOpenSky + ":" + bbox
	if s, ok := c.snapshots.Get(key); ok {
		slog.Debug("Serving cached snapshot", "source", constants.SourceOpenSky, "key", key)
		return s, nil
	}

	var query url.Values
	if b, ok := ParseBBox(bbox); ok {
		query = b.Query()
	} else if bbox != "" {
		slog.Info("Ignoring malformed bounding box", "bbox", bbox)
	}

	var resp statesResponse
	if err := c.getJSON(ctx, constants.SourceOpenSky, c.conf.OpenSkyURL+"/states/all", query, true, &resp); err != nil {
		return Snapshot{}, err
	}

	snap = Snapshot{Time: c.now().Unix(), Flights: make([]flights.Flight, 0, len(resp.States))}
	if resp.Time != nil {
		snap.Time = epochSeconds(*resp.Time)
	}
	for i, s := range resp.States {
		f, ok := flights.FromOpenSkyState(s, i)
		if !ok {
			continue
		}
		snap.Flights = append(snap.Flights, f)
	}

	slog.Info("Fetched snapshot", "source", constants.SourceOpenSky, "records", len(resp.States), "flights", len(snap.Flights))
	c.snapshots.Put(key, snap)
	return snap, nil
}
