package upstream

import (
	"context"
	"log/slog"

	"github.com/cinascorp/Peyda/internal/constants"
	"github.com/cinascorp/Peyda/internal/flights"
	"github.com/ubuntu/decorate"
)

// milCacheKey is constant: the military feed takes no parameters.
const milCacheKey = "adsbmil"

type milResponse struct {
	Now *float64         `json:"now"`
	AC  []map[string]any `json:"ac"`
}

// FetchADSBMil returns the military aircraft currently reported by adsb.lol.
func (c *Client) FetchADSBMil(ctx context.Context) (snap Snapshot, err error) {
	defer decorate.OnError(&err, "could not fetch %s military aircraft", constants.SourceADSBMil)

	if s, ok := c.snapshots.Get(milCacheKey); ok {
		slog.Debug("Serving cached snapshot", "source", constants.SourceADSBMil, "key", milCacheKey)
		return s, nil
	}

	var resp milResponse
	if err := c.getJSON(ctx, constants.SourceADSBMil, c.conf.ADSBURL+"/v2/mil", nil, false, &resp); err != nil {
		return Snapshot{}, err
	}

	snap = Snapshot{Time: c.now().Unix(), Flights: make([]flights.Flight, 0, len(resp.AC))}
	if resp.Now != nil {
		snap.Time = epochSeconds(*resp.Now)
	}
	for i, a := range resp.AC {
		f, ok := flights.FromADSBAircraft(a, i)
		if !ok {
			continue
		}
		snap.Flights = append(snap.Flights, f)
	}

	slog.Info("Fetched snapshot", "source", constants.SourceADSBMil, "records", len(resp.AC), "flights", len(snap.Flights))
	c.snapshots.Put(milCacheKey, snap)
	return snap, nil
}
