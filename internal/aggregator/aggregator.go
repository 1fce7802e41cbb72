// Package aggregator combines the civil and military feeds into one deduplicated snapshot.
package aggregator

import (
	"context"
	"log/slog"

	"github.com/cinascorp/Peyda/internal/constants"
	"github.com/cinascorp/Peyda/internal/flights"
	"github.com/cinascorp/Peyda/internal/upstream"
	"golang.org/x/sync/errgroup"
)

// Sources fetches the two feed snapshots.
type Sources interface {
	FetchOpenSky(ctx context.Context, bbox string) (upstream.Snapshot, error)
	FetchADSBMil(ctx context.Context) (upstream.Snapshot, error)
}

// Result is one aggregated view of the sky.
type Result struct {
	// Now is the newest of the two feed timestamps, in epoch seconds.
	Now     int64
	Flights []flights.Flight
	// SourceCounts holds the number of flights of each feed, and the merged total.
	SourceCounts map[string]int
}

// Aggregator merges feed snapshots.
type Aggregator struct {
	src Sources
}

// New returns an Aggregator reading from src.
func New(src Sources) *Aggregator {
	return &Aggregator{src: src}
}

// Aggregate fetches both feeds concurrently and merges them by aircraft address.
//
// bbox only restricts the civil feed. If either fetch fails, the whole aggregation fails and no partial
// result is returned.
func (a *Aggregator) Aggregate(ctx context.Context, bbox string) (Result, error) {
	var civil, mil upstream.Snapshot

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		civil, err = a.src.FetchOpenSky(gCtx, bbox)
		return err
	})
	g.Go(func() (err error) {
		mil, err = a.src.FetchADSBMil(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	merged := flights.MergeSources(civil.Flights, mil.Flights)
	r := Result{
		Now:     max(civil.Time, mil.Time),
		Flights: merged,
		SourceCounts: map[string]int{
			constants.SourceOpenSky:  len(civil.Flights),
			constants.SourceADSBMil:  len(mil.Flights),
			constants.MergedCountKey: len(merged),
		},
	}

	slog.Debug("Aggregated feeds", "bbox", bbox, "civil", len(civil.Flights), "military", len(mil.Flights), "merged", len(merged))
	return r, nil
}
