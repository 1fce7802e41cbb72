// Package flights holds the common aircraft record shape, the per-feed normalizers and the merge policy.
package flights

import "fmt"

// Flight is a single aircraft position, normalized from one of the upstream feeds.
//
// Optional fields are nil when the upstream did not report them.
type Flight struct {
	ID            string   `json:"id"`
	ICAO24        *string  `json:"icao24"`
	Callsign      *string  `json:"callsign"`
	OriginCountry *string  `json:"origin_country"`
	Lat           *float64 `json:"lat"`
	Lon           *float64 `json:"lon"`
	AltBaro       *float64 `json:"alt_baro"`
	AltGeom       *float64 `json:"alt_geom"`
	Heading       *float64 `json:"heading"`
	Speed         *float64 `json:"speed"`
	Source        string   `json:"source"`
	Military      bool     `json:"military"`
	Category      *string  `json:"category"`
	Squawk        *string  `json:"squawk"`
}

// Key returns the identity used to join records across feeds: the ICAO24 address, or the id when there is none.
func (f Flight) Key() string {
	if f.ICAO24 != nil && *f.ICAO24 != "" {
		return *f.ICAO24
	}
	return f.ID
}

// TrackPoint is one historical position of an aircraft.
type TrackPoint struct {
	Lat  float64  `json:"lat"`
	Lon  float64  `json:"lon"`
	Alt  *float64 `json:"alt"`
	Time *int64   `json:"time"`
}

// flightID builds "<source>:<icao24>", falling back to the record position when the address is unknown.
func flightID(source string, icao24 *string, index int) string {
	if icao24 != nil && *icao24 != "" {
		return source + ":" + *icao24
	}
	return fmt.Sprintf("%s:#%d", source, index)
}
