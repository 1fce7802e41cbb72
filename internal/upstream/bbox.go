package upstream

import (
	"net/url"
	"strconv"
	"strings"
)

// BBox is a geographic rectangle, in degrees.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
//
// It returns false for an empty or malformed string, which callers treat as "no filter".
func ParseBBox(s string) (BBox, bool) {
	if s == "" {
		return BBox{}, false
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, false
	}

	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, false
		}
		vals[i] = v
	}

	return BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}, true
}

// Query returns the OpenSky lamin/lamax/lomin/lomax parameters for the box.
func (b BBox) Query() url.Values {
	format := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	return url.Values{
		"lamin": {format(b.MinLat)},
		"lamax": {format(b.MaxLat)},
		"lomin": {format(b.MinLon)},
		"lomax": {format(b.MaxLon)},
	}
}
