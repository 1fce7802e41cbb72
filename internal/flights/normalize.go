package flights

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cinascorp/Peyda/internal/constants"
	"github.com/go-viper/mapstructure/v2"
)

// Positions of the fields we use in an OpenSky state vector.
const (
	stateICAO24        = 0
	stateCallsign      = 1
	stateOriginCountry = 2
	stateLongitude     = 5
	stateLatitude      = 6
	stateBaroAltitude  = 7
	stateVelocity      = 9
	stateTrueTrack     = 10
	stateGeoAltitude   = 13
	stateSquawk        = 14
	stateCategory      = 17
)

// FromOpenSkyState normalizes one positional OpenSky state vector.
//
// It returns false when the record has no usable latitude or longitude and must be skipped.
// index is the position of the record in the response, used only to name records without an address.
func FromOpenSkyState(state []any, index int) (Flight, bool) {
	lat, lon := floatAt(state, stateLatitude), floatAt(state, stateLongitude)
	if lat == nil || lon == nil {
		return Flight{}, false
	}

	icao24 := stringAt(state, stateICAO24)
	return Flight{
		ID:            flightID(constants.SourceOpenSky, icao24, index),
		ICAO24:        icao24,
		Callsign:      trimmed(stringAt(state, stateCallsign)),
		OriginCountry: stringAt(state, stateOriginCountry),
		Lat:           lat,
		Lon:           lon,
		AltBaro:       floatAt(state, stateBaroAltitude),
		AltGeom:       floatAt(state, stateGeoAltitude),
		Heading:       floatAt(state, stateTrueTrack),
		Speed:         floatAt(state, stateVelocity),
		Source:        constants.SourceOpenSky,
		Military:      false,
		Category:      trimmed(stringify(at(state, stateCategory))),
		Squawk:        stringAt(state, stateSquawk),
	}, true
}

// adsbAircraft is the subset of an adsb.lol aircraft object we read.
// Fields stay untyped so that a malformed value only blanks its own field: adsb.lol reports "ground" instead of
// a number for aircraft on the ground, and optional fields are not always numeric.
type adsbAircraft struct {
	Hex      any `mapstructure:"hex"`
	Flight   any `mapstructure:"flight"`
	Lat      any `mapstructure:"lat"`
	Lon      any `mapstructure:"lon"`
	BaroAlt  any `mapstructure:"baro_alt"`
	AltBaro  any `mapstructure:"alt_baro"`
	GeomAlt  any `mapstructure:"geom_alt"`
	AltGeom  any `mapstructure:"alt_geom"`
	Trak     any `mapstructure:"trak"`
	Track    any `mapstructure:"track"`
	GS       any `mapstructure:"gs"`
	Spd      any `mapstructure:"spd"`
	Category any `mapstructure:"category"`
	Squawk   any `mapstructure:"squawk"`
}

// FromADSBAircraft normalizes one keyed adsb.lol aircraft object.
//
// Fields known under two names take the first one present. Malformed optional fields are absent from the result.
// It returns false when the record has no usable latitude or longitude.
func FromADSBAircraft(raw map[string]any, index int) (Flight, bool) {
	var a adsbAircraft
	if err := DecodeWeak(raw, &a); err != nil {
		slog.Debug("Dropping undecodable adsb.lol record", "index", index, "err", err)
		return Flight{}, false
	}
	lat, lon := number(a.Lat), number(a.Lon)
	if lat == nil || lon == nil {
		return Flight{}, false
	}

	hex := text(a.Hex)
	return Flight{
		ID:       flightID(constants.SourceADSBMil, hex, index),
		ICAO24:   hex,
		Callsign: trimmed(text(a.Flight)),
		Lat:      lat,
		Lon:      lon,
		AltBaro:  firstFloat(number(a.BaroAlt), number(a.AltBaro)),
		AltGeom:  firstFloat(number(a.GeomAlt), number(a.AltGeom)),
		Heading:  firstFloat(number(a.Trak), number(a.Track)),
		Speed:    firstFloat(number(a.GS), number(a.Spd)),
		Source:   constants.SourceADSBMil,
		Military: true,
		Category: trimmed(text(a.Category)),
		Squawk:   trimmed(text(a.Squawk)),
	}, true
}

// DecodeWeak decodes a loosely typed JSON object into target, converting between numbers and strings as needed.
func DecodeWeak(raw map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %v", err)
	}
	return dec.Decode(raw)
}

func at(s []any, i int) any {
	if i < 0 || i >= len(s) {
		return nil
	}
	return s[i]
}

func stringAt(s []any, i int) *string {
	v, ok := at(s, i).(string)
	if !ok {
		return nil
	}
	return &v
}

func floatAt(s []any, i int) *float64 {
	return number(at(s, i))
}

// number returns v as a float when it is numeric or a numeric string, nil otherwise.
func number(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		f = p
	default:
		return nil
	}
	return &f
}

// text returns v as a string when it is a string or a number, nil otherwise.
func text(v any) *string {
	switch v.(type) {
	case string, float64, float32, int, int64:
		return stringify(v)
	default:
		return nil
	}
}

func stringify(v any) *string {
	var s string
	switch n := v.(type) {
	case nil:
		return nil
	case string:
		s = n
	case float64:
		s = strconv.FormatFloat(n, 'f', -1, 64)
	default:
		s = fmt.Sprint(n)
	}
	return &s
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
