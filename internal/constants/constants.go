// Package constants is responsible for defining the constants used in the service.
package constants

import (
	"log/slog"
	"time"
)

var (
	// Version is the version of the service.
	Version = "Dev"
)

const (
	// CmdName is the name of the service command.
	CmdName = "peyda-service"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn
)

// Upstream source names. They are used as Flight.Source, as id prefixes and as source_counts keys.
const (
	// SourceOpenSky is the civil flight-state feed.
	SourceOpenSky = "opensky"

	// SourceADSBMil is the military aircraft feed.
	SourceADSBMil = "adsb.lol"

	// MergedCountKey is the source_counts key holding the post merge flight count.
	MergedCountKey = "merged"
)

// Upstream endpoints.
const (
	// DefaultOpenSkyURL is the base URL of the OpenSky REST API.
	DefaultOpenSkyURL = "https://opensky-network.org/api"

	// DefaultADSBURL is the base URL of the adsb.lol API.
	DefaultADSBURL = "https://api.adsb.lol"
)

// Cache sizing.
const (
	// SnapshotCacheSize bounds the number of cached upstream snapshots.
	SnapshotCacheSize = 32

	// TrackCacheSize bounds the number of cached aircraft tracks.
	TrackCacheSize = 128

	// TrackCacheTTL is the fixed lifetime of a cached track.
	TrackCacheTTL = 60 * time.Second

	// DefaultSnapshotTTL is the default lifetime of a cached upstream snapshot.
	DefaultSnapshotTTL = 5 * time.Second

	// DefaultUpstreamTimeout is applied to every upstream request.
	DefaultUpstreamTimeout = 8 * time.Second
)
