package daemon

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cinascorp/Peyda/internal/config"
	"github.com/spf13/viper"
)

// Unprefixed environment variables kept for deployments of the previous backend.
const (
	envOpenSkyUsername = "OPEN_SKY_USERNAME"
	envOpenSkyPassword = "OPEN_SKY_PASSWORD"
	envRequestTimeout  = "REQUEST_TIMEOUT_SECONDS"
	envCacheTTL        = "CACHE_TTL_SECONDS"
	envCORSOrigins     = "BACKEND_CORS_ORIGINS"
)

// applyLegacyEnv fills d from the legacy variables.
//
// A legacy variable only applies to a key not set by a given flag, a prefixed variable or the configuration
// file: viper does not count flag defaults as set.
func applyLegacyEnv(vip *viper.Viper, d *daemonConfig) error {
	if v, ok := os.LookupEnv(envOpenSkyUsername); ok && !vip.IsSet("daemon.upstream.username") {
		d.Upstream.Username = v
	}
	if v, ok := os.LookupEnv(envOpenSkyPassword); ok && !vip.IsSet("daemon.upstream.password") {
		d.Upstream.Password = v
	}

	if v, ok := os.LookupEnv(envRequestTimeout); ok && !vip.IsSet("daemon.upstream.timeout") {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs <= 0 {
			return fmt.Errorf("invalid %s %q: expected a positive number of seconds", envRequestTimeout, v)
		}
		d.Upstream.Timeout = time.Duration(secs * float64(time.Second))
	}

	if v, ok := os.LookupEnv(envCacheTTL); ok && !vip.IsSet("daemon.upstream.snapshotttl") {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return fmt.Errorf("invalid %s %q: expected a positive integer number of seconds", envCacheTTL, v)
		}
		d.Upstream.SnapshotTTL = time.Duration(secs) * time.Second
	}

	if v, ok := os.LookupEnv(envCORSOrigins); ok && !vip.IsSet("daemon.allowedorigins") {
		d.AllowedOrigins = config.ParseOrigins(v)
	}

	return nil
}
