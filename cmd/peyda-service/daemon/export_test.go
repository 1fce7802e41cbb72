package daemon

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type (
	AppConfig    = appConfig
	DaemonConfig = daemonConfig
)

// Config returns the configuration of the app.
func (a *App) Config() AppConfig {
	return a.config
}

// Addr returns the address the API listens on, once ready.
func (a *App) Addr() string {
	if a.daemon == nil {
		return ""
	}
	return a.daemon.Addr()
}

// NewForTests creates a new App instance for testing purposes, reading conf from a generated file.
func NewForTests(t *testing.T, conf *AppConfig, args ...string) *App {
	t.Helper()

	p := GenerateTestConfig(t, conf)
	argsWithConf := append([]string{"--config", p}, args...)

	a, err := New()
	require.NoError(t, err, "Setup: failed to create app")
	a.cmd.SetArgs(argsWithConf)
	return a
}

// GenerateTestConfig generates a temporary config file for testing.
// Unset listeners use ephemeral localhost ports and unset timeouts get short usable values.
func GenerateTestConfig(t *testing.T, origConf *AppConfig) string {
	t.Helper()

	var conf appConfig
	if origConf != nil {
		conf = *origConf
	}

	if conf.Verbosity == 0 {
		conf.Verbosity = 2
	}
	d := &conf.Daemon
	if d.ListenHost == "" {
		d.ListenHost = "localhost"
	}
	if d.MetricsHost == "" {
		d.MetricsHost = "localhost"
	}
	if d.ReadTimeout == 0 {
		d.ReadTimeout = 5 * time.Second
	}
	if d.WriteTimeout == 0 {
		d.WriteTimeout = 10 * time.Second
	}
	if d.RequestTimeout == 0 {
		d.RequestTimeout = 5 * time.Second
	}
	if d.MaxHeaderBytes == 0 {
		d.MaxHeaderBytes = 1 << 13
	}
	if d.Upstream.Timeout == 0 {
		d.Upstream.Timeout = 2 * time.Second
	}
	if d.Upstream.SnapshotTTL == 0 {
		d.Upstream.SnapshotTTL = time.Second
	}

	b, err := yaml.Marshal(conf)
	require.NoError(t, err, "Setup: failed to marshal config for tests")

	confPath := filepath.Join(t.TempDir(), "testconfig.yaml")
	require.NoError(t, os.WriteFile(confPath, b, 0600), "Setup: failed to write config for tests")

	return confPath
}

// SetArgs set some arguments on root command for tests.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}

// SetSilenceUsage set the SilenceUsage flag on root command for tests.
func (a *App) SetSilenceUsage(silence bool) {
	a.cmd.SilenceUsage = silence
}

// SetOut redirects the command output for tests.
func (a *App) SetOut(w io.Writer) {
	a.cmd.SetOut(w)
}
