// Package daemon provides the flight aggregation service daemon.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/cinascorp/Peyda/internal/aggregator"
	"github.com/cinascorp/Peyda/internal/cli"
	"github.com/cinascorp/Peyda/internal/config"
	"github.com/cinascorp/Peyda/internal/constants"
	"github.com/cinascorp/Peyda/internal/metrics"
	"github.com/cinascorp/Peyda/internal/upstream"
	"github.com/cinascorp/Peyda/internal/webservice"
	"github.com/cinascorp/Peyda/internal/webservice/handlers"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	daemon *webservice.Server

	ready     chan struct{}
	readyOnce sync.Once
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool
	Daemon    daemonConfig
}

// daemonConfig holds the configuration of the served API and of its upstream access.
type daemonConfig struct {
	ListenHost  string
	ListenPort  int
	MetricsHost string
	MetricsPort int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxHeaderBytes int

	RateLimit float64
	RateBurst int

	AllowedOrigins    []string
	OriginsConfigPath string

	Upstream upstream.Config
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{ready: make(chan struct{})}

	a.cmd = &cobra.Command{
		Use:   constants.CmdName,
		Short: "Civil and military flight aggregation service",
		Long: "Aggregates the civil OpenSky feed and the adsb.lol military feed into a single deduplicated " +
			"flight list, served over HTTP together with per aircraft tracks.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetVerbosity(a.config.Verbosity) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			if err := applyLegacyEnv(a.viper, &a.config.Daemon); err != nil {
				return err
			}
			if err := a.config.Daemon.validate(); err != nil {
				return err
			}
			slog.Info("Got app config", "config", a.config.redacted())

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cmd.SilenceUsage = true

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}
	if err := bindDaemonFlags(a.viper, a.cmd); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	defaultConf := daemonConfig{
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   30 * time.Second,
		RequestTimeout: 20 * time.Second,
		MaxHeaderBytes: 1 << 13, // 8 KB

		ListenPort:  8000,
		MetricsPort: 2112,

		RateLimit: 5,
		RateBurst: 20,

		AllowedOrigins: []string{"*"},

		Upstream: upstream.Config{
			Timeout:     constants.DefaultUpstreamTimeout,
			SnapshotTTL: constants.DefaultSnapshotTTL,
			OpenSkyURL:  constants.DefaultOpenSkyURL,
			ADSBURL:     constants.DefaultADSBURL,
		},
	}

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "write logs as JSON")

	d := &app.config.Daemon
	cmd.Flags().StringVar(&d.ListenHost, "listen-host", defaultConf.ListenHost, "host to listen on")
	cmd.Flags().IntVar(&d.ListenPort, "listen-port", defaultConf.ListenPort, "port to listen on")
	cmd.Flags().StringVar(&d.MetricsHost, "metrics-host", defaultConf.MetricsHost, "host for the metrics endpoint")
	cmd.Flags().IntVar(&d.MetricsPort, "metrics-port", defaultConf.MetricsPort, "port for the metrics endpoint")

	cmd.Flags().DurationVar(&d.ReadTimeout, "read-timeout", defaultConf.ReadTimeout, "read timeout for HTTP server")
	cmd.Flags().DurationVar(&d.WriteTimeout, "write-timeout", defaultConf.WriteTimeout, "write timeout for HTTP server")
	cmd.Flags().DurationVar(&d.RequestTimeout, "request-timeout", defaultConf.RequestTimeout, "request timeout for HTTP server")
	cmd.Flags().IntVar(&d.MaxHeaderBytes, "max-header-bytes", defaultConf.MaxHeaderBytes, "maximum header bytes for HTTP server")

	cmd.Flags().Float64Var(&d.RateLimit, "rate-limit", defaultConf.RateLimit, "requests per second allowed per client IP, 0 to disable")
	cmd.Flags().IntVar(&d.RateBurst, "rate-burst", defaultConf.RateBurst, "burst of requests allowed per client IP")

	cmd.Flags().StringSliceVar(&d.AllowedOrigins, "allowed-origins", defaultConf.AllowedOrigins, "origins allowed by CORS, * for any")
	cmd.Flags().StringVar(&d.OriginsConfigPath, "origins-config", defaultConf.OriginsConfigPath, "path to a JSON or TOML file of allowed origins, reloaded on change")

	cmd.Flags().StringVar(&d.Upstream.Username, "opensky-username", defaultConf.Upstream.Username, "OpenSky account username")
	cmd.Flags().StringVar(&d.Upstream.Password, "opensky-password", defaultConf.Upstream.Password, "OpenSky account password")
	cmd.Flags().DurationVar(&d.Upstream.Timeout, "upstream-timeout", defaultConf.Upstream.Timeout, "timeout of each upstream request")
	cmd.Flags().DurationVar(&d.Upstream.SnapshotTTL, "cache-ttl", defaultConf.Upstream.SnapshotTTL, "how long feed snapshots are cached")
	cmd.Flags().StringVar(&d.Upstream.OpenSkyURL, "opensky-url", defaultConf.Upstream.OpenSkyURL, "OpenSky API base URL")
	cmd.Flags().StringVar(&d.Upstream.ADSBURL, "adsb-url", defaultConf.Upstream.ADSBURL, "adsb.lol API base URL")

	if err := cmd.MarkFlagFilename("origins-config", "json", "toml"); err != nil {
		// This should never happen.
		panic(fmt.Sprintf("failed to mark origins-config flag as filename: %v", err))
	}
}

// daemonFlagKeys maps configuration keys to the flags setting them.
var daemonFlagKeys = map[string]string{
	"daemon.listenhost":           "listen-host",
	"daemon.listenport":           "listen-port",
	"daemon.metricshost":          "metrics-host",
	"daemon.metricsport":          "metrics-port",
	"daemon.readtimeout":          "read-timeout",
	"daemon.writetimeout":         "write-timeout",
	"daemon.requesttimeout":       "request-timeout",
	"daemon.maxheaderbytes":       "max-header-bytes",
	"daemon.ratelimit":            "rate-limit",
	"daemon.rateburst":            "rate-burst",
	"daemon.allowedorigins":       "allowed-origins",
	"daemon.originsconfigpath":    "origins-config",
	"daemon.upstream.username":    "opensky-username",
	"daemon.upstream.password":    "opensky-password",
	"daemon.upstream.timeout":     "upstream-timeout",
	"daemon.upstream.snapshotttl": "cache-ttl",
	"daemon.upstream.openskyurl":  "opensky-url",
	"daemon.upstream.adsburl":     "adsb-url",
}

// bindDaemonFlags binds the local flags to their nested configuration keys.
func bindDaemonFlags(vip *viper.Viper, cmd *cobra.Command) error {
	for key, name := range daemonFlagKeys {
		if err := vip.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("could not bind flag %s: %w", name, err)
		}
	}
	return nil
}

// validate rejects upstream durations that cannot work. Every configuration source goes through it, legacy
// variables included, so that a zero is never silently replaced by a default.
func (d daemonConfig) validate() error {
	if d.Upstream.Timeout <= 0 {
		return fmt.Errorf("invalid upstream timeout %v: must be positive", d.Upstream.Timeout)
	}
	if d.Upstream.SnapshotTTL <= 0 {
		return fmt.Errorf("invalid snapshot cache TTL %v: must be positive", d.Upstream.SnapshotTTL)
	}
	return nil
}

// redacted returns a copy of the configuration safe to log.
func (c appConfig) redacted() appConfig {
	if c.Daemon.Upstream.Password != "" {
		c.Daemon.Upstream.Password = "REDACTED"
	}
	return c
}

// Run executes the command and associated process, returning an error if any.
func (a *App) Run() error {
	defer a.markReady()
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit gracefully shuts down the daemon.
func (a *App) Quit() {
	a.WaitReady()
	if a.daemon != nil {
		a.daemon.Quit(false)
	}
}

// WaitReady waits for the daemon to be ready, or for Run to have returned without starting it.
func (a *App) WaitReady() {
	<-a.ready
}

func (a *App) markReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) run() (err error) {
	dConf := a.config.Daemon
	if dConf.OriginsConfigPath != "" {
		dConf.OriginsConfigPath, err = filepath.Abs(dConf.OriginsConfigPath)
		if err != nil {
			a.markReady()
			return fmt.Errorf("failed to get absolute path for origins file: %v", err)
		}
	}

	reg := metrics.NewRegistry()
	client := upstream.New(dConf.Upstream, upstream.WithRegisterer(reg))
	api := handlers.New(aggregator.New(client), client)
	om := config.New(dConf.OriginsConfigPath, dConf.AllowedOrigins)

	a.daemon, err = webservice.New(context.Background(), om, api, reg, webservice.StaticConfig{
		ListenHost:     dConf.ListenHost,
		ListenPort:     dConf.ListenPort,
		MetricsHost:    dConf.MetricsHost,
		MetricsPort:    dConf.MetricsPort,
		ReadTimeout:    dConf.ReadTimeout,
		WriteTimeout:   dConf.WriteTimeout,
		RequestTimeout: dConf.RequestTimeout,
		MaxHeaderBytes: dConf.MaxHeaderBytes,
		RateLimit:      dConf.RateLimit,
		RateBurst:      dConf.RateBurst,
	})
	a.markReady()
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}

	return a.daemon.Run()
}
