// Package config loads the CORS allowed origins from a JSON or TOML file and reloads them when the file changes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// Origins is the content of the origins file.
//
// Files with a .toml extension are decoded as TOML, anything else as JSON.
type Origins struct {
	AllowedOrigins []string `json:"allowedOrigins" toml:"allowedOrigins"`
}

// Manager serves the current allowed origins.
//
// With an empty path, it serves the fallback origins given at creation and never touches the filesystem.
type Manager struct {
	path     string
	fallback []string

	mu      sync.RWMutex
	origins []string

	log *slog.Logger
}

type options struct {
	logger *slog.Logger
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// New creates a Manager reading path, serving fallback until the file is loaded.
func New(path string, fallback []string, args ...Options) *Manager {
	opts := options{
		logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Manager{
		path:     path,
		fallback: normalize(fallback),
		origins:  normalize(fallback),
		log:      opts.logger,
	}
}

// Load reads the origins file and replaces the served origins.
// On error, the previously served origins are kept.
func (m *Manager) Load() error {
	if m.path == "" {
		return nil
	}

	f, err := os.Open(m.path)
	if err != nil {
		return fmt.Errorf("opening origins file: %w", err)
	}
	defer f.Close()

	var o Origins
	if strings.EqualFold(filepath.Ext(m.path), ".toml") {
		if _, err := toml.NewDecoder(f).Decode(&o); err != nil {
			return fmt.Errorf("decoding origins TOML: %w", err)
		}
	} else if err := json.NewDecoder(f).Decode(&o); err != nil {
		return fmt.Errorf("decoding origins JSON: %w", err)
	}

	origins := normalize(o.AllowedOrigins)
	m.mu.Lock()
	m.origins = origins
	m.mu.Unlock()

	m.log.Info("Allowed origins loaded", "path", m.path, "origins", origins)
	return nil
}

// Watch reloads the origins whenever the file is written, created or renamed over, until ctx is done.
//
// It returns two channels: one signaled after each successful reload and one for unrecoverable watcher errors.
// Without a path there is nothing to watch and both channels only close once ctx is done.
func (m *Manager) Watch(ctx context.Context) (changes <-chan struct{}, errors <-chan error, err error) {
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	if m.path == "" {
		go func() {
			defer close(changesCh)
			defer close(errorsCh)
			<-ctx.Done()
		}()
		return changesCh, errorsCh, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	// Watching the directory catches editors replacing the file.
	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", dir, err)
	}
	m.log.Info("Watching origins directory", "dir", dir)

	if err := m.Load(); err != nil {
		m.log.Warn("Error loading initial origins", "err", err)
	}

	target := filepath.Clean(m.path)
	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				m.log.Info("Origins watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if filepath.Clean(event.Name) != target {
					continue
				}

				m.log.Debug("Origins file changed, reloading")
				if err := m.Load(); err != nil {
					m.log.Warn("Error reloading origins", "err", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
					return
				}
				m.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}

// AllowedOrigins returns a copy of the origins currently served.
func (m *Manager) AllowedOrigins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.origins)
}

// normalize trims entries, drops empty ones and trailing slashes.
func normalize(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		out = append(out, o)
	}
	return out
}

// ParseOrigins splits a comma separated list of origins.
func ParseOrigins(s string) []string {
	return normalize(strings.Split(s, ","))
}
