package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"helicase/internal/logging"
)

// Store holds the live configuration snapshot. Reads return the whole
// snapshot; the reloader replaces it atomically so readers never
// observe a half-applied config.
type Store struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

// NewStore seeds a store with the initial configuration and the path
// it was loaded from.
func NewStore(cfg *Config, path string) *Store {
	return &Store{path: path, cfg: cfg}
}

// Snapshot returns the current configuration.
func (s *Store) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Path returns the configuration file path backing the store.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the backing file and swaps the snapshot. A file that
// no longer parses or validates leaves the previous snapshot in place.
func (s *Store) Reload() error {
	cfg, _, _, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

// RunReloader periodically reloads the store until ctx is cancelled.
// Intended to run as a goroutine from the supervisor.
func (s *Store) RunReloader(ctx context.Context, logger *slog.Logger, interval time.Duration) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "config-reloader")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(); err != nil {
				logger.Warn("config reload failed; previous snapshot kept",
					logging.Error(err),
					logging.String(logging.FieldEventType, "config_reload_failed"),
					logging.String(logging.FieldErrorHint, "fix the config file; the daemon keeps running on the last good config"),
				)
				continue
			}
			logger.Debug("config reloaded")
		}
	}
}
