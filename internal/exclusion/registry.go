package exclusion

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"helicase/internal/logging"
)

// Registry holds the reloadable sets of run and library identifiers
// that must never be promoted or materialized. Each set is the union of
// a configured list of plain-text files, one identifier per line.
// Readers get immutable snapshots; reloads replace whole sets.
type Registry struct {
	mu        sync.RWMutex
	runs      map[string]struct{}
	libraries map[string]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		runs:      make(map[string]struct{}),
		libraries: make(map[string]struct{}),
	}
}

// Reload rebuilds both sets from the given file lists. Missing files
// are silently skipped.
func (r *Registry) Reload(runFiles, libraryFiles []string) {
	runs := readIDFiles(runFiles)
	libraries := readIDFiles(libraryFiles)

	r.mu.Lock()
	r.runs = runs
	r.libraries = libraries
	r.mu.Unlock()
}

// RunExcluded reports whether runID is blocked from promotion.
func (r *Registry) RunExcluded(runID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.runs[runID]
	return ok
}

// LibraryExcluded reports whether libraryID is blocked from materialization.
func (r *Registry) LibraryExcluded(libraryID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.libraries[libraryID]
	return ok
}

// Counts returns the current set sizes.
func (r *Registry) Counts() (runs, libraries int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs), len(r.libraries)
}

func readIDFiles(paths []string) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			id := strings.TrimSpace(scanner.Text())
			if id == "" {
				continue
			}
			ids[id] = struct{}{}
		}
		file.Close()
	}
	return ids
}

// Reloader periodically rebuilds a registry from the configured files.
type Reloader struct {
	registry *Registry
	logger   *slog.Logger
	interval time.Duration
	files    func() (runFiles, libraryFiles []string)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReloader constructs a reloader. files is called at each tick so
// that config reloads take effect without restarting the reloader.
func NewReloader(registry *Registry, logger *slog.Logger, interval time.Duration, files func() (runFiles, libraryFiles []string)) *Reloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reloader{
		registry: registry,
		logger:   logger.With(logging.String(logging.FieldComponent, "exclusion-reloader")),
		interval: interval,
		files:    files,
	}
}

// Start performs an immediate reload and launches the periodic loop.
func (r *Reloader) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.reload()
	r.wg.Add(1)
	go r.loop(runCtx)
}

// Stop ends the loop and waits for it to exit.
func (r *Reloader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

func (r *Reloader) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reload()
		}
	}
}

func (r *Reloader) reload() {
	runFiles, libraryFiles := r.files()
	r.registry.Reload(runFiles, libraryFiles)
	runs, libraries := r.registry.Counts()
	r.logger.Debug("exclusion sets reloaded",
		logging.Int("excluded_runs", runs),
		logging.Int("excluded_libraries", libraries),
	)
}
