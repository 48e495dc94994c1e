package scanner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"helicase/internal/bus"
	"helicase/internal/config"
	"helicase/internal/events"
	"helicase/internal/exclusion"
	"helicase/internal/fsutil"
	"helicase/internal/logging"
	"helicase/internal/progress"
	"helicase/internal/runfs"
)

// Scanner periodically walks the configured run directories and
// publishes a run-directory-found event for the first eligible run it
// sees each tick. One run per tick keeps the materializer fed with a
// steady trickle instead of a burst after instrument maintenance.
type Scanner struct {
	store    *config.Store
	logger   *slog.Logger
	excl     *exclusion.Registry
	progress *progress.Registry
	bus      *bus.Bus

	pollInterval time.Duration

	// emitted guards against re-publishing a run while the materializer
	// has not yet marked it promoted.
	emitted map[string]struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a scanner over the given shared state.
func New(store *config.Store, logger *slog.Logger, excl *exclusion.Registry, prog *progress.Registry, b *bus.Bus) *Scanner {
	interval := time.Duration(store.Snapshot().Workflow.SymlinkScanIntervalMS) * time.Millisecond
	return &Scanner{
		store:        store,
		logger:       logging.NewComponentLogger(logger, "run-scanner"),
		excl:         excl,
		progress:     prog,
		bus:          b,
		pollInterval: interval,
		emitted:      make(map[string]struct{}),
	}
}

// Start launches the scan loop.
func (s *Scanner) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.loop(runCtx)
}

// Stop ends the loop cooperatively and waits for it to exit; a tick in
// progress stops before examining its next candidate.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

// ScanOnce performs a single scan pass outside the periodic loop.
func (s *Scanner) ScanOnce(ctx context.Context) {
	s.poll(ctx)
}

func (s *Scanner) loop(ctx context.Context) {
	defer s.wg.Done()

	s.poll(ctx)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll publishes at most one run-directory-found event, for the first
// eligible run in configured order.
func (s *Scanner) poll(ctx context.Context) {
	cfg := s.store.Snapshot()
	for _, root := range cfg.Paths.RunDirs {
		for _, candidate := range fsutil.ListDir(root) {
			if ctx.Err() != nil {
				return
			}
			runID := filepath.Base(candidate)
			if !s.eligible(candidate, runID) {
				continue
			}
			s.emitted[runID] = struct{}{}
			s.logger.Info("run directory found",
				logging.String(logging.FieldRunID, runID),
				logging.String("run_dir", candidate),
				logging.String(logging.FieldEventType, "run_directory_found"),
			)
			payload := events.RunDirectoryFound{RunDir: candidate}
			s.bus.Publish(events.New(events.TopicSymlinking, payload))
			s.bus.Publish(events.New(events.TopicLogging, events.LogRecord{
				Level:   slog.LevelInfo,
				Message: "run directory found",
				Fields:  map[string]string{logging.FieldRunID: runID},
			}))
			return
		}
	}
}

func (s *Scanner) eligible(runDir, runID string) bool {
	if !runfs.IsRunName(runID) {
		return false
	}
	if info, err := os.Stat(runDir); err != nil || !info.IsDir() {
		return false
	}
	if !runfs.IsUploadComplete(runDir) {
		return false
	}
	if s.excl.RunExcluded(runID) {
		return false
	}
	if s.progress.Promoted(runID) {
		return false
	}
	if _, ok := s.emitted[runID]; ok {
		return false
	}
	return true
}
