package symlinker

import (
	"context"
	"log/slog"
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
	"helicase/internal/samplesheet"
)

// Materializer consumes run-directory-found events and promotes each
// run into the working set: it resolves the libraries of interest from
// the sample sheet, creates year-partitioned read symlinks, and
// publishes symlinks-created for every library it links.
type Materializer struct {
	store    *config.Store
	logger   *slog.Logger
	excl     *exclusion.Registry
	progress *progress.Registry
	bus      *bus.Bus
	in       <-chan events.Envelope

	wg sync.WaitGroup
}

// New constructs a materializer consuming the given subscription.
func New(store *config.Store, logger *slog.Logger, excl *exclusion.Registry, prog *progress.Registry, b *bus.Bus, in <-chan events.Envelope) *Materializer {
	return &Materializer{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "symlinker"),
		excl:     excl,
		progress: prog,
		bus:      b,
		in:       in,
	}
}

// Start launches the consumer loop. The loop exits when the upstream
// subscription closes.
func (m *Materializer) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for env := range m.in {
			found, ok := env.Payload.(events.RunDirectoryFound)
			if !ok {
				// Own symlinks-created events echo back on this topic.
				continue
			}
			m.Materialize(ctx, found.RunDir)
		}
	}()
}

// Wait blocks until the consumer loop has exited.
func (m *Materializer) Wait() {
	m.wg.Wait()
}

// Materialize promotes one run directory. Safe to re-run on the same
// run: the destination-exists check short-circuits every library that
// is already linked, so no duplicate events are published.
func (m *Materializer) Materialize(ctx context.Context, runDir string) {
	cfg := m.store.Snapshot()
	runID := filepath.Base(runDir)
	logger := m.logger.With(logging.String(logging.FieldRunID, runID))

	class := runfs.Classify(runID)
	if class == runfs.InstrumentUnknown {
		logger.Error("unknown instrument class; run skipped",
			logging.String(logging.FieldEventType, "unknown_instrument_class"),
			logging.String(logging.FieldErrorHint, "run directory name matches no supported instrument pattern"),
		)
		return
	}

	sheetPath, ok := runfs.FindSampleSheet(runDir)
	if !ok {
		logger.Error("sample sheet not found; run skipped",
			logging.String(logging.FieldEventType, "samplesheet_missing"),
			logging.String(logging.FieldErrorHint, "expected SampleSheet*.csv at the run root"),
		)
		return
	}

	section := samplesheet.MiSeq
	if class == runfs.InstrumentNextSeq {
		section = samplesheet.NextSeq
	}
	libraries, err := samplesheet.ReadLibrariesOfInterest(sheetPath, section, cfg.SampleSheet.ProjectID)
	if err != nil {
		logger.Error("sample sheet unreadable; run skipped",
			logging.Error(err),
			logging.String(logging.FieldEventType, "samplesheet_unreadable"),
		)
		return
	}

	fastqDir, err := runfs.FastqDir(runDir, class)
	if err != nil {
		logger.Error("fastq directory not resolved; run skipped",
			logging.Error(err),
			logging.String(logging.FieldEventType, "fastq_dir_missing"),
		)
		return
	}

	now := time.Now().UTC()
	for _, libraryID := range libraries {
		if ctx.Err() != nil {
			return
		}
		m.materializeLibrary(cfg, logger, fastqDir, libraryID, now)
	}

	m.progress.MarkPromoted(runID)
	logger.Info("run promoted",
		logging.Int("libraries", len(libraries)),
		logging.String(logging.FieldEventType, "run_promoted"),
	)
}

func (m *Materializer) materializeLibrary(cfg *config.Config, logger *slog.Logger, fastqDir, libraryID string, now time.Time) {
	libLogger := logger.With(logging.String(logging.FieldLibraryID, libraryID))

	if m.excl.LibraryExcluded(libraryID) {
		libLogger.Debug("library excluded; skipped")
		return
	}

	year := runfs.YearPartition(libraryID, now)
	destR1 := filepath.Join(cfg.Paths.FastqSymlinksDir, year, libraryID+"_R1.fastq.gz")
	destR2 := filepath.Join(cfg.Paths.FastqSymlinksDir, year, libraryID+"_R2.fastq.gz")
	if fsutil.Exists(destR1) && fsutil.Exists(destR2) {
		libLogger.Debug("symlinks already present; skipped")
		return
	}

	pair, found := runfs.FindReads(fastqDir, libraryID)
	if !found {
		libLogger.Warn("read pair not found; library skipped",
			logging.String(logging.FieldEventType, "reads_missing"),
			logging.String(logging.FieldErrorHint, "check demultiplexing output for the library"),
		)
		return
	}

	fsutil.Symlink(pair.R1, destR1)
	fsutil.Symlink(pair.R2, destR2)
	if !fsutil.Exists(destR1) || !fsutil.Exists(destR2) {
		// Partial pairs never publish. The run is still marked promoted,
		// so the library is retried only when the run is materialized
		// again (for example after a restart).
		libLogger.Warn("symlink creation incomplete; no event published",
			logging.String(logging.FieldEventType, "symlink_partial"),
		)
		return
	}

	payload := events.SymlinksCreated{
		LibraryID: libraryID,
		Symlinks:  events.SymlinkPaths{R1: destR1, R2: destR2},
	}
	m.bus.Publish(events.New(events.TopicSymlinking, payload))
	m.bus.Publish(events.New(events.TopicAnalysis, payload))
	m.bus.Publish(events.New(events.TopicLogging, events.LogRecord{
		Level:   slog.LevelInfo,
		Message: "symlinks created",
		Fields: map[string]string{
			logging.FieldLibraryID: libraryID,
			"r1":                   destR1,
			"r2":                   destR2,
		},
	}))
	libLogger.Info("symlinks created",
		logging.String("r1", destR1),
		logging.String("r2", destR2),
		logging.String(logging.FieldEventType, "symlinks_created"),
	)
}
