package dispatch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"helicase/internal/bus"
	"helicase/internal/config"
	"helicase/internal/events"
	"helicase/internal/fsutil"
	"helicase/internal/logging"
	"helicase/internal/nextflow"
	"helicase/internal/runfs"
)

// Dispatcher drives the external pipelines over batches from the
// analysis topic. Each batch is grouped by event kind, partitioned by
// library collection year, and fanned out to the pipelines registered
// for that kind. Invocations run concurrently across year-partitions
// and across kinds; within a single (kind, year) partition one
// invocation executes at a time, each covering the whole partition.
type Dispatcher struct {
	store  *config.Store
	logger *slog.Logger
	bus    *bus.Bus
	runner nextflow.Runner
	in     <-chan []events.Envelope

	tempDir string
	now     func() time.Time

	wg sync.WaitGroup
}

// Option configures optional dispatcher behaviour.
type Option func(*Dispatcher)

// WithTempDir overrides the scratch location for work directories and
// generated samplesheets (primarily for tests).
func WithTempDir(dir string) Option {
	return func(d *Dispatcher) {
		if dir != "" {
			d.tempDir = dir
		}
	}
}

// WithClock overrides the time source (primarily for tests).
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New constructs a dispatcher consuming the given batch stream.
func New(store *config.Store, logger *slog.Logger, b *bus.Bus, runner nextflow.Runner, in <-chan []events.Envelope, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		logger:  logging.NewComponentLogger(logger, "dispatcher"),
		bus:     b,
		runner:  runner,
		in:      in,
		tempDir: os.TempDir(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the consumer loop. The loop exits when the upstream
// batch channel closes.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for batch := range d.in {
			d.Dispatch(ctx, batch)
		}
	}()
}

// Wait blocks until the consumer loop has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dispatch processes one batch to completion, blocking until every
// pipeline invocation it fans out has returned.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []events.Envelope) {
	cfg := d.store.Snapshot()

	var wg sync.WaitGroup
	for kind, group := range groupByKind(batch) {
		pipelines, ok := stageFanOut[kind]
		if !ok {
			continue
		}
		for year, libs := range partitionByYear(group, d.now().UTC()) {
			// One goroutine per (kind, year) partition: its pipelines
			// run in sequence, partitions and kinds run in parallel.
			wg.Add(1)
			go func(pipelines []pipeline, year string, libs []library) {
				defer wg.Done()
				for _, p := range pipelines {
					d.invoke(ctx, cfg, p, year, libs)
				}
			}(pipelines, year, libs)
		}
	}
	wg.Wait()
}

// groupByKind splits a batch by payload kind, preserving arrival order
// within each group.
func groupByKind(batch []events.Envelope) map[events.Kind][]events.LibraryScoped {
	groups := make(map[events.Kind][]events.LibraryScoped)
	for _, env := range batch {
		scoped, ok := env.Payload.(events.LibraryScoped)
		if !ok {
			continue
		}
		kind := env.Payload.Kind()
		groups[kind] = append(groups[kind], scoped)
	}
	return groups
}

// partitionByYear buckets a kind group by library collection year,
// deduplicating libraries within a partition.
func partitionByYear(group []events.LibraryScoped, now time.Time) map[string][]library {
	partitions := make(map[string][]library)
	seen := make(map[string]struct{})
	for _, payload := range group {
		lib := toLibrary(payload)
		if lib.ID == "" {
			continue
		}
		if _, dup := seen[lib.ID]; dup {
			continue
		}
		seen[lib.ID] = struct{}{}
		year := runfs.YearPartition(lib.ID, now)
		partitions[year] = append(partitions[year], lib)
	}
	return partitions
}

func toLibrary(payload events.LibraryScoped) library {
	switch p := payload.(type) {
	case events.SymlinksCreated:
		return library{ID: p.LibraryID, R1: p.Symlinks.R1, R2: p.Symlinks.R2}
	case events.AssemblyCompleted:
		return library{ID: p.LibraryID, R1: p.R1Path, R2: p.R2Path, Assembly: p.AssemblyPath}
	default:
		return library{ID: payload.Library()}
	}
}

// invoke runs one pipeline over one year partition: private work dir
// and samplesheet, the external runner, post-run permission tightening
// and cleanup, completion markers, and downstream events.
func (d *Dispatcher) invoke(ctx context.Context, cfg *config.Config, p pipeline, year string, libs []library) {
	logger := d.logger.With(
		logging.String(logging.FieldPipeline, p.repo),
		logging.String("year", year),
		logging.Int("libraries", len(libs)),
	)

	short := p.shortName()
	invocationID := uuid.New().String()
	workDir := filepath.Join(d.tempDir, "work-"+short+"-"+invocationID)
	sheetPath := filepath.Join(d.tempDir, "samplesheet-"+short+"-"+invocationID+".csv")
	outDir := filepath.Join(cfg.Paths.AnalysisOutputDir, year)
	logPath := filepath.Join(cfg.Paths.NextflowLogsDir, nextflow.LogFileName(d.now(), short))

	if err := writeSampleSheet(sheetPath, p, libs); err != nil {
		logger.Error("samplesheet write failed; invocation skipped",
			logging.Error(err),
			logging.String(logging.FieldEventType, "samplesheet_write_failed"),
		)
		return
	}
	defer func() {
		_ = fsutil.RemoveTree(workDir)
		_ = os.Remove(sheetPath)
	}()

	if err := fsutil.EnsureDir(outDir, 0o750); err != nil {
		logger.Error("output directory creation failed; invocation skipped",
			logging.Error(err),
			logging.String(logging.FieldEventType, "outdir_create_failed"),
		)
		return
	}

	version := p.version(cfg)
	for _, lib := range libs {
		d.bus.Publish(events.New(events.TopicAnalysis, events.AnalysisStarted{
			PipelineName: p.repo,
			LibraryID:    lib.ID,
		}))
		d.publishLog(slog.LevelInfo, "analysis started", map[string]string{
			logging.FieldPipeline:  p.repo,
			logging.FieldLibraryID: lib.ID,
		})
	}

	err := d.runner.Run(ctx, nextflow.Invocation{
		PipelineName:    p.repo,
		Revision:        version,
		LogPath:         logPath,
		WorkDir:         workDir,
		Profile:         cfg.Nextflow.Profile,
		CondaCache:      cfg.Nextflow.CondaCache,
		SampleSheetPath: sheetPath,
		OutDir:          outDir,
		Flags:           p.flags(cfg),
	})

	if chmodErr := fsutil.ChmodTree(outDir, 0o750, 0o640); chmodErr != nil {
		logger.Warn("output permission tightening incomplete",
			logging.Error(chmodErr),
			logging.String(logging.FieldEventType, "chmod_incomplete"),
		)
	}

	if err != nil {
		logger.Error("pipeline failed; no completion published",
			logging.Error(err),
			logging.String(logging.FieldEventType, "pipeline_failed"),
			logging.String(logging.FieldErrorHint, "inspect the nextflow log for the failing process"),
		)
		d.publishLog(slog.LevelError, "pipeline failed", map[string]string{
			logging.FieldPipeline: p.repo,
			"error":               err.Error(),
			"nextflow_log":        logPath,
		})
		return
	}

	for _, lib := range libs {
		d.complete(cfg, p, lib, outDir, version)
	}
	logger.Info("pipeline completed",
		logging.String("outdir", outDir),
		logging.String(logging.FieldEventType, "pipeline_completed"),
	)
}

// complete writes the per-library completion marker and publishes the
// stage's downstream events.
func (d *Dispatcher) complete(cfg *config.Config, p pipeline, lib library, outDir, version string) {
	libOutDir := filepath.Join(outDir, lib.ID, p.outDirName(cfg))
	if err := d.writeMarker(libOutDir); err != nil {
		d.logger.Warn("completion marker write failed",
			logging.Error(err),
			logging.String(logging.FieldLibraryID, lib.ID),
			logging.String(logging.FieldPipeline, p.repo),
			logging.String(logging.FieldEventType, "marker_write_failed"),
		)
	}

	for _, payload := range p.completions(cfg, lib, libOutDir) {
		d.bus.Publish(events.New(events.TopicAnalysis, payload))
		d.publishLog(slog.LevelInfo, string(payload.Kind()), map[string]string{
			logging.FieldLibraryID: lib.ID,
			logging.FieldPipeline:  p.repo,
		})
	}
	d.bus.Publish(events.New(events.TopicAnalysis, events.AnalysisCompleted{
		PipelineName:    p.repo,
		PipelineVersion: version,
		LibraryID:       lib.ID,
		OutDir:          libOutDir,
	}))
	d.publishLog(slog.LevelInfo, "analysis completed", map[string]string{
		logging.FieldPipeline:  p.repo,
		"pipeline_version":     version,
		logging.FieldLibraryID: lib.ID,
		"outdir":               libOutDir,
	})
}

func (d *Dispatcher) writeMarker(libOutDir string) error {
	if err := fsutil.EnsureDir(libOutDir, 0o750); err != nil {
		return err
	}
	marker := struct {
		Timestamp string `json:"timestamp"`
	}{Timestamp: d.now().UTC().Format(time.RFC3339)}
	data, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(libOutDir, "analysis_complete.json"), data, 0o640)
}

func (d *Dispatcher) publishLog(level slog.Level, message string, fields map[string]string) {
	d.bus.Publish(events.New(events.TopicLogging, events.LogRecord{
		Level:   level,
		Message: message,
		Fields:  fields,
	}))
}

func writeSampleSheet(path string, p pipeline, libs []library) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	writer := csv.NewWriter(file)
	if err := writer.Write(p.columns); err != nil {
		file.Close()
		return err
	}
	for _, lib := range libs {
		if err := writer.Write(p.row(lib)); err != nil {
			file.Close()
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
