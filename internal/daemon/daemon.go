package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"helicase/internal/batch"
	"helicase/internal/bus"
	"helicase/internal/config"
	"helicase/internal/dispatch"
	"helicase/internal/events"
	"helicase/internal/exclusion"
	"helicase/internal/logconsumer"
	"helicase/internal/logging"
	"helicase/internal/nextflow"
	"helicase/internal/preflight"
	"helicase/internal/progress"
	"helicase/internal/scanner"
	"helicase/internal/symlinker"
)

// Daemon owns the lifecycle of the watch/publish/dispatch engine and
// enforces single-instance execution.
type Daemon struct {
	store  *config.Store
	logger *slog.Logger

	excl     *exclusion.Registry
	progress *progress.Registry
	bus      *bus.Bus

	scanner      *scanner.Scanner
	materializer *symlinker.Materializer
	dispatcher   *dispatch.Dispatcher
	consumer     *logconsumer.Consumer
	exclReloader *exclusion.Reloader

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool
	StartedAt        time.Time
	PromotedRuns     int
	ExcludedRuns     int
	ExcludedLibs     int
	ConfigPath       string
	LockFilePath     string
	PID              int
	PreflightResults []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(store *config.Store, logger *slog.Logger) (*Daemon, error) {
	if store == nil {
		return nil, errors.New("daemon requires a config store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg := store.Snapshot()

	runner, err := nextflow.New(cfg.Nextflow.Binary)
	if err != nil {
		return nil, fmt.Errorf("nextflow client: %w", err)
	}

	excl := exclusion.NewRegistry()
	prog := progress.NewRegistry()
	b := bus.New(cfg.Workflow.BusBuffer)

	symlinking := b.Subscribe(events.TopicSymlinking)
	analysis := b.Subscribe(events.TopicAnalysis)
	loggingTopic := b.Subscribe(events.TopicLogging)
	batches := batch.Collect(
		analysis,
		cfg.Workflow.BatchMaxSize,
		time.Duration(cfg.Workflow.BatchTimeoutMS)*time.Millisecond,
	)

	lockPath := filepath.Join(cfg.Paths.LogDir, "helicased.lock")
	d := &Daemon{
		store:        store,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		excl:         excl,
		progress:     prog,
		bus:          b,
		scanner:      scanner.New(store, logger, excl, prog, b),
		materializer: symlinker.New(store, logger, excl, prog, b, symlinking),
		dispatcher:   dispatch.New(store, logger, b, runner, batches),
		consumer:     logconsumer.New(logger, loggingTopic),
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}
	d.exclReloader = exclusion.NewReloader(
		excl,
		logger,
		time.Duration(cfg.Workflow.ExcludeReloadIntervalMS)*time.Millisecond,
		func() ([]string, []string) {
			snapshot := store.Snapshot()
			return snapshot.Exclusions.RunExcludeFiles, snapshot.Exclusions.LibraryExcludeFiles
		},
	)
	return d, nil
}

// Start wires the bus and launches every component. Preflight failures
// on the output roots abort startup; everything else is logged and
// tolerated.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	cfg := d.store.Snapshot()
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another helicase daemon instance is already running")
	}

	results := preflight.Check(cfg)
	for _, result := range results {
		if result.Passed {
			continue
		}
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.Bool("fatal", result.Fatal),
			logging.String(logging.FieldEventType, "preflight_failed"),
		)
	}
	if fatal := preflight.FatalFailures(results); len(fatal) > 0 {
		_ = d.lock.Unlock()
		return fmt.Errorf("preflight: %s: %s", fatal[0].Name, fatal[0].Detail)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.bus.Start()
	d.consumer.Start(runCtx)
	d.dispatcher.Start(runCtx)
	d.materializer.Start(runCtx)
	d.exclReloader.Start(runCtx)
	d.scanner.Start(runCtx)
	go d.store.RunReloader(runCtx, d.logger, time.Duration(cfg.Workflow.ConfigReloadIntervalMS)*time.Millisecond)

	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("helicase daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the components in producer-to-consumer order: scanners
// first, then the bus, then the consumers drain out as their upstream
// channels close.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.scanner.Stop()
	d.exclReloader.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.bus.Stop()
	d.materializer.Wait()
	d.dispatcher.Wait()
	d.consumer.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("helicase daemon stopped")
}

// Close stops the daemon and releases its resources.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	excludedRuns, excludedLibs := d.excl.Counts()
	return Status{
		Running:      d.running.Load(),
		StartedAt:    d.startedAt,
		PromotedRuns: d.progress.Count(),
		ExcludedRuns: excludedRuns,
		ExcludedLibs: excludedLibs,
		ConfigPath:   d.store.Path(),
		LockFilePath: d.lockPath,
		PID:          os.Getpid(),
	}
}

// Preflight re-evaluates the environment checks on demand.
func (d *Daemon) Preflight() []preflight.Result {
	return preflight.Check(d.store.Snapshot())
}
