package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"helicase/internal/bus"
	"helicase/internal/config"
	"helicase/internal/dispatch"
	"helicase/internal/events"
	"helicase/internal/nextflow"
)

type fakeRunner struct {
	mu          sync.Mutex
	invocations []nextflow.Invocation
	sheets      map[string]string
	err         error
}

func (f *fakeRunner) Run(_ context.Context, inv nextflow.Invocation) error {
	data, _ := os.ReadFile(inv.SampleSheetPath)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invocations = append(f.invocations, inv)
	if f.sheets == nil {
		f.sheets = make(map[string]string)
	}
	f.sheets[inv.PipelineName+"|"+inv.OutDir] = string(data)
	return f.err
}

func (f *fakeRunner) calls() []nextflow.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]nextflow.Invocation(nil), f.invocations...)
}

type fixture struct {
	store    *config.Store
	bus      *bus.Bus
	analysis <-chan events.Envelope
	runner   *fakeRunner
	outRoot  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.RunDirs = []string{t.TempDir()}
	cfg.Paths.AnalysisOutputDir = filepath.Join(t.TempDir(), "analysis")
	cfg.Paths.NextflowLogsDir = filepath.Join(t.TempDir(), "nf-logs")
	if err := os.MkdirAll(cfg.Paths.NextflowLogsDir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	cfg.Pipelines.TaxonAbundance.KrakenDB = "/db/kraken"
	cfg.Pipelines.TaxonAbundance.BrackenDB = "/db/bracken"
	cfg.Pipelines.PlasmidScreen.MobSuiteDB = "/db/mob"

	b := bus.New(64)
	analysis := b.Subscribe(events.TopicAnalysis)
	b.Subscribe(events.TopicLogging)
	b.Start()

	return &fixture{
		store:    config.NewStore(&cfg, ""),
		bus:      b,
		analysis: analysis,
		runner:   &fakeRunner{},
		outRoot:  cfg.Paths.AnalysisOutputDir,
	}
}

func (f *fixture) dispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	return dispatch.New(f.store, nil, f.bus, f.runner, nil, dispatch.WithTempDir(t.TempDir()))
}

func (f *fixture) drainAnalysis(t *testing.T) []events.Payload {
	t.Helper()
	f.bus.Stop()
	var payloads []events.Payload
	for {
		select {
		case env, ok := <-f.analysis:
			if !ok {
				return payloads
			}
			payloads = append(payloads, env.Payload)
		case <-time.After(time.Second):
			t.Fatal("drain timed out")
		}
	}
}

func symlinksCreated(id string) events.Envelope {
	return events.New(events.TopicAnalysis, events.SymlinksCreated{
		LibraryID: id,
		Symlinks: events.SymlinkPaths{
			R1: "/sym/" + id + "_R1.fastq.gz",
			R2: "/sym/" + id + "_R2.fastq.gz",
		},
	})
}

func TestDispatchFansOutAcrossYearsAndPipelines(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(t)

	d.Dispatch(context.Background(), []events.Envelope{
		symlinksCreated("BC21A001A"),
		symlinksCreated("BC22A002A"),
	})

	calls := f.runner.calls()
	if len(calls) != 4 {
		t.Fatalf("expected 4 invocations, got %d", len(calls))
	}
	var seen []string
	for _, inv := range calls {
		seen = append(seen, inv.PipelineName+" "+filepath.Base(inv.OutDir))
	}
	sort.Strings(seen)
	want := []string{
		"BCCDC-PHL/routine-assembly 21",
		"BCCDC-PHL/routine-assembly 22",
		"BCCDC-PHL/taxon-abundance 21",
		"BCCDC-PHL/taxon-abundance 22",
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("invocation set:\n got %v\nwant %v", seen, want)
		}
	}
}

func TestDispatchWritesMarkersAndPublishesCompletions(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(t)

	d.Dispatch(context.Background(), []events.Envelope{symlinksCreated("BC21A001A")})

	markerPath := filepath.Join(f.outRoot, "21", "BC21A001A", "routine-assembly-v0.4-output", "analysis_complete.json")
	data, err := os.ReadFile(markerPath)
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	var marker struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &marker); err != nil {
		t.Fatalf("marker json: %v", err)
	}
	if marker.Timestamp == "" {
		t.Fatal("marker must carry a timestamp")
	}

	counts := make(map[events.Kind]int)
	for _, payload := range f.drainAnalysis(t) {
		counts[payload.Kind()]++
		if assembly, ok := payload.(events.AssemblyCompleted); ok {
			if assembly.AssemblyTool != "unicycler" || assembly.AnnotationTool != "prokka" {
				t.Fatalf("assembly tools: %+v", assembly)
			}
			if !strings.HasSuffix(assembly.AssemblyPath, "BC21A001A_unicycler.fasta") {
				t.Fatalf("assembly path: %q", assembly.AssemblyPath)
			}
		}
	}
	if counts[events.KindAssemblyCompleted] != 1 || counts[events.KindTaxonAbundanceCompleted] != 1 {
		t.Fatalf("completion kinds: %v", counts)
	}
	// One started and one completed record per pipeline invocation.
	if counts[events.KindAnalysisStarted] != 2 || counts[events.KindAnalysisCompleted] != 2 {
		t.Fatalf("analysis lifecycle kinds: %v", counts)
	}
}

func TestDispatchAssemblyCompletedFansOutToTypingPipelines(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(t)

	d.Dispatch(context.Background(), []events.Envelope{
		events.New(events.TopicAnalysis, events.AssemblyCompleted{
			LibraryID:    "BC21A001A",
			R1Path:       "/sym/21/BC21A001A_R1.fastq.gz",
			R2Path:       "/sym/21/BC21A001A_R2.fastq.gz",
			AssemblyPath: "/analysis/21/BC21A001A/routine-assembly-v0.4-output/BC21A001A_unicycler.fasta",
		}),
	})

	calls := f.runner.calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(calls))
	}
	var names []string
	for _, inv := range calls {
		names = append(names, inv.PipelineName)
	}
	sort.Strings(names)
	if names[0] != "BCCDC-PHL/mlst-nf" || names[1] != "BCCDC-PHL/plasmid-screen" {
		t.Fatalf("pipelines: %v", names)
	}

	sheet := f.runner.sheets["BCCDC-PHL/mlst-nf|"+filepath.Join(f.outRoot, "21")]
	if !strings.HasPrefix(sheet, "ID,ASSEMBLY\n") {
		t.Fatalf("mlst samplesheet header: %q", sheet)
	}
	if !strings.Contains(sheet, "BC21A001A,/analysis/21/BC21A001A/routine-assembly-v0.4-output/BC21A001A_unicycler.fasta") {
		t.Fatalf("mlst samplesheet row: %q", sheet)
	}
}

type overlapRunner struct {
	mu      sync.Mutex
	active  map[string]int
	overlap bool
}

func (r *overlapRunner) Run(_ context.Context, inv nextflow.Invocation) error {
	r.mu.Lock()
	r.active[inv.OutDir]++
	if r.active[inv.OutDir] > 1 {
		r.overlap = true
	}
	r.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	r.mu.Lock()
	r.active[inv.OutDir]--
	r.mu.Unlock()
	return nil
}

func TestDispatchSerializesInvocationsWithinPartition(t *testing.T) {
	f := newFixture(t)
	runner := &overlapRunner{active: make(map[string]int)}
	d := dispatch.New(f.store, nil, f.bus, runner, nil, dispatch.WithTempDir(t.TempDir()))

	d.Dispatch(context.Background(), []events.Envelope{
		symlinksCreated("BC21A001A"),
		symlinksCreated("BC22A002A"),
	})

	if runner.overlap {
		t.Fatal("invocations sharing a (kind, year) partition must not overlap")
	}
}

func TestDispatchIgnoresTerminalKinds(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(t)

	d.Dispatch(context.Background(), []events.Envelope{
		events.New(events.TopicAnalysis, events.MLSTCompleted{LibraryID: "BC21A001A"}),
		events.New(events.TopicAnalysis, events.PlasmidScreenCompleted{LibraryID: "BC21A001A"}),
	})

	if calls := f.runner.calls(); len(calls) != 0 {
		t.Fatalf("terminal kinds must not dispatch, got %d invocations", len(calls))
	}
}

func TestDispatchFailureSkipsCompletionButCleansUp(t *testing.T) {
	f := newFixture(t)
	f.runner.err = errors.New("exit status 1")
	tempDir := t.TempDir()
	d := dispatch.New(f.store, nil, f.bus, f.runner, nil, dispatch.WithTempDir(tempDir))

	d.Dispatch(context.Background(), []events.Envelope{symlinksCreated("BC21A001A")})

	for _, payload := range f.drainAnalysis(t) {
		if payload.Kind() != events.KindAnalysisStarted {
			t.Fatalf("failed pipeline must not publish completions, got %v", payload.Kind())
		}
	}
	if _, err := os.Stat(filepath.Join(f.outRoot, "21", "BC21A001A")); !os.IsNotExist(err) {
		t.Fatal("failed pipeline must not create completion directories")
	}
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	for _, entry := range entries {
		t.Fatalf("work dirs and samplesheets must be cleaned up, found %s", entry.Name())
	}
}

func TestDispatchSamplesheetListsPartitionLibraries(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(t)

	d.Dispatch(context.Background(), []events.Envelope{
		symlinksCreated("BC21A001A"),
		symlinksCreated("BC21A003A"),
	})

	sheet := f.runner.sheets["BCCDC-PHL/routine-assembly|"+filepath.Join(f.outRoot, "21")]
	if !strings.HasPrefix(sheet, "ID,R1,R2\n") {
		t.Fatalf("header: %q", sheet)
	}
	for _, id := range []string{"BC21A001A", "BC21A003A"} {
		if !strings.Contains(sheet, id+",/sym/"+id+"_R1.fastq.gz,/sym/"+id+"_R2.fastq.gz") {
			t.Fatalf("missing row for %s: %q", id, sheet)
		}
	}
}

func TestDispatchTightensOutputPermissions(t *testing.T) {
	f := newFixture(t)
	d := f.dispatcher(t)

	d.Dispatch(context.Background(), []events.Envelope{symlinksCreated("BC21A001A")})

	libDir := filepath.Join(f.outRoot, "21", "BC21A001A", "routine-assembly-v0.4-output")
	info, err := os.Stat(libDir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o750 {
		t.Fatalf("dir mode %o, want 750", got)
	}
}
