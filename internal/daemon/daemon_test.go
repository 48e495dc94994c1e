package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"helicase/internal/config"
	"helicase/internal/daemon"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.RunDirs = []string{t.TempDir()}
	cfg.Paths.FastqSymlinksDir = t.TempDir()
	cfg.Paths.AnalysisOutputDir = t.TempDir()
	cfg.Paths.NextflowLogsDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Workflow.SymlinkScanIntervalMS = 50
	// Keep the dispatcher quiet while the test watches the symlink path.
	cfg.Workflow.BatchTimeoutMS = 60000
	return &cfg
}

func TestStartStopLifecycle(t *testing.T) {
	cfg := testConfig(t)
	d, err := daemon.New(config.NewStore(cfg, ""), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if status := d.Status(); !status.Running {
		t.Fatal("expected running status")
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second start must fail")
	}
	d.Stop()
	if status := d.Status(); status.Running {
		t.Fatal("expected stopped status")
	}
	// A second stop is a no-op.
	d.Stop()
}

func TestStartRefusesSecondInstance(t *testing.T) {
	cfg := testConfig(t)
	store := config.NewStore(cfg, "")

	first, err := daemon.New(store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	second, err := daemon.New(store, nil)
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance must be refused")
	}
}

func TestStartFailsWhenOutputRootCannotBeCreated(t *testing.T) {
	cfg := testConfig(t)
	// Point the symlink root at a file so EnsureDirectories cannot create it.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	cfg.Paths.FastqSymlinksDir = blocker

	d, err := daemon.New(config.NewStore(cfg, ""), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		d.Stop()
		t.Fatal("expected startup failure")
	}
}

func TestDaemonPromotesDiscoveredRun(t *testing.T) {
	cfg := testConfig(t)
	runDir := filepath.Join(cfg.Paths.RunDirs[0], "220207_M00123_0123_000000000-A7TRG")
	fastqDir := filepath.Join(runDir, "Data", "Intensities", "BaseCalls")
	if err := os.MkdirAll(fastqDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "upload_complete.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("marker: %v", err)
	}
	sheet := "[Data]\n" +
		"Sample_ID,Sample_Name,Sample_Plate,Sample_Well,I7_Index_ID,index,I5_Index_ID,index2,Sample_Project,Description\n" +
		"\n" +
		"B,BC21A001A,,,,,,,,cpo\n"
	if err := os.WriteFile(filepath.Join(runDir, "SampleSheet.csv"), []byte(sheet), 0o644); err != nil {
		t.Fatalf("sheet: %v", err)
	}
	for _, read := range []string{"R1", "R2"} {
		name := "BC21A001A_S1_L001_" + read + "_001.fastq.gz"
		if err := os.WriteFile(filepath.Join(fastqDir, name), []byte("reads"), 0o644); err != nil {
			t.Fatalf("fastq: %v", err)
		}
	}

	d, err := daemon.New(config.NewStore(cfg, ""), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	wantLink := filepath.Join(cfg.Paths.FastqSymlinksDir, "21", "BC21A001A_R1.fastq.gz")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Lstat(wantLink); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("symlink %s never appeared", wantLink)
		}
		time.Sleep(25 * time.Millisecond)
	}

	deadline = time.Now().Add(2 * time.Second)
	for d.Status().PromotedRuns != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("run never marked promoted; status %+v", d.Status())
		}
		time.Sleep(25 * time.Millisecond)
	}
}
