package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"helicase/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func minimalConfig() string {
	return `
[paths]
run_dirs = ["/data/runs"]
`
}

func TestLoadAppliesDefaultsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := writeConfig(t, minimalConfig())
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatalf("expected existing resolved config, got (%q, %v)", resolved, exists)
	}

	if len(cfg.Paths.RunDirs) != 1 || cfg.Paths.RunDirs[0] != "/data/runs" {
		t.Fatalf("unexpected run dirs: %v", cfg.Paths.RunDirs)
	}
	wantSymlinks := filepath.Join(tempHome, ".local", "share", "helicase", "fastq_symlinks")
	if cfg.Paths.FastqSymlinksDir != wantSymlinks {
		t.Fatalf("symlinks dir: got %q want %q", cfg.Paths.FastqSymlinksDir, wantSymlinks)
	}
	if cfg.SampleSheet.ProjectID != "cpo" {
		t.Fatalf("project id default: got %q", cfg.SampleSheet.ProjectID)
	}
	if cfg.Workflow.SymlinkScanIntervalMS != 2000 {
		t.Fatalf("scan interval default: got %d", cfg.Workflow.SymlinkScanIntervalMS)
	}
	if cfg.Workflow.BatchTimeoutMS != 5000 {
		t.Fatalf("batch timeout default: got %d", cfg.Workflow.BatchTimeoutMS)
	}
	if cfg.Nextflow.Binary != "nextflow" || cfg.Nextflow.Profile != "conda" {
		t.Fatalf("nextflow defaults: %+v", cfg.Nextflow)
	}
	if cfg.Pipelines.RoutineAssembly.AssemblyTool != "unicycler" {
		t.Fatalf("assembly tool default: %q", cfg.Pipelines.RoutineAssembly.AssemblyTool)
	}
	if cfg.Daemon.REPL {
		t.Fatal("expected repl disabled by default")
	}
	if !strings.HasSuffix(cfg.SocketPath(), "helicased.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.SocketPath())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.FastqSymlinksDir, cfg.Paths.AnalysisOutputDir, cfg.Paths.NextflowLogsDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q: %v", dir, err)
		}
	}
}

func TestLoadRejectsMissingRunDirs(t *testing.T) {
	path := writeConfig(t, "[samplesheet]\nproject_id = \"cpo\"\n")
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for missing run_dirs")
	}
}

func TestLoadRejectsBadLoggingFormat(t *testing.T) {
	path := writeConfig(t, minimalConfig()+"[logging]\nformat = \"xml\"\n")
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for bad logging format")
	}
}

func TestLoadRejectsEmptyPipelineVersion(t *testing.T) {
	path := writeConfig(t, minimalConfig()+"[pipelines.mlst]\nversion = \"  \"\n")
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for blank pipeline version")
	}
}

func TestStoreReloadSwapsSnapshot(t *testing.T) {
	path := writeConfig(t, minimalConfig())
	cfg, resolved, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	store := config.NewStore(cfg, resolved)
	if got := store.Snapshot().SampleSheet.ProjectID; got != "cpo" {
		t.Fatalf("initial snapshot project id: %q", got)
	}

	updated := minimalConfig() + "[samplesheet]\nproject_id = \"vre\"\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := store.Snapshot().SampleSheet.ProjectID; got != "vre" {
		t.Fatalf("reloaded project id: %q", got)
	}
}

func TestStoreReloadKeepsSnapshotOnParseFailure(t *testing.T) {
	path := writeConfig(t, minimalConfig())
	cfg, resolved, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	store := config.NewStore(cfg, resolved)

	if err := os.WriteFile(path, []byte("not toml = ["), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := store.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if store.Snapshot() != cfg {
		t.Fatal("snapshot must be unchanged after failed reload")
	}
}

func TestCreateSampleWritesParsableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config must load: %v", err)
	}
}
