package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directory roots the daemon scans and writes.
type Paths struct {
	RunDirs           []string `toml:"run_dirs"`
	FastqSymlinksDir  string   `toml:"fastq_symlinks_dir"`
	AnalysisOutputDir string   `toml:"analysis_output_dir"`
	NextflowLogsDir   string   `toml:"nextflow_logs_dir"`
	LogDir            string   `toml:"log_dir"`
}

// Exclusions lists the plain-text id files that block promotion and
// materialization.
type Exclusions struct {
	RunExcludeFiles     []string `toml:"run_exclude_files"`
	LibraryExcludeFiles []string `toml:"library_exclude_files"`
}

// SampleSheet contains sample-sheet filtering settings.
type SampleSheet struct {
	ProjectID string `toml:"project_id"`
}

// Nextflow contains settings for the external workflow runner.
type Nextflow struct {
	Binary     string `toml:"binary"`
	Profile    string `toml:"profile"`
	CondaCache string `toml:"conda_cache"`
}

// RoutineAssembly configures the routine-assembly pipeline.
type RoutineAssembly struct {
	Version        string `toml:"version"`
	AssemblyTool   string `toml:"assembly_tool"`
	AnnotationTool string `toml:"annotation_tool"`
}

// TaxonAbundance configures the taxon-abundance pipeline.
type TaxonAbundance struct {
	Version   string `toml:"version"`
	KrakenDB  string `toml:"kraken_db"`
	BrackenDB string `toml:"bracken_db"`
}

// MLST configures the mlst pipeline.
type MLST struct {
	Version string `toml:"version"`
}

// PlasmidScreen configures the plasmid-screen pipeline.
type PlasmidScreen struct {
	Version    string `toml:"version"`
	MobSuiteDB string `toml:"mob_suite_db"`
}

// Pipelines groups the per-pipeline configuration tables.
type Pipelines struct {
	RoutineAssembly RoutineAssembly `toml:"routine_assembly"`
	TaxonAbundance  TaxonAbundance  `toml:"taxon_abundance"`
	MLST            MLST            `toml:"mlst"`
	PlasmidScreen   PlasmidScreen   `toml:"plasmid_screen"`
}

// Workflow contains polling cadences and batching thresholds.
type Workflow struct {
	SymlinkScanIntervalMS   int `toml:"symlink_scan_interval_ms"`
	AnalysisScanIntervalMS  int `toml:"analysis_scan_interval_ms"`
	ConfigReloadIntervalMS  int `toml:"config_reload_interval_ms"`
	ExcludeReloadIntervalMS int `toml:"exclude_reload_interval_ms"`
	BatchMaxSize            int `toml:"batch_max_size"`
	BatchTimeoutMS          int `toml:"batch_timeout_ms"`
	BusBuffer               int `toml:"bus_buffer"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Daemon contains operator control-channel settings.
type Daemon struct {
	REPL   bool   `toml:"repl"`
	Socket string `toml:"socket"`
}

// Config encapsulates all configuration values for helicase.
type Config struct {
	Paths       Paths       `toml:"paths"`
	Exclusions  Exclusions  `toml:"exclusions"`
	SampleSheet SampleSheet `toml:"samplesheet"`
	Nextflow    Nextflow    `toml:"nextflow"`
	Pipelines   Pipelines   `toml:"pipelines"`
	Workflow    Workflow    `toml:"workflow"`
	Logging     Logging     `toml:"logging"`
	Daemon      Daemon      `toml:"daemon"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/helicase/config.toml")
}

// Load locates, parses, and validates a configuration file. The
// returned config has all path fields expanded and defaults applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("helicase.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes.
// Run directories are read-only inputs and left alone.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.FastqSymlinksDir, c.Paths.AnalysisOutputDir, c.Paths.NextflowLogsDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the daemon control socket location.
func (c *Config) SocketPath() string {
	if strings.TrimSpace(c.Daemon.Socket) != "" {
		return c.Daemon.Socket
	}
	return filepath.Join(c.Paths.LogDir, "helicased.sock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
