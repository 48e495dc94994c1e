package dispatch

import (
	"path"
	"path/filepath"
	"strings"

	"helicase/internal/config"
	"helicase/internal/events"
	"helicase/internal/fsutil"
)

// library is the canonical per-library input a pipeline invocation
// needs. Assembly is empty for read-only pipelines.
type library struct {
	ID       string
	R1       string
	R2       string
	Assembly string
}

// pipeline describes one external workflow: where it lives, how its
// samplesheet looks, and which completion events it produces.
type pipeline struct {
	repo    string
	columns []string

	version func(cfg *config.Config) string
	flags   func(cfg *config.Config) map[string]string
	// completions returns the payloads published to the analysis topic
	// for one library once the invocation succeeded. libOutDir is the
	// library's pipeline output directory.
	completions func(cfg *config.Config, lib library, libOutDir string) []events.Payload
}

func (p pipeline) row(lib library) []string {
	row := make([]string, 0, len(p.columns))
	for _, col := range p.columns {
		switch col {
		case "ID":
			row = append(row, lib.ID)
		case "R1":
			row = append(row, lib.R1)
		case "R2":
			row = append(row, lib.R2)
		case "ASSEMBLY":
			row = append(row, lib.Assembly)
		}
	}
	return row
}

// shortName is the pipeline name without the org prefix or the -nf
// repo naming convention: BCCDC-PHL/mlst-nf becomes mlst.
func (p pipeline) shortName() string {
	return fsutil.RemoveSuffix(path.Base(p.repo), "-nf")
}

// outDirName is the per-library output directory for the pipeline:
// <short>-<major.minor>-output.
func (p pipeline) outDirName(cfg *config.Config) string {
	return p.shortName() + "-" + majorMinor(p.version(cfg)) + "-output"
}

// majorMinor keeps the first two dotted components of a version tag,
// preserving a leading v when present.
func majorMinor(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1]
}

var routineAssembly = pipeline{
	repo:    "BCCDC-PHL/routine-assembly",
	columns: []string{"ID", "R1", "R2"},
	version: func(cfg *config.Config) string { return cfg.Pipelines.RoutineAssembly.Version },
	flags: func(cfg *config.Config) map[string]string {
		return map[string]string{
			cfg.Pipelines.RoutineAssembly.AssemblyTool:   "true",
			cfg.Pipelines.RoutineAssembly.AnnotationTool: "true",
		}
	},
	completions: func(cfg *config.Config, lib library, libOutDir string) []events.Payload {
		tool := cfg.Pipelines.RoutineAssembly.AssemblyTool
		// Prefer the artifact actually produced; fall back to the
		// expected path so downstream failures are deterministic.
		assemblyPath := filepath.Join(libOutDir, lib.ID+"_"+tool+".fasta")
		if matches := fsutil.Glob(libOutDir, lib.ID+"_*.fasta"); len(matches) > 0 {
			assemblyPath = matches[0]
		}
		return []events.Payload{events.AssemblyCompleted{
			LibraryID:      lib.ID,
			R1Path:         lib.R1,
			R2Path:         lib.R2,
			AssemblyPath:   assemblyPath,
			AssemblyTool:   tool,
			AnnotationTool: cfg.Pipelines.RoutineAssembly.AnnotationTool,
		}}
	},
}

var taxonAbundance = pipeline{
	repo:    "BCCDC-PHL/taxon-abundance",
	columns: []string{"ID", "R1", "R2"},
	version: func(cfg *config.Config) string { return cfg.Pipelines.TaxonAbundance.Version },
	flags: func(cfg *config.Config) map[string]string {
		return map[string]string{
			"kraken_db":  cfg.Pipelines.TaxonAbundance.KrakenDB,
			"bracken_db": cfg.Pipelines.TaxonAbundance.BrackenDB,
		}
	},
	completions: func(cfg *config.Config, lib library, libOutDir string) []events.Payload {
		return []events.Payload{events.TaxonAbundanceCompleted{
			LibraryID:           lib.ID,
			AbundanceReportPath: filepath.Join(libOutDir, lib.ID+"_bracken_abundances.tsv"),
		}}
	},
}

var mlst = pipeline{
	repo:    "BCCDC-PHL/mlst-nf",
	columns: []string{"ID", "ASSEMBLY"},
	version: func(cfg *config.Config) string { return cfg.Pipelines.MLST.Version },
	flags:   func(cfg *config.Config) map[string]string { return nil },
	completions: func(cfg *config.Config, lib library, libOutDir string) []events.Payload {
		return []events.Payload{events.MLSTCompleted{
			LibraryID:        lib.ID,
			SequenceTypePath: filepath.Join(libOutDir, lib.ID+"_sequence_type.tsv"),
		}}
	},
}

var plasmidScreen = pipeline{
	repo:    "BCCDC-PHL/plasmid-screen",
	columns: []string{"ID", "R1", "R2", "ASSEMBLY"},
	version: func(cfg *config.Config) string { return cfg.Pipelines.PlasmidScreen.Version },
	flags: func(cfg *config.Config) map[string]string {
		return map[string]string{
			"mob_suite_db": cfg.Pipelines.PlasmidScreen.MobSuiteDB,
		}
	},
	completions: func(cfg *config.Config, lib library, libOutDir string) []events.Payload {
		return []events.Payload{events.PlasmidScreenCompleted{
			LibraryID:                lib.ID,
			ResistanceGeneReportPath: filepath.Join(libOutDir, lib.ID+"_resistance_gene_report.tsv"),
		}}
	},
}

// stageFanOut maps an incoming event kind to the pipelines dispatched
// for it. Kinds absent from the table are ignored.
var stageFanOut = map[events.Kind][]pipeline{
	events.KindSymlinksCreated:   {routineAssembly, taxonAbundance},
	events.KindAssemblyCompleted: {mlst, plasmidScreen},
}
