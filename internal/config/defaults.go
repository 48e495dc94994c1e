package config

const (
	defaultFastqSymlinksDir  = "~/.local/share/helicase/fastq_symlinks"
	defaultAnalysisOutputDir = "~/.local/share/helicase/analysis_by_year"
	defaultNextflowLogsDir   = "~/.local/share/helicase/nextflow_logs"
	defaultLogDir            = "~/.local/share/helicase/logs"
	defaultProjectID         = "cpo"
	defaultNextflowBinary    = "nextflow"
	defaultNextflowProfile   = "conda"
	defaultCondaCache        = "~/.conda/envs"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"

	defaultSymlinkScanIntervalMS   = 2000
	defaultAnalysisScanIntervalMS  = 2000
	defaultConfigReloadIntervalMS  = 60000
	defaultExcludeReloadIntervalMS = 10000
	defaultBatchMaxSize            = 100
	defaultBatchTimeoutMS          = 5000
	defaultBusBuffer               = 64
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			FastqSymlinksDir:  defaultFastqSymlinksDir,
			AnalysisOutputDir: defaultAnalysisOutputDir,
			NextflowLogsDir:   defaultNextflowLogsDir,
			LogDir:            defaultLogDir,
		},
		SampleSheet: SampleSheet{
			ProjectID: defaultProjectID,
		},
		Nextflow: Nextflow{
			Binary:     defaultNextflowBinary,
			Profile:    defaultNextflowProfile,
			CondaCache: defaultCondaCache,
		},
		Pipelines: Pipelines{
			RoutineAssembly: RoutineAssembly{
				Version:        "v0.4.2",
				AssemblyTool:   "unicycler",
				AnnotationTool: "prokka",
			},
			TaxonAbundance: TaxonAbundance{
				Version: "v0.1.4",
			},
			MLST: MLST{
				Version: "v0.1.2",
			},
			PlasmidScreen: PlasmidScreen{
				Version: "v0.2.1",
			},
		},
		Workflow: Workflow{
			SymlinkScanIntervalMS:   defaultSymlinkScanIntervalMS,
			AnalysisScanIntervalMS:  defaultAnalysisScanIntervalMS,
			ConfigReloadIntervalMS:  defaultConfigReloadIntervalMS,
			ExcludeReloadIntervalMS: defaultExcludeReloadIntervalMS,
			BatchMaxSize:            defaultBatchMaxSize,
			BatchTimeoutMS:          defaultBatchTimeoutMS,
			BusBuffer:               defaultBusBuffer,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
