package config

import "strings"

// normalize expands every path field and fills zero-valued settings
// with repository defaults.
func (c *Config) normalize() error {
	var err error
	for i, dir := range c.Paths.RunDirs {
		if c.Paths.RunDirs[i], err = expandPath(strings.TrimSpace(dir)); err != nil {
			return err
		}
	}
	if c.Paths.FastqSymlinksDir, err = expandPath(c.Paths.FastqSymlinksDir); err != nil {
		return err
	}
	if c.Paths.AnalysisOutputDir, err = expandPath(c.Paths.AnalysisOutputDir); err != nil {
		return err
	}
	if c.Paths.NextflowLogsDir, err = expandPath(c.Paths.NextflowLogsDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	for i, path := range c.Exclusions.RunExcludeFiles {
		if c.Exclusions.RunExcludeFiles[i], err = expandPath(strings.TrimSpace(path)); err != nil {
			return err
		}
	}
	for i, path := range c.Exclusions.LibraryExcludeFiles {
		if c.Exclusions.LibraryExcludeFiles[i], err = expandPath(strings.TrimSpace(path)); err != nil {
			return err
		}
	}
	if c.Nextflow.CondaCache, err = expandPath(c.Nextflow.CondaCache); err != nil {
		return err
	}
	if strings.TrimSpace(c.Daemon.Socket) != "" {
		if c.Daemon.Socket, err = expandPath(c.Daemon.Socket); err != nil {
			return err
		}
	}

	if c.Nextflow.Binary == "" {
		c.Nextflow.Binary = defaultNextflowBinary
	}
	if c.Nextflow.Profile == "" {
		c.Nextflow.Profile = defaultNextflowProfile
	}
	if c.Workflow.SymlinkScanIntervalMS <= 0 {
		c.Workflow.SymlinkScanIntervalMS = defaultSymlinkScanIntervalMS
	}
	if c.Workflow.AnalysisScanIntervalMS <= 0 {
		c.Workflow.AnalysisScanIntervalMS = defaultAnalysisScanIntervalMS
	}
	if c.Workflow.ConfigReloadIntervalMS <= 0 {
		c.Workflow.ConfigReloadIntervalMS = defaultConfigReloadIntervalMS
	}
	if c.Workflow.ExcludeReloadIntervalMS <= 0 {
		c.Workflow.ExcludeReloadIntervalMS = defaultExcludeReloadIntervalMS
	}
	if c.Workflow.BatchMaxSize <= 0 {
		c.Workflow.BatchMaxSize = defaultBatchMaxSize
	}
	if c.Workflow.BatchTimeoutMS <= 0 {
		c.Workflow.BatchTimeoutMS = defaultBatchTimeoutMS
	}
	if c.Workflow.BusBuffer <= 0 {
		c.Workflow.BusBuffer = defaultBusBuffer
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}
