package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSampleSheet(); err != nil {
		return err
	}
	if err := c.validatePipelines(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if len(c.Paths.RunDirs) == 0 {
		return errors.New("paths.run_dirs must list at least one directory to scan")
	}
	for _, dir := range c.Paths.RunDirs {
		if strings.TrimSpace(dir) == "" {
			return errors.New("paths.run_dirs entries must not be empty")
		}
	}
	if c.Paths.FastqSymlinksDir == "" {
		return errors.New("paths.fastq_symlinks_dir must be set")
	}
	if c.Paths.AnalysisOutputDir == "" {
		return errors.New("paths.analysis_output_dir must be set")
	}
	if c.Paths.NextflowLogsDir == "" {
		return errors.New("paths.nextflow_logs_dir must be set")
	}
	return nil
}

func (c *Config) validateSampleSheet() error {
	if strings.TrimSpace(c.SampleSheet.ProjectID) == "" {
		return errors.New("samplesheet.project_id must be set")
	}
	return nil
}

func (c *Config) validatePipelines() error {
	pipelines := map[string]string{
		"pipelines.routine_assembly": c.Pipelines.RoutineAssembly.Version,
		"pipelines.taxon_abundance":  c.Pipelines.TaxonAbundance.Version,
		"pipelines.mlst":             c.Pipelines.MLST.Version,
		"pipelines.plasmid_screen":   c.Pipelines.PlasmidScreen.Version,
	}
	for key, version := range pipelines {
		if strings.TrimSpace(version) == "" {
			return fmt.Errorf("%s.version must be set", key)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
