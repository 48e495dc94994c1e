package preflight

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"helicase/internal/config"
)

// Result captures one startup check.
type Result struct {
	Name   string
	Passed bool
	Fatal  bool
	Detail string
}

// minFreeBytes is the free-space floor on the analysis output
// filesystem before the daemon warns at startup.
const minFreeBytes = 50 << 30

// Check evaluates the daemon's environment against the configuration.
// Unreadable run directories and low disk space are warnings (the
// transient-filesystem policy applies at runtime); unwritable output
// roots are fatal.
func Check(cfg *config.Config) []Result {
	results := make([]Result, 0, len(cfg.Paths.RunDirs)+5)

	for _, dir := range cfg.Paths.RunDirs {
		results = append(results, checkReadableDir("Run directory", dir, false))
	}
	results = append(results,
		checkWritableDir("Symlinks root", cfg.Paths.FastqSymlinksDir),
		checkWritableDir("Analysis output root", cfg.Paths.AnalysisOutputDir),
		checkWritableDir("Nextflow logs", cfg.Paths.NextflowLogsDir),
		checkBinary("Nextflow", cfg.Nextflow.Binary),
		checkFreeSpace("Analysis output free space", cfg.Paths.AnalysisOutputDir),
	)
	return results
}

// FatalFailures filters results down to the ones that must stop startup.
func FatalFailures(results []Result) []Result {
	var fatal []Result
	for _, result := range results {
		if !result.Passed && result.Fatal {
			fatal = append(fatal, result)
		}
	}
	return fatal
}

func checkReadableDir(name, path string, fatal bool) Result {
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Fatal: fatal, Detail: fmt.Sprintf("%s: %v", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Fatal: fatal, Detail: fmt.Sprintf("%s: not a directory", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Fatal: fatal, Detail: fmt.Sprintf("%s: insufficient permissions: %v", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

func checkWritableDir(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Fatal: true, Detail: fmt.Sprintf("%s: %v", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Fatal: true, Detail: fmt.Sprintf("%s: not a directory", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Fatal: true, Detail: fmt.Sprintf("%s: insufficient permissions: %v", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

func checkBinary(name, binary string) Result {
	path, err := exec.LookPath(binary)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s not found on PATH", binary)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

func checkFreeSpace(name, path string) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s: statfs: %v", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minFreeBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s: %d GiB free", path, free>>30)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d GiB free", free>>30)}
}
