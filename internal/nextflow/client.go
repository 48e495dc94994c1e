package nextflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// Invocation describes one `nextflow run` of a released pipeline.
type Invocation struct {
	// PipelineName is the org-qualified repository, e.g. BCCDC-PHL/routine-assembly.
	PipelineName string
	// Revision is the released tag passed to -r.
	Revision string
	// LogPath receives nextflow's own log via -log.
	LogPath string
	// WorkDir is the private scratch directory passed to -work-dir.
	WorkDir string
	// Profile selects the execution profile, normally conda.
	Profile string
	// CondaCache is handed to --cache when set.
	CondaCache string
	// SampleSheetPath is handed to --samplesheet_input.
	SampleSheetPath string
	// OutDir is handed to --outdir.
	OutDir string
	// Flags carries pipeline-specific long options, e.g. kraken_db.
	Flags map[string]string
}

// Runner defines the behaviour the dispatcher needs from the workflow runner.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) error
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps nextflow CLI interactions.
type Client struct {
	binary string
	exec   Executor
}

// New constructs a nextflow client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("nextflow binary required")
	}
	client := &Client{binary: binary, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Run executes one pipeline invocation and blocks until it returns.
// A non-zero exit surfaces as an *exec.ExitError wrapped with the
// pipeline name; the caller decides what the failure means.
func (c *Client) Run(ctx context.Context, inv Invocation) error {
	if inv.PipelineName == "" {
		return errors.New("pipeline name required")
	}
	if inv.Revision == "" {
		return fmt.Errorf("pipeline %s: revision required", inv.PipelineName)
	}

	args := buildArgs(inv)
	if err := c.exec.Run(ctx, c.binary, args); err != nil {
		return fmt.Errorf("nextflow run %s: %w", inv.PipelineName, err)
	}
	return nil
}

func buildArgs(inv Invocation) []string {
	args := make([]string, 0, 16+2*len(inv.Flags))
	if inv.LogPath != "" {
		args = append(args, "-log", inv.LogPath)
	}
	args = append(args, "run", inv.PipelineName, "-r", inv.Revision)
	if inv.Profile != "" {
		args = append(args, "-profile", inv.Profile)
	}
	if inv.CondaCache != "" {
		args = append(args, "--cache", inv.CondaCache)
	}
	if inv.WorkDir != "" {
		args = append(args, "-work-dir", inv.WorkDir)
	}
	if inv.SampleSheetPath != "" {
		args = append(args, "--samplesheet_input", inv.SampleSheetPath)
	}
	if inv.OutDir != "" {
		args = append(args, "--outdir", inv.OutDir)
	}

	keys := make([]string, 0, len(inv.Flags))
	for key := range inv.Flags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, "--"+key, inv.Flags[key])
	}
	return args
}

// LogFileName derives the per-invocation runner log file name from a
// timestamp: the digits of the timestamp, the pipeline short name, and
// a fixed suffix.
func LogFileName(now time.Time, pipelineShort string) string {
	digits := strings.Builder{}
	for _, r := range now.UTC().Format(time.RFC3339) {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	return digits.String() + "-" + pipelineShort + "-nextflow.log"
}
