// Package nextflow wraps invocations of the external workflow runner.
// The dispatcher hands it fully-resolved invocations; the package owns
// argument construction and nothing else, so tests can swap the
// executor and assert the exact command line.
package nextflow
