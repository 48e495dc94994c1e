package events

import (
	"log/slog"
	"time"
)

// Topic keys the publish/subscribe fan-out on the bus.
type Topic string

const (
	// TopicSymlinking carries run discovery and link materialization events.
	TopicSymlinking Topic = "symlinking"
	// TopicAnalysis carries events that drive pipeline dispatch.
	TopicAnalysis Topic = "analysis"
	// TopicLogging carries log records destined for the logging consumer.
	TopicLogging Topic = "logging"
)

// Kind tags the payload variant of an envelope.
type Kind string

const (
	KindRunDirectoryFound       Kind = "run-directory-found"
	KindSymlinksCreated         Kind = "symlinks-created"
	KindAnalysisStarted         Kind = "analysis-started"
	KindAnalysisCompleted       Kind = "analysis-completed"
	KindAssemblyCompleted       Kind = "assembly-completed"
	KindTaxonAbundanceCompleted Kind = "taxon-abundance-completed"
	KindMLSTCompleted           Kind = "mlst-completed"
	KindPlasmidScreenCompleted  Kind = "plasmid-screen-completed"
	KindLogRecord               Kind = "log-record"
)

// Payload is the tagged union of message variants.
type Payload interface {
	Kind() Kind
}

// LibraryScoped is implemented by payloads that concern a single
// library. The dispatcher groups exclusively through this accessor so
// that grouping never depends on which variant carried the id.
type LibraryScoped interface {
	Payload
	Library() string
}

// Envelope is one message admitted to the bus.
type Envelope struct {
	Topic     Topic
	Timestamp time.Time
	Payload   Payload
}

// New stamps a payload for publication on a topic.
func New(topic Topic, payload Payload) Envelope {
	return Envelope{Topic: topic, Timestamp: time.Now().UTC(), Payload: payload}
}

// RunDirectoryFound announces an eligible run directory.
type RunDirectoryFound struct {
	RunDir string
}

func (RunDirectoryFound) Kind() Kind { return KindRunDirectoryFound }

// SymlinkPaths holds the destination link pair for one library.
type SymlinkPaths struct {
	R1 string
	R2 string
}

// SymlinksCreated announces that both read links for a library exist.
type SymlinksCreated struct {
	LibraryID string
	Symlinks  SymlinkPaths
}

func (SymlinksCreated) Kind() Kind        { return KindSymlinksCreated }
func (e SymlinksCreated) Library() string { return e.LibraryID }

// AnalysisStarted marks the beginning of one pipeline invocation for a library.
type AnalysisStarted struct {
	PipelineName string
	LibraryID    string
}

func (AnalysisStarted) Kind() Kind        { return KindAnalysisStarted }
func (e AnalysisStarted) Library() string { return e.LibraryID }

// AnalysisCompleted marks the end of one pipeline invocation for a library.
type AnalysisCompleted struct {
	PipelineName    string
	PipelineVersion string
	LibraryID       string
	OutDir          string
}

func (AnalysisCompleted) Kind() Kind        { return KindAnalysisCompleted }
func (e AnalysisCompleted) Library() string { return e.LibraryID }

// AssemblyCompleted carries the expected assembly artifact for a library.
type AssemblyCompleted struct {
	LibraryID      string
	R1Path         string
	R2Path         string
	AssemblyPath   string
	AssemblyTool   string
	AnnotationTool string
}

func (AssemblyCompleted) Kind() Kind        { return KindAssemblyCompleted }
func (e AssemblyCompleted) Library() string { return e.LibraryID }

// TaxonAbundanceCompleted carries the expected abundance report for a library.
type TaxonAbundanceCompleted struct {
	LibraryID           string
	AbundanceReportPath string
}

func (TaxonAbundanceCompleted) Kind() Kind        { return KindTaxonAbundanceCompleted }
func (e TaxonAbundanceCompleted) Library() string { return e.LibraryID }

// MLSTCompleted carries the expected sequence-type report for a library.
type MLSTCompleted struct {
	LibraryID        string
	SequenceTypePath string
}

func (MLSTCompleted) Kind() Kind        { return KindMLSTCompleted }
func (e MLSTCompleted) Library() string { return e.LibraryID }

// PlasmidScreenCompleted carries the expected resistance gene report for a library.
type PlasmidScreenCompleted struct {
	LibraryID                string
	ResistanceGeneReportPath string
}

func (PlasmidScreenCompleted) Kind() Kind        { return KindPlasmidScreenCompleted }
func (e PlasmidScreenCompleted) Library() string { return e.LibraryID }

// LogRecord is a structured log line routed through the logging topic.
type LogRecord struct {
	Level   slog.Level
	Message string
	Fields  map[string]string
}

func (LogRecord) Kind() Kind { return KindLogRecord }
