// Package metadata persists document records produced by the ingestion
// pipeline in a local SQLite database.
package metadata

import "time"

// Document statuses recorded after pipeline stages complete.
const (
	StatusConverted = "converted"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// DocumentRecord describes one ingested document. The DocID ties the
// conversion output, the index entry, and this record together.
type DocumentRecord struct {
	// DocID is the content-addressed document identifier.
	DocID string
	// UserID attributes the document to its uploader, zero when unknown.
	UserID int64
	// Filename is the base name of the source file.
	Filename string
	// Title is the document title extracted during conversion, falling back
	// to the filename stem.
	Title string
	// PageCount is the page count of the source, zero when unknown.
	PageCount int
	// Status tracks how far the document made it through the pipeline.
	Status string
	// SourcePath is the absolute path of the uploaded file.
	SourcePath string
	// DoctagsPath points at the canonical ingestion text export.
	DoctagsPath string
	// MarkdownPath points at the Markdown export, empty when disabled.
	MarkdownPath string
	// JSONPath points at the structured JSON export, empty when disabled.
	JSONPath string
	// TaskID is the processing task that produced this record.
	TaskID string
	// FileSize is the source size in bytes, nil when the file had already
	// vanished by the time the record was built.
	FileSize *int64
	// SucceededCount, PartialCount, and FailedCount carry the per-class
	// outcome of the batch this document was processed in.
	SucceededCount int
	PartialCount   int
	FailedCount    int
	// ProcessingSeconds and IngestSeconds are the batch durations.
	ProcessingSeconds float64
	IngestSeconds     float64
	// IngestedAt is when the document entered the index.
	IngestedAt time.Time
	// CreatedAt and UpdatedAt are record bookkeeping timestamps.
	CreatedAt time.Time
	UpdatedAt time.Time
}
