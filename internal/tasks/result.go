package tasks

// Result statuses. Handlers always report one; failures are carried in the
// result rather than raised, so a broken batch never poisons the queue.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DocumentOutcome summarizes one document within a processing result.
type DocumentOutcome struct {
	DocID     string `json:"doc_id,omitempty"`
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	PageCount int    `json:"page_count,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ProcessingCounts breaks a batch down by conversion outcome. The three
// counts sum to the number of input files.
type ProcessingCounts struct {
	Success        int `json:"success_count"`
	PartialSuccess int `json:"partial_success_count"`
	Failure        int `json:"failure_count"`
}

// ProcessResult is the structured outcome of process_documents.
type ProcessResult struct {
	Status            string            `json:"status"`
	Message           string            `json:"message,omitempty"`
	TaskID            string            `json:"task_id,omitempty"`
	Documents         []DocumentOutcome `json:"documents,omitempty"`
	Counts            ProcessingCounts  `json:"processing_results"`
	OutputDir         string            `json:"output_dir,omitempty"`
	ProcessingSeconds float64           `json:"processing_seconds"`
	IngestSeconds     float64           `json:"ingest_seconds"`
}

// ScanResult is the structured outcome of scan_for_new_files.
type ScanResult struct {
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	TaskID  string   `json:"task_id,omitempty"`
	Files   []string `json:"files"`
	Count   int      `json:"count"`
}

// CleanupResult is the structured outcome of the cleanup kinds. Deleted
// lists the removed paths; Failed lists the paths that resisted removal.
type CleanupResult struct {
	Status     string   `json:"status"`
	Message    string   `json:"message,omitempty"`
	TaskID     string   `json:"task_id,omitempty"`
	Deleted    []string `json:"deleted"`
	Skipped    int      `json:"skipped"`
	Failed     []string `json:"failed,omitempty"`
	MaxAgeDays int      `json:"max_age_days,omitempty"`
}

// NotesResult is the structured outcome of generate_notes.
type NotesResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
	DocID   string `json:"doc_id"`
	Title   string `json:"title,omitempty"`
}
