package tasks

// ProcessDocumentsPayload lists the source files for one processing task.
// UserID attributes the resulting documents to their uploader; zero leaves
// them unattributed.
type ProcessDocumentsPayload struct {
	Paths  []string `json:"paths"`
	UserID int64    `json:"user_id,omitempty"`
}

// ScanPayload optionally narrows the upload scan to specific extensions.
type ScanPayload struct {
	Extensions []string `json:"extensions,omitempty"`
}

// CleanupOldPayload overrides the configured retention age in days. Zero
// uses the configured default.
type CleanupOldPayload struct {
	MaxAgeDays int `json:"max_age_days,omitempty"`
}

// GenerateNotesPayload names the document to enrich.
type GenerateNotesPayload struct {
	DocID string `json:"doc_id"`
}
