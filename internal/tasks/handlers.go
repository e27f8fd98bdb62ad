package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"inkwell/internal/config"
	"inkwell/internal/conversion"
	"inkwell/internal/docdir"
	"inkwell/internal/ingest"
	"inkwell/internal/logging"
	"inkwell/internal/metadata"
	"inkwell/internal/services"
	"inkwell/internal/taskqueue"
)

// Submitter enqueues follow-on tasks. *taskqueue.Client satisfies it.
type Submitter interface {
	Submit(ctx context.Context, queue, kind string, payload any, policy taskqueue.SubmitPolicy) (string, error)
}

// Handlers owns the stage collaborators and implements every task kind.
type Handlers struct {
	cfg       *config.Config
	engine    conversion.Engine
	provider  ingest.Provider
	store     *metadata.Store
	dirs      *docdir.Manager
	submitter Submitter
	logger    *slog.Logger
}

// NewHandlers wires the task handlers. The submitter may be nil, which
// disables follow-on note generation.
func NewHandlers(cfg *config.Config, engine conversion.Engine, provider ingest.Provider,
	store *metadata.Store, dirs *docdir.Manager, submitter Submitter, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		cfg:       cfg,
		engine:    engine,
		provider:  provider,
		store:     store,
		dirs:      dirs,
		submitter: submitter,
		logger:    logger.With(logging.String(logging.FieldComponent, "tasks")),
	}
}

// Register binds every kind to the mux with its routed time limits.
func (h *Handlers) Register(mux *taskqueue.Mux) {
	bind := func(kind Kind, fn taskqueue.HandlerFunc) {
		route := routes[kind]
		mux.Handle(string(kind), fn, taskqueue.HandlerOptions{
			SoftTimeLimit: route.SoftTimeLimit,
			HardTimeLimit: route.HardTimeLimit,
		})
	}
	bind(KindProcessDocuments, h.ProcessDocuments)
	bind(KindScanForNewFiles, h.ScanForNewFiles)
	bind(KindCleanupAll, h.CleanupAllTaskDirectories)
	bind(KindCleanupOld, h.CleanupOldTaskDirectories)
	bind(KindGenerateNotes, h.GenerateNotes)
}

// ProcessDocuments converts a batch of files, indexes the converted text,
// persists one record per document, and fans out note generation. Failures
// are reported through the result, never as a handler error, so the batch
// is not redelivered.
func (h *Handlers) ProcessDocuments(ctx context.Context, payload []byte) error {
	taskID, _ := services.TaskIDFromContext(ctx)
	result := ProcessResult{Status: StatusError, TaskID: taskID}
	logger := h.logger.With(logging.String(logging.FieldTaskID, taskID))

	var request ProcessDocumentsPayload
	if err := json.Unmarshal(payload, &request); err != nil {
		result.Message = fmt.Sprintf("decode payload: %v", err)
		return taskqueue.SetResult(ctx, result)
	}
	if len(request.Paths) == 0 {
		result.Message = "no files to process"
		return taskqueue.SetResult(ctx, result)
	}

	outputDir, err := h.dirs.TaskOutputDir(taskID)
	if err != nil {
		result.Message = err.Error()
		return taskqueue.SetResult(ctx, result)
	}
	result.OutputDir = outputDir

	started := time.Now()
	batch, err := h.engine.ConvertAll(ctx, request.Paths, outputDir)
	result.ProcessingSeconds = time.Since(started).Seconds()
	if err != nil {
		result.Message = err.Error()
		logger.Error("conversion failed", logging.Error(err))
		return taskqueue.SetResult(ctx, result)
	}
	result.Counts = ProcessingCounts{
		Success:        batch.Succeeded,
		PartialSuccess: batch.PartialSucceeded,
		Failure:        batch.Failed,
	}
	for _, doc := range batch.Results {
		result.Documents = append(result.Documents, DocumentOutcome{
			DocID:     doc.DocID,
			Filename:  doc.Filename,
			Status:    doc.Status,
			PageCount: doc.PageCount,
			Error:     doc.Error,
		})
	}
	if batch.Succeeded == 0 && batch.PartialSucceeded == 0 {
		result.Message = "no documents converted"
		return taskqueue.SetResult(ctx, result)
	}

	// Only fully converted documents are indexed and persisted; partial
	// output is reported through the counts.
	var docs []ingest.Document
	for _, doc := range batch.Results {
		if doc.Status != conversion.DocSuccess {
			continue
		}
		docs = append(docs, ingest.Document{
			DocID:      doc.DocID,
			SourcePath: doc.SourcePath,
			Text:       doc.DoctagsText,
		})
	}

	if len(docs) > 0 {
		ingestStarted := time.Now()
		if err := ingest.Run(ctx, h.provider, docs); err != nil {
			result.Message = err.Error()
			logger.Error("ingestion failed", logging.Error(err))
			return taskqueue.SetResult(ctx, result)
		}
		result.IngestSeconds = time.Since(ingestStarted).Seconds()

		records := h.buildRecords(batch, request.UserID, taskID, result)
		if err := h.store.SaveBatch(ctx, records); err != nil {
			result.Message = err.Error()
			logger.Error("metadata persistence failed", logging.Error(err))
			return taskqueue.SetResult(ctx, result)
		}

		if h.submitter != nil {
			for _, record := range records {
				if _, err := h.submitter.Submit(ctx, QueueNoteGeneration, string(KindGenerateNotes),
					GenerateNotesPayload{DocID: record.DocID}, PolicyFor(KindGenerateNotes, h.cfg)); err != nil {
					logger.Warn("note generation enqueue failed",
						logging.String(logging.FieldDocID, record.DocID),
						logging.Error(err))
				}
			}
		}
	}

	result.Status = StatusSuccess
	result.Message = fmt.Sprintf("processed %d of %d documents", batch.Succeeded, len(batch.Results))
	logger.Info("document batch processed",
		logging.Int("succeeded", batch.Succeeded),
		logging.Int("partial", batch.PartialSucceeded),
		logging.Int("failed", batch.Failed))
	return taskqueue.SetResult(ctx, result)
}

// buildRecords turns the fully converted documents of a batch into metadata
// records carrying the batch-level counts and durations. The source file
// size is read best effort; a file deleted mid-task stays unset.
func (h *Handlers) buildRecords(batch conversion.Batch, userID int64, taskID string, result ProcessResult) []metadata.DocumentRecord {
	now := time.Now().UTC()
	var records []metadata.DocumentRecord
	for _, doc := range batch.Results {
		if doc.Status != conversion.DocSuccess {
			continue
		}
		record := metadata.DocumentRecord{
			DocID:             doc.DocID,
			UserID:            userID,
			Filename:          doc.Filename,
			Title:             doc.Title,
			PageCount:         doc.PageCount,
			Status:            metadata.StatusCompleted,
			SourcePath:        doc.SourcePath,
			DoctagsPath:       doc.DoctagsPath,
			MarkdownPath:      doc.MarkdownPath,
			JSONPath:          doc.JSONPath,
			TaskID:            taskID,
			SucceededCount:    batch.Succeeded,
			PartialCount:      batch.PartialSucceeded,
			FailedCount:       batch.Failed,
			ProcessingSeconds: result.ProcessingSeconds,
			IngestSeconds:     result.IngestSeconds,
			IngestedAt:        now,
		}
		if info, err := os.Stat(doc.SourcePath); err == nil {
			size := info.Size()
			record.FileSize = &size
		}
		records = append(records, record)
	}
	return records
}

// ScanForNewFiles walks the upload directory and reports matching files.
// Walk errors surface as handler errors so the routed retry applies.
func (h *Handlers) ScanForNewFiles(ctx context.Context, payload []byte) error {
	taskID, _ := services.TaskIDFromContext(ctx)
	var request ScanPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &request); err != nil {
			return taskqueue.SetResult(ctx, ScanResult{
				Status:  StatusError,
				Message: fmt.Sprintf("decode payload: %v", err),
				TaskID:  taskID,
			})
		}
	}
	files, err := h.dirs.ScanForFiles(request.Extensions)
	if err != nil {
		return err
	}
	return taskqueue.SetResult(ctx, ScanResult{
		Status: StatusSuccess,
		TaskID: taskID,
		Files:  files,
		Count:  len(files),
	})
}

// CleanupAllTaskDirectories empties both the output and upload roots.
func (h *Handlers) CleanupAllTaskDirectories(ctx context.Context, payload []byte) error {
	taskID, _ := services.TaskIDFromContext(ctx)
	result := CleanupResult{Status: StatusSuccess, TaskID: taskID}
	for _, root := range []string{h.dirs.OutputDir(), h.dirs.UploadDir()} {
		report, err := docdir.CleanupAll(root)
		if err != nil {
			result.Status = StatusError
			result.Message = err.Error()
			return taskqueue.SetResult(ctx, result)
		}
		result.Deleted = append(result.Deleted, report.Deleted...)
		result.Skipped += report.Skipped
		result.Failed = append(result.Failed, report.Failed...)
	}
	if len(result.Failed) > 0 {
		result.Message = fmt.Sprintf("%d entries could not be removed", len(result.Failed))
	}
	h.logger.Info("cleanup finished",
		logging.String(logging.FieldTaskID, taskID),
		logging.Int("deleted", len(result.Deleted)))
	return taskqueue.SetResult(ctx, result)
}

// CleanupOldTaskDirectories removes aged task directories from the output
// root, leaving everything else untouched.
func (h *Handlers) CleanupOldTaskDirectories(ctx context.Context, payload []byte) error {
	taskID, _ := services.TaskIDFromContext(ctx)
	result := CleanupResult{Status: StatusSuccess, TaskID: taskID}

	var request CleanupOldPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &request); err != nil {
			result.Status = StatusError
			result.Message = fmt.Sprintf("decode payload: %v", err)
			return taskqueue.SetResult(ctx, result)
		}
	}
	days := request.MaxAgeDays
	if days <= 0 {
		days = h.cfg.Cleanup.MaxAgeDays
	}
	result.MaxAgeDays = days

	report, err := docdir.CleanupOld(h.dirs.OutputDir(), time.Duration(days)*24*time.Hour, time.Now())
	if err != nil {
		result.Status = StatusError
		result.Message = err.Error()
		return taskqueue.SetResult(ctx, result)
	}
	result.Deleted = report.Deleted
	result.Skipped = report.Skipped
	result.Failed = report.Failed
	if len(result.Failed) > 0 {
		result.Message = fmt.Sprintf("%d entries could not be removed", len(result.Failed))
	}
	h.logger.Info("aged cleanup finished",
		logging.String(logging.FieldTaskID, taskID),
		logging.Int("deleted", len(result.Deleted)),
		logging.Int("max_age_days", days))
	return taskqueue.SetResult(ctx, result)
}

// GenerateNotes records a note-generation request against an ingested
// document. The enrichment itself runs in an external collaborator; a
// missing record is a handler error so the routed retry can cover the race
// with metadata persistence.
func (h *Handlers) GenerateNotes(ctx context.Context, payload []byte) error {
	taskID, _ := services.TaskIDFromContext(ctx)
	var request GenerateNotesPayload
	if err := json.Unmarshal(payload, &request); err != nil {
		return taskqueue.SetResult(ctx, NotesResult{
			Status:  StatusError,
			Message: fmt.Sprintf("decode payload: %v", err),
			TaskID:  taskID,
		})
	}
	if request.DocID == "" {
		return taskqueue.SetResult(ctx, NotesResult{
			Status:  StatusError,
			Message: "doc id is required",
			TaskID:  taskID,
		})
	}
	record, err := h.store.GetByDocID(ctx, request.DocID)
	if err != nil {
		return err
	}
	h.logger.Info("note generation recorded",
		logging.String(logging.FieldTaskID, taskID),
		logging.String(logging.FieldDocID, record.DocID))
	return taskqueue.SetResult(ctx, NotesResult{
		Status: StatusSuccess,
		TaskID: taskID,
		DocID:  record.DocID,
		Title:  record.Title,
	})
}
