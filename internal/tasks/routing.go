// Package tasks defines the pipeline's task kinds, their routing onto
// queues, and the handlers that execute them.
package tasks

import (
	"time"

	"inkwell/internal/config"
	"inkwell/internal/taskqueue"
)

// Kind identifies a task type.
type Kind string

// Task kinds dispatched by the pipeline.
const (
	KindProcessDocuments Kind = "process_documents"
	KindScanForNewFiles  Kind = "scan_for_new_files"
	KindCleanupAll       Kind = "cleanup_all_task_directories"
	KindCleanupOld       Kind = "cleanup_old_task_directories"
	KindGenerateNotes    Kind = "generate_notes"
)

// Queue names.
const (
	QueuePDFProcessing  = "pdf_processing"
	QueueFileScanning   = "file_scanning"
	QueueMaintenance    = "maintenance"
	QueueNoteGeneration = "note_generation"
)

// Route fixes where a kind runs and under which limits.
type Route struct {
	Queue         string
	RatePerMinute int
	SoftTimeLimit time.Duration
	HardTimeLimit time.Duration
	MaxRetry      int
}

var routes = map[Kind]Route{
	KindProcessDocuments: {
		Queue:         QueuePDFProcessing,
		RatePerMinute: 3,
		SoftTimeLimit: 25 * time.Minute,
		HardTimeLimit: 30 * time.Minute,
	},
	KindScanForNewFiles: {
		Queue:         QueueFileScanning,
		RatePerMinute: 10,
		HardTimeLimit: 5 * time.Minute,
		MaxRetry:      1,
	},
	KindCleanupAll: {
		Queue:         QueueMaintenance,
		RatePerMinute: 1,
		HardTimeLimit: 10 * time.Minute,
	},
	KindCleanupOld: {
		Queue:         QueueMaintenance,
		RatePerMinute: 1,
		HardTimeLimit: 10 * time.Minute,
	},
	KindGenerateNotes: {
		Queue:         QueueNoteGeneration,
		RatePerMinute: 10,
		HardTimeLimit: 10 * time.Minute,
		MaxRetry:      1,
	},
}

// RouteFor resolves the route of a kind.
func RouteFor(kind Kind) (Route, bool) {
	route, ok := routes[kind]
	return route, ok
}

// PolicyFor builds the submission policy for a kind from its route and the
// configured result retention.
func PolicyFor(kind Kind, cfg *config.Config) taskqueue.SubmitPolicy {
	route := routes[kind]
	return taskqueue.SubmitPolicy{
		MaxRetry:         route.MaxRetry,
		RetentionSeconds: int64(cfg.Workers.ResultRetention),
	}
}

// Queues derives the worker pool configuration for every queue the routing
// table references, with pool sizes taken from the config.
func Queues(cfg *config.Config) []taskqueue.QueueConfig {
	workers := map[string]int{
		QueuePDFProcessing:  cfg.Workers.PDFProcessing,
		QueueFileScanning:   cfg.Workers.FileScanning,
		QueueMaintenance:    cfg.Workers.Maintenance,
		QueueNoteGeneration: cfg.Workers.NoteGeneration,
	}
	seen := make(map[string]bool)
	var queues []taskqueue.QueueConfig
	for _, kind := range []Kind{KindProcessDocuments, KindScanForNewFiles, KindCleanupAll, KindCleanupOld, KindGenerateNotes} {
		route := routes[kind]
		if seen[route.Queue] {
			continue
		}
		seen[route.Queue] = true
		queues = append(queues, taskqueue.QueueConfig{
			Name:          route.Queue,
			Workers:       workers[route.Queue],
			RatePerMinute: route.RatePerMinute,
		})
	}
	return queues
}
