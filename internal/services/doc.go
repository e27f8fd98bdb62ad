// Package services defines shared utilities consumed by the task handlers
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, queue names, and stage names for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent task results (rejected vs failed).
//   - HTTP clients for the external collaborators (conversion engine, RAG
//     index) live in subpackages.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
