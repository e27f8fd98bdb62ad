// Package conversion turns uploaded documents into indexed-ready exports
// via the conversion engine, writing one set of export files per document
// into the task's output directory.
package conversion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"

	"inkwell/internal/logging"
	"inkwell/internal/services"
	"inkwell/internal/services/docling"
)

// Batch statuses reported after converting a set of files.
const (
	BatchSuccess        = "success"
	BatchPartialSuccess = "partial_success"
	BatchFailure        = "failure"
)

// Per-document statuses. Partially converted documents are counted but
// their output is neither exported nor indexed.
const (
	DocSuccess        = "success"
	DocPartialSuccess = "partial_success"
	DocFailure        = "failure"
)

// Options controls engine features and export formats for a batch.
type Options struct {
	// EnableOCR runs OCR on every file instead of only as a retry fallback.
	EnableOCR bool
	// UseGPU runs OCR on the engine's GPU accelerator.
	UseGPU bool
	// ThreadCount bounds concurrent conversions. Defaults to 4.
	ThreadCount int
	// JSONOutput, MarkdownOutput, and DoctagsOutput select export files.
	// Doctags is the canonical ingestion text and is always requested from
	// the engine even when its file export is disabled.
	JSONOutput     bool
	MarkdownOutput bool
	DoctagsOutput  bool
}

// Result describes the conversion outcome for one source file.
type Result struct {
	DocID        string `json:"doc_id"`
	SourcePath   string `json:"source_path"`
	Filename     string `json:"filename"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	PageCount    int    `json:"page_count"`
	DoctagsPath  string `json:"doctags_path,omitempty"`
	MarkdownPath string `json:"markdown_path,omitempty"`
	JSONPath     string `json:"json_path,omitempty"`
	DoctagsText  string `json:"-"`
	Error        string `json:"error,omitempty"`
}

// Batch aggregates per-file results for one conversion run. The three
// counts always sum to the number of input files.
type Batch struct {
	Results          []Result `json:"results"`
	Succeeded        int      `json:"succeeded"`
	PartialSucceeded int      `json:"partial_succeeded"`
	Failed           int      `json:"failed"`
	Status           string   `json:"status"`
}

// Engine converts a batch of files into export documents.
type Engine interface {
	ConvertAll(ctx context.Context, paths []string, outputDir string) (Batch, error)
}

// DoclingEngine is the production Engine backed by the conversion service.
type DoclingEngine struct {
	client *docling.Client
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewDoclingEngine builds an Engine over a conversion service client.
func NewDoclingEngine(client *docling.Client, opts Options, logger *slog.Logger) *DoclingEngine {
	if opts.ThreadCount <= 0 {
		opts.ThreadCount = 4
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DoclingEngine{
		client: client,
		opts:   opts,
		logger: logger.With(logging.String(logging.FieldComponent, "conversion")),
		now:    time.Now,
	}
}

// ConvertAll converts every file and writes its exports under outputDir.
// Missing source files fail the whole batch before any work starts; a file
// the engine cannot convert only fails that file.
func (e *DoclingEngine) ConvertAll(ctx context.Context, paths []string, outputDir string) (Batch, error) {
	if len(paths) == 0 {
		return Batch{}, services.Wrap(services.ErrValidation, "conversion", "convert",
			"no files to convert", nil)
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return Batch{}, services.Wrap(services.ErrValidation, "conversion", "preflight",
				fmt.Sprintf("source file missing: %s", path), err)
		}
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Batch{}, services.Wrap(services.ErrConfiguration, "conversion", "convert",
			fmt.Sprintf("create output dir %s", outputDir), err)
	}

	results := make([]Result, len(paths))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.opts.ThreadCount)
	for i, path := range paths {
		group.Go(func() error {
			results[i] = e.convertOne(groupCtx, path, outputDir)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Batch{}, err
	}

	batch := Batch{Results: results}
	for _, result := range results {
		switch result.Status {
		case DocSuccess:
			batch.Succeeded++
		case DocPartialSuccess:
			batch.PartialSucceeded++
		default:
			batch.Failed++
		}
	}
	switch {
	case batch.Failed == 0 && batch.PartialSucceeded == 0:
		batch.Status = BatchSuccess
	case batch.Succeeded == 0 && batch.PartialSucceeded == 0:
		batch.Status = BatchFailure
	default:
		batch.Status = BatchPartialSuccess
	}
	e.logger.Info("conversion batch finished",
		logging.Int("succeeded", batch.Succeeded),
		logging.Int("partial", batch.PartialSucceeded),
		logging.Int("failed", batch.Failed),
		logging.String("status", batch.Status))
	return batch, nil
}

func (e *DoclingEngine) convertOne(ctx context.Context, path, outputDir string) Result {
	result := Result{
		DocID:      NewDocID(path, e.now()),
		SourcePath: path,
		Filename:   filepath.Base(path),
		Title:      FileStem(path),
		Status:     DocFailure,
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		if pages, err := api.PageCountFile(path); err == nil {
			result.PageCount = pages
		}
	}

	convertOpts := docling.ConvertOptions{
		Formats:     e.requestFormats(),
		OCR:         e.opts.EnableOCR,
		UseGPU:      e.opts.UseGPU,
		ThreadCount: e.opts.ThreadCount,
	}
	converted, err := e.client.ConvertFile(ctx, path, convertOpts)
	failed := err != nil || (!converted.Succeeded() && !converted.PartiallySucceeded())
	if failed && !e.opts.EnableOCR && ctx.Err() == nil {
		// Scanned documents often fail the text-layer pass; one OCR retry
		// covers them without paying its cost on every file.
		e.logger.Warn("conversion failed, retrying with ocr",
			logging.String("file", result.Filename),
			logging.Error(err))
		convertOpts.OCR = true
		converted, err = e.client.ConvertFile(ctx, path, convertOpts)
	}
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if converted.PartiallySucceeded() {
		result.Status = DocPartialSuccess
		if len(converted.Errors) > 0 {
			result.Error = strings.Join(converted.Errors, "; ")
		}
		return result
	}
	if !converted.Succeeded() {
		result.Error = fmt.Sprintf("engine status %q: %s", converted.Status,
			strings.Join(converted.Errors, "; "))
		return result
	}

	doc := converted.Document
	if doc.DoctagsText == "" {
		result.Error = "engine returned no document content"
		return result
	}
	if doc.Title != "" {
		result.Title = doc.Title
	}
	if doc.PageCount > 0 {
		result.PageCount = doc.PageCount
	}
	result.DoctagsText = doc.DoctagsText

	stem := FileStem(path)
	if e.opts.DoctagsOutput {
		target := filepath.Join(outputDir, stem+".doctags")
		if err := os.WriteFile(target, []byte(doc.DoctagsText), 0o644); err != nil {
			result.Error = fmt.Sprintf("write doctags export: %v", err)
			return result
		}
		result.DoctagsPath = target
	}
	if e.opts.MarkdownOutput && doc.MarkdownText != "" {
		target := filepath.Join(outputDir, stem+".md")
		if err := os.WriteFile(target, []byte(doc.MarkdownText), 0o644); err != nil {
			result.Error = fmt.Sprintf("write markdown export: %v", err)
			return result
		}
		result.MarkdownPath = target
	}
	if e.opts.JSONOutput && len(doc.JSONContent) > 0 {
		target := filepath.Join(outputDir, stem+".json")
		if err := os.WriteFile(target, doc.JSONContent, 0o644); err != nil {
			result.Error = fmt.Sprintf("write json export: %v", err)
			return result
		}
		result.JSONPath = target
	}

	result.Status = DocSuccess
	return result
}

func (e *DoclingEngine) requestFormats() []string {
	formats := []string{docling.FormatDoctags}
	if e.opts.MarkdownOutput {
		formats = append(formats, docling.FormatMarkdown)
	}
	if e.opts.JSONOutput {
		formats = append(formats, docling.FormatJSON)
	}
	return formats
}
