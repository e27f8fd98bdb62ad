// Package ingest feeds converted documents into the retrieval index.
package ingest

import (
	"context"
	"errors"

	"inkwell/internal/services"
	"inkwell/internal/services/lightrag"
)

// Document is one unit of indexable content. The DocID becomes the index's
// document identifier, tying it to the metadata record.
type Document struct {
	DocID      string
	SourcePath string
	Text       string
}

// Handle is one acquired index session. Finalize must run whether or not
// Insert succeeded, so the index's storage backends flush cleanly.
type Handle interface {
	Insert(ctx context.Context, texts, filePaths, ids []string) error
	Finalize(ctx context.Context) error
}

// Provider acquires index sessions.
type Provider interface {
	Acquire(ctx context.Context) (Handle, error)
}

// Run inserts a batch of documents through a fresh session and always
// finalizes it, joining any insert and finalize errors.
func Run(ctx context.Context, provider Provider, docs []Document) error {
	if len(docs) == 0 {
		return services.Wrap(services.ErrValidation, "ingest", "run",
			"no documents to index", nil)
	}
	texts := make([]string, len(docs))
	paths := make([]string, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		if doc.DocID == "" || doc.Text == "" {
			return services.Wrap(services.ErrValidation, "ingest", "run",
				"document id and text are required", nil)
		}
		texts[i] = doc.Text
		paths[i] = doc.SourcePath
		ids[i] = doc.DocID
	}

	handle, err := provider.Acquire(ctx)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "ingest", "acquire",
			"acquire index session", err)
	}
	insertErr := handle.Insert(ctx, texts, paths, ids)
	finalizeErr := handle.Finalize(ctx)
	if insertErr != nil || finalizeErr != nil {
		return services.Wrap(services.ErrExternalTool, "ingest", "insert",
			"index batch", errors.Join(insertErr, finalizeErr))
	}
	return nil
}

// ServerProvider acquires sessions against the index server.
type ServerProvider struct {
	client *lightrag.Client
}

// NewServerProvider wraps an index client.
func NewServerProvider(client *lightrag.Client) *ServerProvider {
	return &ServerProvider{client: client}
}

// Acquire returns a session backed by the shared client. The server owns
// the heavy state, so acquisition is cheap and never fails locally.
func (p *ServerProvider) Acquire(ctx context.Context) (Handle, error) {
	return &serverHandle{client: p.client}, nil
}

type serverHandle struct {
	client *lightrag.Client
}

func (h *serverHandle) Insert(ctx context.Context, texts, filePaths, ids []string) error {
	return h.client.InsertTexts(ctx, texts, filePaths, ids)
}

func (h *serverHandle) Finalize(ctx context.Context) error {
	return h.client.FlushPipeline(ctx)
}
