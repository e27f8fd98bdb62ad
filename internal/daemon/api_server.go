package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"inkwell/internal/config"
	"inkwell/internal/logging"
	"inkwell/internal/taskqueue"
	"inkwell/internal/tasks"
)

const maxUploadBytes = 256 << 20

var allowedUploadExtensions = map[string]struct{}{
	".pdf": {},
	".txt": {},
	".md":  {},
}

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logger.With(logging.String(logging.FieldComponent, "api")),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", srv.handleHealth)
	mux.HandleFunc("/api/documents/process", authMiddleware(srv.token, srv.handleProcess))
	mux.HandleFunc("/api/upload", authMiddleware(srv.token, srv.handleUpload))
	mux.HandleFunc("/api/scan", authMiddleware(srv.token, srv.handleScan))
	mux.HandleFunc("/api/cleanup", authMiddleware(srv.token, srv.handleCleanupAll))
	mux.HandleFunc("/api/cleanup/old", authMiddleware(srv.token, srv.handleCleanupOld))
	mux.HandleFunc("/api/tasks/", authMiddleware(srv.token, srv.handleTaskStatus))
	mux.HandleFunc("/api/documents", authMiddleware(srv.token, srv.handleDocuments))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": s.daemon.Running(),
	})
}

func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var request tasks.ProcessDocumentsPayload
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if len(request.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "paths is required")
		return
	}
	for _, path := range request.Paths {
		if _, err := os.Stat(path); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("file not found: %s", path))
			return
		}
	}
	s.submit(w, r, tasks.KindProcessDocuments, tasks.QueuePDFProcessing, request)
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse upload: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	userID := int64(0)
	if raw := strings.TrimSpace(r.FormValue("user_id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		userID = parsed
	}

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		writeError(w, http.StatusBadRequest, "unsafe filename")
		return
	}
	if _, ok := allowedUploadExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type: %s", filepath.Ext(name)))
		return
	}
	target := filepath.Join(s.daemon.dirs.UploadDir(), name)
	if _, err := os.Stat(target); err == nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("file already exists: %s", name))
		return
	}
	out, err := os.Create(target)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("store upload: %v", err))
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		_ = os.Remove(target)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("store upload: %v", err))
		return
	}
	if err := out.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("store upload: %v", err))
		return
	}

	id, err := s.daemon.client.Submit(r.Context(), tasks.QueuePDFProcessing,
		string(tasks.KindProcessDocuments),
		tasks.ProcessDocumentsPayload{Paths: []string{target}, UserID: userID},
		tasks.PolicyFor(tasks.KindProcessDocuments, s.daemon.cfg))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("enqueue: %v", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id": id,
		"path":    target,
	})
}

func (s *apiServer) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.submit(w, r, tasks.KindScanForNewFiles, tasks.QueueFileScanning, tasks.ScanPayload{})
}

func (s *apiServer) handleCleanupAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.submit(w, r, tasks.KindCleanupAll, tasks.QueueMaintenance, nil)
}

func (s *apiServer) handleCleanupOld(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var request tasks.CleanupOldPayload
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}
	}
	s.submit(w, r, tasks.KindCleanupOld, tasks.QueueMaintenance, request)
}

func (s *apiServer) submit(w http.ResponseWriter, r *http.Request, kind tasks.Kind, queue string, payload any) {
	id, err := s.daemon.client.Submit(r.Context(), queue, string(kind), payload,
		tasks.PolicyFor(kind, s.daemon.cfg))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("enqueue: %v", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"task_id": id})
}

type taskStatusResponse struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Queue       string          `json:"queue"`
	State       string          `json:"state"`
	Result      json.RawMessage `json:"result,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   int64           `json:"created_at,omitempty"`
	StartedAt   int64           `json:"started_at,omitempty"`
	CompletedAt int64           `json:"completed_at,omitempty"`
}

func (s *apiServer) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "task id is required")
		return
	}
	status, err := s.daemon.client.GetStatus(r.Context(), id)
	if errors.Is(err, taskqueue.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, taskStatusResponse{
		ID:          status.ID,
		Kind:        status.Kind,
		Queue:       status.Queue,
		State:       status.State.String(),
		Result:      json.RawMessage(status.Result),
		LastError:   status.LastError,
		CreatedAt:   status.CreatedAt,
		StartedAt:   status.StartedAt,
		CompletedAt: status.CompletedAt,
	})
}

func (s *apiServer) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	records, err := s.daemon.store.List(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	type documentView struct {
		DocID      string `json:"doc_id"`
		UserID     int64  `json:"user_id,omitempty"`
		Filename   string `json:"filename"`
		Title      string `json:"title"`
		PageCount  int    `json:"page_count"`
		FileSize   *int64 `json:"file_size,omitempty"`
		Status     string `json:"status"`
		TaskID     string `json:"task_id,omitempty"`
		IngestedAt string `json:"ingested_at,omitempty"`
	}
	views := make([]documentView, 0, len(records))
	for _, record := range records {
		view := documentView{
			DocID:     record.DocID,
			UserID:    record.UserID,
			Filename:  record.Filename,
			Title:     record.Title,
			PageCount: record.PageCount,
			FileSize:  record.FileSize,
			Status:    record.Status,
			TaskID:    record.TaskID,
		}
		if !record.IngestedAt.IsZero() {
			view.IngestedAt = record.IngestedAt.UTC().Format(time.RFC3339)
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": views,
		"count":     len(views),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
