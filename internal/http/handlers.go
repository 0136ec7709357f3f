package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	applog "spesa/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports not_ready when the storage backend fails its probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"storage": "ok"}
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["storage"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		}
	}

	NewJSONResponse().Status(code).JSON(map[string]any{
		"status":  status,
		"checks":  checks,
		"expense": map[string]any{"count": s.store.Len(), "version": s.store.Version()},
	}).Write(w)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().JSON(s.dashboard.Dashboard(r.Context())).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	backup, err := s.backup.Export(r.Context())
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}
	NewJSONResponse().
		Attachment(backup.Filename).
		Raw(backup.Data).
		Write(w)
}

// handleImport leaves the stored payload untouched when the upload is
// rejected.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := ReadImportBody(r)
	if err != nil {
		writeError(w, r, applog.OpImport, err)
		return
	}
	n, err := s.backup.Import(r.Context(), data)
	if err != nil {
		writeError(w, r, applog.OpImport, err)
		return
	}
	NewJSONResponse().JSON(map[string]int{"imported": n}).Write(w)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if err := s.backup.Reset(r.Context(), confirmed); err != nil {
		writeError(w, r, applog.OpReset, err)
		return
	}
	NoContent().Write(w)
}
