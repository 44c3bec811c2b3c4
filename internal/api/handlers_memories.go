package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dogkeeper886/mem0/internal/memory"
	"github.com/dogkeeper886/mem0/internal/models"
	"github.com/dogkeeper886/mem0/internal/project"
)

type MemoryHandler struct {
	svc  *memory.Service
	base project.Env
}

// NewMemoryHandler creates the REST handlers. base is used for project
// resolution when a request carries no work_dir of its own.
func NewMemoryHandler(svc *memory.Service, base project.Env) *MemoryHandler {
	return &MemoryHandler{svc: svc, base: base}
}

func (h *MemoryHandler) env(workDir, sessionID string) project.Env {
	env := h.base
	if workDir = strings.TrimSpace(workDir); workDir != "" {
		env.WorkDir = workDir
	}
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" {
		env.SessionID = sessionID
	}
	return env
}

// Add handles POST /memories
func (h *MemoryHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req models.AddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	added, err := h.svc.Add(r.Context(), h.env(req.WorkDir, req.SessionID), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.AddResponse{Results: added})
}

// Search handles POST /memories/search
func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	results, err := h.svc.Search(r.Context(), h.env(req.WorkDir, req.SessionID), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.SearchResponse{Results: results})
}

// List handles GET /memories
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	memories, err := h.svc.ListAll(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ListResponse{Results: memories})
}

// Delete handles DELETE /memories/{id}
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteOne(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reset handles DELETE /memories?user_id=
func (h *MemoryHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reset(r.Context(), r.URL.Query().Get("user_id")); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Project handles POST /project
func (h *MemoryHandler) Project(w http.ResponseWriter, r *http.Request) {
	var req models.ProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.svc.Project(r.Context(), h.env(req.WorkDir, req.SessionID)))
}
