package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dogkeeper886/mem0/internal/apperr"
	"github.com/dogkeeper886/mem0/internal/models"
)

// EnvelopeRequest is the body of POST /mcp.
type EnvelopeRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// EnvelopeResponse carries either a result or an error message. Failures are
// reported in the body with a 200 status.
type EnvelopeResponse struct {
	Result any         `json:"result"`
	Error  string      `json:"error,omitempty"`
	Kind   apperr.Kind `json:"kind,omitempty"`
}

// EnvelopeHandler serves the method-dispatch endpoint and the two legacy
// convenience routes built on it.
type EnvelopeHandler struct {
	memories *MemoryHandler
	logger   *slog.Logger
}

func NewEnvelopeHandler(memories *MemoryHandler, logger *slog.Logger) *EnvelopeHandler {
	return &EnvelopeHandler{memories: memories, logger: logger}
}

// Handle handles POST /mcp
func (h *EnvelopeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req EnvelopeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.dispatch(r.Context(), req))
}

// LegacyAdd handles POST /memory/add, whose body is a bare message array.
func (h *EnvelopeHandler) LegacyAdd(w http.ResponseWriter, r *http.Request) {
	var msgs []models.Message
	if err := decodeJSON(r, &msgs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	params, _ := json.Marshal(models.AddRequest{Messages: msgs, UserID: r.URL.Query().Get("user_id")})
	writeJSON(w, http.StatusOK, h.dispatch(r.Context(), EnvelopeRequest{Method: "memory/add", Params: params}))
}

// LegacySearch handles GET /memory/search?query=&user_id=&limit=
func (h *EnvelopeHandler) LegacySearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	params, _ := json.Marshal(models.SearchRequest{
		Query:  q.Get("query"),
		UserID: q.Get("user_id"),
		Limit:  limit,
		Scope:  models.Scope(q.Get("scope")),
	})
	writeJSON(w, http.StatusOK, h.dispatch(r.Context(), EnvelopeRequest{Method: "memory/search", Params: params}))
}

func (h *EnvelopeHandler) dispatch(ctx context.Context, req EnvelopeRequest) EnvelopeResponse {
	result, err := h.call(ctx, req)
	if err != nil {
		h.logger.Error("envelope call failed", "method", req.Method, "error", err)
		return EnvelopeResponse{Error: err.Error(), Kind: apperr.KindOf(err)}
	}
	return EnvelopeResponse{Result: result}
}

func (h *EnvelopeHandler) call(ctx context.Context, req EnvelopeRequest) (any, error) {
	svc := h.memories.svc

	switch req.Method {
	case "memory/add":
		var p models.AddRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		added, err := svc.Add(ctx, h.memories.env(p.WorkDir, p.SessionID), &p)
		if err != nil {
			return nil, err
		}
		return models.AddResponse{Results: added}, nil

	case "memory/search":
		var p models.SearchRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		results, err := svc.Search(ctx, h.memories.env(p.WorkDir, p.SessionID), &p)
		if err != nil {
			return nil, err
		}
		return models.SearchResponse{Results: results}, nil

	case "memory/list":
		var p models.UserRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		memories, err := svc.ListAll(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		return models.ListResponse{Results: memories}, nil

	case "memory/delete":
		var p models.DeleteRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if err := svc.DeleteOne(ctx, p.MemoryID); err != nil {
			return nil, err
		}
		return models.SuccessResponse{Success: true}, nil

	case "memory/reset":
		var p models.UserRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if err := svc.Reset(ctx, p.UserID); err != nil {
			return nil, err
		}
		return models.SuccessResponse{Success: true}, nil

	case "project/context":
		var p models.ProjectRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return svc.Project(ctx, h.memories.env(p.WorkDir, p.SessionID)), nil

	case "ping":
		return map[string]string{"status": "pong"}, nil

	default:
		return nil, apperr.Invalid("method", "unknown method %q", req.Method)
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Invalid("params", "%v", err)
	}
	return nil
}
