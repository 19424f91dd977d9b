package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/datakettle/dp-composer/internal/domain"
	"github.com/datakettle/dp-composer/internal/orchestrator"
	"github.com/datakettle/dp-composer/internal/store"
)

// Handlers holds the dependencies the HTTP and websocket endpoints share.
type Handlers struct {
	orch     *orchestrator.Orchestrator
	registry *store.Registry
	store    store.Store
	logger   *slog.Logger
}

// ChatRequest is the POST /v1/chat body. SessionID is optional; a missing
// one allocates a new session whose id comes back in the response.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is one handled turn plus the interview's position after it.
type ChatResponse struct {
	orchestrator.TurnResult
	Progress *orchestrator.Progress `json:"progress,omitempty"`
}

// SessionListResponse is the GET /v1/sessions body.
type SessionListResponse struct {
	Sessions []store.SessionInfo `json:"sessions"`
	Count    int                 `json:"count"`
}

func (h *Handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.ErrInvalidRequest("malformed request body"))
		return
	}

	if req.SessionID == "" {
		req.SessionID = h.registry.NewSession()
	}
	AddLogField(r.Context(), "session_id", req.SessionID)

	result, err := h.orch.HandleTurn(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	AddLogField(r.Context(), "topic", result.Topic)

	resp := ChatResponse{TurnResult: *result}
	if progress, err := h.orch.Progress(r.Context(), req.SessionID); err == nil {
		resp.Progress = progress
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.registry.Sessions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []store.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, SessionListResponse{Sessions: sessions, Count: len(sessions)})
}

func (h *Handlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := h.registry.NewSession()
	AddLogField(r.Context(), "session_id", id)
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (h *Handlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}

	state, err := h.store.Load(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Load never fails on absence; a record that was never saved has no
	// creation stamp.
	if state.CreatedAt.IsZero() {
		writeError(w, r, domain.ErrNotFound("session not found"))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}

	existed, err := h.registry.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !existed {
		writeError(w, r, domain.ErrNotFound("session not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleResetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}

	if err := h.orch.Reset(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	progress, err := h.orch.Progress(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *Handlers) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}

	progress, err := h.orch.Progress(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *Handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionParam extracts and validates the {id} route parameter, writing the
// rejection itself so callers can just return.
func sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !store.ValidSessionID(id) {
		writeError(w, r, domain.ErrInvalidRequest("invalid session id"))
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already written; an encode failure here means the
	// connection is gone.
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders any error as the canonical JSON envelope. Non-domain
// errors are treated as internal.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)

	var derr *domain.Error
	if !errors.As(err, &derr) {
		derr = domain.ErrServer("internal error")
	}
	writeJSON(w, derr.HTTPStatusCode(), map[string]*domain.Error{"error": derr})
}
