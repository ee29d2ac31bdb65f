package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ayusman/fingerglow/internal/store"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 200
)

// SessionsHandler lists the pairing session log.
type SessionsHandler struct {
	store *store.Store
}

// NewSessionsHandler creates a new SessionsHandler with the given store.
func NewSessionsHandler(s *store.Store) *SessionsHandler {
	return &SessionsHandler{store: s}
}

type sessionResponse struct {
	ID        int64  `json:"id"`
	PeerID    string `json:"peer_id"`
	Role      string `json:"role"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

func toSessionResponse(rec *store.SessionRecord) sessionResponse {
	resp := sessionResponse{
		ID:        rec.ID,
		PeerID:    rec.PeerID,
		Role:      rec.Role,
		State:     rec.State,
		Reason:    rec.Reason,
		StartedAt: rec.StartedAt.Format(time.RFC3339),
	}
	if rec.EndedAt != nil {
		resp.EndedAt = rec.EndedAt.Format(time.RFC3339)
	}
	return resp
}

// ServeHTTP handles GET /api/sessions?limit=N.
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultSessionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSessionLimit)
	}

	records, err := h.store.Sessions().Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	resp := listSessionsResponse{Sessions: make([]sessionResponse, 0, len(records))}
	for _, rec := range records {
		resp.Sessions = append(resp.Sessions, toSessionResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}
