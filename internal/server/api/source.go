package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ayusman/fingerglow/internal/app"
	"github.com/ayusman/fingerglow/internal/source"
)

// Switcher is the part of the controller the source API drives.
type Switcher interface {
	Status() app.Status
	Switch(ctx context.Context, kind source.Kind) error
}

// SourceHandler reports the active source and switches between the local
// and remote camera.
type SourceHandler struct {
	switcher Switcher
}

// NewSourceHandler creates a new SourceHandler.
func NewSourceHandler(s Switcher) *SourceHandler {
	return &SourceHandler{switcher: s}
}

type switchRequest struct {
	Kind string `json:"kind"`
}

// ServeHTTP handles GET and POST /api/source.
func (h *SourceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.switcher.Status())
	case http.MethodPost, http.MethodPut:
		h.switchSource(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SourceHandler) switchSource(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	kind, err := source.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The switch outlives the request: the new source keeps running.
	if err := h.switcher.Switch(context.WithoutCancel(r.Context()), kind); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.switcher.Status())
}
