package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/growmark/leadcapture/internal/domain"
)

type runSyncReq struct {
	Mode string `json:"mode"`
}

// RunSync triggers an outbound sync run. Called by an external scheduler or
// manually from the settings screen.
func (h *Handlers) RunSync(w http.ResponseWriter, r *http.Request) {
	var req runSyncReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	mode, ok := domain.ParseSyncMode(req.Mode)
	if !ok || mode == domain.SyncImmediate {
		writeError(w, http.StatusBadRequest, "mode must be 'all' or 'new_only'")
		return
	}

	result, err := h.syncService.RunSync(r.Context(), mode)
	if errors.Is(err, domain.ErrUnconfigured) {
		writeError(w, http.StatusConflict, "No sync sink configured")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "Sync push failed; watermark unchanged")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// SyncStatus reports the watermark and the last run result.
func (h *Handlers) SyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.syncService.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read sync status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}
