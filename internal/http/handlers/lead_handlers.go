package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/growmark/leadcapture/internal/domain"
	"github.com/growmark/leadcapture/internal/service"
)

type leadRes struct {
	Lead     *domain.Lead `json:"lead"`
	Advisory string       `json:"advisory,omitempty"`
}

// CreateLead handles a form submission: optional blocking phone
// verification, lead creation and session conversion. Verification outages
// fail open with an advisory instead of blocking the capture.
func (h *Handlers) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req domain.LeadReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	result, err := h.leadService.CreateLead(r.Context(), &req, clientMeta(r))
	if errors.Is(err, service.ErrPhoneInvalid) {
		writeError(w, http.StatusUnprocessableEntity, "Phone number failed validation")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, leadRes{
		Lead:     result.Lead,
		Advisory: result.Advisory,
	})
}

// GetLead returns a lead by id.
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lead ID")
		return
	}

	lead, err := h.leadService.GetLead(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve lead")
		return
	}
	if lead == nil {
		writeError(w, http.StatusNotFound, "Lead not found")
		return
	}

	writeJSON(w, http.StatusOK, lead)
}
