package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/growmark/leadcapture/internal/domain"
)

type dispatchValidationReq struct {
	ChannelAddress string `json:"channelAddress"`
}

type dispatchValidationRes struct {
	CorrelationID string `json:"correlationId,omitempty"`
	Status        string `json:"status"`
}

// DispatchValidation starts an asynchronous validation attempt for a contact
// channel and returns the correlation id the client can poll on.
func (h *Handlers) DispatchValidation(w http.ResponseWriter, r *http.Request) {
	var req dispatchValidationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if req.ChannelAddress == "" {
		writeError(w, http.StatusBadRequest, "channelAddress is required")
		return
	}

	correlationID, err := h.verificationService.Dispatch(r.Context(), req.ChannelAddress)
	if errors.Is(err, domain.ErrUnconfigured) {
		// Not an error: verification is an enhancement, not a gate.
		writeJSON(w, http.StatusOK, dispatchValidationRes{Status: "unconfigured"})
		return
	}
	if err != nil {
		// The record holds the failure detail; the client fails open.
		writeJSON(w, http.StatusOK, dispatchValidationRes{
			CorrelationID: correlationID,
			Status:        "dispatch_failed",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, dispatchValidationRes{
		CorrelationID: correlationID,
		Status:        "pending",
	})
}

type validationCallbackReq struct {
	CorrelationID string `json:"correlationId"`
	IsValid       bool   `json:"isValid"`
	Message       string `json:"message,omitempty"`
}

// ValidationCallback is the inbound endpoint the external validator calls
// back on. Idempotent: a duplicate callback succeeds without mutating the
// stored verdict.
func (h *Handlers) ValidationCallback(w http.ResponseWriter, r *http.Request) {
	var req validationCallbackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if req.CorrelationID == "" {
		writeError(w, http.StatusBadRequest, "correlationId is required")
		return
	}

	_, err := h.verificationService.ApplyCallback(r.Context(), req.CorrelationID, req.IsValid, req.Message)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Unknown correlation id")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to apply validation result")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetValidation returns the current state of a validation attempt. Clients
// poll this while waiting for the callback to land.
func (h *Handlers) GetValidation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.verificationService.GetRecord(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve validation record")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Validation record not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
