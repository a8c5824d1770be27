package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/growmark/leadcapture/internal/domain"
)

// Redirect answers a physical scan: resolves the short code, records the
// scan, opens a session and 302s to the destination. The session id rides
// along on the Location URL so the landing form can persist it.
func (h *Handlers) Redirect(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")

	result, err := h.scanService.HandleRedirect(r.Context(), shortCode, clientMeta(r))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Unknown short code")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process scan")
		return
	}

	dest := result.Destination
	if u, perr := url.Parse(dest); perr == nil {
		q := u.Query()
		q.Set("sid", result.Session.ID)
		u.RawQuery = q.Encode()
		dest = u.String()
	}

	http.Redirect(w, r, dest, http.StatusFound)
}

type openSessionReq struct {
	TrackingID string `json:"tracking_id"`
}

// OpenSession opens a scan session for a form load carrying a tracking id.
func (h *Handlers) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if req.TrackingID == "" {
		writeError(w, http.StatusBadRequest, "tracking_id is required")
		return
	}

	session, err := h.scanService.EnsureSession(r.Context(), req.TrackingID, clientMeta(r))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Unknown tracking id")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to open session")
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// GetSession returns a scan session by id.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.scanService.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve session")
		return
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// CreateRegistryEntry registers a new campaign touchpoint.
func (h *Handlers) CreateRegistryEntry(w http.ResponseWriter, r *http.Request) {
	var req domain.RegistryEntryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	entry, err := h.scanService.CreateEntry(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// GetRegistryEntry looks a touchpoint up by tracking id.
func (h *Handlers) GetRegistryEntry(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")

	entry, err := h.scanService.GetEntryByTrackingID(r.Context(), trackingID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to retrieve registry entry")
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "Registry entry not found")
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// ListRegistryEntries lists the touchpoints of one campaign event.
func (h *Handlers) ListRegistryEntries(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event ID")
		return
	}

	entries, err := h.scanService.ListEntriesByEvent(r.Context(), eventID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list registry entries")
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

type sendInviteReq struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	CampaignName string `json:"campaign_name"`
}

// SendInvite sends an outbound campaign message carrying the entry's
// tracking id.
func (h *Handlers) SendInvite(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")

	var req sendInviteReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	err := h.scanService.SendInvite(r.Context(), trackingID, req.Email, req.Name, req.CampaignName)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Registry entry not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to send invite")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}
