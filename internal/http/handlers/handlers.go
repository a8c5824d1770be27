package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/growmark/leadcapture/internal/domain"
	"github.com/growmark/leadcapture/internal/service"
)

type Handlers struct {
	verificationService service.VerificationService
	scanService         service.ScanService
	leadService         service.LeadService
	syncService         service.SyncService
}

func New(verificationService service.VerificationService, scanService service.ScanService, leadService service.LeadService, syncService service.SyncService) *Handlers {
	return &Handlers{
		verificationService: verificationService,
		scanService:         scanService,
		leadService:         leadService,
		syncService:         syncService,
	}
}

// Helper functions for common response patterns
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// clientMeta captures request diagnostics stored on scan sessions
func clientMeta(r *http.Request) domain.ClientMeta {
	return domain.ClientMeta{
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
	}
}
