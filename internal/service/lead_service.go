package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/growmark/leadcapture/internal/domain"
	"github.com/growmark/leadcapture/internal/repo/postgres"
	"github.com/growmark/leadcapture/internal/utils"
	"github.com/growmark/leadcapture/pkg/config"
	"github.com/growmark/leadcapture/pkg/events"
	"github.com/growmark/leadcapture/pkg/logger"
)

// ErrPhoneInvalid blocks a submission whose phone the validator positively
// rejected. All other verification outcomes fail open.
var ErrPhoneInvalid = errors.New("phone number failed validation")

// LeadResult is the submission response: the created lead plus the
// non-blocking advisory accumulated along the way.
type LeadResult struct {
	Lead     *domain.Lead
	Advisory string
}

type LeadService interface {
	// CreateLead runs the full submission flow: optional blocking phone
	// verification, lead creation, session conversion (direct or
	// retroactive) and optional immediate sync.
	CreateLead(ctx context.Context, req *domain.LeadReq, meta domain.ClientMeta) (*LeadResult, error)
	GetLead(ctx context.Context, id int64) (*domain.Lead, error)
}

type leadService struct {
	leadRepo     postgres.LeadRepo
	verification VerificationService
	conversion   ConversionService
	syncService  SyncService
	eventBus     events.Publisher
	syncCfg      config.SyncConfig
}

func NewLeadService(leadRepo postgres.LeadRepo, verification VerificationService, conversion ConversionService, syncService SyncService, eventBus events.Publisher, syncCfg config.SyncConfig) LeadService {
	return &leadService{
		leadRepo:     leadRepo,
		verification: verification,
		conversion:   conversion,
		syncService:  syncService,
		eventBus:     eventBus,
		syncCfg:      syncCfg,
	}
}

func (s *leadService) CreateLead(ctx context.Context, req *domain.LeadReq, meta domain.ClientMeta) (*LeadResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	req.Email = utils.NormalizeEmail(req.Email)
	req.Phone = utils.NormalizePhone(req.Phone)

	verified := false
	advisory := ""
	if req.VerifyPhone && req.Phone != "" {
		confirm := s.verification.Confirm(ctx, req.Phone)
		if confirm.Outcome == OutcomeInvalid {
			return nil, ErrPhoneInvalid
		}
		verified = confirm.Verified
		advisory = confirm.Advisory
	}

	lead, err := s.leadRepo.Create(ctx, req, verified)
	if err != nil {
		return nil, fmt.Errorf("failed to create lead: %w", err)
	}

	event := events.LeadCreatedEvent{
		LeadID:    lead.ID,
		Email:     lead.Email,
		Phone:     lead.Phone,
		EventID:   lead.EventID,
		CreatedAt: lead.CreatedAt,
	}
	if err := s.eventBus.Publish(ctx, events.LeadCreated, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish lead created event", "error", err, "lead_id", lead.ID)
	}

	s.link(ctx, req, lead, meta)

	if s.syncCfg.Immediate {
		if err := s.syncService.PushImmediate(ctx, lead); err != nil && !errors.Is(err, domain.ErrUnconfigured) {
			// Background concern; the scheduled new_only run picks it up.
			logger.ErrorContext(ctx, "Immediate sync failed", "error", err, "lead_id", lead.ID)
		}
	}

	return &LeadResult{Lead: lead, Advisory: advisory}, nil
}

// link closes the loop between the scan session and the lead. Attribution
// failures never fail the submission; the lead is already captured.
func (s *leadService) link(ctx context.Context, req *domain.LeadReq, lead *domain.Lead, meta domain.ClientMeta) {
	switch {
	case req.SessionID != "":
		_, err := s.conversion.Convert(ctx, req.SessionID, lead.ID)
		if errors.Is(err, domain.ErrAlreadyConverted) {
			logger.InfoContext(ctx, "Session already converted, duplicate submission ignored",
				"session_id", req.SessionID, "lead_id", lead.ID)
			return
		}
		if errors.Is(err, domain.ErrNotFound) && req.TrackingID != "" {
			// Stale client-side session id; fall back to the tracking id.
			s.retroactive(ctx, req.TrackingID, lead.ID, meta)
			return
		}
		if err != nil {
			logger.ErrorContext(ctx, "Failed to convert scan session",
				"error", err, "session_id", req.SessionID, "lead_id", lead.ID)
		}
	case req.TrackingID != "":
		s.retroactive(ctx, req.TrackingID, lead.ID, meta)
	}
}

func (s *leadService) retroactive(ctx context.Context, trackingID string, leadID int64, meta domain.ClientMeta) {
	if _, err := s.conversion.ConvertRetroactive(ctx, trackingID, leadID, meta); err != nil {
		logger.ErrorContext(ctx, "Failed to convert retroactively",
			"error", err, "tracking_id", trackingID, "lead_id", leadID)
	}
}

func (s *leadService) validate(req *domain.LeadReq) error {
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	if req.Email != "" && !utils.IsValidEmail(req.Email) {
		return fmt.Errorf("invalid email address")
	}
	if req.Phone != "" && !utils.IsValidPhone(req.Phone) {
		return fmt.Errorf("invalid phone number")
	}
	if req.Email == "" && req.Phone == "" {
		return fmt.Errorf("at least one contact channel is required")
	}
	return nil
}

func (s *leadService) GetLead(ctx context.Context, id int64) (*domain.Lead, error) {
	return s.leadRepo.GetByID(ctx, id)
}
