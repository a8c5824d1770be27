package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/growmark/leadcapture/internal/domain"
	"github.com/growmark/leadcapture/internal/repo/postgres"
	"github.com/growmark/leadcapture/pkg/events"
	"github.com/growmark/leadcapture/pkg/logger"
)

type ConversionService interface {
	// Convert marks the session converted exactly once and links the lead.
	// A duplicate call returns the session with domain.ErrAlreadyConverted;
	// callers treat that as success.
	Convert(ctx context.Context, sessionID string, leadID int64) (*domain.ScanSession, error)
	// ConvertRetroactive rebuilds a lost session from the tracking id and
	// closes it immediately. Exists purely for resilience against client-side
	// storage loss; it never increments the scan counter.
	ConvertRetroactive(ctx context.Context, trackingID string, leadID int64, meta domain.ClientMeta) (*domain.ScanSession, error)
}

type conversionService struct {
	registryRepo postgres.RegistryRepo
	sessionRepo  postgres.SessionRepo
	leadRepo     postgres.LeadRepo
	eventBus     events.Publisher
}

func NewConversionService(registryRepo postgres.RegistryRepo, sessionRepo postgres.SessionRepo, leadRepo postgres.LeadRepo, eventBus events.Publisher) ConversionService {
	return &conversionService{
		registryRepo: registryRepo,
		sessionRepo:  sessionRepo,
		leadRepo:     leadRepo,
		eventBus:     eventBus,
	}
}

func (s *conversionService) Convert(ctx context.Context, sessionID string, leadID int64) (*domain.ScanSession, error) {
	session, err := s.sessionRepo.Convert(ctx, sessionID, leadID)
	if errors.Is(err, domain.ErrAlreadyConverted) {
		return session, err
	}
	if err != nil {
		return nil, err
	}

	s.finishConversion(ctx, session, leadID, false)
	return session, nil
}

func (s *conversionService) ConvertRetroactive(ctx context.Context, trackingID string, leadID int64, meta domain.ClientMeta) (*domain.ScanSession, error) {
	entry, err := s.registryRepo.ResolveByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tracking id: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrNotFound
	}

	session, err := s.sessionRepo.CreateConverted(ctx, entry.ID, entry.EventID, leadID, meta)
	if err != nil {
		return nil, fmt.Errorf("failed to create retroactive session: %w", err)
	}

	s.finishConversion(ctx, session, leadID, true)
	return session, nil
}

func (s *conversionService) finishConversion(ctx context.Context, session *domain.ScanSession, leadID int64, retroactive bool) {
	// Back-reference on the lead; losing it is tolerable, the session row is
	// the source of truth for the link.
	if err := s.leadRepo.SetScanSession(ctx, leadID, session.ID); err != nil {
		logger.ErrorContext(ctx, "Failed to back-reference scan session on lead",
			"error", err, "lead_id", leadID, "session_id", session.ID)
	}

	event := events.LeadConvertedEvent{
		SessionID:   session.ID,
		LeadID:      leadID,
		Retroactive: retroactive,
		ConvertedAt: time.Now(),
	}
	if err := s.eventBus.Publish(ctx, events.LeadConverted, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish lead converted event",
			"error", err, "lead_id", leadID, "session_id", session.ID)
	}
}
