package service

import (
	"context"
	"fmt"
	"time"

	"github.com/growmark/leadcapture/internal/domain"
	"github.com/growmark/leadcapture/internal/notify"
	"github.com/growmark/leadcapture/internal/repo/postgres"
	"github.com/growmark/leadcapture/pkg/events"
	"github.com/growmark/leadcapture/pkg/logger"
)

// RedirectResult is everything the redirect handler needs to answer a scan.
type RedirectResult struct {
	Destination string
	Entry       *domain.RegistryEntry
	Session     *domain.ScanSession
	ScanCount   int64
}

type ScanService interface {
	// HandleRedirect resolves a short code, records the scan atomically and
	// opens a session for later conversion. Returns domain.ErrNotFound for
	// unknown short codes.
	HandleRedirect(ctx context.Context, shortCode string, meta domain.ClientMeta) (*RedirectResult, error)
	// EnsureSession opens a session for a form load carrying a tracking id.
	// It is the single session-creation entry point shared with the
	// retroactive conversion path and never touches the scan counter.
	EnsureSession(ctx context.Context, trackingID string, meta domain.ClientMeta) (*domain.ScanSession, error)
	GetSession(ctx context.Context, id string) (*domain.ScanSession, error)

	CreateEntry(ctx context.Context, req *domain.RegistryEntryReq) (*domain.RegistryEntry, error)
	GetEntryByTrackingID(ctx context.Context, trackingID string) (*domain.RegistryEntry, error)
	ListEntriesByEvent(ctx context.Context, eventID int64) ([]domain.RegistryEntry, error)
	// SendInvite composes an outbound campaign message for a registry entry,
	// embedding its tracking id into the body.
	SendInvite(ctx context.Context, trackingID, toEmail, toName, campaignName string) error
}

type scanService struct {
	registryRepo postgres.RegistryRepo
	sessionRepo  postgres.SessionRepo
	sender       notify.Sender
	eventBus     events.Publisher
	publicURL    string
}

func NewScanService(registryRepo postgres.RegistryRepo, sessionRepo postgres.SessionRepo, sender notify.Sender, eventBus events.Publisher, publicURL string) ScanService {
	return &scanService{
		registryRepo: registryRepo,
		sessionRepo:  sessionRepo,
		sender:       sender,
		eventBus:     eventBus,
		publicURL:    publicURL,
	}
}

func (s *scanService) HandleRedirect(ctx context.Context, shortCode string, meta domain.ClientMeta) (*RedirectResult, error) {
	entry, err := s.registryRepo.ResolveByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve short code: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrNotFound
	}

	count, err := s.registryRepo.RecordScan(ctx, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record scan: %w", err)
	}

	session, err := s.sessionRepo.Open(ctx, entry.ID, entry.EventID, meta)
	if err != nil {
		return nil, fmt.Errorf("failed to open scan session: %w", err)
	}

	scanEvent := events.ScanRecordedEvent{
		RegistryEntryID: entry.ID,
		TrackingID:      entry.TrackingID,
		EventID:         entry.EventID,
		ScanCount:       count,
		RecordedAt:      time.Now(),
	}
	if err := s.eventBus.Publish(ctx, events.ScanRecorded, scanEvent); err != nil {
		logger.ErrorContext(ctx, "Failed to publish scan recorded event", "error", err, "entry_id", entry.ID)
	}

	return &RedirectResult{
		Destination: entry.Destination,
		Entry:       entry,
		Session:     session,
		ScanCount:   count,
	}, nil
}

func (s *scanService) EnsureSession(ctx context.Context, trackingID string, meta domain.ClientMeta) (*domain.ScanSession, error) {
	entry, err := s.registryRepo.ResolveByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tracking id: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrNotFound
	}

	session, err := s.sessionRepo.Open(ctx, entry.ID, entry.EventID, meta)
	if err != nil {
		return nil, fmt.Errorf("failed to open scan session: %w", err)
	}

	event := events.SessionOpenedEvent{
		SessionID:       session.ID,
		RegistryEntryID: entry.ID,
		EventID:         entry.EventID,
		OpenedAt:        session.CreatedAt,
	}
	if err := s.eventBus.Publish(ctx, events.SessionOpened, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish session opened event", "error", err, "session_id", session.ID)
	}

	return session, nil
}

func (s *scanService) GetSession(ctx context.Context, id string) (*domain.ScanSession, error) {
	return s.sessionRepo.GetByID(ctx, id)
}

func (s *scanService) CreateEntry(ctx context.Context, req *domain.RegistryEntryReq) (*domain.RegistryEntry, error) {
	if req.Destination == "" {
		return nil, fmt.Errorf("destination is required")
	}
	if _, ok := domain.ParseRegistryKind(string(req.Kind)); !ok {
		return nil, fmt.Errorf("invalid registry kind %q", req.Kind)
	}
	return s.registryRepo.Create(ctx, req)
}

func (s *scanService) GetEntryByTrackingID(ctx context.Context, trackingID string) (*domain.RegistryEntry, error) {
	return s.registryRepo.ResolveByTrackingID(ctx, trackingID)
}

func (s *scanService) ListEntriesByEvent(ctx context.Context, eventID int64) ([]domain.RegistryEntry, error) {
	return s.registryRepo.ListByEvent(ctx, eventID)
}

func (s *scanService) SendInvite(ctx context.Context, trackingID, toEmail, toName, campaignName string) error {
	entry, err := s.registryRepo.ResolveByTrackingID(ctx, trackingID)
	if err != nil {
		return fmt.Errorf("failed to resolve tracking id: %w", err)
	}
	if entry == nil {
		return domain.ErrNotFound
	}

	link := s.publicURL + "/r/" + entry.ShortCode
	if err := s.sender.SendCampaignInvite(toEmail, toName, campaignName, link, entry.TrackingID); err != nil {
		return fmt.Errorf("failed to send invite: %w", err)
	}

	logger.InfoContext(ctx, "Campaign invite sent",
		"tracking_id", entry.TrackingID, "to", toEmail, "event_id", entry.EventID)
	return nil
}
