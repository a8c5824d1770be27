package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/growmark/leadcapture/internal/domain"
	"github.com/growmark/leadcapture/internal/repo/postgres"
	"github.com/growmark/leadcapture/internal/webhook"
	"github.com/growmark/leadcapture/pkg/config"
	"github.com/growmark/leadcapture/pkg/events"
	"github.com/growmark/leadcapture/pkg/logger"
)

// SyncStatus is the read model for the sync status endpoint.
type SyncStatus struct {
	Configured bool               `json:"configured"`
	Watermark  time.Time          `json:"watermark"`
	LastResult *domain.SyncResult `json:"last_result,omitempty"`
}

type SyncService interface {
	// RunSync pushes a lead batch to the configured sink. new_only advances
	// the watermark after a 2xx acknowledgement; all and immediate never
	// touch it. Returns domain.ErrUnconfigured when no sink is set.
	RunSync(ctx context.Context, mode domain.SyncMode) (*domain.SyncResult, error)
	// PushImmediate sends a one-element batch for a freshly created lead.
	PushImmediate(ctx context.Context, lead *domain.Lead) error
	Status(ctx context.Context) (*SyncStatus, error)
	// Run drives scheduled new_only syncs until ctx is cancelled.
	Run(ctx context.Context)
}

type syncService struct {
	leadRepo      postgres.LeadRepo
	watermarkRepo postgres.WatermarkRepo
	client        *webhook.Client
	eventBus      events.Publisher
	cfg           config.SyncConfig

	mu         sync.Mutex
	lastResult *domain.SyncResult
}

func NewSyncService(leadRepo postgres.LeadRepo, watermarkRepo postgres.WatermarkRepo, client *webhook.Client, eventBus events.Publisher, cfg config.SyncConfig) SyncService {
	return &syncService{
		leadRepo:      leadRepo,
		watermarkRepo: watermarkRepo,
		client:        client,
		eventBus:      eventBus,
		cfg:           cfg,
	}
}

func (s *syncService) RunSync(ctx context.Context, mode domain.SyncMode) (*domain.SyncResult, error) {
	if s.cfg.SinkURL == "" {
		return nil, domain.ErrUnconfigured
	}

	var (
		leads []domain.Lead
		err   error
	)
	switch mode {
	case domain.SyncAll:
		leads, err = s.leadRepo.ListAll(ctx)
	case domain.SyncNewOnly:
		var watermark time.Time
		watermark, err = s.watermarkRepo.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read sync watermark: %w", err)
		}
		leads, err = s.leadRepo.ListCreatedAfter(ctx, watermark)
	default:
		return nil, fmt.Errorf("unsupported sync mode %q", mode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select leads for sync: %w", err)
	}

	if len(leads) > 0 {
		if err := s.push(ctx, leads, mode); err != nil {
			s.recordFailure(ctx, mode, err)
			return nil, err
		}
	}

	// The watermark moves to the newest pushed lead, and only after the
	// sink acknowledged the batch. A failed push above leaves it untouched
	// so the same leads are retried next run.
	if mode == domain.SyncNewOnly && len(leads) > 0 {
		ceiling := leads[len(leads)-1].CreatedAt
		if err := s.watermarkRepo.Advance(ctx, ceiling); err != nil {
			return nil, fmt.Errorf("failed to advance sync watermark: %w", err)
		}
	}

	result := &domain.SyncResult{Mode: mode, Sent: len(leads), RanAt: time.Now()}
	s.recordSuccess(ctx, result)
	return result, nil
}

func (s *syncService) PushImmediate(ctx context.Context, lead *domain.Lead) error {
	if s.cfg.SinkURL == "" {
		return domain.ErrUnconfigured
	}

	if err := s.push(ctx, []domain.Lead{*lead}, domain.SyncImmediate); err != nil {
		s.recordFailure(ctx, domain.SyncImmediate, err)
		return err
	}

	s.recordSuccess(ctx, &domain.SyncResult{Mode: domain.SyncImmediate, Sent: 1, RanAt: time.Now()})
	return nil
}

func (s *syncService) push(ctx context.Context, leads []domain.Lead, mode domain.SyncMode) error {
	batch := domain.SyncBatch{
		Leads:      leads,
		SyncMode:   mode,
		Timestamp:  time.Now().UTC(),
		TotalLeads: len(leads),
	}

	pushCtx, cancel := context.WithTimeout(ctx, s.cfg.PushTimeout)
	defer cancel()

	if err := s.client.Post(pushCtx, s.cfg.SinkURL, batch); err != nil {
		return fmt.Errorf("sync push failed: %w", err)
	}
	return nil
}

func (s *syncService) Status(ctx context.Context) (*SyncStatus, error) {
	watermark, err := s.watermarkRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	last := s.lastResult
	s.mu.Unlock()

	return &SyncStatus{
		Configured: s.cfg.SinkURL != "",
		Watermark:  watermark,
		LastResult: last,
	}, nil
}

func (s *syncService) Run(ctx context.Context) {
	if s.cfg.SinkURL == "" || s.cfg.Interval <= 0 {
		logger.Info("Sync scheduler disabled")
		return
	}

	logger.Info("Sync scheduler started", "interval", s.cfg.Interval.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("Sync scheduler stopped")
			return
		case <-time.After(s.cfg.Interval):
		}

		if _, err := s.RunSync(ctx, domain.SyncNewOnly); err != nil {
			// Watermark untouched; the batch is retried next tick.
			logger.Error("Scheduled sync failed", "error", err)
		}
	}
}

func (s *syncService) recordSuccess(ctx context.Context, result *domain.SyncResult) {
	s.mu.Lock()
	s.lastResult = result
	s.mu.Unlock()

	event := events.SyncCompletedEvent{
		Mode:        string(result.Mode),
		Sent:        result.Sent,
		CompletedAt: result.RanAt,
	}
	if err := s.eventBus.Publish(ctx, events.SyncCompleted, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish sync completed event", "error", err)
	}

	logger.InfoContext(ctx, "Sync completed", "mode", result.Mode, "sent", result.Sent)
}

func (s *syncService) recordFailure(ctx context.Context, mode domain.SyncMode, cause error) {
	event := events.SyncFailedEvent{
		Mode:     string(mode),
		Reason:   cause.Error(),
		FailedAt: time.Now(),
	}
	if err := s.eventBus.Publish(ctx, events.SyncFailed, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish sync failed event", "error", err)
	}
}
