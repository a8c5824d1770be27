package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/growmark/leadcapture/internal/domain"
	"github.com/growmark/leadcapture/internal/repo/postgres"
	"github.com/growmark/leadcapture/internal/webhook"
	"github.com/growmark/leadcapture/pkg/config"
	"github.com/growmark/leadcapture/pkg/events"
	"github.com/growmark/leadcapture/pkg/logger"
)

// Outcome is the client-local result of one verification attempt. Terminal
// record states map onto it, and the non-record outcomes (unconfigured,
// dispatch failure, timeout) exist only on the caller side; they never
// mutate a resolved record.
type Outcome string

const (
	OutcomeValid          Outcome = "valid"
	OutcomeInvalid        Outcome = "invalid"
	OutcomeError          Outcome = "error"
	OutcomeTimedOut       Outcome = "timed_out"
	OutcomeUnconfigured   Outcome = "unconfigured"
	OutcomeDispatchFailed Outcome = "dispatch_failed"
)

// FailOpen reports whether the submission flow should proceed as if the
// channel were valid. Inability to verify is not a gate.
func (o Outcome) FailOpen() bool {
	switch o {
	case OutcomeUnconfigured, OutcomeDispatchFailed, OutcomeTimedOut, OutcomeError:
		return true
	}
	return false
}

// ConfirmResult is what the lead submission flow gets back from a blocking
// verification.
type ConfirmResult struct {
	CorrelationID string
	Outcome       Outcome
	Verified      bool   // channel positively confirmed by the validator
	Advisory      string // non-blocking warning surfaced to the operator
}

type VerificationService interface {
	// Dispatch creates a pending record and posts the validation request to
	// the configured webhook. Returns domain.ErrUnconfigured when no webhook
	// is set; any other error means the record was marked terminal 'error'.
	Dispatch(ctx context.Context, channelAddress string) (string, error)
	// ApplyCallback lands the validator's verdict. Idempotent: a duplicate
	// callback returns the stored record without mutating it.
	ApplyCallback(ctx context.Context, correlationID string, isValid bool, note string) (*domain.VerificationRecord, error)
	// Await polls the record until it is terminal or maxWait elapses, with
	// one final read before giving up. Cancellable through ctx.
	Await(ctx context.Context, correlationID string, maxWait time.Duration) (Outcome, error)
	// Confirm is the composed dispatch-then-await flow with the fail-open
	// policy applied.
	Confirm(ctx context.Context, channelAddress string) ConfirmResult
	GetRecord(ctx context.Context, correlationID string) (*domain.VerificationRecord, error)
}

type verificationService struct {
	repo     postgres.VerificationRepo
	client   *webhook.Client
	eventBus events.Publisher
	cfg      config.ValidationConfig
	callback string
}

func NewVerificationService(repo postgres.VerificationRepo, client *webhook.Client, eventBus events.Publisher, cfg config.ValidationConfig, callbackURL string) VerificationService {
	return &verificationService{
		repo:     repo,
		client:   client,
		eventBus: eventBus,
		cfg:      cfg,
		callback: callbackURL,
	}
}

func (s *verificationService) Dispatch(ctx context.Context, channelAddress string) (string, error) {
	if s.cfg.WebhookURL == "" {
		return "", domain.ErrUnconfigured
	}

	rec, err := s.createPending(ctx, channelAddress)
	if err != nil {
		return "", err
	}

	payload := webhook.ValidationRequest{
		ChannelAddress: channelAddress,
		CorrelationID:  rec.ID,
		CallbackURL:    s.callback,
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.cfg.DispatchTimeout)
	defer cancel()

	if err := s.client.Post(dispatchCtx, s.cfg.WebhookURL, payload); err != nil {
		// Record the failure for audit; the caller fails open.
		if _, terr := s.repo.SetTerminal(ctx, rec.ID, domain.VerificationError, err.Error()); terr != nil && !errors.Is(terr, domain.ErrAlreadyTerminal) {
			logger.ErrorContext(ctx, "Failed to mark verification as errored", "error", terr, "correlation_id", rec.ID)
		}
		return rec.ID, fmt.Errorf("validation dispatch failed: %w", err)
	}

	event := events.VerificationDispatchedEvent{
		CorrelationID:  rec.ID,
		ChannelAddress: channelAddress,
		DispatchedAt:   time.Now(),
	}
	if err := s.eventBus.Publish(ctx, events.VerificationDispatched, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish verification dispatched event", "error", err, "correlation_id", rec.ID)
	}

	return rec.ID, nil
}

// createPending allocates a fresh correlation id, retrying once on the
// astronomically unlikely uuid collision.
func (s *verificationService) createPending(ctx context.Context, channelAddress string) (*domain.VerificationRecord, error) {
	for attempt := 0; attempt < 2; attempt++ {
		rec, err := s.repo.Create(ctx, uuid.NewString(), channelAddress)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, domain.ErrDuplicateCorrelation) {
			continue
		}
		return nil, fmt.Errorf("failed to create verification record: %w", err)
	}
	return nil, domain.ErrDuplicateCorrelation
}

func (s *verificationService) ApplyCallback(ctx context.Context, correlationID string, isValid bool, note string) (*domain.VerificationRecord, error) {
	state := domain.VerificationInvalid
	if isValid {
		state = domain.VerificationValid
	}

	rec, err := s.repo.SetTerminal(ctx, correlationID, state, note)
	if errors.Is(err, domain.ErrAlreadyTerminal) {
		// First-writer-wins: accept the duplicate without mutating.
		logger.DebugContext(ctx, "Duplicate validation callback ignored",
			"correlation_id", correlationID, "existing_state", rec.State)
		return rec, nil
	}
	if err != nil {
		return nil, err
	}

	event := events.VerificationResolvedEvent{
		CorrelationID: rec.ID,
		State:         string(rec.State),
		Note:          rec.ResponseNote,
		ResolvedAt:    time.Now(),
	}
	if err := s.eventBus.Publish(ctx, events.VerificationResolved, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish verification resolved event", "error", err, "correlation_id", rec.ID)
	}

	return rec, nil
}

func (s *verificationService) Await(ctx context.Context, correlationID string, maxWait time.Duration) (Outcome, error) {
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		outcome, done, err := s.check(ctx, correlationID)
		if err != nil {
			return "", err
		}
		if done {
			return outcome, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			// One final read; the callback may have landed during the last
			// poll interval.
			outcome, done, err := s.check(ctx, correlationID)
			if err != nil {
				return "", err
			}
			if done {
				return outcome, nil
			}
			return OutcomeTimedOut, nil
		case <-ticker.C:
		}
	}
}

func (s *verificationService) check(ctx context.Context, correlationID string) (Outcome, bool, error) {
	rec, err := s.repo.GetByID(ctx, correlationID)
	if err != nil {
		return "", false, fmt.Errorf("failed to poll verification record: %w", err)
	}
	if rec == nil {
		return "", false, domain.ErrNotFound
	}

	switch rec.State {
	case domain.VerificationValid:
		return OutcomeValid, true, nil
	case domain.VerificationInvalid:
		return OutcomeInvalid, true, nil
	case domain.VerificationError:
		return OutcomeError, true, nil
	}
	return "", false, nil
}

func (s *verificationService) Confirm(ctx context.Context, channelAddress string) ConfirmResult {
	correlationID, err := s.Dispatch(ctx, channelAddress)
	if errors.Is(err, domain.ErrUnconfigured) {
		return ConfirmResult{
			Outcome:  OutcomeUnconfigured,
			Advisory: "phone validation is not configured; number accepted without verification",
		}
	}
	if err != nil {
		logger.WarnContext(ctx, "Validation dispatch failed, proceeding unverified",
			"error", err, "correlation_id", correlationID)
		return ConfirmResult{
			CorrelationID: correlationID,
			Outcome:       OutcomeDispatchFailed,
			Advisory:      "phone validation could not be reached; number accepted without verification",
		}
	}

	outcome, err := s.Await(ctx, correlationID, s.cfg.MaxWait)
	if err != nil {
		logger.ErrorContext(ctx, "Validation wait failed, proceeding unverified",
			"error", err, "correlation_id", correlationID)
		return ConfirmResult{
			CorrelationID: correlationID,
			Outcome:       OutcomeError,
			Advisory:      "phone validation did not complete; number accepted without verification",
		}
	}

	res := ConfirmResult{CorrelationID: correlationID, Outcome: outcome}
	switch outcome {
	case OutcomeValid:
		res.Verified = true
	case OutcomeInvalid:
		// The only outcome that blocks the caller.
	case OutcomeTimedOut:
		res.Advisory = "phone validation timed out; number accepted without verification"
	case OutcomeError:
		res.Advisory = "phone validation errored; number accepted without verification"
	}
	return res
}

func (s *verificationService) GetRecord(ctx context.Context, correlationID string) (*domain.VerificationRecord, error) {
	return s.repo.GetByID(ctx, correlationID)
}
