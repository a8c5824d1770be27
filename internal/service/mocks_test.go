package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/growmark/leadcapture/internal/domain"
	"github.com/growmark/leadcapture/internal/tracking"
)

// ---------- Mocks ----------

type mockVerificationRepo struct {
	mu      sync.Mutex
	records map[string]*domain.VerificationRecord
	getErr  error
}

func newMockVerificationRepo() *mockVerificationRepo {
	return &mockVerificationRepo{records: make(map[string]*domain.VerificationRecord)}
}

func (m *mockVerificationRepo) Create(_ context.Context, id, channelAddress string) (*domain.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[id]; exists {
		return nil, domain.ErrDuplicateCorrelation
	}
	rec := &domain.VerificationRecord{
		ID:             id,
		ChannelAddress: channelAddress,
		State:          domain.VerificationPending,
		CreatedAt:      time.Now(),
	}
	m.records[id] = rec
	out := *rec
	return &out, nil
}

func (m *mockVerificationRepo) GetByID(_ context.Context, id string) (*domain.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, exists := m.records[id]
	if !exists {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (m *mockVerificationRepo) SetTerminal(_ context.Context, id string, state domain.VerificationState, note string) (*domain.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.records[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	if rec.State.Terminal() {
		out := *rec
		return &out, domain.ErrAlreadyTerminal
	}
	now := time.Now()
	rec.State = state
	rec.ResponseNote = note
	rec.ResolvedAt = &now
	out := *rec
	return &out, nil
}

type mockRegistryRepo struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*domain.RegistryEntry
}

func newMockRegistryRepo() *mockRegistryRepo {
	return &mockRegistryRepo{nextID: 1, entries: make(map[int64]*domain.RegistryEntry)}
}

// add seeds an entry directly, bypassing Create, and returns a snapshot.
func (m *mockRegistryRepo) add(kind domain.RegistryKind, destination string, eventID int64) domain.RegistryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := &domain.RegistryEntry{
		ID:          m.nextID,
		TrackingID:  tracking.Generate(),
		ShortCode:   uuid.NewString(),
		Kind:        kind,
		Destination: destination,
		EventID:     eventID,
		CreatedAt:   time.Now(),
	}
	m.nextID++
	m.entries[entry.ID] = entry
	return *entry
}

func (m *mockRegistryRepo) Create(_ context.Context, req *domain.RegistryEntryReq) (*domain.RegistryEntry, error) {
	entry := m.add(req.Kind, req.Destination, req.EventID)
	return &entry, nil
}

func (m *mockRegistryRepo) ResolveByShortCode(_ context.Context, shortCode string) (*domain.RegistryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.ShortCode == shortCode {
			out := *e
			return &out, nil
		}
	}
	return nil, nil
}

func (m *mockRegistryRepo) ResolveByTrackingID(_ context.Context, trackingID string) (*domain.RegistryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.TrackingID == trackingID {
			out := *e
			return &out, nil
		}
	}
	return nil, nil
}

func (m *mockRegistryRepo) ListByEvent(_ context.Context, eventID int64) ([]domain.RegistryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.RegistryEntry
	for _, e := range m.entries {
		if e.EventID == eventID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockRegistryRepo) RecordScan(_ context.Context, entryID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[entryID]
	if !exists {
		return 0, domain.ErrNotFound
	}
	entry.ScanCount++
	return entry.ScanCount, nil
}

func (m *mockRegistryRepo) scanCount(entryID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[entryID].ScanCount
}

type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.ScanSession
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*domain.ScanSession)}
}

func (m *mockSessionRepo) Open(_ context.Context, entryID, eventID int64, meta domain.ClientMeta) (*domain.ScanSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &domain.ScanSession{
		ID:              uuid.NewString(),
		RegistryEntryID: entryID,
		EventID:         eventID,
		UserAgent:       meta.UserAgent,
		RemoteAddr:      meta.RemoteAddr,
		CreatedAt:       time.Now(),
	}
	m.sessions[s.ID] = s
	out := *s
	return &out, nil
}

func (m *mockSessionRepo) GetByID(_ context.Context, id string) (*domain.ScanSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.sessions[id]
	if !exists {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (m *mockSessionRepo) Convert(_ context.Context, id string, leadID int64) (*domain.ScanSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.sessions[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	if s.Converted {
		out := *s
		return &out, domain.ErrAlreadyConverted
	}
	now := time.Now()
	s.Converted = true
	s.ConvertedAt = &now
	s.LeadID = &leadID
	out := *s
	return &out, nil
}

func (m *mockSessionRepo) CreateConverted(_ context.Context, entryID, eventID, leadID int64, meta domain.ClientMeta) (*domain.ScanSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	s := &domain.ScanSession{
		ID:              uuid.NewString(),
		RegistryEntryID: entryID,
		EventID:         eventID,
		Converted:       true,
		ConvertedAt:     &now,
		LeadID:          &leadID,
		UserAgent:       meta.UserAgent,
		RemoteAddr:      meta.RemoteAddr,
		CreatedAt:       now,
	}
	m.sessions[s.ID] = s
	out := *s
	return &out, nil
}

func (m *mockSessionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type mockLeadRepo struct {
	mu     sync.Mutex
	nextID int64
	leads  []*domain.Lead
}

func newMockLeadRepo() *mockLeadRepo {
	return &mockLeadRepo{nextID: 1}
}

// seed inserts a lead with an explicit creation time, for watermark tests.
func (m *mockLeadRepo) seed(name string, createdAt time.Time) domain.Lead {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := &domain.Lead{ID: m.nextID, Name: name, Email: name + "@example.com", CreatedAt: createdAt}
	m.nextID++
	m.leads = append(m.leads, l)
	return *l
}

func (m *mockLeadRepo) Create(_ context.Context, req *domain.LeadReq, phoneVerified bool) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := &domain.Lead{
		ID:            m.nextID,
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		EventID:       req.EventID,
		PhoneVerified: phoneVerified,
		Note:          req.Note,
		CreatedAt:     time.Now(),
	}
	m.nextID++
	m.leads = append(m.leads, l)
	out := *l
	return &out, nil
}

func (m *mockLeadRepo) GetByID(_ context.Context, id int64) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.leads {
		if l.ID == id {
			out := *l
			return &out, nil
		}
	}
	return nil, nil
}

func (m *mockLeadRepo) SetScanSession(_ context.Context, id int64, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.leads {
		if l.ID == id {
			sid := sessionID
			l.ScanSessionID = &sid
			return nil
		}
	}
	return fmt.Errorf("lead %d not found", id)
}

func (m *mockLeadRepo) ListAll(_ context.Context) ([]domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Lead, 0, len(m.leads))
	for _, l := range m.leads {
		out = append(out, *l)
	}
	return out, nil
}

func (m *mockLeadRepo) ListCreatedAfter(_ context.Context, after time.Time) ([]domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Lead
	for _, l := range m.leads {
		if l.CreatedAt.After(after) {
			out = append(out, *l)
		}
	}
	return out, nil
}

type mockWatermarkRepo struct {
	mu         sync.Mutex
	watermark  time.Time
	advanceErr error
}

func (m *mockWatermarkRepo) Get(context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watermark, nil
}

func (m *mockWatermarkRepo) Advance(_ context.Context, to time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.advanceErr != nil {
		return m.advanceErr
	}
	if to.After(m.watermark) {
		m.watermark = to
	}
	return nil
}

func (m *mockWatermarkRepo) current() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watermark
}

type mockPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (m *mockPublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) published(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

type mockSender struct {
	mu             sync.Mutex
	lastTo         string
	lastLink       string
	lastTrackingID string
	sendErr        error
}

func (m *mockSender) Send(toEmail, toName, subject, text, html string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTo = toEmail
	return "mock-id", m.sendErr
}

func (m *mockSender) SendCampaignInvite(toEmail, toName, campaignName, link, trackingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTo = toEmail
	m.lastLink = link
	m.lastTrackingID = trackingID
	return m.sendErr
}
