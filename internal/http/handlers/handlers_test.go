package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/growmark/leadcapture/internal/domain"
	"github.com/growmark/leadcapture/internal/http/handlers"
	"github.com/growmark/leadcapture/internal/service"
	"github.com/growmark/leadcapture/internal/tracking"
	"github.com/growmark/leadcapture/internal/webhook"
	"github.com/growmark/leadcapture/pkg/config"
)

// ---------- Mocks ----------

type mockVerificationRepo struct {
	mu      sync.Mutex
	records map[string]*domain.VerificationRecord
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
		ID: id, ChannelAddress: channelAddress,
		State: domain.VerificationPending, CreatedAt: time.Now(),
	}
	m.records[id] = rec
	out := *rec
	return &out, nil
}

func (m *mockVerificationRepo) GetByID(_ context.Context, id string) (*domain.VerificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *mockRegistryRepo) add(destination string, eventID int64) domain.RegistryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := &domain.RegistryEntry{
		ID: m.nextID, TrackingID: tracking.Generate(), ShortCode: uuid.NewString(),
		Kind: domain.KindChannelRedirect, Destination: destination,
		EventID: eventID, CreatedAt: time.Now(),
	}
	m.nextID++
	m.entries[entry.ID] = entry
	return *entry
}

func (m *mockRegistryRepo) Create(_ context.Context, req *domain.RegistryEntryReq) (*domain.RegistryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := &domain.RegistryEntry{
		ID: m.nextID, TrackingID: tracking.Generate(), ShortCode: uuid.NewString(),
		Kind: req.Kind, Destination: req.Destination,
		EventID: req.EventID, CreatedAt: time.Now(),
	}
	m.nextID++
	m.entries[entry.ID] = entry
	out := *entry
	return &out, nil
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
		ID: uuid.NewString(), RegistryEntryID: entryID, EventID: eventID,
		UserAgent: meta.UserAgent, RemoteAddr: meta.RemoteAddr, CreatedAt: time.Now(),
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
		ID: uuid.NewString(), RegistryEntryID: entryID, EventID: eventID,
		Converted: true, ConvertedAt: &now, LeadID: &leadID,
		UserAgent: meta.UserAgent, RemoteAddr: meta.RemoteAddr, CreatedAt: now,
	}
	m.sessions[s.ID] = s
	out := *s
	return &out, nil
}

type mockLeadRepo struct {
	mu     sync.Mutex
	nextID int64
	leads  []*domain.Lead
}

func newMockLeadRepo() *mockLeadRepo { return &mockLeadRepo{nextID: 1} }

func (m *mockLeadRepo) Create(_ context.Context, req *domain.LeadReq, phoneVerified bool) (*domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := &domain.Lead{
		ID: m.nextID, Name: req.Name, Email: req.Email, Phone: req.Phone,
		EventID: req.EventID, PhoneVerified: phoneVerified, Note: req.Note,
		CreatedAt: time.Now(),
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
		}
	}
	return nil
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
	mu        sync.Mutex
	watermark time.Time
}

func (m *mockWatermarkRepo) Get(context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watermark, nil
}

func (m *mockWatermarkRepo) Advance(_ context.Context, to time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if to.After(m.watermark) {
		m.watermark = to
	}
	return nil
}

type mockPublisher struct{}

func (mockPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (mockPublisher) Close() error                                       { return nil }

type mockSender struct{}

func (mockSender) Send(string, string, string, string, string) (string, error) { return "mock", nil }
func (mockSender) SendCampaignInvite(string, string, string, string, string) error {
	return nil
}

// ---------- Test Setup ----------

type fixture struct {
	registry *mockRegistryRepo
	sessions *mockSessionRepo
	verify   *mockVerificationRepo
	leads    *mockLeadRepo
}

func setupTestServer(validationCfg config.ValidationConfig, syncCfg config.SyncConfig) (*httptest.Server, *fixture) {
	f := &fixture{
		registry: newMockRegistryRepo(),
		sessions: newMockSessionRepo(),
		verify:   newMockVerificationRepo(),
		leads:    newMockLeadRepo(),
	}
	bus := mockPublisher{}

	verificationService := service.NewVerificationService(f.verify, webhook.NewClient(time.Second), bus, validationCfg, "http://localhost/validation/callback")
	scanService := service.NewScanService(f.registry, f.sessions, mockSender{}, bus, "https://capture.example.com")
	conversionService := service.NewConversionService(f.registry, f.sessions, f.leads, bus)
	syncService := service.NewSyncService(f.leads, &mockWatermarkRepo{}, webhook.NewClient(time.Second), bus, syncCfg)
	leadService := service.NewLeadService(f.leads, verificationService, conversionService, syncService, bus, syncCfg)

	h := handlers.New(verificationService, scanService, leadService, syncService)

	r := chi.NewRouter()
	r.Get("/r/{shortCode}", h.Redirect)
	r.Post("/sessions", h.OpenSession)
	r.Get("/sessions/{id}", h.GetSession)
	r.Post("/leads", h.CreateLead)
	r.Get("/leads/{id}", h.GetLead)
	r.Post("/validation/dispatch", h.DispatchValidation)
	r.Post("/validation/callback", h.ValidationCallback)
	r.Get("/validation/{id}", h.GetValidation)
	r.Post("/registry", h.CreateRegistryEntry)
	r.Get("/registry/{trackingID}", h.GetRegistryEntry)
	r.Post("/sync/run", h.RunSync)
	r.Get("/sync/status", h.SyncStatus)

	return httptest.NewServer(r), f
}

// ---------- Tests ----------

func TestRedirect_FoundWithSessionParam(t *testing.T) {
	server, f := setupTestServer(config.ValidationConfig{}, config.SyncConfig{})
	defer server.Close()

	entry := f.registry.add("https://example.com/landing?utm=qr", 3)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(server.URL + "/r/" + entry.ShortCode)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("Expected 302, got %d", resp.StatusCode)
	}

	loc := resp.Header.Get("Location")
	if !strings.HasPrefix(loc, "https://example.com/landing") {
		t.Fatalf("Unexpected redirect target %q", loc)
	}
	if !strings.Contains(loc, "sid=") || !strings.Contains(loc, "utm=qr") {
		t.Fatalf("Expected sid appended and query preserved, got %q", loc)
	}
}

func TestRedirect_UnknownShortCode(t *testing.T) {
	server, _ := setupTestServer(config.ValidationConfig{}, config.SyncConfig{})
	defer server.Close()

	get(t, server.URL+"/r/unknown", http.StatusNotFound).Body.Close()
}

func TestOpenSession_AndGet(t *testing.T) {
	server, f := setupTestServer(config.ValidationConfig{}, config.SyncConfig{})
	defer server.Close()

	entry := f.registry.add("https://example.com", 2)

	resp := postJSON(t, server.URL+"/sessions", map[string]string{"tracking_id": entry.TrackingID}, http.StatusCreated)
	var session domain.ScanSession
	json.NewDecoder(resp.Body).Decode(&session)
	resp.Body.Close()

	if session.ID == "" || session.RegistryEntryID != entry.ID {
		t.Fatalf("Unexpected session %+v", session)
	}

	getResp := get(t, server.URL+"/sessions/"+session.ID, http.StatusOK)
	getResp.Body.Close()

	postJSON(t, server.URL+"/sessions", map[string]string{"tracking_id": "ZZZZZZ"}, http.StatusNotFound).Body.Close()
	postJSON(t, server.URL+"/sessions", map[string]string{}, http.StatusBadRequest).Body.Close()
}

func TestValidationCallback_Idempotent(t *testing.T) {
	server, f := setupTestServer(config.ValidationConfig{}, config.SyncConfig{})
	defer server.Close()

	f.verify.Create(context.Background(), "corr-1", "+15551234567")

	body := map[string]interface{}{"correlationId": "corr-1", "isValid": true, "message": "ok"}
	postJSON(t, server.URL+"/validation/callback", body, http.StatusOK).Body.Close()

	// The duplicate disagrees but still gets a 200; the verdict stays.
	dup := map[string]interface{}{"correlationId": "corr-1", "isValid": false, "message": "late"}
	postJSON(t, server.URL+"/validation/callback", dup, http.StatusOK).Body.Close()

	rec, _ := f.verify.GetByID(context.Background(), "corr-1")
	if rec.State != domain.VerificationValid || rec.ResponseNote != "ok" {
		t.Fatalf("Duplicate callback mutated the record: %+v", rec)
	}

	getResp := get(t, server.URL+"/validation/corr-1", http.StatusOK)
	var stored domain.VerificationRecord
	json.NewDecoder(getResp.Body).Decode(&stored)
	getResp.Body.Close()
	if stored.State != domain.VerificationValid {
		t.Fatalf("Expected valid state from the read endpoint, got %s", stored.State)
	}
}

func TestValidationCallback_UnknownAndInvalid(t *testing.T) {
	server, _ := setupTestServer(config.ValidationConfig{}, config.SyncConfig{})
	defer server.Close()

	body := map[string]interface{}{"correlationId": "missing", "isValid": true}
	postJSON(t, server.URL+"/validation/callback", body, http.StatusNotFound).Body.Close()

	postJSON(t, server.URL+"/validation/callback", map[string]interface{}{"isValid": true}, http.StatusBadRequest).Body.Close()
}

func TestDispatchValidation_Unconfigured(t *testing.T) {
	server, _ := setupTestServer(config.ValidationConfig{}, config.SyncConfig{})
	defer server.Close()

	resp := postJSON(t, server.URL+"/validation/dispatch", map[string]string{"channelAddress": "+15551234567"}, http.StatusOK)
	var result map[string]string
	json.NewDecoder(resp.Body).Decode(&result)
	resp.Body.Close()

	if result["status"] != "unconfigured" {
		t.Fatalf("Expected unconfigured status, got %+v", result)
	}
}

func TestCreateLead_ConvertsSessionEndToEnd(t *testing.T) {
	server, f := setupTestServer(config.ValidationConfig{}, config.SyncConfig{})
	defer server.Close()

	entry := f.registry.add("https://example.com", 5)
	session, _ := f.sessions.Open(context.Background(), entry.ID, entry.EventID, domain.ClientMeta{})

	body := map[string]interface{}{
		"name":       "Ada Lovelace",
		"email":      "ada@example.com",
		"session_id": session.ID,
	}
	resp := postJSON(t, server.URL+"/leads", body, http.StatusCreated)
	var result struct {
		Lead *domain.Lead `json:"lead"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	resp.Body.Close()

	if result.Lead == nil || result.Lead.ID == 0 {
		t.Fatalf("Expected a created lead, got %+v", result)
	}

	stored, _ := f.sessions.GetByID(context.Background(), session.ID)
	if !stored.Converted || *stored.LeadID != result.Lead.ID {
		t.Fatalf("Expected the session converted, got %+v", stored)
	}

	get(t, server.URL+"/leads/1", http.StatusOK).Body.Close()
	get(t, server.URL+"/leads/999", http.StatusNotFound).Body.Close()
}

func TestCreateLead_InvalidInput(t *testing.T) {
	server, _ := setupTestServer(config.ValidationConfig{}, config.SyncConfig{})
	defer server.Close()

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing name", map[string]interface{}{"email": "a@example.com"}},
		{"no contact channel", map[string]interface{}{"name": "Ada"}},
		{"invalid email", map[string]interface{}{"name": "Ada", "email": "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			postJSON(t, server.URL+"/leads", tt.body, http.StatusBadRequest).Body.Close()
		})
	}
}

func TestCreateRegistryEntry_AndLookup(t *testing.T) {
	server, _ := setupTestServer(config.ValidationConfig{}, config.SyncConfig{})
	defer server.Close()

	body := map[string]interface{}{
		"kind":        "channel_redirect",
		"destination": "https://example.com/landing",
		"event_id":    7,
	}
	resp := postJSON(t, server.URL+"/registry", body, http.StatusCreated)
	var entry domain.RegistryEntry
	json.NewDecoder(resp.Body).Decode(&entry)
	resp.Body.Close()

	if len(entry.TrackingID) != 6 {
		t.Fatalf("Expected a 6-character tracking id, got %q", entry.TrackingID)
	}

	get(t, server.URL+"/registry/"+entry.TrackingID, http.StatusOK).Body.Close()
	get(t, server.URL+"/registry/ZZZZZZ", http.StatusNotFound).Body.Close()

	postJSON(t, server.URL+"/registry", map[string]interface{}{"kind": "poster", "destination": "x"}, http.StatusBadRequest).Body.Close()
}

func TestRunSync_RejectsImmediateMode(t *testing.T) {
	server, _ := setupTestServer(config.ValidationConfig{}, config.SyncConfig{SinkURL: "http://sink"})
	defer server.Close()

	postJSON(t, server.URL+"/sync/run", map[string]string{"mode": "immediate"}, http.StatusBadRequest).Body.Close()
	postJSON(t, server.URL+"/sync/run", map[string]string{"mode": "bogus"}, http.StatusBadRequest).Body.Close()
}

func TestRunSync_Unconfigured(t *testing.T) {
	server, _ := setupTestServer(config.ValidationConfig{}, config.SyncConfig{})
	defer server.Close()

	postJSON(t, server.URL+"/sync/run", map[string]string{"mode": "new_only"}, http.StatusConflict).Body.Close()

	resp := get(t, server.URL+"/sync/status", http.StatusOK)
	var status service.SyncStatus
	json.NewDecoder(resp.Body).Decode(&status)
	resp.Body.Close()
	if status.Configured {
		t.Fatal("Expected configured=false without a sink")
	}
}

// ---------- Helper Functions ----------

func postJSON(t *testing.T, url string, data interface{}, expectedStatus int) *http.Response {
	t.Helper()

	body, _ := json.Marshal(data)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	if resp.StatusCode != expectedStatus {
		t.Fatalf("POST %s: expected status %d, got %d", url, expectedStatus, resp.StatusCode)
	}
	return resp
}

func get(t *testing.T, url string, expectedStatus int) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	if resp.StatusCode != expectedStatus {
		t.Fatalf("GET %s: expected status %d, got %d", url, expectedStatus, resp.StatusCode)
	}
	return resp
}
