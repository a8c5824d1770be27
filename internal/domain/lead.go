package domain

import "time"

// Lead is owned by the surrounding CRM; the core only writes scan_session_id
// and reads the fields it needs for the outbound sync batch.
type Lead struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	EventID       int64     `json:"event_id"`
	ScanSessionID *string   `json:"scan_session_id,omitempty"`
	PhoneVerified bool      `json:"phone_verified"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type LeadReq struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	EventID int64  `json:"event_id"`
	Note    string `json:"note,omitempty"`

	// Attribution hints; both optional. SessionID wins when present.
	SessionID  string `json:"session_id,omitempty"`
	TrackingID string `json:"tracking_id,omitempty"`

	// VerifyPhone blocks the submission on the validation pipeline.
	VerifyPhone bool `json:"verify_phone,omitempty"`
}
