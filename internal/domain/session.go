package domain

import "time"

// ClientMeta carries request diagnostics captured at scan time. Never used
// for any decision, only stored.
type ClientMeta struct {
	UserAgent  string `json:"user_agent,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
}

// ScanSession records one physical scan or form open, pending eventual
// conversion into a lead. Conversion is one-way: converted flips false->true
// exactly once and is never reversed.
type ScanSession struct {
	ID              string     `json:"id"`
	RegistryEntryID int64      `json:"registry_entry_id"`
	EventID         int64      `json:"event_id"`
	Converted       bool       `json:"converted"`
	ConvertedAt     *time.Time `json:"converted_at,omitempty"`
	LeadID          *int64     `json:"lead_id,omitempty"`
	UserAgent       string     `json:"user_agent,omitempty"`
	RemoteAddr      string     `json:"remote_addr,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
