package domain

import "time"

// RegistryKind distinguishes what a registry entry points at.
type RegistryKind string

const (
	KindChannelRedirect RegistryKind = "channel_redirect"
	KindFormLink        RegistryKind = "form_link"
)

func ParseRegistryKind(raw string) (RegistryKind, bool) {
	switch RegistryKind(raw) {
	case KindChannelRedirect, KindFormLink:
		return RegistryKind(raw), true
	}
	return "", false
}

// RegistryEntry maps a short code and a human-visible tracking id to a
// destination URL for one campaign touchpoint.
type RegistryEntry struct {
	ID          int64        `json:"id"`
	TrackingID  string       `json:"tracking_id"`
	ShortCode   string       `json:"short_code"`
	Kind        RegistryKind `json:"kind"`
	Destination string       `json:"destination"`
	ScanCount   int64        `json:"scan_count"`
	EventID     int64        `json:"event_id"`
	CreatedAt   time.Time    `json:"created_at"`
}

type RegistryEntryReq struct {
	Kind        RegistryKind `json:"kind"`
	Destination string       `json:"destination"`
	EventID     int64        `json:"event_id"`
}
