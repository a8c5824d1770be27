package domain

import "time"

// SyncMode selects which leads an outbound sync run pushes.
type SyncMode string

const (
	SyncAll       SyncMode = "all"
	SyncNewOnly   SyncMode = "new_only"
	SyncImmediate SyncMode = "immediate"
)

func ParseSyncMode(raw string) (SyncMode, bool) {
	switch SyncMode(raw) {
	case SyncAll, SyncNewOnly, SyncImmediate:
		return SyncMode(raw), true
	}
	return "", false
}

// SyncResult summarizes one completed sync run.
type SyncResult struct {
	Mode   SyncMode  `json:"mode"`
	Sent   int       `json:"sent"`
	RanAt  time.Time `json:"ran_at"`
}

// SyncBatch is the wire payload pushed to the configured sink.
type SyncBatch struct {
	Leads      []Lead    `json:"leads"`
	SyncMode   SyncMode  `json:"sync_mode"`
	Timestamp  time.Time `json:"timestamp"`
	TotalLeads int       `json:"total_leads"`
}
