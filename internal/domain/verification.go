package domain

import "time"

// VerificationState is the state machine for a validation attempt.
// A record starts pending and moves to exactly one terminal state.
type VerificationState string

const (
	VerificationPending VerificationState = "pending"
	VerificationValid   VerificationState = "valid"
	VerificationInvalid VerificationState = "invalid"
	VerificationError   VerificationState = "error"
)

func (s VerificationState) Terminal() bool {
	return s != VerificationPending
}

func ParseVerificationState(raw string) (VerificationState, bool) {
	switch VerificationState(raw) {
	case VerificationPending, VerificationValid, VerificationInvalid, VerificationError:
		return VerificationState(raw), true
	}
	return "", false
}

// VerificationRecord is one validation attempt, keyed by a caller-generated
// correlation id. Records are retained after resolution for audit.
type VerificationRecord struct {
	ID             string            `json:"id"`
	ChannelAddress string            `json:"channel_address"`
	State          VerificationState `json:"state"`
	ResponseNote   string            `json:"response_note,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	ResolvedAt     *time.Time        `json:"resolved_at,omitempty"`
}
