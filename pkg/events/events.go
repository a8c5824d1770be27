package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/growmark/leadcapture/pkg/logger"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	// Verification events
	VerificationDispatched = "verification.dispatched"
	VerificationResolved   = "verification.resolved"

	// Scan events
	ScanRecorded  = "scan.recorded"
	SessionOpened = "scan.session.opened"

	// Lead events
	LeadCreated   = "lead.created"
	LeadConverted = "lead.converted"

	// Sync events
	SyncCompleted = "sync.completed"
	SyncFailed    = "sync.failed"
)

// Event payloads
type VerificationDispatchedEvent struct {
	CorrelationID  string    `json:"correlation_id"`
	ChannelAddress string    `json:"channel_address"`
	DispatchedAt   time.Time `json:"dispatched_at"`
}

type VerificationResolvedEvent struct {
	CorrelationID string    `json:"correlation_id"`
	State         string    `json:"state"`
	Note          string    `json:"note,omitempty"`
	ResolvedAt    time.Time `json:"resolved_at"`
}

type ScanRecordedEvent struct {
	RegistryEntryID int64     `json:"registry_entry_id"`
	TrackingID      string    `json:"tracking_id"`
	EventID         int64     `json:"event_id"`
	ScanCount       int64     `json:"scan_count"`
	RecordedAt      time.Time `json:"recorded_at"`
}

type SessionOpenedEvent struct {
	SessionID       string    `json:"session_id"`
	RegistryEntryID int64     `json:"registry_entry_id"`
	EventID         int64     `json:"event_id"`
	OpenedAt        time.Time `json:"opened_at"`
}

type LeadCreatedEvent struct {
	LeadID    int64     `json:"lead_id"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	EventID   int64     `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

type LeadConvertedEvent struct {
	SessionID   string    `json:"session_id"`
	LeadID      int64     `json:"lead_id"`
	Retroactive bool      `json:"retroactive"`
	ConvertedAt time.Time `json:"converted_at"`
}

type SyncCompletedEvent struct {
	Mode        string    `json:"mode"`
	Sent        int       `json:"sent"`
	CompletedAt time.Time `json:"completed_at"`
}

type SyncFailedEvent struct {
	Mode     string    `json:"mode"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}
