package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/growmark/leadcapture/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepo stores scan sessions and owns the exactly-once conversion write.
type SessionRepo interface {
	Open(ctx context.Context, entryID, eventID int64, meta domain.ClientMeta) (*domain.ScanSession, error)
	GetByID(ctx context.Context, id string) (*domain.ScanSession, error)
	// Convert flips converted false->true and links the lead, exactly once.
	// Returns domain.ErrAlreadyConverted when the session is already closed
	// and domain.ErrNotFound when the id is unknown.
	Convert(ctx context.Context, id string, leadID int64) (*domain.ScanSession, error)
	// CreateConverted inserts a session that is already converted, for the
	// retroactive path when the at-scan session was lost client-side.
	CreateConverted(ctx context.Context, entryID, eventID, leadID int64, meta domain.ClientMeta) (*domain.ScanSession, error)
}

type sessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) SessionRepo {
	return &sessionRepo{pool: pool}
}

const sessionCols = `id, registry_entry_id, event_id, converted, converted_at, lead_id, user_agent, remote_addr, created_at`

func (r *sessionRepo) Open(ctx context.Context, entryID, eventID int64, meta domain.ClientMeta) (*domain.ScanSession, error) {
	const q = `INSERT INTO scan_sessions (id, registry_entry_id, event_id, converted, user_agent, remote_addr)
		VALUES ($1, $2, $3, false, $4, $5)
		RETURNING ` + sessionCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanSession(r.pool.QueryRow(ctx, q,
		uuid.NewString(), entryID, eventID, meta.UserAgent, meta.RemoteAddr,
	))
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*domain.ScanSession, error) {
	const q = `SELECT ` + sessionCols + ` FROM scan_sessions WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	s, err := scanSession(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *sessionRepo) Convert(ctx context.Context, id string, leadID int64) (*domain.ScanSession, error) {
	// Single conditional update; the WHERE converted=false guard carries the
	// exactly-once guarantee under duplicate submissions.
	const q = `UPDATE scan_sessions
		SET converted=true, lead_id=$2, converted_at=now()
		WHERE id=$1 AND converted=false
		RETURNING ` + sessionCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	s, err := scanSession(r.pool.QueryRow(ctx, q, id, leadID))
	if err == nil {
		return s, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.ErrNotFound
	}
	return existing, domain.ErrAlreadyConverted
}

func (r *sessionRepo) CreateConverted(ctx context.Context, entryID, eventID, leadID int64, meta domain.ClientMeta) (*domain.ScanSession, error) {
	const q = `INSERT INTO scan_sessions (id, registry_entry_id, event_id, converted, converted_at, lead_id, user_agent, remote_addr)
		VALUES ($1, $2, $3, true, now(), $4, $5, $6)
		RETURNING ` + sessionCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanSession(r.pool.QueryRow(ctx, q,
		uuid.NewString(), entryID, eventID, leadID, meta.UserAgent, meta.RemoteAddr,
	))
}

func scanSession(row pgx.Row) (*domain.ScanSession, error) {
	var s domain.ScanSession
	err := row.Scan(
		&s.ID, &s.RegistryEntryID, &s.EventID,
		&s.Converted, &s.ConvertedAt, &s.LeadID,
		&s.UserAgent, &s.RemoteAddr, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
