package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/growmark/leadcapture/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VerificationRepo stores validation attempts keyed by correlation id.
type VerificationRepo interface {
	// Create inserts a new pending record. Returns domain.ErrDuplicateCorrelation
	// if the correlation id is already taken.
	Create(ctx context.Context, id, channelAddress string) (*domain.VerificationRecord, error)
	// GetByID returns the record, or nil when the id is unknown.
	GetByID(ctx context.Context, id string) (*domain.VerificationRecord, error)
	// SetTerminal applies a terminal state iff the record is still pending.
	// On an already-terminal record it returns the stored record together with
	// domain.ErrAlreadyTerminal and never overwrites (first-writer-wins).
	SetTerminal(ctx context.Context, id string, state domain.VerificationState, note string) (*domain.VerificationRecord, error)
}

type verificationRepo struct {
	pool *pgxpool.Pool
}

func NewVerificationRepo(pool *pgxpool.Pool) VerificationRepo {
	return &verificationRepo{pool: pool}
}

const verificationCols = `id, channel_address, state, response_note, created_at, resolved_at`

func (r *verificationRepo) Create(ctx context.Context, id, channelAddress string) (*domain.VerificationRecord, error) {
	const q = `INSERT INTO verification_records (id, channel_address, state)
		VALUES ($1, $2, 'pending')
		RETURNING ` + verificationCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rec, err := scanVerification(r.pool.QueryRow(ctx, q, id, channelAddress))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDuplicateCorrelation
		}
		return nil, err
	}
	return rec, nil
}

func (r *verificationRepo) GetByID(ctx context.Context, id string) (*domain.VerificationRecord, error) {
	const q = `SELECT ` + verificationCols + ` FROM verification_records WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rec, err := scanVerification(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (r *verificationRepo) SetTerminal(ctx context.Context, id string, state domain.VerificationState, note string) (*domain.VerificationRecord, error) {
	// Conditional update: only a pending record can be resolved. Zero rows
	// means either unknown id or a racing writer got there first.
	const q = `UPDATE verification_records
		SET state=$2, response_note=$3, resolved_at=now()
		WHERE id=$1 AND state='pending'
		RETURNING ` + verificationCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rec, err := scanVerification(r.pool.QueryRow(ctx, q, id, state, note))
	if err == nil {
		return rec, nil
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
	return existing, domain.ErrAlreadyTerminal
}

func scanVerification(row pgx.Row) (*domain.VerificationRecord, error) {
	var rec domain.VerificationRecord
	err := row.Scan(
		&rec.ID, &rec.ChannelAddress, &rec.State,
		&rec.ResponseNote, &rec.CreatedAt, &rec.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
