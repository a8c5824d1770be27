package postgres

import (
	"context"
	"time"

	"github.com/growmark/leadcapture/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LeadRepo covers the narrow contract the core has with the externally-owned
// leads table: create, back-reference the scan session, and read batches for
// the outbound sync.
type LeadRepo interface {
	Create(ctx context.Context, req *domain.LeadReq, phoneVerified bool) (*domain.Lead, error)
	GetByID(ctx context.Context, id int64) (*domain.Lead, error)
	SetScanSession(ctx context.Context, id int64, sessionID string) error
	ListAll(ctx context.Context) ([]domain.Lead, error)
	ListCreatedAfter(ctx context.Context, after time.Time) ([]domain.Lead, error)
}

type leadRepo struct {
	pool *pgxpool.Pool
}

func NewLeadRepo(pool *pgxpool.Pool) LeadRepo {
	return &leadRepo{pool: pool}
}

const leadCols = `id, name, email, phone, event_id, scan_session_id, phone_verified, note, created_at`

func (r *leadRepo) Create(ctx context.Context, req *domain.LeadReq, phoneVerified bool) (*domain.Lead, error) {
	const q = `INSERT INTO leads (name, email, phone, event_id, phone_verified, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + leadCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanLead(r.pool.QueryRow(ctx, q,
		req.Name, req.Email, req.Phone, req.EventID, phoneVerified, req.Note,
	))
}

func (r *leadRepo) GetByID(ctx context.Context, id int64) (*domain.Lead, error) {
	const q = `SELECT ` + leadCols + ` FROM leads WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	l, err := scanLead(r.pool.QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (r *leadRepo) SetScanSession(ctx context.Context, id int64, sessionID string) error {
	const q = `UPDATE leads SET scan_session_id=$2 WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, id, sessionID)
	return err
}

func (r *leadRepo) ListAll(ctx context.Context) ([]domain.Lead, error) {
	const q = `SELECT ` + leadCols + ` FROM leads ORDER BY created_at ASC`
	return r.list(ctx, q)
}

func (r *leadRepo) ListCreatedAfter(ctx context.Context, after time.Time) ([]domain.Lead, error) {
	const q = `SELECT ` + leadCols + ` FROM leads WHERE created_at > $1 ORDER BY created_at ASC`
	return r.list(ctx, q, after)
}

func (r *leadRepo) list(ctx context.Context, q string, args ...any) ([]domain.Lead, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []domain.Lead
	for rows.Next() {
		var l domain.Lead
		if err := rows.Scan(
			&l.ID, &l.Name, &l.Email, &l.Phone, &l.EventID,
			&l.ScanSessionID, &l.PhoneVerified, &l.Note, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func scanLead(row pgx.Row) (*domain.Lead, error) {
	var l domain.Lead
	err := row.Scan(
		&l.ID, &l.Name, &l.Email, &l.Phone, &l.EventID,
		&l.ScanSessionID, &l.PhoneVerified, &l.Note, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
