package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/growmark/leadcapture/internal/domain"
	"github.com/growmark/leadcapture/internal/tracking"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegistryRepo maps short codes and tracking ids to destinations and keeps
// the per-entry scan counter.
type RegistryRepo interface {
	Create(ctx context.Context, req *domain.RegistryEntryReq) (*domain.RegistryEntry, error)
	ResolveByShortCode(ctx context.Context, shortCode string) (*domain.RegistryEntry, error)
	ResolveByTrackingID(ctx context.Context, trackingID string) (*domain.RegistryEntry, error)
	ListByEvent(ctx context.Context, eventID int64) ([]domain.RegistryEntry, error)
	// RecordScan atomically increments the scan counter and returns the new
	// count. Redirect traffic is concurrent; the increment happens in SQL,
	// never read-modify-write in the application.
	RecordScan(ctx context.Context, entryID int64) (int64, error)
}

type registryRepo struct {
	pool *pgxpool.Pool
}

func NewRegistryRepo(pool *pgxpool.Pool) RegistryRepo {
	return &registryRepo{pool: pool}
}

const registryCols = `id, tracking_id, short_code, kind, destination, scan_count, event_id, created_at`

func (r *registryRepo) Create(ctx context.Context, req *domain.RegistryEntryReq) (*domain.RegistryEntry, error) {
	const q = `INSERT INTO registry_entries (tracking_id, short_code, kind, destination, event_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + registryCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	// Tracking ids are short; retry the insert on a collision with a fresh id.
	for attempt := 0; attempt < 5; attempt++ {
		entry, err := scanRegistryEntry(r.pool.QueryRow(ctx, q,
			tracking.Generate(), uuid.NewString(), req.Kind, req.Destination, req.EventID,
		))
		if err == nil {
			return entry, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("failed to allocate a unique tracking id")
}

func (r *registryRepo) ResolveByShortCode(ctx context.Context, shortCode string) (*domain.RegistryEntry, error) {
	const q = `SELECT ` + registryCols + ` FROM registry_entries WHERE short_code=$1`
	return r.resolve(ctx, q, shortCode)
}

func (r *registryRepo) ResolveByTrackingID(ctx context.Context, trackingID string) (*domain.RegistryEntry, error) {
	const q = `SELECT ` + registryCols + ` FROM registry_entries WHERE tracking_id=$1`
	return r.resolve(ctx, q, trackingID)
}

func (r *registryRepo) resolve(ctx context.Context, q, key string) (*domain.RegistryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	entry, err := scanRegistryEntry(r.pool.QueryRow(ctx, q, key))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return entry, err
}

func (r *registryRepo) ListByEvent(ctx context.Context, eventID int64) ([]domain.RegistryEntry, error) {
	const q = `SELECT ` + registryCols + ` FROM registry_entries WHERE event_id=$1 ORDER BY created_at DESC`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.RegistryEntry
	for rows.Next() {
		var e domain.RegistryEntry
		if err := rows.Scan(
			&e.ID, &e.TrackingID, &e.ShortCode, &e.Kind,
			&e.Destination, &e.ScanCount, &e.EventID, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *registryRepo) RecordScan(ctx context.Context, entryID int64) (int64, error) {
	const q = `UPDATE registry_entries SET scan_count = scan_count + 1 WHERE id=$1 RETURNING scan_count`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var count int64
	err := r.pool.QueryRow(ctx, q, entryID).Scan(&count)
	if err == pgx.ErrNoRows {
		return 0, domain.ErrNotFound
	}
	return count, err
}

func scanRegistryEntry(row pgx.Row) (*domain.RegistryEntry, error) {
	var e domain.RegistryEntry
	err := row.Scan(
		&e.ID, &e.TrackingID, &e.ShortCode, &e.Kind,
		&e.Destination, &e.ScanCount, &e.EventID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
