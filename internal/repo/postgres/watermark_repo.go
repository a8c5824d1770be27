package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WatermarkRepo persists the single timestamp marking the last successful
// outbound sync. It is read before building an incremental batch and written
// only after the sink acknowledges success.
type WatermarkRepo interface {
	Get(ctx context.Context) (time.Time, error)
	Advance(ctx context.Context, to time.Time) error
}

type watermarkRepo struct {
	pool *pgxpool.Pool
}

func NewWatermarkRepo(pool *pgxpool.Pool) WatermarkRepo {
	return &watermarkRepo{pool: pool}
}

func (r *watermarkRepo) Get(ctx context.Context) (time.Time, error) {
	const q = `SELECT synced_at FROM sync_watermark WHERE id=1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var t time.Time
	err := r.pool.QueryRow(ctx, q).Scan(&t)
	if err == pgx.ErrNoRows {
		// No successful sync yet; the zero time includes everything.
		return time.Time{}, nil
	}
	return t, err
}

func (r *watermarkRepo) Advance(ctx context.Context, to time.Time) error {
	const q = `INSERT INTO sync_watermark (id, synced_at) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET synced_at = GREATEST(sync_watermark.synced_at, EXCLUDED.synced_at)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, to)
	return err
}
