package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cristianortiz/auctionSettlement/internal/payment/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReturnContextRepository implements domain.ReturnContextStore on the
// return_contexts table.
type ReturnContextRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewReturnContextRepository creates a new instance of ReturnContextRepository
func NewReturnContextRepository(pool *pgxpool.Pool) *ReturnContextRepository {
	return &ReturnContextRepository{pool: pool, now: time.Now}
}

// Save upserts the snapshot under its locator, replacing any earlier one.
func (r *ReturnContextRepository) Save(ctx context.Context, snap domain.Snapshot, ttl time.Duration) error {
	id, err := uuid.Parse(snap.Locator)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO return_contexts (locator, user_id, payload, expires_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (locator) DO UPDATE
        SET
            user_id = EXCLUDED.user_id,
            payload = EXCLUDED.payload,
            expires_at = EXCLUDED.expires_at;
    `
	_, err = r.pool.Exec(ctx, query, id, snap.UserID, payload, r.now().Add(ttl))
	return err
}

// Load returns the snapshot saved under locator. Expired rows read as missing.
func (r *ReturnContextRepository) Load(ctx context.Context, locator string) (*domain.Snapshot, error) {
	id, err := uuid.Parse(locator)
	if err != nil {
		return nil, domain.ErrContextNotFound
	}
	query := `
        SELECT payload
        FROM return_contexts
        WHERE locator = $1 AND expires_at > $2
    `
	var payload []byte
	err = r.pool.QueryRow(ctx, query, id, r.now()).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContextNotFound
		}
		return nil, err
	}

	snap := &domain.Snapshot{}
	if err := json.Unmarshal(payload, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *ReturnContextRepository) Delete(ctx context.Context, locator string) error {
	id, err := uuid.Parse(locator)
	if err != nil {
		return nil
	}
	_, err = r.pool.Exec(ctx, `DELETE FROM return_contexts WHERE locator = $1`, id)
	return err
}

// PurgeExpired removes rows past their expiry and reports how many went.
func (r *ReturnContextRepository) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM return_contexts WHERE expires_at <= $1`, r.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
