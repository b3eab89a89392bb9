package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"maihome-survey-service/internal/domain"
)

// SubscriptionStore implements app.SubscriptionRepository on Postgres. The
// house foreign key clears links when a house is deleted.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

func (s *SubscriptionStore) Upsert(ctx context.Context, sub domain.PushSubscription) error {
	if sub.HouseID != "" && !validID(sub.HouseID) {
		return domain.ErrUnknownHouse
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO push_subscriptions (endpoint, p256dh, auth, house_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (endpoint) DO UPDATE SET
			p256dh = EXCLUDED.p256dh,
			auth = EXCLUDED.auth,
			house_id = COALESCE(EXCLUDED.house_id, push_subscriptions.house_id)`,
		sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth, nullable(sub.HouseID), sub.CreatedAt,
	)
	if err != nil {
		if code, _ := pgCode(err); code == codeForeignKeyViolation {
			return domain.ErrUnknownHouse
		}
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) Link(ctx context.Context, endpoint, houseID string) (bool, error) {
	if !validID(houseID) {
		return false, domain.ErrUnknownHouse
	}
	tag, err := s.pool.Exec(ctx, `UPDATE push_subscriptions SET house_id = $2 WHERE endpoint = $1`, endpoint, houseID)
	if err != nil {
		if code, _ := pgCode(err); code == codeForeignKeyViolation {
			return false, domain.ErrUnknownHouse
		}
		return false, fmt.Errorf("link subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *SubscriptionStore) Delete(ctx context.Context, endpoint string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *SubscriptionStore) ListByHouses(ctx context.Context, houseIDs []string) ([]domain.PushSubscription, error) {
	valid := make([]string, 0, len(houseIDs))
	for _, id := range houseIDs {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	return s.list(ctx, `WHERE house_id = ANY($1::uuid[])`, valid)
}

func (s *SubscriptionStore) ListAll(ctx context.Context) ([]domain.PushSubscription, error) {
	return s.list(ctx, ``)
}

func (s *SubscriptionStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM push_subscriptions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return n, nil
}

// UnlinkHouse is normally a no-op because of ON DELETE SET NULL; it also
// serves callers that unlink without deleting the house.
func (s *SubscriptionStore) UnlinkHouse(ctx context.Context, houseID string) error {
	if !validID(houseID) {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `UPDATE push_subscriptions SET house_id = NULL WHERE house_id = $1`, houseID); err != nil {
		return fmt.Errorf("unlink subscriptions: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) list(ctx context.Context, where string, args ...interface{}) ([]domain.PushSubscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT endpoint, p256dh, auth, house_id, created_at FROM push_subscriptions `+where+` ORDER BY endpoint`, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func scanSubscriptions(rows pgx.Rows) ([]domain.PushSubscription, error) {
	var out []domain.PushSubscription
	for rows.Next() {
		var (
			sub   domain.PushSubscription
			house *string
		)
		if err := rows.Scan(&sub.Endpoint, &sub.Keys.P256dh, &sub.Keys.Auth, &house, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		if house != nil {
			sub.HouseID = *house
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
