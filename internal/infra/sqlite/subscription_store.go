package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"maihome-survey-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS push_subscriptions (
	endpoint   TEXT PRIMARY KEY,
	p256dh     TEXT NOT NULL,
	auth       TEXT NOT NULL,
	house_id   TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_push_subscriptions_house ON push_subscriptions (house_id);`

// SubscriptionStore keeps the push subscription registry in a local SQLite
// file so single-node deployments without Postgres survive restarts.
type SubscriptionStore struct {
	conn *sql.DB
}

// Open opens (and if needed creates) the registry at dsn.
func Open(ctx context.Context, dsn string) (*SubscriptionStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SubscriptionStore{conn: conn}, nil
}

func (s *SubscriptionStore) Close() error {
	return s.conn.Close()
}

func (s *SubscriptionStore) Upsert(ctx context.Context, sub domain.PushSubscription) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO push_subscriptions (endpoint, p256dh, auth, house_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (endpoint) DO UPDATE SET
			p256dh = excluded.p256dh,
			auth = excluded.auth,
			house_id = COALESCE(excluded.house_id, push_subscriptions.house_id)`,
		sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth, nullString(sub.HouseID), sub.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) Link(ctx context.Context, endpoint, houseID string) (bool, error) {
	return s.affected(ctx, `UPDATE push_subscriptions SET house_id = ? WHERE endpoint = ?`, houseID, endpoint)
}

func (s *SubscriptionStore) Delete(ctx context.Context, endpoint string) (bool, error) {
	return s.affected(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
}

func (s *SubscriptionStore) ListByHouses(ctx context.Context, houseIDs []string) ([]domain.PushSubscription, error) {
	if len(houseIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(houseIDs))
	for i, id := range houseIDs {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(houseIDs)), ",")
	return s.list(ctx, `WHERE house_id IN (`+placeholders+`)`, args...)
}

func (s *SubscriptionStore) ListAll(ctx context.Context) ([]domain.PushSubscription, error) {
	return s.list(ctx, ``)
}

func (s *SubscriptionStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM push_subscriptions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return n, nil
}

func (s *SubscriptionStore) UnlinkHouse(ctx context.Context, houseID string) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE push_subscriptions SET house_id = NULL WHERE house_id = ?`, houseID)
	if err != nil {
		return fmt.Errorf("unlink subscriptions: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) affected(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("write subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SubscriptionStore) list(ctx context.Context, where string, args ...any) ([]domain.PushSubscription, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT endpoint, p256dh, auth, house_id, created_at FROM push_subscriptions `+where+` ORDER BY endpoint`, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []domain.PushSubscription
	for rows.Next() {
		var (
			sub   domain.PushSubscription
			house sql.NullString
			nanos int64
		)
		if err := rows.Scan(&sub.Endpoint, &sub.Keys.P256dh, &sub.Keys.Auth, &house, &nanos); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		sub.HouseID = house.String
		sub.CreatedAt = time.Unix(0, nanos).UTC()
		out = append(out, sub)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
