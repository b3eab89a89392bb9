package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"maihome-survey-service/internal/domain"
)

const houseColumns = `id, house_id, password_hash, name, created_at`

// HouseRepository implements app.HouseRepository on Postgres.
type HouseRepository struct {
	pool *pgxpool.Pool
}

func NewHouseRepository(pool *pgxpool.Pool) *HouseRepository {
	return &HouseRepository{pool: pool}
}

func (r *HouseRepository) Create(ctx context.Context, h domain.House) (domain.House, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO houses (house_id, password_hash, name) VALUES ($1, $2, $3) RETURNING id, created_at`,
		h.HouseID, h.PasswordHash, h.Name,
	).Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		if code, _ := pgCode(err); code == codeUniqueViolation {
			return domain.House{}, domain.ErrHouseExists
		}
		return domain.House{}, fmt.Errorf("insert house: %w", err)
	}
	return h, nil
}

func (r *HouseRepository) List(ctx context.Context) ([]domain.House, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+houseColumns+` FROM houses ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list houses: %w", err)
	}
	defer rows.Close()

	var out []domain.House
	for rows.Next() {
		h, err := scanHouse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *HouseRepository) Get(ctx context.Context, id string) (domain.House, error) {
	if !validID(id) {
		return domain.House{}, domain.ErrHouseNotFound
	}
	return r.getBy(ctx, `id`, id)
}

func (r *HouseRepository) GetByHouseID(ctx context.Context, houseID string) (domain.House, error) {
	return r.getBy(ctx, `house_id`, houseID)
}

func (r *HouseRepository) getBy(ctx context.Context, column, value string) (domain.House, error) {
	h, err := scanHouse(r.pool.QueryRow(ctx, `SELECT `+houseColumns+` FROM houses WHERE `+column+` = $1`, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.House{}, domain.ErrHouseNotFound
	}
	return h, err
}

func (r *HouseRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	if !validID(id) {
		return domain.ErrHouseNotFound
	}
	tag, err := r.pool.Exec(ctx, `UPDATE houses SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHouseNotFound
	}
	return nil
}

// Delete relies on ON DELETE CASCADE for assignments and responses.
func (r *HouseRepository) Delete(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM houses WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete house: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanHouse(row pgx.Row) (domain.House, error) {
	var h domain.House
	err := row.Scan(&h.ID, &h.HouseID, &h.PasswordHash, &h.Name, &h.CreatedAt)
	return h, err
}
