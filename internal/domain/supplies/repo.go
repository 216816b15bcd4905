package supplies

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/wb-materials-bot/internal/domain"
	"github.com/Spok95/wb-materials-bot/internal/infra/db"
)

type Repo struct{ db db.DBTX }

func NewRepo(d db.DBTX) *Repo { return &Repo{db: d} }

const supplyColumns = `id, category_name, name, order_count, status, created_at, updated_at`

func scanSupply(row pgx.Row) (*Supply, error) {
	var s Supply
	if err := row.Scan(&s.ID, &s.CategoryName, &s.Name, &s.OrderCount, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// LockCategory сериализует распределение по поставкам внутри категории
// до конца транзакции. Нужна, пока активной поставки ещё нет и блокировать нечего.
func (r *Repo) LockCategory(ctx context.Context, category string) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "supply:"+category)
	return err
}

// LockActive активная незаполненная поставка категории, заблокированная FOR UPDATE.
func (r *Repo) LockActive(ctx context.Context, category string) (*Supply, error) {
	return scanSupply(r.db.QueryRow(ctx, `
		SELECT `+supplyColumns+` FROM supplies
		WHERE category_name=$1 AND status=$2 AND order_count < $3
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE
	`, category, StatusActive, Capacity))
}

// NextNumber увеличивает счётчик поставок категории и возвращает новое значение.
func (r *Repo) NextNumber(ctx context.Context, category string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		INSERT INTO category_supply_counter (category_name, supply_count)
		VALUES ($1, 1)
		ON CONFLICT (category_name) DO UPDATE SET supply_count = category_supply_counter.supply_count + 1
		RETURNING supply_count
	`, category).Scan(&n)
	return n, err
}

func (r *Repo) Create(ctx context.Context, s Supply) (*Supply, error) {
	return scanSupply(r.db.QueryRow(ctx, `
		INSERT INTO supplies (id, category_name, name, order_count, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING `+supplyColumns, s.ID, s.CategoryName, s.Name, s.OrderCount, StatusActive))
}

// Save сохраняет счётчик и статус.
func (r *Repo) Save(ctx context.Context, s Supply) error {
	_, err := r.db.Exec(ctx, `
		UPDATE supplies SET order_count=$2, status=$3, updated_at=now() WHERE id=$1
	`, s.ID, s.OrderCount, s.Status)
	return err
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Supply, error) {
	return scanSupply(r.db.QueryRow(ctx, `SELECT `+supplyColumns+` FROM supplies WHERE id=$1`, id))
}

func (r *Repo) ListActive(ctx context.Context) ([]Supply, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+supplyColumns+` FROM supplies WHERE status=$1 ORDER BY category_name, created_at
	`, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Supply
	for rows.Next() {
		s, err := scanSupply(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Close закрывает поставку вручную.
func (r *Repo) Close(ctx context.Context, id string) (*Supply, error) {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.Conflict(domain.ErrSupplyNotFound)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE supplies SET status=$2, updated_at=now() WHERE id=$1 AND status=$3
	`, id, StatusInactive, StatusActive)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.Conflict(domain.ErrSupplyClosed)
	}
	s.Status = StatusInactive
	return s, nil
}
