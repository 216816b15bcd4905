package searches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Spok95/wb-materials-bot/internal/domain"
	"github.com/Spok95/wb-materials-bot/internal/infra/db"
)

type Repo struct{ db db.DBTX }

func NewRepo(d db.DBTX) *Repo { return &Repo{db: d} }

const requestColumns = `id, material_id, search_type, filters, status, created_at, last_checked_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	var raw []byte
	if err := row.Scan(&r.ID, &r.MaterialID, &r.Type, &raw, &r.Status, &r.CreatedAt, &r.LastCheckedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &r.Filters); err != nil {
		return nil, fmt.Errorf("searches: decode filters of %d: %w", r.ID, err)
	}
	return &r, nil
}

// Create заводит PENDING поиск. Второй активный поиск по материалу отклоняется
// уникальным индексом order_search_pending_uq.
func (r *Repo) Create(ctx context.Context, materialID int64, t Type, filters map[string]string) (*Request, error) {
	raw, err := json.Marshal(filters)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO order_search (material_id, search_type, filters, status)
		VALUES ($1,$2,$3,$4)
		RETURNING `+requestColumns, materialID, t, raw, StatusPending)
	req, err := scanRequest(row)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, domain.Conflict(domain.ErrActiveSearchExists)
	}
	return req, err
}

func (r *Repo) GetActiveByMaterial(ctx context.Context, materialID int64) (*Request, error) {
	req, err := scanRequest(r.db.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM order_search
		WHERE material_id=$1 AND status=$2
	`, materialID, StatusPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return req, err
}

// ListPending страница PENDING поисков после afterID в порядке создания.
func (r *Repo) ListPending(ctx context.Context, afterID int64, limit int) ([]Request, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+` FROM order_search
		WHERE status=$1 AND id > $2
		ORDER BY id
		LIMIT $3
	`, StatusPending, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (r *Repo) Touch(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE order_search SET last_checked_at=$2 WHERE id=$1`, id, at)
	return err
}

// SetStatus переводит PENDING поиск в терминальный статус. Возвращает false,
// если поиск уже не PENDING.
func (r *Repo) SetStatus(ctx context.Context, id int64, status Status) (bool, error) {
	if err := Transition(ctx, StatusPending, status); err != nil {
		return false, err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE order_search SET status=$2 WHERE id=$1 AND status=$3
	`, id, status, StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
