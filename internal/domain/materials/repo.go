package materials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/wb-materials-bot/internal/infra/db"
)

type Repo struct{ db db.DBTX }

func NewRepo(d db.DBTX) *Repo { return &Repo{db: d} }

const materialColumns = `id, user_id, template_id, data, status, created_at, updated_at`

func scanMaterial(row pgx.Row) (*Material, error) {
	var m Material
	var raw []byte
	if err := row.Scan(&m.ID, &m.UserID, &m.TemplateID, &raw, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &m.Data); err != nil {
		return nil, fmt.Errorf("materials: decode data of %d: %w", m.ID, err)
	}
	return &m, nil
}

func (r *Repo) Create(ctx context.Context, userID, templateID int64, data map[string]any) (*Material, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("materials: encode data: %w", err)
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO materials (user_id, template_id, data, status)
		VALUES ($1,$2,$3,$4)
		RETURNING `+materialColumns, userID, templateID, raw, StatusSaved)
	return scanMaterial(row)
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Material, error) {
	m, err := scanMaterial(r.db.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// ListByUser последние материалы пользователя, новые первыми.
func (r *Repo) ListByUser(ctx context.Context, userID int64, limit int) ([]Material, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+materialColumns+`
		FROM materials
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *Repo) SetStatus(ctx context.Context, id int64, status Status) error {
	_, err := r.db.Exec(ctx, `UPDATE materials SET status=$2, updated_at=now() WHERE id=$1`, id, status)
	return err
}
