package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/wb-materials-bot/internal/form"
	"github.com/Spok95/wb-materials-bot/internal/infra/db"
)

type Repo struct{ db db.DBTX }

func NewRepo(d db.DBTX) *Repo { return &Repo{db: d} }

/* Categories */

func (r *Repo) ListActiveCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, COALESCE(folder_name, ''), active, created_at
		FROM categories
		WHERE active
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.FolderName, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) GetCategoryByID(ctx context.Context, id int64) (*Category, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(folder_name, ''), active, created_at
		FROM categories WHERE id=$1
	`, id)
	var c Category
	if err := row.Scan(&c.ID, &c.Name, &c.FolderName, &c.Active, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repo) GetSettings(ctx context.Context, categoryID int64) (*Settings, error) {
	row := r.db.QueryRow(ctx, `
		SELECT category_id, save_as_format, output_path
		FROM category_settings WHERE category_id=$1
	`, categoryID)
	var s Settings
	if err := row.Scan(&s.CategoryID, &s.SaveAsFormat, &s.OutputPath); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

/* Templates */

func (r *Repo) ListTemplates(ctx context.Context, categoryID int64) ([]Template, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, category_id, name, description, photo, form_steps, active, created_at
		FROM templates
		WHERE category_id=$1 AND active
		ORDER BY name
	`, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *Repo) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, category_id, name, description, photo, form_steps, active, created_at
		FROM templates WHERE id=$1
	`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	var raw []byte
	if err := row.Scan(&t.ID, &t.CategoryID, &t.Name, &t.Description, &t.Photo, &raw, &t.Active, &t.CreatedAt); err != nil {
		return nil, err
	}
	schema, err := form.ParseSchema(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog: template %d: %w", t.ID, err)
	}
	t.Schema = schema
	return &t, nil
}

// TemplateArticles артикулы WB (nm_id), привязанные к шаблону.
func (r *Repo) TemplateArticles(ctx context.Context, templateID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT nm_id FROM wb_articles WHERE template_id=$1 ORDER BY nm_id`, templateID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
