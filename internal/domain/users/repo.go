package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/wb-materials-bot/internal/infra/db"
)

type Repo struct {
	db db.DBTX
}

func NewRepo(d db.DBTX) *Repo { return &Repo{db: d} }

const userColumns = `id, username, first_name, last_name, role, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// UpsertFromTelegram обновляет профиль. Роль оператора не понижается.
func (r *Repo) UpsertFromTelegram(ctx context.Context, tg Telegram, role Role) (*User, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (id, username, first_name, last_name, role)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id)
		DO UPDATE SET
			username   = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name  = EXCLUDED.last_name,
			role       = CASE WHEN users.role = 'operator' THEN users.role ELSE EXCLUDED.role END,
			updated_at = now()
		RETURNING `+userColumns, tg.ID, tg.Username, tg.FirstName, tg.LastName, role)
	u, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, errors.New("users: upsert returned no row")
	}
	return u, nil
}
