package reconcile

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/wb-materials-bot/internal/domain/materials"
	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
	"github.com/Spok95/wb-materials-bot/internal/domain/searches"
	"github.com/Spok95/wb-materials-bot/internal/infra/db"
)

// PgStore Store поверх PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore { return &PgStore{pool: pool} }

func (s *PgStore) Resolve(ctx context.Context, r Resolution, beforeCommit func(ctx context.Context) error) (bool, error) {
	applied := false
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		ok, err := searches.NewRepo(tx).SetStatus(ctx, r.SearchID, r.Status)
		if err != nil || !ok {
			return err
		}
		if r.LinkOrderID != "" {
			if err := orders.NewRepo(tx).LinkMaterial(ctx, r.LinkOrderID, r.MaterialID); err != nil {
				return err
			}
		}
		if err := materials.NewRepo(tx).SetStatus(ctx, r.MaterialID, r.MaterialStatus); err != nil {
			return err
		}
		if beforeCommit != nil {
			if err := beforeCommit(ctx); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
