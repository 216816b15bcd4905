package operator

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/wb-materials-bot/internal/domain/materials"
	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
	"github.com/Spok95/wb-materials-bot/internal/domain/searches"
	"github.com/Spok95/wb-materials-bot/internal/infra/db"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore { return &PgStore{pool: pool} }

// Bind активный поиск по материалу закрывается как FOUND.
func (s *PgStore) Bind(ctx context.Context, orderID string, materialID int64, beforeCommit func(ctx context.Context) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := orders.NewRepo(tx).LinkMaterial(ctx, orderID, materialID); err != nil {
			return err
		}
		if err := materials.NewRepo(tx).SetStatus(ctx, materialID, materials.StatusLinked); err != nil {
			return err
		}
		sr := searches.NewRepo(tx)
		active, err := sr.GetActiveByMaterial(ctx, materialID)
		if err != nil {
			return err
		}
		if active != nil {
			if _, err := sr.SetStatus(ctx, active.ID, searches.StatusFound); err != nil {
				return err
			}
		}
		return beforeCommit(ctx)
	})
}
