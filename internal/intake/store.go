package intake

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/wb-materials-bot/internal/domain/materials"
	"github.com/Spok95/wb-materials-bot/internal/domain/searches"
	"github.com/Spok95/wb-materials-bot/internal/infra/db"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore { return &PgStore{pool: pool} }

func (s *PgStore) CreateSearch(ctx context.Context, materialID int64, t searches.Type, filters map[string]string) (*searches.Request, error) {
	var req *searches.Request
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		req, err = searches.NewRepo(tx).Create(ctx, materialID, t, filters)
		if err != nil {
			return err
		}
		return materials.NewRepo(tx).SetStatus(ctx, materialID, materials.StatusSearching)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}
