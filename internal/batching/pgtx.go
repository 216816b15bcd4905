package batching

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/wb-materials-bot/internal/domain/catalog"
	"github.com/Spok95/wb-materials-bot/internal/domain/materials"
	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
	"github.com/Spok95/wb-materials-bot/internal/domain/supplies"
	"github.com/Spok95/wb-materials-bot/internal/domain/videos"
	"github.com/Spok95/wb-materials-bot/internal/infra/db"
)

// PgRunner TxRunner поверх пула PostgreSQL.
type PgRunner struct {
	pool *pgxpool.Pool
}

func NewPgRunner(pool *pgxpool.Pool) *PgRunner { return &PgRunner{pool: pool} }

func (r *PgRunner) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{
			orders:    orders.NewRepo(tx),
			materials: materials.NewRepo(tx),
			catalog:   catalog.NewRepo(tx),
			supplies:  supplies.NewRepo(tx),
			videos:    videos.NewRepo(tx),
		})
	})
}

type pgTx struct {
	orders    *orders.Repo
	materials *materials.Repo
	catalog   *catalog.Repo
	supplies  *supplies.Repo
	videos    *videos.Repo
}

func (t *pgTx) GetAssemblyTaskForUpdate(ctx context.Context, id int64) (*orders.AssemblyTask, error) {
	return t.orders.GetAssemblyTaskForUpdate(ctx, id)
}

func (t *pgTx) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	return t.orders.GetByID(ctx, id)
}

func (t *pgTx) GetMaterial(ctx context.Context, id int64) (*materials.Material, error) {
	return t.materials.GetByID(ctx, id)
}

func (t *pgTx) GetTemplate(ctx context.Context, id int64) (*catalog.Template, error) {
	return t.catalog.GetTemplate(ctx, id)
}

func (t *pgTx) GetCategory(ctx context.Context, id int64) (*catalog.Category, error) {
	return t.catalog.GetCategoryByID(ctx, id)
}

func (t *pgTx) GetSettings(ctx context.Context, categoryID int64) (*catalog.Settings, error) {
	return t.catalog.GetSettings(ctx, categoryID)
}

func (t *pgTx) LockCategory(ctx context.Context, category string) error {
	return t.supplies.LockCategory(ctx, category)
}

func (t *pgTx) LockActiveSupply(ctx context.Context, category string) (*supplies.Supply, error) {
	return t.supplies.LockActive(ctx, category)
}

func (t *pgTx) NextSupplyNumber(ctx context.Context, category string) (int, error) {
	return t.supplies.NextNumber(ctx, category)
}

func (t *pgTx) CreateSupply(ctx context.Context, s supplies.Supply) (*supplies.Supply, error) {
	return t.supplies.Create(ctx, s)
}

func (t *pgTx) SaveSupply(ctx context.Context, s supplies.Supply) error {
	return t.supplies.Save(ctx, s)
}

func (t *pgTx) AssignSupply(ctx context.Context, taskID int64, supplyID string, at time.Time) error {
	return t.orders.AssignSupply(ctx, taskID, supplyID, at)
}

func (t *pgTx) CreateVideoTask(ctx context.Context, p videos.Params) (int64, error) {
	return t.videos.Create(ctx, p)
}
