package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Spok95/wb-materials-bot/internal/domain"
	"github.com/Spok95/wb-materials-bot/internal/infra/db"
)

type Repo struct{ db db.DBTX }

func NewRepo(d db.DBTX) *Repo { return &Repo{db: d} }

const orderColumns = `id, region_name, country_name, supplier_article, nm_id, is_cancel, cancel_date,
	warehouse_name, warehouse_type, material_id, created_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	if err := row.Scan(&o.ID, &o.RegionName, &o.CountryName, &o.SupplierArticle, &o.NmID, &o.IsCancel, &o.CancelDate,
		&o.WarehouseName, &o.WarehouseType, &o.MaterialID, &o.CreatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repo) FindOrders(ctx context.Context, q Query) ([]Order, error) {
	where, args := q.Where()
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM wb_orders WHERE `+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM wb_orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

func (r *Repo) GetByMaterialID(ctx context.Context, materialID int64) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM wb_orders WHERE material_id=$1`, materialID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

// LinkMaterial связывает заказ с материалом ровно один раз. Повторная привязка
// к тому же материалу не ошибка.
func (r *Repo) LinkMaterial(ctx context.Context, orderID string, materialID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE wb_orders SET material_id=$2
		WHERE id=$1 AND material_id IS NULL
	`, orderID, materialID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.Conflict(domain.ErrMaterialAlreadyLinked)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	o, err := r.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o == nil {
		return errors.New("orders: order not found")
	}
	if o.MaterialID != nil && *o.MaterialID == materialID {
		return nil
	}
	return domain.Conflict(domain.ErrOrderAlreadyLinked)
}

// UpsertOrders сохраняет заказы из отчёта. У существующих обновляются
// только отмена и склад.
func (r *Repo) UpsertOrders(ctx context.Context, list []Order) error {
	if len(list) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, o := range list {
		b.Queue(`
			INSERT INTO wb_orders (id, region_name, country_name, supplier_article, nm_id, is_cancel, cancel_date,
				warehouse_name, warehouse_type, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (id) DO UPDATE SET
				is_cancel      = EXCLUDED.is_cancel,
				cancel_date    = EXCLUDED.cancel_date,
				warehouse_name = EXCLUDED.warehouse_name,
				warehouse_type = EXCLUDED.warehouse_type
		`, o.ID, o.RegionName, o.CountryName, o.SupplierArticle, o.NmID, o.IsCancel, o.CancelDate,
			o.WarehouseName, o.WarehouseType, o.CreatedAt)
	}
	return r.db.SendBatch(ctx, b).Close()
}

// InsertAssemblyTasks добавляет новые задания, у которых заказ уже известен.
// Возвращает число вставленных.
func (r *Repo) InsertAssemblyTasks(ctx context.Context, tasks []AssemblyTask) (int, error) {
	inserted := 0
	for _, t := range tasks {
		tag, err := r.db.Exec(ctx, `
			INSERT INTO wb_assembly_tasks (id, wb_order_id, created_at)
			SELECT $1, $2, $3
			WHERE EXISTS (SELECT 1 FROM wb_orders WHERE id=$2)
			ON CONFLICT (id) DO NOTHING
		`, t.ID, t.OrderID, t.CreatedAt)
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

const taskColumns = `id, wb_order_id, supply_id, added_to_supply_at, created_at`

func scanTask(row pgx.Row) (*AssemblyTask, error) {
	var t AssemblyTask
	if err := row.Scan(&t.ID, &t.OrderID, &t.SupplyID, &t.AddedToSupplyAt, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *Repo) GetAssemblyTask(ctx context.Context, id int64) (*AssemblyTask, error) {
	return scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM wb_assembly_tasks WHERE id=$1`, id))
}

// GetAssemblyTaskForUpdate блокирует строку задания до конца транзакции.
func (r *Repo) GetAssemblyTaskForUpdate(ctx context.Context, id int64) (*AssemblyTask, error) {
	return scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM wb_assembly_tasks WHERE id=$1 FOR UPDATE`, id))
}

func (r *Repo) GetAssemblyTaskByOrder(ctx context.Context, orderID string) (*AssemblyTask, error) {
	return scanTask(r.db.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM wb_assembly_tasks WHERE wb_order_id=$1
		ORDER BY created_at LIMIT 1
	`, orderID))
}

func (r *Repo) AssignSupply(ctx context.Context, taskID int64, supplyID string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE wb_assembly_tasks SET supply_id=$2, added_to_supply_at=$3
		WHERE id=$1 AND supply_id IS NULL
	`, taskID, supplyID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.Conflict(domain.ErrAlreadyBatched)
	}
	return nil
}

func (r *Repo) ListBySupply(ctx context.Context, supplyID string) ([]SupplyLine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.id, t.wb_order_id, t.supply_id, t.added_to_supply_at, t.created_at,
			o.id, o.region_name, o.country_name, o.supplier_article, o.nm_id, o.is_cancel, o.cancel_date,
			o.warehouse_name, o.warehouse_type, o.material_id, o.created_at
		FROM wb_assembly_tasks t
		JOIN wb_orders o ON o.id = t.wb_order_id
		WHERE t.supply_id=$1
		ORDER BY t.added_to_supply_at
	`, supplyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SupplyLine
	for rows.Next() {
		var l SupplyLine
		t, o := &l.Task, &l.Order
		if err := rows.Scan(&t.ID, &t.OrderID, &t.SupplyID, &t.AddedToSupplyAt, &t.CreatedAt,
			&o.ID, &o.RegionName, &o.CountryName, &o.SupplierArticle, &o.NmID, &o.IsCancel, &o.CancelDate,
			&o.WarehouseName, &o.WarehouseType, &o.MaterialID, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
