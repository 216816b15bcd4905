package orders

import (
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// WarehouseTypeWB склад маркетплейса. Такие заказы собираем не мы.
const WarehouseTypeWB = "Склад WB"

// Order заказ из отчёта маркетплейса. ID это srid.
type Order struct {
	ID              string
	RegionName      string
	CountryName     string
	SupplierArticle string
	NmID            int64
	IsCancel        bool
	CancelDate      *time.Time
	WarehouseName   string
	WarehouseType   string
	MaterialID      *int64
	CreatedAt       time.Time
}

func (o Order) Linked() bool { return o.MaterialID != nil }

func (o Order) OtherWarehouse() bool { return o.WarehouseType == WarehouseTypeWB }

// AssemblyTask сборочное задание по заказу.
type AssemblyTask struct {
	ID              int64
	OrderID         string
	SupplyID        *string
	AddedToSupplyAt *time.Time
	CreatedAt       time.Time
}

func (t AssemblyTask) Batched() bool { return t.SupplyID != nil && *t.SupplyID != "" }

// Query критерии поиска заказов. Пустые поля не фильтруют, кроме NmIDs:
// пустой список артикулов не совпадает ни с чем.
type Query struct {
	ID              string
	CountryLike     string
	RegionLike      []string // достаточно совпадения с любым
	CreatedFrom     time.Time
	CreatedTo       time.Time
	NmIDs           []int64
	ExcludeCanceled bool
}

func (q Query) HasWindow() bool { return !q.CreatedFrom.IsZero() || !q.CreatedTo.IsZero() }

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Matches та же логика, что и в SQL, для проверки одного заказа.
func (q Query) Matches(o Order) bool {
	if !lo.Contains(q.NmIDs, o.NmID) {
		return false
	}
	if q.ID != "" && o.ID != q.ID {
		return false
	}
	if q.ExcludeCanceled && o.IsCancel {
		return false
	}
	if q.CountryLike != "" && !containsFold(o.CountryName, q.CountryLike) {
		return false
	}
	if len(q.RegionLike) > 0 && !lo.SomeBy(q.RegionLike, func(p string) bool { return containsFold(o.RegionName, p) }) {
		return false
	}
	if !q.CreatedFrom.IsZero() && o.CreatedAt.Before(q.CreatedFrom) {
		return false
	}
	if !q.CreatedTo.IsZero() && o.CreatedAt.After(q.CreatedTo) {
		return false
	}
	return true
}

// Where строит условие WHERE с позиционными параметрами.
func (q Query) Where() (string, []any) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	conds = append(conds, "nm_id = ANY("+arg(q.NmIDs)+")")
	if q.ID != "" {
		conds = append(conds, "id = "+arg(q.ID))
	}
	if q.ExcludeCanceled {
		conds = append(conds, "is_cancel = FALSE")
	}
	if q.CountryLike != "" {
		conds = append(conds, "country_name ILIKE '%' || "+arg(q.CountryLike)+" || '%'")
	}
	if len(q.RegionLike) > 0 {
		ors := lo.Map(q.RegionLike, func(p string, _ int) string {
			return "region_name ILIKE '%' || " + arg(p) + " || '%'"
		})
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	if !q.CreatedFrom.IsZero() {
		conds = append(conds, "created_at >= "+arg(q.CreatedFrom))
	}
	if !q.CreatedTo.IsZero() {
		conds = append(conds, "created_at <= "+arg(q.CreatedTo))
	}
	return strings.Join(conds, " AND "), args
}

// SupplyLine строка выгрузки поставки.
type SupplyLine struct {
	Task  AssemblyTask
	Order Order
}
