package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
)

// reportLayout формат дат отчёта: местное время маркетплейса без зоны.
const reportLayout = "2006-01-02T15:04:05"

// Time время из отчёта. Значение без зоны читается как UTC, то есть как
// местное время маркетплейса, так оно и хранится в wb_orders.
type Time struct{ time.Time }

func (t *Time) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if v, err := time.Parse(reportLayout, s); err == nil {
		t.Time = v
		return nil
	}
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("marketplace: parse time %q: %w", s, err)
	}
	t.Time = v
	return nil
}

type reportOrder struct {
	SRID            string `json:"srid"`
	Date            Time   `json:"date"`
	CountryName     string `json:"countryName"`
	RegionName      string `json:"regionName"`
	SupplierArticle string `json:"supplierArticle"`
	NmID            int64  `json:"nmId"`
	IsCancel        bool   `json:"isCancel"`
	CancelDate      Time   `json:"cancelDate"`
	WarehouseName   string `json:"warehouseName"`
	WarehouseType   string `json:"warehouseType"`
}

func (r reportOrder) order() orders.Order {
	o := orders.Order{
		ID:              r.SRID,
		RegionName:      r.RegionName,
		CountryName:     r.CountryName,
		SupplierArticle: r.SupplierArticle,
		NmID:            r.NmID,
		IsCancel:        r.IsCancel,
		WarehouseName:   r.WarehouseName,
		WarehouseType:   r.WarehouseType,
		CreatedAt:       r.Date.Time,
	}
	// пустая дата отмены приходит как 0001-01-01T00:00:00
	if !r.CancelDate.IsZero() {
		cd := r.CancelDate.Time
		o.CancelDate = &cd
	}
	return o
}

// FetchOrders отчёт о заказах начиная с dateFrom.
func (c *Client) FetchOrders(ctx context.Context, dateFrom time.Time) ([]orders.Order, error) {
	q := url.Values{}
	q.Set("dateFrom", dateFrom.Format(reportLayout))
	q.Set("flag", "0")

	var out []reportOrder
	if err := c.do(ctx, http.MethodGet, c.statisticsURL, "/api/v1/supplier/orders", q, nil, &out); err != nil {
		return nil, err
	}
	list := lo.FilterMap(out, func(r reportOrder, _ int) (orders.Order, bool) {
		return r.order(), r.SRID != ""
	})
	return list, nil
}

type newTask struct {
	ID        int64  `json:"id"`
	RID       string `json:"rid"`
	CreatedAt Time   `json:"createdAt"`
}

// FetchNewAssemblyTasks новые сборочные задания продавца.
func (c *Client) FetchNewAssemblyTasks(ctx context.Context) ([]orders.AssemblyTask, error) {
	var out struct {
		Orders []newTask `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL, "/api/v3/orders/new", nil, nil, &out); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return lo.Map(out.Orders, func(t newTask, _ int) orders.AssemblyTask {
		created := t.CreatedAt.Time
		if created.IsZero() {
			created = now
		}
		return orders.AssemblyTask{ID: t.ID, OrderID: t.RID, CreatedAt: created}
	}), nil
}
