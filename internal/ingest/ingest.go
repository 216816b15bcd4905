package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
	"github.com/Spok95/wb-materials-bot/internal/infra/metrics"
)

const (
	DefaultInterval     = 5 * time.Minute
	DefaultLookbackDays = 30

	batchSize = 1000
)

// cityToRegion города, которые отчёт отдаёт вместо региона.
var cityToRegion = map[string]string{
	"Москва":          "Московская область",
	"Санкт-Петербург": "Ленинградская область",
	"Севастополь":     "Республика Крым",
}

// NormalizeRegion заменяет город в region_name на его регион.
func NormalizeRegion(o orders.Order) orders.Order {
	if r, ok := cityToRegion[o.RegionName]; ok {
		o.RegionName = r
	}
	return o
}

type Source interface {
	FetchOrders(ctx context.Context, dateFrom time.Time) ([]orders.Order, error)
	FetchNewAssemblyTasks(ctx context.Context) ([]orders.AssemblyTask, error)
}

type Store interface {
	UpsertOrders(ctx context.Context, list []orders.Order) error
	InsertAssemblyTasks(ctx context.Context, tasks []orders.AssemblyTask) (int, error)
}

type Syncer struct {
	src      Source
	store    Store
	lookback int
	interval time.Duration
	log      *logrus.Entry
	now      func() time.Time
}

func New(src Source, store Store, lookbackDays int, interval time.Duration, log *logrus.Entry) *Syncer {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Syncer{src: src, store: store, lookback: lookbackDays, interval: interval, log: log, now: time.Now}
}

type Stats struct {
	Orders int
	Tasks  int
}

// Sync загружает заказы за последние lookback дней и новые сборочные задания.
func (s *Syncer) Sync(ctx context.Context) (Stats, error) {
	var st Stats
	y, m, d := s.now().AddDate(0, 0, -s.lookback).Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	list, err := s.src.FetchOrders(ctx, from)
	if err != nil {
		return st, fmt.Errorf("ingest: fetch orders: %w", err)
	}
	list = lo.Map(list, func(o orders.Order, _ int) orders.Order { return NormalizeRegion(o) })
	for _, chunk := range lo.Chunk(list, batchSize) {
		if err := s.store.UpsertOrders(ctx, chunk); err != nil {
			return st, fmt.Errorf("ingest: upsert orders: %w", err)
		}
		st.Orders += len(chunk)
	}
	metrics.OrdersIngested.Add(float64(st.Orders))

	tasks, err := s.src.FetchNewAssemblyTasks(ctx)
	if err != nil {
		return st, fmt.Errorf("ingest: fetch assembly tasks: %w", err)
	}
	for _, chunk := range lo.Chunk(tasks, batchSize) {
		n, err := s.store.InsertAssemblyTasks(ctx, chunk)
		if err != nil {
			return st, fmt.Errorf("ingest: insert assembly tasks: %w", err)
		}
		st.Tasks += n
	}
	return st, nil
}

// Run вызывает Sync раз в interval до отмены ctx.
func (s *Syncer) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		st, err := s.Sync(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			s.log.WithError(err).Error("orders sync failed")
		case err == nil:
			s.log.WithFields(logrus.Fields{"orders": st.Orders, "assembly_tasks": st.Tasks}).Info("orders synced")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
