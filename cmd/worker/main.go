package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/wb-materials-bot/internal/batching"
	"github.com/Spok95/wb-materials-bot/internal/config"
	"github.com/Spok95/wb-materials-bot/internal/domain/catalog"
	"github.com/Spok95/wb-materials-bot/internal/domain/materials"
	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
	"github.com/Spok95/wb-materials-bot/internal/domain/searches"
	"github.com/Spok95/wb-materials-bot/internal/domain/users"
	"github.com/Spok95/wb-materials-bot/internal/infra/db"
	httpx "github.com/Spok95/wb-materials-bot/internal/infra/http"
	"github.com/Spok95/wb-materials-bot/internal/infra/logger"
	"github.com/Spok95/wb-materials-bot/internal/infra/marketplace"
	"github.com/Spok95/wb-materials-bot/internal/infra/notify"
	"github.com/Spok95/wb-materials-bot/internal/infra/queue"
	"github.com/Spok95/wb-materials-bot/internal/infra/storage"
	"github.com/Spok95/wb-materials-bot/internal/ingest"
	"github.com/Spok95/wb-materials-bot/internal/jobs"
	"github.com/Spok95/wb-materials-bot/internal/matching"
	"github.com/Spok95/wb-materials-bot/internal/reconcile"
)

// worker общие подключения фоновых процессов.
type worker struct {
	cfg    config.Config
	log    *logrus.Entry
	pool   *pgxpool.Pool
	conn   *amqp.Connection
	pub    *queue.Publisher
	notify *notify.Telegram
	mp     *marketplace.Client
}

func open(ctx context.Context, path, service string) (*worker, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}
	w := &worker{cfg: cfg, log: logger.New(service, cfg.App.Env, cfg.Log.Level)}

	if w.pool, err = db.Connect(ctx, cfg.Postgres.DSN); err != nil {
		return nil, err
	}
	if w.conn, err = queue.Dial(cfg.RabbitMQ.URL); err != nil {
		w.close()
		return nil, err
	}
	if w.pub, err = queue.NewPublisher(w.conn, cfg.RabbitMQ.PublishRetries, cfg.RabbitMQ.PublishDelay, w.log.WithField("component", "publisher")); err != nil {
		w.close()
		return nil, err
	}
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		w.close()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	w.notify = notify.NewTelegram(api, cfg.Telegram.AdminChatID, cfg.Telegram.WBThreadID, cfg.Telegram.MediaThreadID)
	w.mp = marketplace.New(cfg.Marketplace.Token, cfg.Marketplace.BaseURL, cfg.Marketplace.StatisticsURL, w.log.WithField("component", "marketplace"))
	return w, nil
}

func (w *worker) close() {
	if w.pub != nil {
		_ = w.pub.Close()
	}
	if w.conn != nil {
		_ = w.conn.Close()
	}
	if w.pool != nil {
		w.pool.Close()
	}
}

func (w *worker) search(ctx context.Context) error {
	ordersRepo := orders.NewRepo(w.pool)
	offset := time.Duration(w.cfg.Search.MarketplaceUTCOffsetHours) * time.Hour
	loop := reconcile.New(reconcile.Deps{
		Searches:  searches.NewRepo(w.pool),
		Materials: materials.NewRepo(w.pool),
		Users:     users.NewRepo(w.pool),
		Tasks:     ordersRepo,
		Matcher:   matching.New(ordersRepo, catalog.NewRepo(w.pool), offset),
		Store:     reconcile.NewPgStore(w.pool),
		Publisher: w.pub,
		Notifier:  w.notify,
	}, reconcile.Config{
		Interval:   w.cfg.Search.Interval,
		BatchSize:  w.cfg.Search.BatchSize,
		Expiry:     w.cfg.Search.Expiry,
		SupportURL: w.cfg.Telegram.SupportURL,
	}, w.log.WithField("component", "search"))
	w.log.WithField("interval", w.cfg.Search.Interval).Info("search loop started")
	return loop.Run(ctx)
}

func (w *worker) supply(ctx context.Context) error {
	disk := storage.NewYaDisk(w.cfg.Storage.Token, w.cfg.Storage.BaseURL, w.log.WithField("component", "storage"))
	b := batching.New(batching.NewPgRunner(w.pool), w.mp, disk, w.pub, w.notify, w.log.WithField("component", "supply"))

	c, err := queue.NewConsumer(w.conn, queue.RetryPolicy{
		MaxDeliveries: w.cfg.RabbitMQ.MaxDeliveries,
		Delay:         w.cfg.RabbitMQ.RetryDelay,
	}, w.log.WithField("component", "consumer"))
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	return c.Consume(ctx, jobs.QueueProcessingSupply, b.Handle)
}

func (w *worker) ingest(ctx context.Context) error {
	s := ingest.New(w.mp, orders.NewRepo(w.pool), w.cfg.Ingest.LookbackDays, w.cfg.Ingest.Interval, w.log.WithField("component", "ingest"))
	w.log.WithField("interval", w.cfg.Ingest.Interval).Info("order ingestion started")
	return s.Run(ctx)
}

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:          "worker",
		Short:        "Фоновые процессы: поиск заказов, поставки, загрузка заказов WB",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "путь к YAML конфигу")

	sub := func(use, short string, run func(w *worker, ctx context.Context) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, _ []string) error {
				w, err := open(cmd.Context(), config.Path(cfgPath), "worker-"+use)
				if err != nil {
					return err
				}
				defer w.close()

				srv := httpx.New(w.cfg.HTTP.Addr, w.cfg.Metrics.Enabled, w.log, map[string]httpx.Checker{
					"postgres": w.pool.Ping,
				})
				g, gctx := errgroup.WithContext(cmd.Context())
				g.Go(func() error { return srv.Run(gctx) })
				g.Go(func() error {
					err := run(w, gctx)
					if gctx.Err() != nil {
						return nil
					}
					return err
				})
				err = g.Wait()
				w.log.Info("graceful shutdown complete")
				return err
			},
		}
	}

	root.AddCommand(
		sub("search", "Сверка активных поисков с заказами", (*worker).search),
		sub("supply", "Распределение сборочных заданий по поставкам", (*worker).supply),
		sub("ingest", "Загрузка заказов и сборочных заданий WB", (*worker).ingest),
		sub("all", "Все процессы в одном", func(w *worker, ctx context.Context) error {
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return w.search(gctx) })
			g.Go(func() error { return w.supply(gctx) })
			g.Go(func() error { return w.ingest(gctx) })
			return g.Wait()
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
