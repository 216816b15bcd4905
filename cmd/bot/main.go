package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/wb-materials-bot/internal/attempts"
	"github.com/Spok95/wb-materials-bot/internal/bot"
	"github.com/Spok95/wb-materials-bot/internal/collector"
	"github.com/Spok95/wb-materials-bot/internal/config"
	"github.com/Spok95/wb-materials-bot/internal/dialog"
	"github.com/Spok95/wb-materials-bot/internal/domain/catalog"
	"github.com/Spok95/wb-materials-bot/internal/domain/geo"
	"github.com/Spok95/wb-materials-bot/internal/domain/materials"
	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
	"github.com/Spok95/wb-materials-bot/internal/domain/searches"
	"github.com/Spok95/wb-materials-bot/internal/domain/supplies"
	"github.com/Spok95/wb-materials-bot/internal/domain/users"
	"github.com/Spok95/wb-materials-bot/internal/infra/db"
	httpx "github.com/Spok95/wb-materials-bot/internal/infra/http"
	"github.com/Spok95/wb-materials-bot/internal/infra/logger"
	"github.com/Spok95/wb-materials-bot/internal/infra/queue"
	"github.com/Spok95/wb-materials-bot/internal/intake"
	"github.com/Spok95/wb-materials-bot/internal/operator"
)

func runMigrations(dsn string, log *logrus.Entry) error {
	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func main() {
	var cfgPath string
	cmd := &cobra.Command{
		Use:          "bot",
		Short:        "Telegram бот: каталог, анкеты, поиск заказа, команды оператора",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), config.Path(cfgPath))
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "путь к YAML конфигу")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logger.New("bot", cfg.App.Env, cfg.Log.Level)

	if err := runMigrations(cfg.Postgres.DSN, log); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("db connected")

	conn, err := queue.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	pub, err := queue.NewPublisher(conn, cfg.RabbitMQ.PublishRetries, cfg.RabbitMQ.PublishDelay, log.WithField("component", "publisher"))
	if err != nil {
		return err
	}
	defer func() { _ = pub.Close() }()

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	log.WithField("username", api.Self.UserName).Info("authorized")

	catalogRepo := catalog.NewRepo(pool)
	materialsRepo := materials.NewRepo(pool)
	ordersRepo := orders.NewRepo(pool)
	states := dialog.NewRepo(pool)

	forms := collector.New(catalogRepo, states, materialsRepo, pub, log.WithField("component", "collector"))
	in := intake.New(intake.Deps{
		Searches:  searches.NewRepo(pool),
		Materials: materialsRepo,
		Orders:    ordersRepo,
		Geo:       geo.NewRepo(pool),
		Sessions:  states,
		Store:     intake.NewPgStore(pool),
	}, attempts.Policy{Max: attempts.DefaultMax}, log.WithField("component", "intake"))
	op := operator.New(operator.Deps{
		Materials: materialsRepo,
		Orders:    ordersRepo,
		Articles:  catalogRepo,
		Supplies:  supplies.NewRepo(pool),
		Publisher: pub,
		Store:     operator.NewPgStore(pool),
	}, log.WithField("component", "operator"))

	b := bot.New(bot.Deps{
		API:       api,
		Users:     users.NewRepo(pool),
		States:    states,
		Catalog:   catalogRepo,
		Materials: materialsRepo,
		Forms:     forms,
		Intake:    in,
		Operator:  op,
	}, cfg.Telegram.AdminChatID, cfg.Telegram.SupportURL, log.WithField("component", "bot"))

	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, log, map[string]httpx.Checker{
		"postgres": pool.Ping,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		err := b.Run(gctx, int(cfg.Telegram.PollTimeout.Seconds()))
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	err = g.Wait()
	log.Info("graceful shutdown complete")
	return err
}
