package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Spok95/wb-materials-bot/internal/domain/materials"
	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
	"github.com/Spok95/wb-materials-bot/internal/domain/searches"
	"github.com/Spok95/wb-materials-bot/internal/domain/users"
	"github.com/Spok95/wb-materials-bot/internal/infra/metrics"
	"github.com/Spok95/wb-materials-bot/internal/infra/notify"
	"github.com/Spok95/wb-materials-bot/internal/jobs"
	"github.com/Spok95/wb-materials-bot/internal/matching"
)

const (
	DefaultInterval  = time.Minute
	DefaultBatchSize = 100
	DefaultExpiry    = 4 * time.Hour
)

type Searches interface {
	ListPending(ctx context.Context, afterID int64, limit int) ([]searches.Request, error)
	Touch(ctx context.Context, id int64, at time.Time) error
}

type Materials interface {
	GetByID(ctx context.Context, id int64) (*materials.Material, error)
}

type Users interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
}

type Tasks interface {
	GetAssemblyTaskByOrder(ctx context.Context, orderID string) (*orders.AssemblyTask, error)
}

type Matcher interface {
	Match(ctx context.Context, req searches.Request, templateID int64) ([]orders.Order, error)
}

type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

type Notifier interface {
	User(ctx context.Context, chatID int64, text string, buttons ...notify.Button) error
	Operator(ctx context.Context, thread notify.Thread, text string) error
}

// Resolution перевод поиска в конечный статус вместе с изменениями материала
// и заказа. Применяется атомарно.
type Resolution struct {
	SearchID       int64
	MaterialID     int64
	Status         searches.Status
	MaterialStatus materials.Status
	LinkOrderID    string
}

// Store применяет Resolution в одной транзакции. beforeCommit вызывается
// внутри неё последним, его ошибка откатывает всё. false означает, что поиск
// уже не в PENDING и ничего не изменено.
type Store interface {
	Resolve(ctx context.Context, r Resolution, beforeCommit func(ctx context.Context) error) (bool, error)
}

type Deps struct {
	Searches  Searches
	Materials Materials
	Users     Users
	Tasks     Tasks
	Matcher   Matcher
	Store     Store
	Publisher Publisher
	Notifier  Notifier
}

type Config struct {
	Interval   time.Duration
	BatchSize  int
	Expiry     time.Duration
	SupportURL string
}

type Loop struct {
	Deps
	cfg Config
	log *logrus.Entry
	now func() time.Time
}

func New(d Deps, cfg Config, log *logrus.Entry) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	return &Loop{Deps: d, cfg: cfg, log: log, now: time.Now}
}

// Run проходит по активным поискам раз в Interval до отмены ctx.
func (l *Loop) Run(ctx context.Context) error {
	t := time.NewTicker(l.cfg.Interval)
	defer t.Stop()
	for {
		if _, err := l.Sweep(ctx); err != nil && ctx.Err() == nil {
			l.log.WithError(err).Error("search sweep failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Stats итог одного прохода.
type Stats struct {
	Checked  int
	Resolved map[searches.Status]int
	Failed   int
}

// Sweep один проход по всем PENDING поискам страницами по BatchSize.
// Ошибка одного поиска не прерывает проход.
func (l *Loop) Sweep(ctx context.Context) (Stats, error) {
	started := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(started).Seconds()) }()

	st := Stats{Resolved: map[searches.Status]int{}}
	var after int64
	for {
		page, err := l.Searches.ListPending(ctx, after, l.cfg.BatchSize)
		if err != nil {
			return st, fmt.Errorf("reconcile: list pending: %w", err)
		}
		for _, req := range page {
			if err := ctx.Err(); err != nil {
				return st, err
			}
			after = req.ID
			st.Checked++

			status, err := l.process(ctx, req)
			if err != nil {
				st.Failed++
				l.log.WithError(err).WithField("search_id", req.ID).Error("search check failed")
				continue
			}
			if status.Terminal() {
				st.Resolved[status]++
			}
		}
		if len(page) < l.cfg.BatchSize {
			return st, nil
		}
	}
}

// process проверяет один поиск и возвращает его статус после проверки.
func (l *Loop) process(ctx context.Context, req searches.Request) (searches.Status, error) {
	now := l.now()
	log := l.log.WithFields(logrus.Fields{"search_id": req.ID, "material_id": req.MaterialID})

	if err := l.Searches.Touch(ctx, req.ID, now); err != nil {
		return "", fmt.Errorf("touch: %w", err)
	}
	mat, err := l.Materials.GetByID(ctx, req.MaterialID)
	if err != nil {
		return "", fmt.Errorf("get material: %w", err)
	}
	if now.Sub(req.CreatedAt) > l.cfg.Expiry {
		return l.resolve(ctx, log, outcome{req: req, mat: mat, status: searches.StatusTimeout})
	}
	if mat == nil {
		log.Warn("material of pending search is gone, waiting for expiry")
		return searches.StatusPending, nil
	}

	found, err := l.Matcher.Match(ctx, req, mat.TemplateID)
	if errors.Is(err, matching.ErrMalformedFilters) {
		log.WithError(err).Error("search filters are malformed, waiting for expiry")
		return searches.StatusPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("match: %w", err)
	}

	switch {
	case len(found) == 0:
		return searches.StatusPending, nil
	case len(found) > 1:
		return l.resolve(ctx, log, outcome{req: req, mat: mat, status: searches.StatusFoundMultiple, candidates: found})
	}

	o := found[0]
	task, err := l.Tasks.GetAssemblyTaskByOrder(ctx, o.ID)
	if err != nil {
		return "", fmt.Errorf("assembly task of order %s: %w", o.ID, err)
	}
	if task == nil {
		log.WithField("order_id", o.ID).Debug("order has no assembly task yet")
		return searches.StatusPending, nil
	}

	return l.resolve(ctx, log, outcome{
		req:    req,
		mat:    mat,
		status: Classify(o, req.MaterialID),
		order:  &o,
		task:   task,
	})
}

// Classify статус поиска с единственным кандидатом. Заказ, уже связанный с
// этим же материалом, считается найденным.
func Classify(o orders.Order, materialID int64) searches.Status {
	switch {
	case o.Linked() && *o.MaterialID != materialID:
		return searches.StatusFoundButLinked
	case o.OtherWarehouse():
		return searches.StatusFoundInOtherWarehouse
	case o.IsCancel:
		return searches.StatusCanceled
	default:
		return searches.StatusFound
	}
}

type outcome struct {
	req        searches.Request
	mat        *materials.Material
	status     searches.Status
	candidates []orders.Order
	order      *orders.Order
	task       *orders.AssemblyTask
}

func (l *Loop) resolve(ctx context.Context, log *logrus.Entry, out outcome) (searches.Status, error) {
	if err := searches.Transition(ctx, out.req.Status, out.status); err != nil {
		return "", err
	}

	res := Resolution{
		SearchID:       out.req.ID,
		MaterialID:     out.req.MaterialID,
		Status:         out.status,
		MaterialStatus: materials.StatusSupport,
	}
	var beforeCommit func(context.Context) error
	if out.status == searches.StatusFound {
		res.MaterialStatus = materials.StatusLinked
		res.LinkOrderID = out.order.ID
		job := jobs.ProcessSupply{AssemblyTaskID: out.task.ID}
		beforeCommit = func(ctx context.Context) error {
			return l.Publisher.Publish(ctx, jobs.QueueProcessingSupply, job)
		}
	}

	applied, err := l.Store.Resolve(ctx, res, beforeCommit)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", out.status, err)
	}
	if !applied {
		log.Info("search already resolved elsewhere")
		return searches.StatusPending, nil
	}

	metrics.SearchesResolved.WithLabelValues(string(out.status)).Inc()
	log.WithField("status", out.status).Info("search resolved")
	l.notify(ctx, log, out)
	return out.status, nil
}

// notify сообщения после фиксации статуса. Ошибки отправки только логируются.
func (l *Loop) notify(ctx context.Context, log *logrus.Entry, out outcome) {
	if out.mat == nil {
		// писать некому, оператор узнаёт о поиске без материала
		if err := l.Notifier.Operator(ctx, notify.ThreadWB, operatorMessage(out, nil)); err != nil {
			log.WithError(err).Warn("notify operator failed")
		}
		return
	}
	u, err := l.Users.GetByID(ctx, out.mat.UserID)
	if err != nil || u == nil {
		log.WithError(err).WithField("user_id", out.mat.UserID).Warn("search owner not found, notifications skipped")
		return
	}

	userText, buttons := userMessage(out, l.supportButtons())
	if err := l.Notifier.User(ctx, u.ID, userText, buttons...); err != nil {
		log.WithError(err).Warn("notify user failed")
	}
	if err := l.Notifier.Operator(ctx, notify.ThreadWB, operatorMessage(out, u)); err != nil {
		log.WithError(err).Warn("notify operator failed")
	}
}

func (l *Loop) supportButtons() []notify.Button {
	if l.cfg.SupportURL == "" {
		return nil
	}
	return []notify.Button{{Text: "Менеджер", URL: l.cfg.SupportURL}}
}
