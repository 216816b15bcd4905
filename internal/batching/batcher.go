package batching

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Spok95/wb-materials-bot/internal/domain"
	"github.com/Spok95/wb-materials-bot/internal/domain/catalog"
	"github.com/Spok95/wb-materials-bot/internal/domain/materials"
	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
	"github.com/Spok95/wb-materials-bot/internal/domain/supplies"
	"github.com/Spok95/wb-materials-bot/internal/domain/videos"
	"github.com/Spok95/wb-materials-bot/internal/form"
	"github.com/Spok95/wb-materials-bot/internal/infra/marketplace"
	"github.com/Spok95/wb-materials-bot/internal/infra/metrics"
	"github.com/Spok95/wb-materials-bot/internal/infra/notify"
	"github.com/Spok95/wb-materials-bot/internal/infra/queue"
	"github.com/Spok95/wb-materials-bot/internal/jobs"
)

const stickerFile = "sticker.png"

var ErrNoSticker = errors.New("batching: marketplace returned no sticker")

type Marketplace interface {
	CreateSupply(ctx context.Context, name string) (string, error)
	AddAssemblyTaskToSupply(ctx context.Context, supplyID string, taskID int64) error
	GetStickers(ctx context.Context, taskIDs []int64) ([]marketplace.Sticker, error)
}

type Storage interface {
	Upload(ctx context.Context, data []byte, path string) error
}

type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

type Notifier interface {
	Operator(ctx context.Context, thread notify.Thread, text string) error
}

// Tx репозитории внутри одной транзакции распределения.
type Tx interface {
	GetAssemblyTaskForUpdate(ctx context.Context, id int64) (*orders.AssemblyTask, error)
	GetOrder(ctx context.Context, id string) (*orders.Order, error)
	GetMaterial(ctx context.Context, id int64) (*materials.Material, error)
	GetTemplate(ctx context.Context, id int64) (*catalog.Template, error)
	GetCategory(ctx context.Context, id int64) (*catalog.Category, error)
	GetSettings(ctx context.Context, categoryID int64) (*catalog.Settings, error)

	LockCategory(ctx context.Context, category string) error
	LockActiveSupply(ctx context.Context, category string) (*supplies.Supply, error)
	NextSupplyNumber(ctx context.Context, category string) (int, error)
	CreateSupply(ctx context.Context, s supplies.Supply) (*supplies.Supply, error)
	SaveSupply(ctx context.Context, s supplies.Supply) error
	AssignSupply(ctx context.Context, taskID int64, supplyID string, at time.Time) error
	CreateVideoTask(ctx context.Context, p videos.Params) (int64, error)
}

// TxRunner выполняет fn в транзакции. Ошибка fn откатывает её.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type Batcher struct {
	tx       TxRunner
	mp       Marketplace
	storage  Storage
	pub      Publisher
	notifier Notifier
	log      *logrus.Entry
	now      func() time.Time
}

func New(tx TxRunner, mp Marketplace, st Storage, pub Publisher, n Notifier, log *logrus.Entry) *Batcher {
	return &Batcher{tx: tx, mp: mp, storage: st, pub: pub, notifier: n, log: log, now: time.Now}
}

// Result итог распределения одного сборочного задания.
type Result struct {
	TaskID       int64
	Supply       supplies.Supply
	SupplyIsNew  bool
	OutputFolder string
	notices      []string
}

// Handle обработчик очереди processing_supply.
func (b *Batcher) Handle(ctx context.Context, body []byte) error {
	msg, err := queue.Decode[jobs.ProcessSupply](body)
	if err != nil {
		return err
	}
	_, err = b.Process(ctx, msg.AssemblyTaskID)
	return err
}

// Process добавляет сборочное задание в активную поставку его категории,
// создавая новую, если активной нет. Всё выполняется в одной транзакции;
// сообщения операторам уходят после фиксации.
func (b *Batcher) Process(ctx context.Context, taskID int64) (*Result, error) {
	log := b.log.WithField("assembly_task_id", taskID)
	var res *Result
	err := b.tx.InTx(ctx, func(tx Tx) error {
		r, err := b.process(ctx, tx, taskID)
		res = r
		return err
	})
	if err != nil {
		result := metrics.ResultError
		if domain.IsConflict(err) {
			result = metrics.ResultConflict
		}
		metrics.SupplyAssignments.WithLabelValues(result).Inc()
		return nil, fmt.Errorf("batching: task %d: %w", taskID, err)
	}

	metrics.SupplyAssignments.WithLabelValues(metrics.ResultOK).Inc()
	if res.SupplyIsNew {
		metrics.SuppliesCreated.WithLabelValues(res.Supply.CategoryName).Inc()
	}
	log.WithFields(logrus.Fields{
		"supply_id":   res.Supply.ID,
		"order_count": res.Supply.OrderCount,
		"status":      res.Supply.Status,
	}).Info("assembly task added to supply")

	for _, text := range res.notices {
		if err := b.notifier.Operator(ctx, notify.ThreadMedia, text); err != nil {
			log.WithError(err).Warn("notify operator failed")
		}
	}
	return res, nil
}

type lineage struct {
	task     *orders.AssemblyTask
	order    *orders.Order
	material *materials.Material
	category *catalog.Category
	settings catalog.Settings
}

func (b *Batcher) load(ctx context.Context, tx Tx, taskID int64) (*lineage, error) {
	task, err := tx.GetAssemblyTaskForUpdate(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return nil, domain.Conflict(domain.ErrAssemblyTaskNotFound)
	}
	if task.Batched() {
		return nil, domain.Conflict(domain.ErrAlreadyBatched)
	}

	order, err := tx.GetOrder(ctx, task.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil || order.MaterialID == nil {
		return nil, domain.Conflict(domain.ErrMaterialNotFound)
	}
	mat, err := tx.GetMaterial(ctx, *order.MaterialID)
	if err != nil {
		return nil, fmt.Errorf("get material: %w", err)
	}
	if mat == nil {
		return nil, domain.Conflict(domain.ErrMaterialNotFound)
	}
	tmpl, err := tx.GetTemplate(ctx, mat.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if tmpl == nil {
		return nil, queue.Permanent(fmt.Errorf("template %d not found", mat.TemplateID))
	}
	cat, err := tx.GetCategory(ctx, tmpl.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if cat == nil {
		return nil, queue.Permanent(fmt.Errorf("category %d not found", tmpl.CategoryID))
	}
	settings, err := tx.GetSettings(ctx, cat.ID)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	l := &lineage{task: task, order: order, material: mat, category: cat}
	if settings != nil {
		l.settings = *settings
	}
	return l, nil
}

func (b *Batcher) process(ctx context.Context, tx Tx, taskID int64) (*Result, error) {
	l, err := b.load(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	category := l.category.Name

	if err := tx.LockCategory(ctx, category); err != nil {
		return nil, fmt.Errorf("lock category: %w", err)
	}
	sup, err := tx.LockActiveSupply(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("lock supply: %w", err)
	}
	res := &Result{TaskID: taskID}
	if sup == nil {
		sup, err = b.openSupply(ctx, tx, category)
		if err != nil {
			return nil, err
		}
		res.SupplyIsNew = true
	}

	now := b.now()
	folder, err := jobs.RenderOutputPath(l.settings.OutputPath,
		jobs.NewPathData(l.category.Folder(), l.order.CreatedAt, taskID, sup.Name, now))
	if err != nil {
		return nil, queue.Permanent(err)
	}
	res.OutputFolder = folder

	if err := b.mp.AddAssemblyTaskToSupply(ctx, sup.ID, taskID); err != nil {
		return nil, fmt.Errorf("add to supply %s: %w", sup.ID, marketplaceErr(err))
	}
	if err := tx.AssignSupply(ctx, taskID, sup.ID, now); err != nil {
		return nil, fmt.Errorf("assign supply: %w", err)
	}

	stickers, err := b.mp.GetStickers(ctx, []int64{taskID})
	if err != nil {
		return nil, fmt.Errorf("get stickers: %w", marketplaceErr(err))
	}
	if len(stickers) == 0 {
		return nil, queue.Permanent(ErrNoSticker)
	}
	sticker := stickers[0]
	img, err := sticker.Image()
	if err != nil {
		return nil, err
	}

	sup.Add()
	if err := tx.SaveSupply(ctx, *sup); err != nil {
		return nil, fmt.Errorf("save supply: %w", err)
	}
	res.Supply = *sup

	if l.settings.SaveAsFormat != "" {
		if err := b.storage.Upload(ctx, img, folder+stickerFile); err != nil {
			return nil, fmt.Errorf("upload sticker: %w", err)
		}
	}

	layout := jobs.GenerateImage{
		Type: jobs.ImagePDF,
		Delivery: jobs.Delivery{
			Method:          jobs.DeliveryYaDisk,
			Path:            folder,
			AssemblyTask:    taskID,
			SupplierArticle: l.order.SupplierArticle,
		},
		OrderData:  l.material.Layout(),
		TemplateID: l.material.TemplateID,
		Filename:   jobs.LayoutFilename(sticker.PartB.String(), l.order.SupplierArticle, taskID),
	}
	if err := b.pub.Publish(ctx, jobs.QueueGenerateImage, layout); err != nil {
		return nil, err
	}

	notice, err := b.dispatchVideo(ctx, tx, l, folder)
	if err != nil {
		return nil, err
	}
	if notice != "" {
		res.notices = append(res.notices, notice)
	}
	return res, nil
}

func (b *Batcher) openSupply(ctx context.Context, tx Tx, category string) (*supplies.Supply, error) {
	n, err := tx.NextSupplyNumber(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("next supply number: %w", err)
	}
	name := supplies.Name(category, n)
	id, err := b.mp.CreateSupply(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create supply %q: %w", name, marketplaceErr(err))
	}
	sup, err := tx.CreateSupply(ctx, supplies.Supply{
		ID:           id,
		CategoryName: category,
		Name:         name,
		Status:       supplies.StatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("save new supply: %w", err)
	}
	b.log.WithFields(logrus.Fields{"supply_id": id, "category": category}).Info("supply created")
	return sup, nil
}

// dispatchVideo выполняет указание по видео из материала. Возвращает текст
// для операторов, если он нужен.
func (b *Batcher) dispatchVideo(ctx context.Context, tx Tx, l *lineage, folder string) (string, error) {
	v, ok := l.material.Video()
	if !ok {
		return "", nil
	}
	taskID := l.task.ID

	switch v.Action {
	case form.ActionForwardVideo:
		if v.VideoID == "" {
			return fmt.Sprintf("⚠️ Сборочное задание %d: видео для пересылки не найдено.", taskID), nil
		}
		return "", b.pub.Publish(ctx, jobs.QueueForwardVideo, jobs.ForwardVideo{OrderID: taskID, FileID: v.VideoID})
	case form.ActionGenerateVideo:
		if len(v.Photos) == 0 {
			return fmt.Sprintf("⚠️ Сборочное задание %d: нет файлов для генерации видео.", taskID), nil
		}
		p := videos.Params{OrderID: taskID, Files: v.Photos, OutputPath: folder}
		if _, err := tx.CreateVideoTask(ctx, p); err != nil {
			return "", fmt.Errorf("create video task: %w", err)
		}
		return "", b.pub.Publish(ctx, jobs.QueueGenerateVideo, p)
	case form.ActionSkipVideo:
		return fmt.Sprintf("ℹ️ Сборочное задание %d: клиент отказался от видео.", taskID), nil
	default:
		b.log.WithFields(logrus.Fields{"assembly_task_id": taskID, "action": v.Action}).Warn("unknown video action")
		return "", nil
	}
}

// marketplaceErr отказ маркетплейса с кодом 4xx, кроме 429, повтором не исправить.
func marketplaceErr(err error) error {
	var ae *marketplace.APIError
	if errors.As(err, &ae) && ae.Status >= 400 && ae.Status < 500 && ae.Status != http.StatusTooManyRequests {
		return queue.Permanent(err)
	}
	return err
}
