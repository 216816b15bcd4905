package operator

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/Spok95/wb-materials-bot/internal/domain"
	"github.com/Spok95/wb-materials-bot/internal/domain/materials"
	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
	"github.com/Spok95/wb-materials-bot/internal/domain/supplies"
	"github.com/Spok95/wb-materials-bot/internal/jobs"
)

type Materials interface {
	GetByID(ctx context.Context, id int64) (*materials.Material, error)
}

type Orders interface {
	GetByID(ctx context.Context, id string) (*orders.Order, error)
	GetByMaterialID(ctx context.Context, materialID int64) (*orders.Order, error)
	GetAssemblyTask(ctx context.Context, id int64) (*orders.AssemblyTask, error)
	ListBySupply(ctx context.Context, supplyID string) ([]orders.SupplyLine, error)
}

type Articles interface {
	TemplateArticles(ctx context.Context, templateID int64) ([]int64, error)
}

type Supplies interface {
	GetByID(ctx context.Context, id string) (*supplies.Supply, error)
	ListActive(ctx context.Context) ([]supplies.Supply, error)
	Close(ctx context.Context, id string) (*supplies.Supply, error)
}

type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

// Store связывает заказ с материалом одной транзакцией: заказ, статус
// материала и активный поиск. beforeCommit выполняется в ней последним.
type Store interface {
	Bind(ctx context.Context, orderID string, materialID int64, beforeCommit func(ctx context.Context) error) error
}

type Deps struct {
	Materials Materials
	Orders    Orders
	Articles  Articles
	Supplies  Supplies
	Publisher Publisher
	Store     Store
}

// Service команды оператора в админ-чате.
type Service struct {
	Deps
	log *logrus.Entry
}

func New(d Deps, log *logrus.Entry) *Service {
	return &Service{Deps: d, log: log}
}

// Bind ручная привязка материала к сборочному заданию. После привязки
// задание уходит в processing_supply.
func (s *Service) Bind(ctx context.Context, materialID, taskID int64) (*orders.Order, error) {
	m, err := s.Materials.GetByID(ctx, materialID)
	if err != nil {
		return nil, fmt.Errorf("operator: get material: %w", err)
	}
	if m == nil {
		return nil, domain.Conflict(domain.ErrMaterialNotFound)
	}
	task, err := s.Orders.GetAssemblyTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("operator: get assembly task: %w", err)
	}
	if task == nil {
		return nil, domain.Conflict(domain.ErrAssemblyTaskNotFound)
	}
	o, err := s.Orders.GetByID(ctx, task.OrderID)
	if err != nil {
		return nil, fmt.Errorf("operator: get order: %w", err)
	}
	if o == nil {
		return nil, domain.Conflict(domain.ErrAssemblyTaskNotFound)
	}
	if o.MaterialID != nil && *o.MaterialID != materialID {
		return nil, domain.Conflict(domain.ErrOrderAlreadyLinked)
	}
	prev, err := s.Orders.GetByMaterialID(ctx, materialID)
	if err != nil {
		return nil, fmt.Errorf("operator: linked order: %w", err)
	}
	if prev != nil && prev.ID != o.ID {
		return nil, domain.Conflict(domain.ErrMaterialAlreadyLinked)
	}
	nmIDs, err := s.Articles.TemplateArticles(ctx, m.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("operator: template articles: %w", err)
	}
	if !lo.Contains(nmIDs, o.NmID) {
		return nil, domain.Conflict(domain.ErrArticleMismatch)
	}

	err = s.Store.Bind(ctx, o.ID, materialID, func(ctx context.Context) error {
		return s.Publisher.Publish(ctx, jobs.QueueProcessingSupply, jobs.ProcessSupply{AssemblyTaskID: task.ID})
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"material_id":      materialID,
		"assembly_task_id": taskID,
		"order_id":         o.ID,
	}).Info("material bound manually")
	o.MaterialID = &materialID
	return o, nil
}

func (s *Service) ActiveSupplies(ctx context.Context) ([]supplies.Supply, error) {
	return s.Supplies.ListActive(ctx)
}

func (s *Service) CloseSupply(ctx context.Context, id string) (*supplies.Supply, error) {
	sup, err := s.Supplies.Close(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.WithField("supply_id", id).Info("supply closed manually")
	return sup, nil
}
