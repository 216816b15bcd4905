package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK       = "ok"
	ResultConflict = "conflict"
	ResultError    = "error"
)

var (
	SearchesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "searches_resolved_total",
		Help: "Поиски заказов, перешедшие в конечный статус.",
	}, []string{"status"})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "search_sweep_duration_seconds",
		Help:    "Длительность одного прохода по активным поискам.",
		Buckets: prometheus.DefBuckets,
	})

	SuppliesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supplies_created_total",
		Help: "Созданные поставки по категориям.",
	}, []string{"category"})

	SupplyAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supply_assignments_total",
		Help: "Попытки добавить сборочное задание в поставку.",
	}, []string{"result"})

	QueuePublish = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_publish_total",
		Help: "Публикации в очереди.",
	}, []string{"queue", "result"})

	FormStepsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "form_steps_completed_total",
		Help: "Заполненные шаги анкеты по типу шага.",
	}, []string{"type"})

	OrdersIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_ingested_total",
		Help: "Заказы, загруженные из отчёта маркетплейса.",
	})
)
