package videos

import (
	"context"
	"encoding/json"

	"github.com/Spok95/wb-materials-bot/internal/infra/db"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Params параметры генерации видео, они же тело сообщения generate_video.
type Params struct {
	OrderID    int64    `json:"order_id"` // номер сборочного задания
	Files      []string `json:"files"`
	OutputPath string   `json:"output_path"`
}

type Repo struct{ db db.DBTX }

func NewRepo(d db.DBTX) *Repo { return &Repo{db: d} }

func (r *Repo) Create(ctx context.Context, p Params) (int64, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRow(ctx, `
		INSERT INTO video_tasks (params, status) VALUES ($1,$2) RETURNING id
	`, raw, StatusPending).Scan(&id)
	return id, err
}
