package materials

import "time"

type Status string

const (
	StatusSaved     Status = "saved"     // собран, заказ ещё не найден
	StatusSearching Status = "searching" // идёт поиск заказа
	StatusLinked    Status = "linked"    // привязан к заказу WB
	StatusSupport   Status = "support"   // поиск завершился без результата, нужен менеджер
)

// Material результат заполнения формы: данные по группам шаблона.
type Material struct {
	ID         int64
	UserID     int64
	TemplateID int64
	Data       map[string]any
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Layout данные для макета печати (группа layout).
func (m Material) Layout() map[string]any {
	l, _ := m.Data["layout"].(map[string]any)
	return l
}

// Video указание по видео из группы video.
type Video struct {
	Action  string
	VideoID string
	Photos  []string
}

func (m Material) Video() (Video, bool) {
	g, ok := m.Data["video"].(map[string]any)
	if !ok {
		return Video{}, false
	}
	var v Video
	v.Action, _ = g["action"].(string)
	if vid, ok := g["video"].(map[string]any); ok {
		v.VideoID, _ = vid["video_id"].(string)
	}
	if list, ok := g["photo"].([]any); ok {
		for _, it := range list {
			if p, ok := it.(map[string]any); ok {
				if id, _ := p["photo_url"].(string); id != "" {
					v.Photos = append(v.Photos, id)
				}
			}
		}
	}
	return v, v.Action != ""
}
