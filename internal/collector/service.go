package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Spok95/wb-materials-bot/internal/dialog"
	"github.com/Spok95/wb-materials-bot/internal/domain/catalog"
	"github.com/Spok95/wb-materials-bot/internal/domain/materials"
	"github.com/Spok95/wb-materials-bot/internal/form"
	"github.com/Spok95/wb-materials-bot/internal/form/validate"
	"github.com/Spok95/wb-materials-bot/internal/infra/metrics"
	"github.com/Spok95/wb-materials-bot/internal/jobs"
)

var (
	ErrNoSession        = errors.New("collector: no active form session")
	ErrTemplateNotFound = errors.New("collector: template not found")
	ErrPreviewFailed    = errors.New("collector: preview was not queued")
)

type Templates interface {
	GetTemplate(ctx context.Context, id int64) (*catalog.Template, error)
}

type Sessions interface {
	Get(ctx context.Context, chatID int64) (*dialog.Item, error)
	Save(ctx context.Context, it *dialog.Item) error
}

type Materials interface {
	Create(ctx context.Context, userID, templateID int64, data map[string]any) (*materials.Material, error)
}

type Publisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

// Service ведёт анкету шаблона в личном чате: хранит сессию между сообщениями,
// отправляет макет на превью и сохраняет готовый материал.
type Service struct {
	templates Templates
	sessions  Sessions
	materials Materials
	pub       Publisher
	log       *logrus.Entry
}

func New(t Templates, s Sessions, m Materials, p Publisher, log *logrus.Entry) *Service {
	return &Service{templates: t, sessions: s, materials: m, pub: p, log: log}
}

// Reply результат хода анкеты.
type Reply struct {
	Outcome  form.Outcome
	Material *materials.Material // заполнен при OutcomeFinalized
}

// Start начинает анкету шаблона заново, прежняя сессия чата теряется.
func (s *Service) Start(ctx context.Context, chatID, templateID int64) (Reply, error) {
	tmpl, err := s.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return Reply{}, fmt.Errorf("collector: get template: %w", err)
	}
	if tmpl == nil || !tmpl.Active {
		return Reply{}, ErrTemplateNotFound
	}
	st, out, err := form.Start(tmpl.ID, tmpl.Schema)
	if err != nil {
		s.log.WithError(err).WithField("template_id", templateID).Error("form start failed")
		return Reply{}, err
	}
	it := &dialog.Item{ChatID: chatID, State: dialog.StateForm, Payload: dialog.Payload{dialog.KeyTemplateID: templateID}, Form: st}
	return s.commit(ctx, it, nil, out)
}

// Restart заново начинает анкету текущего шаблона.
func (s *Service) Restart(ctx context.Context, chatID int64) (Reply, error) {
	it, err := s.sessions.Get(ctx, chatID)
	if err != nil {
		return Reply{}, fmt.Errorf("collector: load session: %w", err)
	}
	if it.State != dialog.StateForm {
		return Reply{}, ErrNoSession
	}
	// шаблон берётся из payload, если сама анкета не читается
	templateID, ok := dialog.GetInt64(it.Payload, dialog.KeyTemplateID)
	if it.Form != nil {
		templateID, ok = it.Form.TemplateID, true
	}
	if !ok {
		return Reply{}, ErrNoSession
	}
	return s.Start(ctx, chatID, templateID)
}

// Current повторяет текущий шаг без изменений.
func (s *Service) Current(ctx context.Context, chatID int64) (Reply, error) {
	return s.step(ctx, chatID, (*form.State).Advance)
}

func (s *Service) Text(ctx context.Context, chatID int64, text string) (Reply, error) {
	return s.step(ctx, chatID, func(st *form.State) (form.Outcome, error) { return st.SubmitText(text) })
}

func (s *Service) Photos(ctx context.Context, chatID int64, photos []validate.Image) (Reply, error) {
	return s.step(ctx, chatID, func(st *form.State) (form.Outcome, error) { return st.SubmitPhotos(photos) })
}

func (s *Service) Video(ctx context.Context, chatID int64, v form.Video) (Reply, error) {
	return s.step(ctx, chatID, func(st *form.State) (form.Outcome, error) { return st.SubmitVideo(v) })
}

func (s *Service) Choose(ctx context.Context, chatID int64, value string) (Reply, error) {
	return s.step(ctx, chatID, func(st *form.State) (form.Outcome, error) { return st.Choose(value) })
}

func (s *Service) Skip(ctx context.Context, chatID int64) (Reply, error) {
	return s.step(ctx, chatID, (*form.State).Skip)
}

func (s *Service) FinishEarly(ctx context.Context, chatID int64) (Reply, error) {
	return s.step(ctx, chatID, (*form.State).FinishEarly)
}

func (s *Service) Confirm(ctx context.Context, chatID int64) (Reply, error) {
	return s.step(ctx, chatID, (*form.State).Confirm)
}

func (s *Service) session(ctx context.Context, chatID int64) (*dialog.Item, error) {
	it, err := s.sessions.Get(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("collector: load session: %w", err)
	}
	if it.State != dialog.StateForm {
		return nil, ErrNoSession
	}
	if it.FormErr != nil {
		s.log.WithError(it.FormErr).WithField("chat_id", chatID).Error("form session is inconsistent")
		return nil, it.FormErr
	}
	if it.Form == nil {
		return nil, ErrNoSession
	}
	return it, nil
}

func (s *Service) step(ctx context.Context, chatID int64, op func(*form.State) (form.Outcome, error)) (Reply, error) {
	it, err := s.session(ctx, chatID)
	if err != nil {
		return Reply{}, err
	}
	before, err := it.Form.Clone()
	if err != nil {
		return Reply{}, err
	}
	out, err := op(it.Form)
	if err != nil {
		if form.IsConfigError(err) {
			s.log.WithError(err).WithFields(logrus.Fields{
				"chat_id":     chatID,
				"template_id": it.Form.TemplateID,
			}).Error("form session is inconsistent")
		}
		return Reply{}, err
	}
	return s.commit(ctx, it, before, out)
}

// commit выполняет побочные действия исхода и сохраняет сессию. Если превью не
// удалось поставить в очередь, сессия остаётся как до хода.
func (s *Service) commit(ctx context.Context, it *dialog.Item, before *form.State, out form.Outcome) (Reply, error) {
	log := s.log.WithFields(logrus.Fields{"chat_id": it.ChatID, "template_id": it.Form.TemplateID})
	for _, st := range out.Completed {
		metrics.FormStepsCompleted.WithLabelValues(string(st.Type)).Inc()
	}
	reply := Reply{Outcome: out}

	switch out.Kind {
	case form.OutcomeGenerate:
		job := jobs.Preview(it.ChatID, it.Form.TemplateID, out.Folded)
		if err := s.pub.Publish(ctx, jobs.QueueGenerateImage, job); err != nil {
			log.WithError(err).Error("preview publish failed")
			if before != nil {
				it.Form = before
			}
			return Reply{}, ErrPreviewFailed
		}
	case form.OutcomeFinalized:
		mat, err := s.materials.Create(ctx, it.ChatID, it.Form.TemplateID, out.Folded)
		if err != nil {
			return Reply{}, fmt.Errorf("collector: save material: %w", err)
		}
		reply.Material = mat
		log.WithField("material_id", mat.ID).Info("material saved")
		it.State = dialog.StateIdle
		it.Form = nil
		it.Payload = dialog.Payload{dialog.KeyMaterialID: mat.ID}
	}

	if err := s.sessions.Save(ctx, it); err != nil {
		return Reply{}, fmt.Errorf("collector: save session: %w", err)
	}
	return reply, nil
}
