package form

import (
	"github.com/Spok95/wb-materials-bot/internal/form/validate"
)

const MaxVideoSize int64 = 300 << 20

type OutcomeKind int

const (
	// OutcomePrompt ждём ввод для Outcome.Step.
	OutcomePrompt OutcomeKind = iota + 1
	// OutcomePending шаг с медиа принял часть файлов и ждёт остальные.
	OutcomePending
	// OutcomeGenerate нужно отправить данные группы на генерацию макета и ждать подтверждения.
	OutcomeGenerate
	// OutcomeFinalized все группы пройдены, Outcome.Folded содержит данные материала.
	OutcomeFinalized
)

type Rejection struct {
	FileID string
	Result validate.Result
}

type Outcome struct {
	Kind       OutcomeKind
	Step       Step
	Group      string
	StepNumber int
	StepsTotal int
	Folded     map[string]any
	Collected  int
	Required   int
	Excess     int
	Rejected   []Rejection
	// Completed шаги, завершённые этой операцией.
	Completed []Step
}

type Video struct {
	FileID    string
	SizeBytes int64
}

// Start создаёт сессию по схеме шаблона и выдаёт первый шаг.
func Start(templateID int64, schema Schema) (*State, Outcome, error) {
	s := &State{
		TemplateID: templateID,
		Groups:     make([]GroupHeader, len(schema)),
		AllSteps:   schema.Steps(),
		Data:       make(map[string]map[string]any),
		Phase:      PhaseCollecting,
	}
	for i, g := range schema {
		s.Groups[i] = GroupHeader{Name: g.Name, Action: g.Action}
	}
	if len(s.Groups) == 0 {
		return nil, Outcome{}, configErr("no groups")
	}
	s.seedAction()
	steps, err := s.expand(s.AllSteps[0])
	if err != nil {
		return nil, Outcome{}, err
	}
	s.Steps = steps
	out, err := s.advance()
	if err != nil {
		return nil, Outcome{}, err
	}
	return s, out, nil
}

// apply выполняет операцию над копией и сохраняет результат только при успехе.
func (s *State) apply(fn func(next *State) (Outcome, error)) (Outcome, error) {
	if s.Phase == PhaseFinalized {
		return Outcome{}, ErrFinalized
	}
	next, err := s.Clone()
	if err != nil {
		return Outcome{}, err
	}
	out, err := fn(next)
	if err != nil {
		return Outcome{}, err
	}
	*s = *next
	return out, nil
}

// Advance пересчитывает текущий шаг без ввода пользователя.
func (s *State) Advance() (Outcome, error) {
	return s.apply(func(n *State) (Outcome, error) { return n.advance() })
}

func (s *State) advance() (Outcome, error) {
	for i := 0; i <= len(s.Groups); i++ {
		if err := s.checkCursor(); err != nil {
			return Outcome{}, err
		}
		if s.StepIndex == len(s.Steps) {
			if s.GroupIndex+1 >= len(s.Groups) {
				data := s.MaterialData()
				s.GroupIndex = len(s.Groups)
				s.Steps = nil
				s.StepIndex = 0
				s.CurrentStep = nil
				s.Phase = PhaseFinalized
				return Outcome{Kind: OutcomeFinalized, Folded: data}, nil
			}
			s.GroupIndex++
			s.StepIndex = 0
			s.seedAction()
			steps, err := s.expand(s.AllSteps[s.GroupIndex])
			if err != nil {
				return Outcome{}, err
			}
			s.Steps = steps
			continue
		}

		st := s.Steps[s.StepIndex]
		s.CurrentStep = &st
		out := Outcome{
			Step:       st,
			Group:      s.GroupName(),
			StepNumber: s.StepIndex + 1,
			StepsTotal: len(s.Steps),
		}
		switch st.Type {
		case StepGenerateImage:
			s.Phase = PhaseConfirmation
			out.Kind = OutcomeGenerate
			out.Folded = Fold(s.groupData())
		case StepText, StepPhoto, StepVideo, StepMulti, StepMedia, StepSelect:
			s.Phase = PhaseCollecting
			out.Kind = OutcomePrompt
			if st.IsMedia() {
				out.Collected = len(mediaList(s.groupData()[st.Name]))
				out.Required = required(st)
			}
		default:
			return Outcome{}, configErr("step %q has type %q after expansion", st.Name, st.Type)
		}
		return out, nil
	}
	return Outcome{}, configErr("transition limit exceeded")
}

// current возвращает шаг, ожидающий ввода, и проверяет его тип.
func (s *State) current(types ...StepType) (Step, error) {
	if err := s.checkCursor(); err != nil {
		return Step{}, err
	}
	if s.StepIndex == len(s.Steps) || s.CurrentStep == nil {
		return Step{}, configErr("no current step")
	}
	if s.Phase == PhaseConfirmation {
		return Step{}, reject("Подтвердите макет или начните заново.")
	}
	st := *s.CurrentStep
	for _, t := range types {
		if st.Type == t {
			return st, nil
		}
	}
	return st, reject(expectText(st))
}

func (s *State) complete(st Step, value any) (Outcome, error) {
	if value != nil {
		s.groupData()[st.Name] = value
	}
	s.StepIndex++
	out, err := s.advance()
	if err != nil {
		return Outcome{}, err
	}
	out.Completed = append([]Step{st}, out.Completed...)
	return out, nil
}

func (s *State) SubmitText(text string) (Outcome, error) {
	return s.apply(func(n *State) (Outcome, error) {
		st, err := n.current(StepText, StepMulti, StepMedia)
		if err != nil {
			return Outcome{}, err
		}
		if st.IsMedia() {
			if st.AllowEarlyFinish && text == st.FinishText() {
				return n.finishEarly(st)
			}
			return Outcome{}, reject(expectText(st))
		}
		if r := validate.TextChain(st.Validators).Validate(text); !r.Valid {
			return Outcome{}, &InputError{Result: r}
		}
		return n.complete(st, text)
	})
}

// SubmitPhotos принимает одно фото или альбом. На шагах multi/media
// отклоняются только не прошедшие проверку фото, остальные копятся.
func (s *State) SubmitPhotos(photos []validate.Image) (Outcome, error) {
	return s.apply(func(n *State) (Outcome, error) {
		st, err := n.current(StepPhoto, StepMulti, StepMedia)
		if err != nil {
			return Outcome{}, err
		}
		if len(photos) == 0 {
			return Outcome{}, reject(expectText(st))
		}
		chain := validate.ImageChain(st.Validators)
		if st.Type == StepPhoto {
			p := photos[0]
			if r := chain.Validate(p); !r.Valid {
				return Outcome{}, &InputError{Result: r}
			}
			return n.complete(st, map[string]any{"photo_url": p.FileID})
		}

		var rejected []Rejection
		items := make([]map[string]any, 0, len(photos))
		for _, p := range photos {
			if r := chain.Validate(p); !r.Valid {
				rejected = append(rejected, Rejection{FileID: p.FileID, Result: r})
				continue
			}
			items = append(items, map[string]any{"photo_url": p.FileID})
		}
		return n.accumulate(st, items, rejected)
	})
}

func (s *State) SubmitVideo(v Video) (Outcome, error) {
	return s.apply(func(n *State) (Outcome, error) {
		st, err := n.current(StepVideo, StepMedia)
		if err != nil {
			return Outcome{}, err
		}
		if v.SizeBytes > MaxVideoSize {
			return Outcome{}, reject("Видео слишком большое. Максимальный размер 300 МБ.")
		}
		item := map[string]any{"video_id": v.FileID}
		if st.Type == StepVideo {
			return n.complete(st, item)
		}
		return n.accumulate(st, []map[string]any{item}, nil)
	})
}

func (s *State) accumulate(st Step, items []map[string]any, rejected []Rejection) (Outcome, error) {
	data := s.groupData()
	list := mediaList(data[st.Name])
	need := required(st)

	excess := 0
	for _, it := range items {
		if len(list) >= need {
			excess++
			continue
		}
		list = append(list, it)
	}
	if len(items) > 0 {
		data[st.Name] = list
	}
	if len(items) == 0 && len(rejected) > 0 && len(list) < need {
		r := rejected[0].Result
		return Outcome{}, &InputError{Result: r}
	}

	if len(list) >= need {
		s.StepIndex++
		out, err := s.advance()
		if err != nil {
			return Outcome{}, err
		}
		out.Completed = append([]Step{st}, out.Completed...)
		out.Rejected = rejected
		out.Excess = excess
		return out, nil
	}
	return Outcome{
		Kind:       OutcomePending,
		Step:       st,
		Group:      s.GroupName(),
		StepNumber: s.StepIndex + 1,
		StepsTotal: len(s.Steps),
		Collected:  len(list),
		Required:   need,
		Rejected:   rejected,
	}, nil
}

// Choose обрабатывает выбор варианта на шаге select.
func (s *State) Choose(value string) (Outcome, error) {
	return s.apply(func(n *State) (Outcome, error) {
		st, err := n.current(StepSelect)
		if err != nil {
			return Outcome{}, err
		}
		opt, ok := st.Option(value)
		if !ok {
			return Outcome{}, reject("Выберите один из предложенных вариантов.")
		}
		data := n.groupData()
		data[st.Name] = opt.Label
		if opt.Action != "" {
			data["action"] = opt.Action
		}
		if opt.Action == ActionSkip {
			return n.complete(st, nil)
		}

		// Без next_steps ветка пустая и группа на этом заканчивается.

		index := stepIndex(n.AllSteps)
		branch := make([]Step, 0, len(opt.NextSteps))
		for _, name := range opt.NextSteps {
			if ref, ok := index[name]; ok {
				branch = append(branch, ref)
			}
		}
		if n.Steps, err = n.expand(branch); err != nil {
			return Outcome{}, err
		}
		n.StepIndex = 0
		out, err := n.advance()
		if err != nil {
			return Outcome{}, err
		}
		out.Completed = append([]Step{st}, out.Completed...)
		return out, nil
	})
}

func (s *State) Skip() (Outcome, error) {
	return s.apply(func(n *State) (Outcome, error) {
		st, err := n.current(StepText, StepPhoto, StepVideo, StepMulti, StepMedia, StepSelect)
		if err != nil {
			return Outcome{}, err
		}
		if !st.Optional {
			return Outcome{}, ErrStepRequired
		}
		return n.complete(st, nil)
	})
}

func (s *State) FinishEarly() (Outcome, error) {
	return s.apply(func(n *State) (Outcome, error) {
		st, err := n.current(StepMulti, StepMedia)
		if err != nil {
			return Outcome{}, err
		}
		if !st.AllowEarlyFinish {
			return Outcome{}, reject("Этот шаг нельзя завершить досрочно.")
		}
		return n.finishEarly(st)
	})
}

func (s *State) finishEarly(st Step) (Outcome, error) {
	if len(mediaList(s.groupData()[st.Name])) == 0 && !st.Optional {
		return Outcome{}, reject("Пришлите хотя бы один файл.")
	}
	return s.complete(st, nil)
}

// Confirm подтверждает сгенерированный макет и продолжает заполнение.
func (s *State) Confirm() (Outcome, error) {
	return s.apply(func(n *State) (Outcome, error) {
		if err := n.checkCursor(); err != nil {
			return Outcome{}, err
		}
		if n.Phase != PhaseConfirmation {
			return Outcome{}, reject("Сейчас нечего подтверждать.")
		}
		if n.StepIndex >= len(n.Steps) {
			return Outcome{}, configErr("confirmation without current step")
		}
		st := n.Steps[n.StepIndex]
		n.Phase = PhaseCollecting
		return n.complete(st, nil)
	})
}

func mediaList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []map[string]any:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out
	}
	return nil
}

func required(st Step) int {
	if st.Count <= 0 {
		return 1
	}
	return st.Count
}

func expectText(st Step) string {
	switch st.Type {
	case StepText:
		return "Отправьте текст."
	case StepPhoto:
		return "Отправьте фото."
	case StepVideo:
		return "Отправьте видео."
	case StepMulti:
		return "Отправьте фотографии."
	case StepMedia:
		return "Отправьте фото или видео."
	case StepSelect:
		return "Выберите вариант кнопкой."
	}
	return "Некорректный ввод."
}
