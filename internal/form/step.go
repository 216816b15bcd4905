package form

import (
	"encoding/json"
	"fmt"

	"github.com/Spok95/wb-materials-bot/internal/form/validate"
)

type StepType string

const (
	StepText          StepType = "text"
	StepPhoto         StepType = "photo"
	StepVideo         StepType = "video"
	StepMulti         StepType = "multi" // несколько фото
	StepMedia         StepType = "media" // фото и/или видео
	StepSelect        StepType = "select"
	StepGroup         StepType = "group"
	StepGenerateImage StepType = "generate_image"
)

// Действия, которые может нести опция select или группа.
const (
	ActionSkip          = "skip"
	ActionForwardVideo  = "forward_video"
	ActionGenerateVideo = "generate_video"
	ActionSkipVideo     = "skip_video"
)

const DefaultFinishButtonText = "Завершить шаг"

type Option struct {
	Label     string   `json:"label"`
	Value     string   `json:"value"`
	Action    string   `json:"action,omitempty"`
	NextSteps []string `json:"next_steps,omitempty"`
}

// Example пример заполнения, который показывается вместе с подсказкой шага.
type Example struct {
	Type    string `json:"type"` // photo|video|document
	Source  string `json:"source,omitempty"`
	Content string `json:"content"`
}

type Step struct {
	Name             string          `json:"name"`
	Type             StepType        `json:"type"`
	Text             string          `json:"text,omitempty"`
	Optional         bool            `json:"optional,omitempty"`
	Count            int             `json:"count,omitempty"`
	Validators       []validate.Spec `json:"validators,omitempty"`
	Options          []Option        `json:"options,omitempty"`
	RepeatCount      *int            `json:"repeat_count,omitempty"`
	RepeatFrom       string          `json:"repeat_from,omitempty"` // поле группы, по длине которого считается repeat_count
	Steps            []Step          `json:"steps,omitempty"`
	AllowEarlyFinish bool            `json:"allow_early_finish,omitempty"`
	FinishButtonText string          `json:"finish_button_text,omitempty"`
	Example          *Example        `json:"example,omitempty"`
}

// Repeat возвращает repeat_count группы; без явного значения группа раскрывается один раз.
func (s Step) Repeat() int {
	if s.RepeatCount == nil {
		return 1
	}
	if *s.RepeatCount < 0 {
		return 0
	}
	return *s.RepeatCount
}

func (s Step) IsMedia() bool { return s.Type == StepMulti || s.Type == StepMedia }

func (s Step) FinishText() string {
	if s.FinishButtonText != "" {
		return s.FinishButtonText
	}
	return DefaultFinishButtonText
}

func (s Step) Option(value string) (Option, bool) {
	for _, o := range s.Options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

// Group верхнеуровневая именованная группа шаблона.
type Group struct {
	Name   string `json:"name"`
	Action string `json:"action,omitempty"`
	Steps  []Step `json:"steps"`
}

type Schema []Group

// ParseSchema разбирает form_steps шаблона и проверяет ссылки next_steps.
func ParseSchema(raw []byte) (Schema, error) {
	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("form: decode schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s Schema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("form: schema has no groups")
	}
	index := s.StepIndex()
	for _, g := range s {
		if g.Name == "" {
			return fmt.Errorf("form: group without name")
		}
		if err := validateSteps(g.Steps, index); err != nil {
			return fmt.Errorf("form: group %q: %w", g.Name, err)
		}
	}
	return nil
}

func validateSteps(steps []Step, index map[string]Step) error {
	for _, st := range steps {
		if st.Name == "" {
			return fmt.Errorf("step without name")
		}
		switch st.Type {
		case StepText, StepPhoto, StepVideo, StepMulti, StepMedia, StepGenerateImage:
		case StepSelect:
			if len(st.Options) == 0 {
				return fmt.Errorf("select %q has no options", st.Name)
			}
			for _, o := range st.Options {
				for _, ref := range o.NextSteps {
					if _, ok := index[ref]; !ok {
						return fmt.Errorf("select %q: option %q refers to unknown step %q", st.Name, o.Value, ref)
					}
				}
			}
		case StepGroup:
			if err := validateSteps(st.Steps, index); err != nil {
				return err
			}
		default:
			return fmt.Errorf("step %q has unknown type %q", st.Name, st.Type)
		}
	}
	return nil
}

// StepIndex строит индекс шагов верхнего уровня всех групп по имени.
// Используется для разрешения next_steps.
func (s Schema) StepIndex() map[string]Step {
	return stepIndex(s.Steps())
}

// Steps возвращает нераскрытые списки шагов по группам.
func (s Schema) Steps() [][]Step {
	out := make([][]Step, len(s))
	for i, g := range s {
		out[i] = g.Steps
	}
	return out
}

func stepIndex(all [][]Step) map[string]Step {
	idx := make(map[string]Step)
	for _, steps := range all {
		for _, st := range steps {
			if st.Name != "" {
				idx[st.Name] = st
			}
		}
	}
	return idx
}
