package form

import (
	"fmt"
	"strconv"

	"github.com/tiendc/go-deepcopy"
)

type Phase string

// MaxRepeat наибольшее число повторов одной группы при раскрытии.
const MaxRepeat = 50

const (
	PhaseCollecting   Phase = "collecting"
	PhaseConfirmation Phase = "confirmation"
	PhaseFinalized    Phase = "finalized"
)

type GroupHeader struct {
	Name   string `json:"name"`
	Action string `json:"action,omitempty"`
}

// State сессия заполнения формы одного чата. Хранится целиком в dialog_states.
type State struct {
	TemplateID  int64                     `json:"template_id"`
	Groups      []GroupHeader             `json:"groups"`
	GroupIndex  int                       `json:"group_index"`
	AllSteps    [][]Step                  `json:"all_steps"`
	Steps       []Step                    `json:"steps"`
	StepIndex   int                       `json:"step_index"`
	Data        map[string]map[string]any `json:"data"`
	CurrentStep *Step                     `json:"current_step,omitempty"`
	Phase       Phase                     `json:"phase"`
}

func (s *State) Clone() (*State, error) {
	var out State
	if err := deepcopy.Copy(&out, s); err != nil {
		return nil, fmt.Errorf("form: clone session: %w", err)
	}
	return &out, nil
}

func (s *State) Finalized() bool { return s.Phase == PhaseFinalized }

// GroupName имя текущей группы или пустая строка, если курсор вне диапазона.
func (s *State) GroupName() string {
	if s.GroupIndex < 0 || s.GroupIndex >= len(s.Groups) {
		return ""
	}
	return s.Groups[s.GroupIndex].Name
}

// MaterialData данные для сохранения материала: группы со свёрнутыми полями.
func (s *State) MaterialData() map[string]any {
	out := make(map[string]any, len(s.Data))
	for group, fields := range s.Data {
		out[group] = Fold(fields)
	}
	return out
}

func (s *State) checkCursor() error {
	if len(s.Groups) == 0 {
		return configErr("no groups")
	}
	if len(s.AllSteps) != len(s.Groups) {
		return configErr("all_steps has %d entries for %d groups", len(s.AllSteps), len(s.Groups))
	}
	if s.GroupIndex < 0 || s.GroupIndex >= len(s.Groups) {
		return configErr("group_index %d out of range", s.GroupIndex)
	}
	if s.StepIndex < 0 || s.StepIndex > len(s.Steps) {
		return configErr("step_index %d out of range", s.StepIndex)
	}
	return nil
}

func (s *State) groupData() map[string]any {
	if s.Data == nil {
		s.Data = make(map[string]map[string]any)
	}
	name := s.GroupName()
	d, ok := s.Data[name]
	if !ok {
		d = make(map[string]any)
		s.Data[name] = d
	}
	return d
}

func (s *State) seedAction() {
	if a := s.Groups[s.GroupIndex].Action; a != "" {
		s.groupData()["action"] = a
	}
}

// repeatFor считает повторы группы с учётом уже собранных данных текущей группы.
func (s *State) repeatFor() RepeatFunc {
	data := s.Data[s.GroupName()]
	return func(st Step) int {
		if st.RepeatFrom == "" {
			return st.Repeat()
		}
		switch v := data[st.RepeatFrom].(type) {
		case []any:
			return len(v)
		case float64:
			return int(v)
		case int:
			return v
		case string:
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				return n
			}
		}
		return st.Repeat()
	}
}

// expand раскрывает шаги с повторами по данным текущей группы. Число повторов
// больше MaxRepeat из ответа пользователя отклоняется как ввод, из схемы
// считается ошибкой конфигурации.
func (s *State) expand(steps []Step) ([]Step, error) {
	var fromInput, fromSchema string
	count := s.repeatFor()
	out := ExpandWith(steps, "", func(st Step) int {
		n := count(st)
		if n <= MaxRepeat {
			return n
		}
		if st.RepeatFrom != "" {
			fromInput = st.Name
		} else {
			fromSchema = st.Name
		}
		return 0
	})
	switch {
	case fromInput != "":
		return nil, reject(fmt.Sprintf("Слишком много повторов, допустимо не больше %d.", MaxRepeat))
	case fromSchema != "":
		return nil, configErr("group %q repeats more than %d times", fromSchema, MaxRepeat)
	}
	return out, nil
}
