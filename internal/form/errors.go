package form

import (
	"errors"
	"fmt"

	"github.com/Spok95/wb-materials-bot/internal/form/validate"
)

var (
	ErrFinalized    = errors.New("form: session finalized")
	ErrStepRequired = errors.New("form: step is required")
)

// ConfigError нарушенное состояние сессии или схемы. Пользователю предлагается
// начать заново, сессия не трогается.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "form: inconsistent session: " + e.Reason }

func configErr(format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// InputError ввод не подошёл текущему шагу.
type InputError struct {
	Result validate.Result
}

func (e *InputError) Error() string { return "form: input rejected: " + e.Result.ErrorText }

func reject(text string) error {
	return &InputError{Result: validate.Result{ErrorText: text}}
}

func AsInputError(err error) (*InputError, bool) {
	var ie *InputError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
