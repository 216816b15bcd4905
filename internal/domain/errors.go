package domain

import "errors"

// Конфликты предметной области. Повтор операции их не исправит.
var (
	ErrActiveSearchExists    = errors.New("search: active search already exists for material")
	ErrOrderAlreadyLinked    = errors.New("orders: order already linked to material")
	ErrMaterialAlreadyLinked = errors.New("materials: material already linked to order")
	ErrArticleMismatch       = errors.New("orders: article is not registered for template")
	ErrAlreadyBatched        = errors.New("supplies: assembly task already in supply")
	ErrSupplyClosed          = errors.New("supplies: supply already closed")
	ErrSupplyNotFound        = errors.New("supplies: supply not found")
	ErrMaterialNotFound      = errors.New("materials: material not found")
	ErrAssemblyTaskNotFound  = errors.New("orders: assembly task not found")
)

type ConflictError struct {
	Err error
}

func (e *ConflictError) Error() string { return e.Err.Error() }

func (e *ConflictError) Unwrap() error { return e.Err }

func Conflict(err error) error {
	if err == nil {
		return nil
	}
	return &ConflictError{Err: err}
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
