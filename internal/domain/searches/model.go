package searches

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/looplab/fsm"
)

type Type string

const (
	TypeRegion        Type = "REGION"
	TypeReceiptNumber Type = "RECEIPT_NUMBER"
	TypeCountry       Type = "COUNTRY"
)

type Status string

const (
	StatusPending               Status = "PENDING"
	StatusFound                 Status = "FOUND"
	StatusFoundMultiple         Status = "FOUND_MULTIPLE"
	StatusFoundButLinked        Status = "FOUND_BUT_LINKED"
	StatusFoundInOtherWarehouse Status = "FOUND_IN_OTHER_WAREHOUSE"
	StatusNotFound              Status = "NOT_FOUND"
	StatusTimeout               Status = "TIMEOUT"
	StatusCanceled              Status = "CANCELED"
)

// Ключи filters.
const (
	FilterOrderDatetime   = "order_datetime"
	FilterCountry         = "country"
	FilterRecipientCity   = "recipient_city"
	FilterRecipientRegion = "recipient_region"
	FilterSenderCity      = "sender_city"
	FilterSenderRegion    = "sender_region"
	FilterReceiptNumber   = "receipt_number"
	FilterPhotoID         = "photo_id"
)

// DatetimeLayout формат order_datetime в filters.
const DatetimeLayout = "2006-01-02 15:04:05"

type Request struct {
	ID            int64
	MaterialID    int64
	Type          Type
	Filters       map[string]string
	Status        Status
	CreatedAt     time.Time
	LastCheckedAt *time.Time
}

func (s Status) Terminal() bool { return s != StatusPending }

var ErrInvalidTransition = errors.New("searches: invalid status transition")

var terminal = []Status{
	StatusFound,
	StatusFoundMultiple,
	StatusFoundButLinked,
	StatusFoundInOtherWarehouse,
	StatusNotFound,
	StatusTimeout,
	StatusCanceled,
}

func eventName(s Status) string { return "to_" + strings.ToLower(string(s)) }

// machine жизненный цикл поиска: из PENDING в любой терминальный статус, дальше никуда.
func machine(current Status) *fsm.FSM {
	events := make(fsm.Events, 0, len(terminal))
	for _, s := range terminal {
		events = append(events, fsm.EventDesc{
			Name: eventName(s),
			Src:  []string{string(StatusPending)},
			Dst:  string(s),
		})
	}
	return fsm.NewFSM(string(current), events, fsm.Callbacks{})
}

// Transition проверяет переход from -> to.
func Transition(ctx context.Context, from, to Status) error {
	m := machine(from)
	if err := m.Event(ctx, eventName(to)); err != nil {
		return fmt.Errorf("%w: %s -> %s: %v", ErrInvalidTransition, from, to, err)
	}
	return nil
}

var statusText = map[Status]string{
	StatusPending:               "Поиск ещё не завершён",
	StatusFound:                 "Заказ найден",
	StatusNotFound:              "Заказ не найден",
	StatusTimeout:               "Заказ не найден (таймаут)",
	StatusFoundButLinked:        "Заказ найден, но уже связан с другим материалом",
	StatusFoundInOtherWarehouse: "Заказ найден, но не на нашем складе",
	StatusFoundMultiple:         "Найдено несколько заказов",
	StatusCanceled:              "Заказ отменён",
}

// Text статус для сообщений пользователю.
func (s Status) Text() string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return string(s)
}
