package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Spok95/wb-materials-bot/internal/attempts"
	"github.com/Spok95/wb-materials-bot/internal/dialog"
	"github.com/Spok95/wb-materials-bot/internal/domain"
	"github.com/Spok95/wb-materials-bot/internal/domain/geo"
	"github.com/Spok95/wb-materials-bot/internal/domain/materials"
	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
	"github.com/Spok95/wb-materials-bot/internal/domain/searches"
)

// ErrNoIntake чат сейчас не на шаге поиска заказа.
var ErrNoIntake = errors.New("intake: no search intake in progress")

// Форматы, в которых принимаем дату и время заказа.
var datetimeLayouts = []string{
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

const attemptDatetime = "order_datetime"

type Searches interface {
	GetActiveByMaterial(ctx context.Context, materialID int64) (*searches.Request, error)
}

type Materials interface {
	GetByID(ctx context.Context, id int64) (*materials.Material, error)
}

type Orders interface {
	GetByMaterialID(ctx context.Context, materialID int64) (*orders.Order, error)
}

type Geo interface {
	ListCountries(ctx context.Context) ([]geo.Country, error)
	GetCountry(ctx context.Context, id int64) (*geo.Country, error)
	ListCities(ctx context.Context, countryID int64) ([]geo.City, error)
	GetCity(ctx context.Context, id int64) (*geo.City, error)
}

type Sessions interface {
	Get(ctx context.Context, chatID int64) (*dialog.Item, error)
	Set(ctx context.Context, chatID int64, state dialog.State, payload dialog.Payload) error
}

// Store заводит поиск и переводит материал в searching одной транзакцией.
type Store interface {
	CreateSearch(ctx context.Context, materialID int64, t searches.Type, filters map[string]string) (*searches.Request, error)
}

type Deps struct {
	Searches  Searches
	Materials Materials
	Orders    Orders
	Geo       Geo
	Sessions  Sessions
	Store     Store
}

type Service struct {
	Deps
	policy attempts.Policy
	log    *logrus.Entry
}

func New(d Deps, policy attempts.Policy, log *logrus.Entry) *Service {
	return &Service{Deps: d, policy: policy, log: log}
}

type Stage int

const (
	StageMethod Stage = iota + 1
	StageDatetime
	StageCountry
	StageSenderCity
	StageRecipientCity
	StageReceipt
	StageCreated
)

// Prompt что показать пользователю дальше.
type Prompt struct {
	Stage     Stage
	Countries []geo.Country
	Cities    []geo.City
	Search    *searches.Request
	// Retry ввод не принят, шаг повторяется.
	Retry bool
	// Fallback попытки ввода даты исчерпаны, предлагаем номер чека.
	Fallback bool
}

// Begin начинает поиск заказа для материала пользователя.
func (s *Service) Begin(ctx context.Context, chatID, materialID int64) (Prompt, error) {
	m, err := s.Materials.GetByID(ctx, materialID)
	if err != nil {
		return Prompt{}, fmt.Errorf("intake: get material: %w", err)
	}
	if m == nil || m.UserID != chatID {
		return Prompt{}, domain.Conflict(domain.ErrMaterialNotFound)
	}
	if err := s.checkFree(ctx, m); err != nil {
		return Prompt{}, err
	}
	p := dialog.Payload{dialog.KeyMaterialID: materialID}
	if err := s.Sessions.Set(ctx, chatID, dialog.StateSearchMethod, p); err != nil {
		return Prompt{}, err
	}
	return Prompt{Stage: StageMethod}, nil
}

func (s *Service) checkFree(ctx context.Context, m *materials.Material) error {
	if m.Status == materials.StatusLinked {
		return domain.Conflict(domain.ErrMaterialAlreadyLinked)
	}
	active, err := s.Searches.GetActiveByMaterial(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("intake: active search: %w", err)
	}
	if active != nil {
		return domain.Conflict(domain.ErrActiveSearchExists)
	}
	o, err := s.Orders.GetByMaterialID(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("intake: linked order: %w", err)
	}
	if o != nil {
		return domain.Conflict(domain.ErrMaterialAlreadyLinked)
	}
	return nil
}

func (s *Service) load(ctx context.Context, chatID int64, states ...dialog.State) (*dialog.Item, int64, error) {
	it, err := s.Sessions.Get(ctx, chatID)
	if err != nil {
		return nil, 0, fmt.Errorf("intake: load session: %w", err)
	}
	for _, st := range states {
		if it.State == st {
			id, ok := dialog.GetInt64(it.Payload, dialog.KeyMaterialID)
			if !ok {
				return nil, 0, ErrNoIntake
			}
			return it, id, nil
		}
	}
	return nil, 0, ErrNoIntake
}

// ByDatetime выбран поиск по дате и месту заказа.
func (s *Service) ByDatetime(ctx context.Context, chatID int64) (Prompt, error) {
	it, _, err := s.load(ctx, chatID, dialog.StateSearchMethod)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Stage: StageDatetime}, s.Sessions.Set(ctx, chatID, dialog.StateSearchDatetime, it.Payload)
}

// ByReceipt выбран поиск по номеру чека.
func (s *Service) ByReceipt(ctx context.Context, chatID int64) (Prompt, error) {
	it, _, err := s.load(ctx, chatID, dialog.StateSearchMethod, dialog.StateSearchDatetime)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Stage: StageReceipt}, s.Sessions.Set(ctx, chatID, dialog.StateSearchReceipt, it.Payload)
}

// ParseDatetime разбирает местные дату и время заказа.
func ParseDatetime(text string) (time.Time, bool) {
	text = strings.Join(strings.Fields(text), " ")
	for _, l := range datetimeLayouts {
		if t, err := time.Parse(l, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (s *Service) Datetime(ctx context.Context, chatID int64, text string) (Prompt, error) {
	it, _, err := s.load(ctx, chatID, dialog.StateSearchDatetime)
	if err != nil {
		return Prompt{}, err
	}
	at, ok := ParseDatetime(text)
	if !ok {
		if s.policy.Fail(it.Payload, attemptDatetime) {
			s.policy.Reset(it.Payload, attemptDatetime)
			if err := s.Sessions.Set(ctx, chatID, dialog.StateSearchReceipt, it.Payload); err != nil {
				return Prompt{}, err
			}
			return Prompt{Stage: StageReceipt, Fallback: true}, nil
		}
		if err := s.Sessions.Set(ctx, chatID, dialog.StateSearchDatetime, it.Payload); err != nil {
			return Prompt{}, err
		}
		return Prompt{Stage: StageDatetime, Retry: true}, nil
	}

	s.policy.Reset(it.Payload, attemptDatetime)
	it.Payload[dialog.KeyDatetime] = at.Format(searches.DatetimeLayout)
	countries, err := s.Geo.ListCountries(ctx)
	if err != nil {
		return Prompt{}, fmt.Errorf("intake: countries: %w", err)
	}
	if err := s.Sessions.Set(ctx, chatID, dialog.StateSearchCountry, it.Payload); err != nil {
		return Prompt{}, err
	}
	return Prompt{Stage: StageCountry, Countries: countries}, nil
}

func localDatetime(p dialog.Payload) (time.Time, error) {
	raw, _ := dialog.GetString(p, dialog.KeyDatetime)
	t, err := time.Parse(searches.DatetimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("intake: stored datetime %q: %w", raw, err)
	}
	return t, nil
}

// Country для России спрашиваем города, для остальных стран сразу заводим поиск.
func (s *Service) Country(ctx context.Context, chatID, countryID int64) (Prompt, error) {
	it, materialID, err := s.load(ctx, chatID, dialog.StateSearchCountry)
	if err != nil {
		return Prompt{}, err
	}
	c, err := s.Geo.GetCountry(ctx, countryID)
	if err != nil {
		return Prompt{}, fmt.Errorf("intake: get country: %w", err)
	}
	if c == nil {
		return Prompt{Stage: StageCountry, Retry: true}, nil
	}

	if c.Name == geo.Russia {
		cities, err := s.Geo.ListCities(ctx, c.ID)
		if err != nil {
			return Prompt{}, fmt.Errorf("intake: cities: %w", err)
		}
		it.Payload[dialog.KeyCountryID] = c.ID
		if err := s.Sessions.Set(ctx, chatID, dialog.StateSearchSenderCity, it.Payload); err != nil {
			return Prompt{}, err
		}
		return Prompt{Stage: StageSenderCity, Cities: cities}, nil
	}

	local, err := localDatetime(it.Payload)
	if err != nil {
		return Prompt{}, err
	}
	filters := map[string]string{
		searches.FilterOrderDatetime: geo.ToUTC(local, c.UTCOffset).Format(searches.DatetimeLayout),
		searches.FilterCountry:       c.Name,
	}
	return s.create(ctx, chatID, materialID, searches.TypeCountry, filters)
}

func (s *Service) SenderCity(ctx context.Context, chatID, cityID int64) (Prompt, error) {
	it, _, err := s.load(ctx, chatID, dialog.StateSearchSenderCity)
	if err != nil {
		return Prompt{}, err
	}
	countryID, _ := dialog.GetInt64(it.Payload, dialog.KeyCountryID)
	city, err := s.Geo.GetCity(ctx, cityID)
	if err != nil {
		return Prompt{}, fmt.Errorf("intake: get city: %w", err)
	}
	cities, err := s.Geo.ListCities(ctx, countryID)
	if err != nil {
		return Prompt{}, fmt.Errorf("intake: cities: %w", err)
	}
	if city == nil || city.CountryID != countryID {
		return Prompt{Stage: StageSenderCity, Cities: cities, Retry: true}, nil
	}
	it.Payload[dialog.KeySenderCity] = city.ID
	if err := s.Sessions.Set(ctx, chatID, dialog.StateSearchRecipientCity, it.Payload); err != nil {
		return Prompt{}, err
	}
	return Prompt{Stage: StageRecipientCity, Cities: cities}, nil
}

// RecipientCity заводит поиск по региону. Время переводится в UTC по поясу
// города отправителя.
func (s *Service) RecipientCity(ctx context.Context, chatID, cityID int64) (Prompt, error) {
	it, materialID, err := s.load(ctx, chatID, dialog.StateSearchRecipientCity)
	if err != nil {
		return Prompt{}, err
	}
	countryID, _ := dialog.GetInt64(it.Payload, dialog.KeyCountryID)
	senderID, _ := dialog.GetInt64(it.Payload, dialog.KeySenderCity)
	sender, err := s.Geo.GetCity(ctx, senderID)
	if err != nil {
		return Prompt{}, fmt.Errorf("intake: get city: %w", err)
	}
	if sender == nil {
		return Prompt{}, fmt.Errorf("intake: sender city %d disappeared", senderID)
	}
	recipient, err := s.Geo.GetCity(ctx, cityID)
	if err != nil {
		return Prompt{}, fmt.Errorf("intake: get city: %w", err)
	}
	if recipient == nil || recipient.CountryID != countryID {
		cities, err := s.Geo.ListCities(ctx, countryID)
		if err != nil {
			return Prompt{}, fmt.Errorf("intake: cities: %w", err)
		}
		return Prompt{Stage: StageRecipientCity, Cities: cities, Retry: true}, nil
	}

	local, err := localDatetime(it.Payload)
	if err != nil {
		return Prompt{}, err
	}
	filters := map[string]string{
		searches.FilterOrderDatetime:   geo.ToUTC(local, sender.UTCOffset).Format(searches.DatetimeLayout),
		searches.FilterCountry:         geo.Russia,
		searches.FilterSenderCity:      sender.Name,
		searches.FilterSenderRegion:    sender.Region,
		searches.FilterRecipientCity:   recipient.Name,
		searches.FilterRecipientRegion: recipient.Region,
	}
	return s.create(ctx, chatID, materialID, searches.TypeRegion, filters)
}

func (s *Service) Receipt(ctx context.Context, chatID int64, text string) (Prompt, error) {
	_, materialID, err := s.load(ctx, chatID, dialog.StateSearchReceipt)
	if err != nil {
		return Prompt{}, err
	}
	number := strings.TrimSpace(text)
	if number == "" || strings.ContainsAny(number, " \n\t") {
		return Prompt{Stage: StageReceipt, Retry: true}, nil
	}
	return s.create(ctx, chatID, materialID, searches.TypeReceiptNumber, map[string]string{
		searches.FilterReceiptNumber: number,
	})
}

func (s *Service) create(ctx context.Context, chatID, materialID int64, t searches.Type, filters map[string]string) (Prompt, error) {
	req, err := s.Store.CreateSearch(ctx, materialID, t, filters)
	if err != nil {
		if domain.IsConflict(err) {
			_ = s.Sessions.Set(ctx, chatID, dialog.StateIdle, dialog.Payload{})
		}
		return Prompt{}, err
	}
	s.log.WithFields(logrus.Fields{
		"chat_id":     chatID,
		"material_id": materialID,
		"search_id":   req.ID,
		"type":        t,
	}).Info("search created")
	if err := s.Sessions.Set(ctx, chatID, dialog.StateIdle, dialog.Payload{dialog.KeyMaterialID: materialID}); err != nil {
		return Prompt{}, err
	}
	return Prompt{Stage: StageCreated, Search: req}, nil
}
