package intake

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/wb-materials-bot/internal/attempts"
	"github.com/Spok95/wb-materials-bot/internal/dialog"
	"github.com/Spok95/wb-materials-bot/internal/domain"
	"github.com/Spok95/wb-materials-bot/internal/domain/geo"
	"github.com/Spok95/wb-materials-bot/internal/domain/materials"
	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
	"github.com/Spok95/wb-materials-bot/internal/domain/searches"
)

type world struct {
	materials map[int64]*materials.Material
	active    map[int64]*searches.Request
	linked    map[int64]*orders.Order
	countries []geo.Country
	cities    []geo.City
	sessions  map[int64]*dialog.Item
	created   []searches.Request
}

func newWorld() *world {
	return &world{
		materials: map[int64]*materials.Material{
			1: {ID: 1, UserID: 100, Status: materials.StatusSaved},
			2: {ID: 2, UserID: 100, Status: materials.StatusLinked},
			3: {ID: 3, UserID: 200, Status: materials.StatusSaved},
		},
		active: map[int64]*searches.Request{},
		linked: map[int64]*orders.Order{},
		countries: []geo.Country{
			{ID: 1, Name: geo.Russia, UTCOffset: 3},
			{ID: 3, Name: "Казахстан", UTCOffset: 5},
		},
		cities: []geo.City{
			{ID: 10, CountryID: 1, Name: "Москва", Region: "Московская область", UTCOffset: 3},
			{ID: 11, CountryID: 1, Name: "Новосибирск", Region: "Новосибирская область", UTCOffset: 7},
		},
		sessions: map[int64]*dialog.Item{},
	}
}

func (w *world) GetActiveByMaterial(_ context.Context, id int64) (*searches.Request, error) {
	return w.active[id], nil
}

func (w *world) GetByID(_ context.Context, id int64) (*materials.Material, error) {
	return w.materials[id], nil
}

func (w *world) GetByMaterialID(_ context.Context, id int64) (*orders.Order, error) {
	return w.linked[id], nil
}

func (w *world) ListCountries(context.Context) ([]geo.Country, error) { return w.countries, nil }

func (w *world) GetCountry(_ context.Context, id int64) (*geo.Country, error) {
	for i := range w.countries {
		if w.countries[i].ID == id {
			return &w.countries[i], nil
		}
	}
	return nil, nil
}

func (w *world) ListCities(_ context.Context, countryID int64) ([]geo.City, error) {
	var out []geo.City
	for _, c := range w.cities {
		if c.CountryID == countryID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (w *world) GetCity(_ context.Context, id int64) (*geo.City, error) {
	for i := range w.cities {
		if w.cities[i].ID == id {
			return &w.cities[i], nil
		}
	}
	return nil, nil
}

func (w *world) Get(_ context.Context, chatID int64) (*dialog.Item, error) {
	if it, ok := w.sessions[chatID]; ok {
		p := dialog.Payload{}
		for k, v := range it.Payload {
			p[k] = v
		}
		return &dialog.Item{ChatID: chatID, State: it.State, Payload: p}, nil
	}
	return &dialog.Item{ChatID: chatID, State: dialog.StateIdle, Payload: dialog.Payload{}}, nil
}

func (w *world) Set(_ context.Context, chatID int64, st dialog.State, p dialog.Payload) error {
	w.sessions[chatID] = &dialog.Item{ChatID: chatID, State: st, Payload: p}
	return nil
}

func (w *world) CreateSearch(_ context.Context, materialID int64, t searches.Type, f map[string]string) (*searches.Request, error) {
	if w.active[materialID] != nil {
		return nil, domain.Conflict(domain.ErrActiveSearchExists)
	}
	req := searches.Request{ID: int64(len(w.created) + 1), MaterialID: materialID, Type: t, Filters: f, Status: searches.StatusPending}
	w.created = append(w.created, req)
	w.active[materialID] = &req
	w.materials[materialID].Status = materials.StatusSearching
	return &req, nil
}

func newService(w *world) *Service {
	l, _ := logtest.NewNullLogger()
	return New(Deps{Searches: w, Materials: w, Orders: w, Geo: w, Sessions: w, Store: w}, attempts.Policy{Max: 3}, logrus.NewEntry(l))
}

func TestBeginRefusals(t *testing.T) {
	w := newWorld()
	w.active[1] = &searches.Request{ID: 9, MaterialID: 1, Status: searches.StatusPending}
	s := newService(w)
	ctx := context.Background()

	_, err := s.Begin(ctx, 100, 1)
	assert.ErrorIs(t, err, domain.ErrActiveSearchExists)
	assert.True(t, domain.IsConflict(err))

	_, err = s.Begin(ctx, 100, 2)
	assert.ErrorIs(t, err, domain.ErrMaterialAlreadyLinked)

	_, err = s.Begin(ctx, 100, 3)
	assert.ErrorIs(t, err, domain.ErrMaterialNotFound)

	delete(w.active, 1)
	mid := int64(1)
	w.linked[1] = &orders.Order{ID: "srid", MaterialID: &mid}
	_, err = s.Begin(ctx, 100, 1)
	assert.ErrorIs(t, err, domain.ErrMaterialAlreadyLinked)
}

func TestRegionSearch(t *testing.T) {
	w := newWorld()
	s := newService(w)
	ctx := context.Background()

	p, err := s.Begin(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, StageMethod, p.Stage)

	_, err = s.ByDatetime(ctx, 100)
	require.NoError(t, err)

	p, err = s.Datetime(ctx, 100, "02.03.2025 14:30")
	require.NoError(t, err)
	assert.Equal(t, StageCountry, p.Stage)
	assert.Len(t, p.Countries, 2)

	p, err = s.Country(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, StageSenderCity, p.Stage)
	assert.Len(t, p.Cities, 2)

	p, err = s.SenderCity(ctx, 100, 11)
	require.NoError(t, err)
	assert.Equal(t, StageRecipientCity, p.Stage)

	p, err = s.RecipientCity(ctx, 100, 10)
	require.NoError(t, err)
	assert.Equal(t, StageCreated, p.Stage)
	require.NotNil(t, p.Search)
	assert.Equal(t, searches.TypeRegion, p.Search.Type)
	f := p.Search.Filters
	// Новосибирск UTC+7
	assert.Equal(t, "2025-03-02 07:30:00", f[searches.FilterOrderDatetime])
	assert.Equal(t, "Московская область", f[searches.FilterRecipientRegion])
	assert.Equal(t, "Новосибирск", f[searches.FilterSenderCity])
	assert.Equal(t, materials.StatusSearching, w.materials[1].Status)
	assert.Equal(t, dialog.StateIdle, w.sessions[100].State)
}

func TestCountrySearchUsesCountryOffset(t *testing.T) {
	w := newWorld()
	s := newService(w)
	ctx := context.Background()

	_, err := s.Begin(ctx, 100, 1)
	require.NoError(t, err)
	_, err = s.ByDatetime(ctx, 100)
	require.NoError(t, err)
	_, err = s.Datetime(ctx, 100, "2025-03-02 14:30")
	require.NoError(t, err)

	p, err := s.Country(ctx, 100, 3)
	require.NoError(t, err)
	assert.Equal(t, searches.TypeCountry, p.Search.Type)
	assert.Equal(t, "2025-03-02 09:30:00", p.Search.Filters[searches.FilterOrderDatetime])
	assert.Equal(t, "Казахстан", p.Search.Filters[searches.FilterCountry])

	_, err = s.Begin(ctx, 100, 1)
	assert.ErrorIs(t, err, domain.ErrActiveSearchExists)
}

func TestDatetimeFallsBackToReceipt(t *testing.T) {
	w := newWorld()
	s := newService(w)
	ctx := context.Background()

	_, err := s.Begin(ctx, 100, 1)
	require.NoError(t, err)
	_, err = s.ByDatetime(ctx, 100)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		p, err := s.Datetime(ctx, 100, "вчера вечером")
		require.NoError(t, err)
		assert.True(t, p.Retry)
		assert.Equal(t, StageDatetime, p.Stage)
	}
	p, err := s.Datetime(ctx, 100, "не помню")
	require.NoError(t, err)
	assert.True(t, p.Fallback)
	assert.Equal(t, StageReceipt, p.Stage)
	assert.Equal(t, dialog.StateSearchReceipt, w.sessions[100].State)

	p, err = s.Receipt(ctx, 100, "  ")
	require.NoError(t, err)
	assert.True(t, p.Retry)

	p, err = s.Receipt(ctx, 100, " 9f1c2a7b ")
	require.NoError(t, err)
	assert.Equal(t, searches.TypeReceiptNumber, p.Search.Type)
	assert.Equal(t, "9f1c2a7b", p.Search.Filters[searches.FilterReceiptNumber])
}

func TestWrongState(t *testing.T) {
	w := newWorld()
	s := newService(w)
	_, err := s.Datetime(context.Background(), 100, "02.03.2025 14:30")
	assert.ErrorIs(t, err, ErrNoIntake)
	_, err = s.Country(context.Background(), 100, 1)
	assert.ErrorIs(t, err, ErrNoIntake)
}

func TestParseDatetime(t *testing.T) {
	at, ok := ParseDatetime(" 02.03.2025   14:30:15 ")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 2, 14, 30, 15, 0, time.UTC), at)

	_, ok = ParseDatetime("32.13.2025 25:00")
	assert.False(t, ok)
}
