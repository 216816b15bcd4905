package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
	"github.com/Spok95/wb-materials-bot/internal/domain/searches"
)

type memOrders struct {
	list    []orders.Order
	queries []orders.Query
}

func (m *memOrders) FindOrders(_ context.Context, q orders.Query) ([]orders.Order, error) {
	m.queries = append(m.queries, q)
	var out []orders.Order
	for _, o := range m.list {
		if q.Matches(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

type staticArticles map[int64][]int64

func (a staticArticles) TemplateArticles(_ context.Context, id int64) ([]int64, error) {
	return a[id], nil
}

func TestReceiptSearchIgnoresWindowAndCancellation(t *testing.T) {
	q, err := BuildQuery(searches.Request{
		Type:    searches.TypeReceiptNumber,
		Filters: map[string]string{searches.FilterReceiptNumber: "123"},
	}, []int64{5}, DefaultMarketplaceOffset)
	require.NoError(t, err)

	assert.Equal(t, "123", q.ID)
	assert.False(t, q.ExcludeCanceled)
	assert.False(t, q.HasWindow())

	src := &memOrders{list: []orders.Order{{ID: "123", NmID: 5, IsCancel: true, CreatedAt: time.Now()}}}
	m := New(src, staticArticles{1: {5}}, DefaultMarketplaceOffset)
	got, err := m.Match(context.Background(), searches.Request{
		Type:    searches.TypeReceiptNumber,
		Filters: map[string]string{searches.FilterReceiptNumber: "123"},
	}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsCancel)
}

func TestTimedSearchesAlwaysFilter(t *testing.T) {
	for _, req := range []searches.Request{
		{Type: searches.TypeCountry, Filters: map[string]string{
			searches.FilterCountry: "Казахстан", searches.FilterOrderDatetime: "2025-03-01 09:00:00",
		}},
		{Type: searches.TypeRegion, Filters: map[string]string{
			searches.FilterRecipientRegion: "Свердловская область", searches.FilterOrderDatetime: "2025-03-01 09:00:00",
		}},
	} {
		q, err := BuildQuery(req, []int64{5}, DefaultMarketplaceOffset)
		require.NoError(t, err)
		assert.True(t, q.ExcludeCanceled, req.Type)
		assert.Equal(t, time.Date(2025, 3, 1, 11, 59, 0, 0, time.UTC), q.CreatedFrom, req.Type)
		assert.Equal(t, time.Date(2025, 3, 1, 12, 1, 0, 0, time.UTC), q.CreatedTo, req.Type)
		assert.Empty(t, q.ID)
	}
}

func TestMoscowRegionAlias(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 30, 0, time.UTC)
	src := &memOrders{list: []orders.Order{{ID: "a", RegionName: "Москва", NmID: 5, CreatedAt: created}}}
	m := New(src, staticArticles{1: {5}}, DefaultMarketplaceOffset)

	got, err := m.Match(context.Background(), searches.Request{
		Type: searches.TypeRegion,
		Filters: map[string]string{
			searches.FilterRecipientRegion: "Московская область",
			searches.FilterOrderDatetime:   "2025-03-01 09:00:00",
		},
	}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestRegionPatterns(t *testing.T) {
	assert.Equal(t, []string{"Татарстан"}, RegionPatterns("Республика Татарстан"))
	assert.Equal(t, []string{"Крым"}, RegionPatterns("республика Крым"))
	assert.Equal(t, []string{MoscowRegion, MoscowCity}, RegionPatterns("Московская область"))
	assert.Nil(t, RegionPatterns("  республика "))
}

func TestMalformedFilters(t *testing.T) {
	cases := []searches.Request{
		{Type: searches.TypeReceiptNumber, Filters: map[string]string{}},
		{Type: searches.TypeCountry, Filters: map[string]string{searches.FilterOrderDatetime: "2025-03-01 09:00:00"}},
		{Type: searches.TypeCountry, Filters: map[string]string{searches.FilterCountry: "X", searches.FilterOrderDatetime: "вчера"}},
		{Type: searches.TypeRegion, Filters: map[string]string{searches.FilterOrderDatetime: "2025-03-01 09:00:00"}},
		{Type: "PHOTO", Filters: map[string]string{}},
	}
	for _, req := range cases {
		_, err := BuildQuery(req, []int64{1}, 0)
		assert.ErrorIs(t, err, ErrMalformedFilters, req)
	}
}

func TestNoArticlesNoCandidates(t *testing.T) {
	src := &memOrders{list: []orders.Order{{ID: "123", NmID: 5}}}
	m := New(src, staticArticles{}, 0)
	got, err := m.Match(context.Background(), searches.Request{
		Type:    searches.TypeReceiptNumber,
		Filters: map[string]string{searches.FilterReceiptNumber: "123"},
	}, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, src.queries)
}
