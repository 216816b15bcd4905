package matching

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Spok95/wb-materials-bot/internal/domain/orders"
	"github.com/Spok95/wb-materials-bot/internal/domain/searches"
)

// Window допуск по времени заказа в обе стороны.
const Window = 60 * time.Second

// DefaultMarketplaceOffset сдвиг времени в отчёте маркетплейса относительно UTC.
const DefaultMarketplaceOffset = 3 * time.Hour

const (
	MoscowRegion = "Московская область"
	MoscowCity   = "Москва"
)

var ErrMalformedFilters = errors.New("matching: malformed search filters")

var republic = regexp.MustCompile(`(?i)республика`)

type Orders interface {
	FindOrders(ctx context.Context, q orders.Query) ([]orders.Order, error)
}

type Articles interface {
	TemplateArticles(ctx context.Context, templateID int64) ([]int64, error)
}

// RegionPatterns подстроки region_name для региона получателя. В данных
// маркетплейса Московская область встречается и как "Москва".
func RegionPatterns(region string) []string {
	region = strings.Join(strings.Fields(republic.ReplaceAllString(region, "")), " ")
	if region == "" {
		return nil
	}
	if strings.EqualFold(region, MoscowRegion) {
		return []string{region, MoscowCity}
	}
	return []string{region}
}

// BuildQuery переводит фильтры поиска в запрос к заказам. Для поиска по номеру
// чека не действуют ни окно времени, ни фильтр отмены.
func BuildQuery(req searches.Request, nmIDs []int64, offset time.Duration) (orders.Query, error) {
	f := req.Filters
	q := orders.Query{NmIDs: nmIDs}

	if req.Type == searches.TypeReceiptNumber {
		id := strings.TrimSpace(f[searches.FilterReceiptNumber])
		if id == "" {
			return q, fmt.Errorf("%w: empty %s", ErrMalformedFilters, searches.FilterReceiptNumber)
		}
		q.ID = id
		return q, nil
	}

	switch req.Type {
	case searches.TypeCountry:
		q.CountryLike = strings.TrimSpace(f[searches.FilterCountry])
		if q.CountryLike == "" {
			return q, fmt.Errorf("%w: empty %s", ErrMalformedFilters, searches.FilterCountry)
		}
	case searches.TypeRegion:
		q.RegionLike = RegionPatterns(f[searches.FilterRecipientRegion])
		if len(q.RegionLike) == 0 {
			return q, fmt.Errorf("%w: empty %s", ErrMalformedFilters, searches.FilterRecipientRegion)
		}
	default:
		return q, fmt.Errorf("%w: unknown search type %q", ErrMalformedFilters, req.Type)
	}

	at, err := time.Parse(searches.DatetimeLayout, f[searches.FilterOrderDatetime])
	if err != nil {
		return q, fmt.Errorf("%w: %s: %v", ErrMalformedFilters, searches.FilterOrderDatetime, err)
	}
	at = at.Add(offset)
	q.CreatedFrom = at.Add(-Window)
	q.CreatedTo = at.Add(Window)
	q.ExcludeCanceled = true
	return q, nil
}

type Matcher struct {
	orders   Orders
	articles Articles
	offset   time.Duration
}

func New(o Orders, a Articles, offset time.Duration) *Matcher {
	return &Matcher{orders: o, articles: a, offset: offset}
}

// Match кандидаты для поиска среди заказов с артикулами шаблона материала.
func (m *Matcher) Match(ctx context.Context, req searches.Request, templateID int64) ([]orders.Order, error) {
	nmIDs, err := m.articles.TemplateArticles(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("matching: template articles: %w", err)
	}
	q, err := BuildQuery(req, nmIDs, m.offset)
	if err != nil {
		return nil, err
	}
	if len(nmIDs) == 0 {
		return nil, nil
	}
	return m.orders.FindOrders(ctx, q)
}
