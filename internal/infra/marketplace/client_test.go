package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	l, _ := logtest.NewNullLogger()
	return New("secret", srv.URL, srv.URL, logrus.NewEntry(l))
}

func TestCreateSupply(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/supplies", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "Кружки - 3", in["name"])
		_, _ = io.WriteString(w, `{"id":"WB-GI-1"}`)
	})
	id, err := c.CreateSupply(context.Background(), "Кружки - 3")
	require.NoError(t, err)
	assert.Equal(t, "WB-GI-1", id)
}

func TestAddAssemblyTaskAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v3/supplies/WB-GI-1/orders/77", r.URL.Path)
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"code":"FailedToAddSupplyOrder"}`)
	})
	err := c.AddAssemblyTaskToSupply(context.Background(), "WB-GI-1", 77)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
}

func TestAddAssemblyTaskNoContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	assert.NoError(t, c.AddAssemblyTaskToSupply(context.Background(), "WB-GI-1", 77))
}

func TestGetStickers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "png", r.URL.Query().Get("type"))
		assert.Equal(t, "58", r.URL.Query().Get("width"))
		_, _ = io.WriteString(w, `{"stickers":[{"orderId":77,"partA":231648,"partB":9753,"barcode":"!uKEtQZVx","file":"aGVsbG8="}]}`)
	})
	list, err := c.GetStickers(context.Background(), []int64{77})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "9753", list[0].PartB.String())
	img, err := list[0].Image()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(img))

	_, err = Sticker{OrderID: 1, File: "%%%"}.Image()
	assert.Error(t, err)
}

func TestFetchOrders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/supplier/orders", r.URL.Path)
		assert.Equal(t, "2025-03-01T00:00:00", r.URL.Query().Get("dateFrom"))
		_, _ = io.WriteString(w, `[
			{"srid":"s1","date":"2025-03-01T12:00:10","countryName":"Россия","regionName":"Москва","supplierArticle":"MUG","nmId":5,"isCancel":false,"cancelDate":"0001-01-01T00:00:00","warehouseName":"Коледино","warehouseType":"Склад продавца"},
			{"srid":"s2","date":"2025-03-01T13:00:00","nmId":6,"isCancel":true,"cancelDate":"2025-03-01T14:00:00"},
			{"srid":"","date":"2025-03-01T13:00:00","nmId":7}
		]`)
	})
	list, err := c.FetchOrders(context.Background(), time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 10, 0, time.UTC), list[0].CreatedAt)
	assert.Nil(t, list[0].CancelDate)
	assert.Equal(t, "MUG", list[0].SupplierArticle)
	require.NotNil(t, list[1].CancelDate)
	assert.True(t, list[1].IsCancel)
}

func TestFetchNewAssemblyTasks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"orders":[{"id":77,"rid":"s1","createdAt":"2025-03-01T09:00:12Z"},{"id":78,"rid":"s2"}]}`)
	})
	list, err := c.FetchNewAssemblyTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].OrderID)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 12, 0, time.UTC), list[0].CreatedAt.UTC())
	assert.False(t, list[1].CreatedAt.IsZero())
}
