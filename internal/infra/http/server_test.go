package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestHealthAndReady(t *testing.T) {
	l, hook := logtest.NewNullLogger()
	dbUp := true
	srv := New(":0", true, logrus.NewEntry(l), map[string]Checker{
		"postgres": func(context.Context) error {
			if dbUp {
				return nil
			}
			return errors.New("connection refused")
		},
	})

	get := func(path string) int {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get("/health"))
	assert.Equal(t, http.StatusOK, get("/ready"))
	assert.Equal(t, http.StatusOK, get("/metrics"))

	dbUp = false
	assert.Equal(t, http.StatusServiceUnavailable, get("/ready"))
	assert.Equal(t, http.StatusOK, get("/health"))
	assert.Equal(t, "not ready", hook.LastEntry().Message)
}
