package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDisk struct {
	mu          sync.Mutex
	folders     map[string]bool
	files       map[string]string
	folderFails int
	srv         *httptest.Server
}

func newFakeDisk(t *testing.T) *fakeDisk {
	f := &fakeDisk{folders: map[string]bool{}, files: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/resources", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OAuth token", r.Header.Get("Authorization"))
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.folderFails > 0 {
			f.folderFails--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		p := r.URL.Query().Get("path")
		if f.folders[p] {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.folders[p] = true
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/resources/upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("overwrite"))
		_, _ = fmt.Fprintf(w, `{"href":%q,"method":"PUT"}`, f.srv.URL+"/put?path="+r.URL.Query().Get("path"))
	})
	mux.HandleFunc("/put", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.files[r.URL.Query().Get("path")] = string(raw)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDisk) client() *YaDisk {
	l, _ := logtest.NewNullLogger()
	d := NewYaDisk("token", f.srv.URL, logrus.NewEntry(l))
	d.backoff = func() retry.Backoff { return retry.WithMaxRetries(3, retry.NewConstant(time.Millisecond)) }
	return d
}

func TestFolders(t *testing.T) {
	assert.Equal(t, []string{"mugs", "mugs/S-1", "mugs/S-1/77"}, Folders("/mugs/S-1/77/sticker.png"))
	assert.Nil(t, Folders("sticker.png"))
}

func TestUploadCreatesFoldersAndOverwrites(t *testing.T) {
	f := newFakeDisk(t)
	d := f.client()

	require.NoError(t, d.Upload(context.Background(), []byte("v1"), "mugs/S-1/77/sticker.png"))
	require.NoError(t, d.Upload(context.Background(), []byte("v2"), "mugs/S-1/77/sticker.png"))

	assert.True(t, f.folders["mugs/S-1/77"])
	assert.Equal(t, "v2", f.files["mugs/S-1/77/sticker.png"])
}

func TestFolderCreationRetries(t *testing.T) {
	f := newFakeDisk(t)
	f.folderFails = 2
	require.NoError(t, f.client().Upload(context.Background(), []byte("x"), "a/b.png"))
	assert.True(t, f.folders["a"])

	f.folderFails = 10
	err := f.client().Upload(context.Background(), []byte("x"), "c/d.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
