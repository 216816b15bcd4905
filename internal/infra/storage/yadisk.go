package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

const DefaultBaseURL = "https://cloud-api.yandex.net/v1/disk"

// YaDisk загрузка файлов на Яндекс Диск через REST API.
type YaDisk struct {
	http    *http.Client
	token   string
	baseURL string
	backoff func() retry.Backoff
	log     *logrus.Entry
}

func NewYaDisk(token, baseURL string, log *logrus.Entry) *YaDisk {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &YaDisk{
		http:    &http.Client{Timeout: 60 * time.Second},
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
		},
		log: log,
	}
}

type statusError struct {
	op     string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("storage: %s: status %d: %s", e.op, e.status, e.body)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusLocked || status >= 500
}

func (d *YaDisk) request(ctx context.Context, method, rawURL string, body io.Reader, auth bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if auth {
		req.Header.Set("Authorization", "OAuth "+d.token)
	}
	return d.http.Do(req)
}

func (d *YaDisk) resourceURL(p string, extra url.Values) string {
	q := url.Values{}
	q.Set("path", p)
	for k, v := range extra {
		q[k] = v
	}
	return d.baseURL + "/resources?" + q.Encode()
}

// Folders промежуточные папки пути файла: "a/b/c.png" -> ["a", "a/b"].
func Folders(filePath string) []string {
	dir := path.Dir(strings.Trim(filePath, "/"))
	if dir == "." || dir == "" {
		return nil
	}
	parts := strings.Split(dir, "/")
	out := make([]string, 0, len(parts))
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "/"))
	}
	return out
}

func (d *YaDisk) ensureFolder(ctx context.Context, folder string) error {
	return retry.Do(ctx, d.backoff(), func(ctx context.Context) error {
		resp, err := d.request(ctx, http.MethodPut, d.resourceURL(folder, nil), nil, true)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("storage: create folder %s: %w", folder, err))
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusCreated, resp.StatusCode == http.StatusConflict:
			return nil
		case retryable(resp.StatusCode):
			raw, _ := io.ReadAll(resp.Body)
			return retry.RetryableError(&statusError{op: "create folder " + folder, status: resp.StatusCode, body: string(raw)})
		default:
			raw, _ := io.ReadAll(resp.Body)
			return &statusError{op: "create folder " + folder, status: resp.StatusCode, body: string(raw)}
		}
	})
}

// Upload кладёт data по пути filePath, создавая папки и перезаписывая файл.
func (d *YaDisk) Upload(ctx context.Context, data []byte, filePath string) error {
	filePath = strings.Trim(filePath, "/")
	for _, f := range Folders(filePath) {
		if err := d.ensureFolder(ctx, f); err != nil {
			return err
		}
	}

	href, err := d.uploadHref(ctx, filePath)
	if err != nil {
		return err
	}
	resp, err := d.request(ctx, http.MethodPut, href, bytes.NewReader(data), false)
	if err != nil {
		return fmt.Errorf("storage: upload %s: %w", filePath, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		return &statusError{op: "upload " + filePath, status: resp.StatusCode, body: string(raw)}
	}

	d.log.WithFields(logrus.Fields{"path": filePath, "bytes": len(data)}).Info("file uploaded")
	return nil
}

func (d *YaDisk) uploadHref(ctx context.Context, filePath string) (string, error) {
	u := d.baseURL + "/resources/upload?" + url.Values{"path": {filePath}, "overwrite": {"true"}}.Encode()
	resp, err := d.request(ctx, http.MethodGet, u, nil, true)
	if err != nil {
		return "", fmt.Errorf("storage: upload link %s: %w", filePath, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", &statusError{op: "upload link " + filePath, status: resp.StatusCode, body: string(raw)}
	}
	var link struct {
		Href string `json:"href"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&link); err != nil {
		return "", fmt.Errorf("storage: decode upload link: %w", err)
	}
	if link.Href == "" {
		return "", fmt.Errorf("storage: empty upload link for %s", filePath)
	}
	return link.Href, nil
}
