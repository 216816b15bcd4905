package marketplace

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL       = "https://marketplace-api.wildberries.ru"
	DefaultStatisticsURL = "https://statistics-api.wildberries.ru"
)

// Параметры стикера сборочного задания.
const (
	stickerType   = "png"
	stickerWidth  = 58
	stickerHeight = 40
)

// APIError ответ маркетплейса с кодом не 2xx.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

type Client struct {
	http          *http.Client
	token         string
	baseURL       string
	statisticsURL string
	log           *logrus.Entry
}

func New(token, baseURL, statisticsURL string, log *logrus.Entry) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if statisticsURL == "" {
		statisticsURL = DefaultStatisticsURL
	}
	return &Client{
		http:          &http.Client{Timeout: 30 * time.Second},
		token:         token,
		baseURL:       strings.TrimRight(baseURL, "/"),
		statisticsURL: strings.TrimRight(statisticsURL, "/"),
		log:           log,
	}
}

func (c *Client) do(ctx context.Context, method, base, path string, query url.Values, in, out any) error {
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marketplace: marshal %s: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("marketplace: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("marketplace: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(started).String(),
	}).Debug("marketplace request")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("marketplace: read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("marketplace: decode %s: %w", path, err)
	}
	return nil
}

// CreateSupply создаёт поставку и возвращает её id.
func (c *Client) CreateSupply(ctx context.Context, name string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL, "/api/v3/supplies", nil, map[string]string{"name": name}, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("marketplace: create supply %q: empty id", name)
	}
	return out.ID, nil
}

func (c *Client) AddAssemblyTaskToSupply(ctx context.Context, supplyID string, taskID int64) error {
	path := fmt.Sprintf("/api/v3/supplies/%s/orders/%d", url.PathEscape(supplyID), taskID)
	return c.do(ctx, http.MethodPatch, c.baseURL, path, nil, nil, nil)
}

// Sticker этикетка сборочного задания. File содержит картинку в base64.
type Sticker struct {
	OrderID int64       `json:"orderId"`
	PartA   json.Number `json:"partA"`
	PartB   json.Number `json:"partB"`
	Barcode string      `json:"barcode"`
	File    string      `json:"file"`
}

func (s Sticker) Image() ([]byte, error) {
	img, err := base64.StdEncoding.DecodeString(s.File)
	if err != nil {
		return nil, fmt.Errorf("marketplace: sticker %d: %w", s.OrderID, err)
	}
	return img, nil
}

func (c *Client) GetStickers(ctx context.Context, taskIDs []int64) ([]Sticker, error) {
	q := url.Values{}
	q.Set("type", stickerType)
	q.Set("width", strconv.Itoa(stickerWidth))
	q.Set("height", strconv.Itoa(stickerHeight))

	var out struct {
		Stickers []Sticker `json:"stickers"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL, "/api/v3/orders/stickers", q, map[string]any{"orders": taskIDs}, &out); err != nil {
		return nil, err
	}
	if len(out.Stickers) == 0 {
		c.log.WithField("assembly_task_ids", taskIDs).Warn("marketplace returned no stickers")
	}
	return out.Stickers, nil
}
