package jobs

import (
	"bytes"
	"fmt"
	"path"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Очереди.
const (
	QueueProcessingSupply = "processing_supply"
	QueueGenerateImage    = "generate_image"
	QueueForwardVideo     = "forward_video"
	QueueGenerateVideo    = "generate_video"
)

// Queues все очереди, объявляются при подключении.
var Queues = []string{QueueProcessingSupply, QueueGenerateImage, QueueForwardVideo, QueueGenerateVideo}

type ProcessSupply struct {
	AssemblyTaskID int64 `json:"assembly_task_id"`
}

const (
	DeliveryTelegram = "telegram"
	DeliveryYaDisk   = "ya_disk"

	ImagePNG = "png"
	ImagePDF = "pdf"

	PreviewDPI = 200
)

type Delivery struct {
	Method          string `json:"method"`
	ChatID          int64  `json:"chat_id,omitempty"`
	Path            string `json:"path,omitempty"`
	AssemblyTask    int64  `json:"assembly_task,omitempty"`
	SupplierArticle string `json:"supplier_article,omitempty"`
}

// GenerateImage задание на рендер макета: превью в чат или PDF на диск.
type GenerateImage struct {
	Type       string         `json:"type"`
	Delivery   Delivery       `json:"delivery"`
	OrderData  map[string]any `json:"order_data"`
	TemplateID int64          `json:"template_id"`
	Filename   string         `json:"filename,omitempty"`
	DPI        int            `json:"dpi,omitempty"`
}

func Preview(chatID, templateID int64, data map[string]any) GenerateImage {
	return GenerateImage{
		Type:       ImagePNG,
		Delivery:   Delivery{Method: DeliveryTelegram, ChatID: chatID},
		OrderData:  data,
		TemplateID: templateID,
		DPI:        PreviewDPI,
	}
}

type ForwardVideo struct {
	OrderID int64  `json:"order_id"` // номер сборочного задания
	FileID  string `json:"file_id"`
}

// LayoutFilename имя файла макета без расширения.
func LayoutFilename(partB, supplierArticle string, taskID int64) string {
	return fmt.Sprintf("%s-%s-%d", partB, supplierArticle, taskID)
}

// PathData поля шаблона пути выгрузки.
type PathData struct {
	CategoryFolder string
	OrderDate      string // 2006-01-02
	AssemblyTaskID int64
	SupplyName     string
	Year           string
	Month          string
	Day            string
}

func NewPathData(folder string, orderDate time.Time, taskID int64, supplyName string, now time.Time) PathData {
	return PathData{
		CategoryFolder: folder,
		OrderDate:      orderDate.Format("2006-01-02"),
		AssemblyTaskID: taskID,
		SupplyName:     supplyName,
		Year:           strconv.Itoa(now.Year()),
		Month:          fmt.Sprintf("%02d", int(now.Month())),
		Day:            fmt.Sprintf("%02d", now.Day()),
	}
}

const DefaultOutputPath = "{{.CategoryFolder}}/{{.SupplyName}}/{{.AssemblyTaskID}}/"

// RenderOutputPath собирает папку на диске. Результат всегда оканчивается на "/".
func RenderOutputPath(tmpl string, d PathData) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultOutputPath
	}
	t, err := template.New("output_path").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("jobs: parse output path: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("jobs: render output path: %w", err)
	}
	out := path.Clean(buf.String())
	if out == "." || out == "/" {
		return "", fmt.Errorf("jobs: output path %q renders empty", tmpl)
	}
	return out + "/", nil
}
