package catalog

import (
	"time"

	"github.com/Spok95/wb-materials-bot/internal/form"
)

const UnsortedFolder = "unsorted"

type Category struct {
	ID         int64
	Name       string
	FolderName string
	Active     bool
	CreatedAt  time.Time
}

// Folder папка категории на диске.
func (c Category) Folder() string {
	if c.FolderName == "" {
		return UnsortedFolder
	}
	return c.FolderName
}

// Settings настройки выгрузки макетов категории.
type Settings struct {
	CategoryID   int64
	SaveAsFormat string // пусто: стикер не сохраняется
	OutputPath   string // text/template, см. jobs.RenderOutputPath
}

type Template struct {
	ID          int64
	CategoryID  int64
	Name        string
	Description string
	Photo       string // telegram file_id
	Schema      form.Schema
	Active      bool
	CreatedAt   time.Time
}
