package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/wb-materials-bot/internal/domain/materials"
)

const materialsShown = 10

func (b *Bot) showCategories(ctx context.Context, chatID int64, editMsgID *int) {
	cats, err := b.catalog.ListActiveCategories(ctx)
	if err != nil {
		b.log.WithError(err).Error("list categories failed")
		b.send(tgbotapi.NewMessage(chatID, "Ошибка загрузки каталога"))
		return
	}
	if len(cats) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Каталог пока пуст."))
		return
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, c := range cats {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.Name, cbID("cat", c.ID)),
		))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)

	text := "Выберите категорию:"
	if editMsgID != nil {
		b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, *editMsgID, text, kb))
		return
	}
	m := tgbotapi.NewMessage(chatID, text)
	m.ReplyMarkup = kb
	b.send(m)
}

func (b *Bot) showTemplates(ctx context.Context, chatID int64, editMsgID int, categoryID int64) {
	list, err := b.catalog.ListTemplates(ctx, categoryID)
	if err != nil {
		b.log.WithError(err).WithField("category_id", categoryID).Error("list templates failed")
		b.editTextAndClear(chatID, editMsgID, "Ошибка загрузки шаблонов")
		return
	}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, t := range list {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(t.Name, cbID("tpl", t.ID)),
		))
	}
	rows = append(rows, navKeyboard(true, false).InlineKeyboard[0])
	text := "Выберите шаблон:"
	if len(list) == 0 {
		text = "В этой категории пока нет шаблонов."
	}
	b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, editMsgID, text, tgbotapi.NewInlineKeyboardMarkup(rows...)))
}

func (b *Bot) showTemplate(ctx context.Context, chatID int64, templateID int64) {
	t, err := b.catalog.GetTemplate(ctx, templateID)
	if err != nil || t == nil || !t.Active {
		b.send(tgbotapi.NewMessage(chatID, "Шаблон недоступен."))
		return
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Выбрать", cbID("tpl:choose", t.ID)),
		),
		navKeyboard(true, false).InlineKeyboard[0],
	)
	caption := t.Name
	if t.Description != "" {
		caption += "\n\n" + t.Description
	}
	if t.Photo != "" {
		b.sendMedia(chatID, "photo", t.Photo, caption, kb)
		return
	}
	m := tgbotapi.NewMessage(chatID, caption)
	m.ReplyMarkup = kb
	b.send(m)
}

func (b *Bot) handleCatalogCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID
	mid := cb.Message.MessageID

	switch {
	case data == "cat:list":
		if cb.Message.Text == "" {
			// карточка с фото, текст не отредактировать
			b.clearMarkup(chatID, mid)
			b.showCategories(ctx, chatID, nil)
		} else {
			b.showCategories(ctx, chatID, &mid)
		}
	case strings.HasPrefix(data, "cat:"):
		id, ok := parseCbID(data)
		if !ok {
			break
		}
		b.showTemplates(ctx, chatID, mid, id)
	case strings.HasPrefix(data, "tpl:choose:"):
		id, ok := parseCbID(data)
		if !ok {
			break
		}
		b.clearMarkup(chatID, mid)
		reply, err := b.forms.Start(ctx, chatID, id)
		if err != nil {
			b.formError(chatID, err)
			break
		}
		b.renderForm(chatID, reply)
	case strings.HasPrefix(data, "tpl:"):
		id, ok := parseCbID(data)
		if !ok {
			break
		}
		b.showTemplate(ctx, chatID, id)
	}
	_ = b.answerCallback(cb, "", false)
}

var materialStatusText = map[materials.Status]string{
	materials.StatusSaved:     "сохранён",
	materials.StatusSearching: "ищем заказ",
	materials.StatusLinked:    "привязан к заказу",
	materials.StatusSupport:   "нужна помощь менеджера",
}

func (b *Bot) showMaterials(ctx context.Context, chatID int64) {
	list, err := b.materials.ListByUser(ctx, chatID, materialsShown)
	if err != nil {
		b.log.WithError(err).WithField("chat_id", chatID).Error("list materials failed")
		b.send(tgbotapi.NewMessage(chatID, "Ошибка загрузки материалов"))
		return
	}
	if len(list) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "У вас пока нет материалов. Выберите шаблон в каталоге."))
		return
	}
	for _, m := range list {
		text := fmt.Sprintf("Материал #%d от %s: %s", m.ID, m.CreatedAt.Format("02.01.2006"), materialStatusText[m.Status])
		msg := tgbotapi.NewMessage(chatID, text)
		if m.Status == materials.StatusSaved {
			msg.ReplyMarkup = orderPlacedKeyboard(m.ID)
		}
		b.send(msg)
	}
}
