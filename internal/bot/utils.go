package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/wb-materials-bot/internal/domain"
)

/*** HELPERS ***/

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.WithError(err).Error("send failed")
	}
}

func (b *Bot) answerCallback(cb *tgbotapi.CallbackQuery, text string, alert bool) error {
	resp := tgbotapi.NewCallback(cb.ID, text)
	resp.ShowAlert = alert
	_, err := b.api.Request(resp)
	return err
}

func (b *Bot) editTextAndClear(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(
		chatID, messageID, text,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}},
	)
	b.send(edit)
}

// clearMarkup убрать inline-кнопки у сообщения, текст оставляем как есть
func (b *Bot) clearMarkup(chatID int64, messageID int) {
	rm := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, rm))
}

// sendMedia сообщение с файлом по file_id. Неизвестный тип уходит текстом.
func (b *Bot) sendMedia(chatID int64, kind, fileID, caption string, markup any) {
	var c tgbotapi.Chattable
	switch kind {
	case "photo":
		p := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
		p.Caption = caption
		p.ReplyMarkup = markup
		c = p
	case "video":
		v := tgbotapi.NewVideo(chatID, tgbotapi.FileID(fileID))
		v.Caption = caption
		v.ReplyMarkup = markup
		c = v
	case "document":
		d := tgbotapi.NewDocument(chatID, tgbotapi.FileID(fileID))
		d.Caption = caption
		d.ReplyMarkup = markup
		c = d
	default:
		m := tgbotapi.NewMessage(chatID, caption)
		m.ReplyMarkup = markup
		c = m
	}
	b.send(c)
}

func cbID(prefix string, id int64) string {
	return prefix + ":" + strconv.FormatInt(id, 10)
}

// parseCbID последний сегмент callback data как число.
func parseCbID(data string) (int64, bool) {
	i := strings.LastIndexByte(data, ':')
	if i < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(data[i+1:], 10, 64)
	return id, err == nil
}

// conflictText текст для пользователя по конфликту предметной области.
func conflictText(err error) string {
	switch {
	case errors.Is(err, domain.ErrActiveSearchExists):
		return "По этому материалу уже идёт поиск заказа."
	case errors.Is(err, domain.ErrMaterialAlreadyLinked):
		return "Материал уже привязан к заказу."
	case errors.Is(err, domain.ErrOrderAlreadyLinked):
		return "Заказ уже привязан к другому материалу."
	case errors.Is(err, domain.ErrArticleMismatch):
		return "Артикул заказа не относится к шаблону материала."
	case errors.Is(err, domain.ErrMaterialNotFound):
		return "Материал не найден."
	case errors.Is(err, domain.ErrAssemblyTaskNotFound):
		return "Сборочное задание не найдено."
	case errors.Is(err, domain.ErrSupplyNotFound):
		return "Поставка не найдена."
	case errors.Is(err, domain.ErrSupplyClosed):
		return "Поставка уже закрыта."
	case errors.Is(err, domain.ErrAlreadyBatched):
		return "Сборочное задание уже в поставке."
	}
	return fmt.Sprintf("Не удалось выполнить: %v", err)
}
