package bot

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/Spok95/wb-materials-bot/internal/domain"
	"github.com/Spok95/wb-materials-bot/internal/domain/geo"
	"github.com/Spok95/wb-materials-bot/internal/intake"
)

const (
	datetimePrompt = "Введите дату и время заказа в формате ДД.ММ.ГГГГ ЧЧ:ММ, например 02.03.2025 14:30."
	receiptPrompt  = "Введите номер чека из приложения WB."
)

func (b *Bot) handleSearchCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	data := cb.Data
	var (
		p   intake.Prompt
		err error
	)
	switch {
	case strings.HasPrefix(data, "srch:start:"):
		id, ok := parseCbID(data)
		if !ok {
			break
		}
		p, err = b.intake.Begin(ctx, chatID, id)
	case data == "srch:dt":
		p, err = b.intake.ByDatetime(ctx, chatID)
	case data == "srch:rc":
		p, err = b.intake.ByReceipt(ctx, chatID)
	case strings.HasPrefix(data, "srch:country:"):
		id, _ := parseCbID(data)
		p, err = b.intake.Country(ctx, chatID, id)
	case strings.HasPrefix(data, "srch:from:"):
		id, _ := parseCbID(data)
		p, err = b.intake.SenderCity(ctx, chatID, id)
	case strings.HasPrefix(data, "srch:to:"):
		id, _ := parseCbID(data)
		p, err = b.intake.RecipientCity(ctx, chatID, id)
	}
	_ = b.answerCallback(cb, "", false)
	if p.Stage == 0 && err == nil {
		return
	}
	b.clearMarkup(chatID, cb.Message.MessageID)
	b.renderSearch(chatID, p, err)
}

func (b *Bot) handleSearchDatetime(ctx context.Context, chatID int64, text string) {
	p, err := b.intake.Datetime(ctx, chatID, text)
	b.renderSearch(chatID, p, err)
}

func (b *Bot) handleSearchReceipt(ctx context.Context, chatID int64, text string) {
	p, err := b.intake.Receipt(ctx, chatID, text)
	b.renderSearch(chatID, p, err)
}

func (b *Bot) renderSearch(chatID int64, p intake.Prompt, err error) {
	if err != nil {
		switch {
		case domain.IsConflict(err):
			b.send(tgbotapi.NewMessage(chatID, conflictText(err)))
		case errors.Is(err, intake.ErrNoIntake):
			b.send(tgbotapi.NewMessage(chatID, "Поиск не начат. Откройте «Мои материалы» и нажмите «Заказ оформлен»."))
		default:
			b.log.WithError(err).WithField("chat_id", chatID).Error("search intake failed")
			b.send(tgbotapi.NewMessage(chatID, "Ошибка, попробуйте ещё раз."))
		}
		return
	}

	switch p.Stage {
	case intake.StageMethod:
		m := tgbotapi.NewMessage(chatID, "Как найти ваш заказ?")
		m.ReplyMarkup = searchMethodKeyboard()
		b.send(m)
	case intake.StageDatetime:
		text := datetimePrompt
		if p.Retry {
			text = "Не удалось распознать дату. " + datetimePrompt
		}
		b.send(tgbotapi.NewMessage(chatID, text))
	case intake.StageReceipt:
		text := receiptPrompt
		switch {
		case p.Fallback:
			text = "Дату так и не удалось распознать. Попробуем по номеру чека. " + receiptPrompt
		case p.Retry:
			text = "Номер чека не распознан. " + receiptPrompt
		}
		b.send(tgbotapi.NewMessage(chatID, text))
	case intake.StageCountry:
		b.sendChoice(chatID, "Из какой страны сделан заказ?", countryRows(p.Countries))
	case intake.StageSenderCity:
		b.sendChoice(chatID, "Город, из которого оформлен заказ (ваш часовой пояс):", cityRows("srch:from", p.Cities))
	case intake.StageRecipientCity:
		b.sendChoice(chatID, "Город получения заказа:", cityRows("srch:to", p.Cities))
	case intake.StageCreated:
		b.send(tgbotapi.NewMessage(chatID, "Ищем ваш заказ. Это может занять до нескольких часов, мы пришлём сообщение."))
	}
}

func (b *Bot) sendChoice(chatID int64, text string, rows [][]tgbotapi.InlineKeyboardButton) {
	rows = append(rows, navKeyboard(false, true).InlineKeyboard[0])
	m := tgbotapi.NewMessage(chatID, text)
	m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	b.send(m)
}

func countryRows(list []geo.Country) [][]tgbotapi.InlineKeyboardButton {
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, c := range list {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.Name, cbID("srch:country", c.ID)),
		))
	}
	return rows
}

func cityRows(prefix string, list []geo.City) [][]tgbotapi.InlineKeyboardButton {
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, pair := range lo.Chunk(list, 2) {
		rows = append(rows, lo.Map(pair, func(c geo.City, _ int) tgbotapi.InlineKeyboardButton {
			return tgbotapi.NewInlineKeyboardButtonData(c.Name, cbID(prefix, c.ID))
		}))
	}
	return rows
}
