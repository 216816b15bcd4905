package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/wb-materials-bot/internal/dialog"
	"github.com/Spok95/wb-materials-bot/internal/domain/users"
)

const (
	btnCatalog   = "Каталог"
	btnMaterials = "Мои материалы"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	if b.isOperatorChat(chatID) {
		switch msg.Command() {
		case "supplies":
			b.showActiveSupplies(ctx, chatID, nil)
		case "supply_export":
			b.exportSupply(ctx, chatID, args)
		case "bind":
			b.bindMaterial(ctx, chatID, args)
		case "help":
			b.send(tgbotapi.NewMessage(chatID, operatorHelp))
		}
		return
	}

	switch msg.Command() {
	case "start":
		if msg.From != nil {
			tg := users.Telegram{ID: msg.From.ID, Username: msg.From.UserName, FirstName: msg.From.FirstName, LastName: msg.From.LastName}
			if _, err := b.users.UpsertFromTelegram(ctx, tg, users.RoleCustomer); err != nil {
				b.log.WithError(err).WithField("chat_id", chatID).Error("upsert user failed")
				b.send(tgbotapi.NewMessage(chatID, "Ошибка: не удалось сохранить профиль"))
				return
			}
		}
		_ = b.states.Reset(ctx, chatID)
		m := tgbotapi.NewMessage(chatID, "Здравствуйте! Выберите шаблон в каталоге, заполните анкету, а после оформления заказа на WB нажмите «Заказ оформлен» у материала.")
		m.ReplyMarkup = mainReplyKeyboard()
		b.send(m)
	case "catalog":
		b.showCategories(ctx, chatID, nil)
	case "materials":
		b.showMaterials(ctx, chatID)
	case "cancel":
		_ = b.states.Reset(ctx, chatID)
		b.send(tgbotapi.NewMessage(chatID, "Операция отменена."))
	case "help":
		m := tgbotapi.NewMessage(chatID,
			"Команды:\n/start — начать работу\n/catalog — каталог шаблонов\n/materials — мои материалы\n/cancel — отменить текущее действие")
		if kb := supportKeyboard(b.supportURL); kb != nil {
			m.ReplyMarkup = kb
		}
		b.send(m)
	default:
		b.send(tgbotapi.NewMessage(chatID, "Не знаю такую команду. Наберите /help"))
	}
}

func (b *Bot) handleStateMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if b.isOperatorChat(chatID) {
		return
	}

	switch msg.Text {
	case btnCatalog:
		b.showCategories(ctx, chatID, nil)
		return
	case btnMaterials:
		b.showMaterials(ctx, chatID)
		return
	}

	st, err := b.states.Get(ctx, chatID)
	if err != nil {
		b.log.WithError(err).WithField("chat_id", chatID).Error("load dialog failed")
		b.send(tgbotapi.NewMessage(chatID, "Ошибка, попробуйте ещё раз."))
		return
	}

	switch st.State {
	case dialog.StateForm:
		b.handleFormMessage(ctx, msg)
	case dialog.StateSearchDatetime:
		b.handleSearchDatetime(ctx, chatID, msg.Text)
	case dialog.StateSearchReceipt:
		b.handleSearchReceipt(ctx, chatID, msg.Text)
	case dialog.StateSearchMethod, dialog.StateSearchCountry, dialog.StateSearchSenderCity, dialog.StateSearchRecipientCity:
		b.send(tgbotapi.NewMessage(chatID, "Выберите вариант кнопкой выше."))
	default:
		m := tgbotapi.NewMessage(chatID, "Выберите действие в меню.")
		m.ReplyMarkup = mainReplyKeyboard()
		b.send(m)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	data := cb.Data
	chatID := cb.Message.Chat.ID
	mid := cb.Message.MessageID

	// Общая навигация
	if data == "nav:cancel" {
		_ = b.states.Reset(ctx, chatID)
		b.editTextAndClear(chatID, mid, "Операция отменена.")
		_ = b.answerCallback(cb, "Отменено", false)
		return
	}

	switch {
	case strings.HasPrefix(data, "sup:"):
		if !b.isOperatorChat(chatID) {
			_ = b.answerCallback(cb, "Доступ запрещён", true)
			return
		}
		b.handleSupplyCallback(ctx, cb)
	case strings.HasPrefix(data, "cat:"), strings.HasPrefix(data, "tpl:"):
		b.handleCatalogCallback(ctx, cb)
	case strings.HasPrefix(data, "form:"):
		b.handleFormCallback(ctx, cb)
	case strings.HasPrefix(data, "srch:"):
		b.handleSearchCallback(ctx, cb)
	default:
		_ = b.answerCallback(cb, "Кнопка устарела", false)
	}
}
