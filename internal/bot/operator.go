package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/wb-materials-bot/internal/domain"
)

const operatorHelp = "Команды оператора:\n" +
	"/supplies — активные поставки\n" +
	"/supply_export <id> — выгрузка поставки в Excel\n" +
	"/bind <material_id> <assembly_task_id> — ручная привязка материала"

func (b *Bot) operatorError(chatID int64, err error) {
	if domain.IsConflict(err) {
		b.send(tgbotapi.NewMessage(chatID, conflictText(err)))
		return
	}
	b.log.WithError(err).Error("operator command failed")
	b.send(tgbotapi.NewMessage(chatID, "Ошибка: "+err.Error()))
}

func (b *Bot) showActiveSupplies(ctx context.Context, chatID int64, editMsgID *int) {
	list, err := b.operator.ActiveSupplies(ctx)
	if err != nil {
		b.operatorError(chatID, err)
		return
	}
	text := "Активных поставок нет."
	rows := [][]tgbotapi.InlineKeyboardButton{}
	if len(list) > 0 {
		var sb strings.Builder
		sb.WriteString("Активные поставки:\n")
		for _, s := range list {
			fmt.Fprintf(&sb, "\n%s (%s): %d шт., id %s", s.Name, s.CategoryName, s.OrderCount, s.ID)
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Закрыть "+s.Name, "sup:close:"+s.ID),
			))
		}
		text = sb.String()
	}

	if editMsgID != nil {
		b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, *editMsgID, text, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}))
		return
	}
	m := tgbotapi.NewMessage(chatID, text)
	if len(rows) > 0 {
		m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	b.send(m)
}

func (b *Bot) handleSupplyCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	if !strings.HasPrefix(cb.Data, "sup:close:") {
		_ = b.answerCallback(cb, "", false)
		return
	}
	id := strings.TrimPrefix(cb.Data, "sup:close:")
	sup, err := b.operator.CloseSupply(ctx, id)
	if err != nil {
		_ = b.answerCallback(cb, conflictText(err), true)
		return
	}
	_ = b.answerCallback(cb, "Поставка "+sup.Name+" закрыта", false)
	mid := cb.Message.MessageID
	b.showActiveSupplies(ctx, chatID, &mid)
}

func (b *Bot) exportSupply(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		b.send(tgbotapi.NewMessage(chatID, "Использование: /supply_export <id поставки>"))
		return
	}
	exp, err := b.operator.ExportSupply(ctx, args[0])
	if err != nil {
		b.operatorError(chatID, err)
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  exp.Filename,
		Bytes: exp.Data,
	})
	doc.Caption = fmt.Sprintf("Поставка «%s»: %d сборочных заданий.", exp.Supply.Name, exp.Rows)
	b.send(doc)
}

func (b *Bot) bindMaterial(ctx context.Context, chatID int64, args []string) {
	if len(args) != 2 {
		b.send(tgbotapi.NewMessage(chatID, "Использование: /bind <material_id> <assembly_task_id>"))
		return
	}
	materialID, err1 := strconv.ParseInt(args[0], 10, 64)
	taskID, err2 := strconv.ParseInt(args[1], 10, 64)
	if err1 != nil || err2 != nil {
		b.send(tgbotapi.NewMessage(chatID, "material_id и assembly_task_id должны быть числами."))
		return
	}
	o, err := b.operator.Bind(ctx, materialID, taskID)
	if err != nil {
		b.operatorError(chatID, err)
		return
	}
	b.send(tgbotapi.NewMessage(chatID,
		fmt.Sprintf("Материал #%d привязан к заказу %s, задание %d отправлено в поставку.", materialID, o.ID, taskID)))
}
