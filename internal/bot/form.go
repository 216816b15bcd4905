package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/wb-materials-bot/internal/collector"
	"github.com/Spok95/wb-materials-bot/internal/form"
	"github.com/Spok95/wb-materials-bot/internal/form/validate"
)

func (b *Bot) handleFormMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	var (
		reply collector.Reply
		err   error
	)
	switch {
	case len(msg.Photo) > 0:
		// последний размер самый крупный
		p := msg.Photo[len(msg.Photo)-1]
		reply, err = b.forms.Photos(ctx, chatID, []validate.Image{{FileID: p.FileID, Width: p.Width, Height: p.Height}})
	case msg.Video != nil:
		reply, err = b.forms.Video(ctx, chatID, form.Video{FileID: msg.Video.FileID, SizeBytes: int64(msg.Video.FileSize)})
	case msg.Text != "":
		reply, err = b.forms.Text(ctx, chatID, msg.Text)
	default:
		b.send(tgbotapi.NewMessage(chatID, "Этот тип сообщения не поддерживается."))
		return
	}
	if err != nil {
		b.formError(chatID, err)
		return
	}
	b.renderForm(chatID, reply)
}

func (b *Bot) handleFormCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	data := cb.Data
	var (
		reply collector.Reply
		err   error
	)
	switch {
	case strings.HasPrefix(data, "form:opt:"):
		idx, perr := strconv.Atoi(strings.TrimPrefix(data, "form:opt:"))
		if perr != nil {
			_ = b.answerCallback(cb, "", false)
			return
		}
		value, ok := b.optionValue(ctx, chatID, idx)
		if !ok {
			_ = b.answerCallback(cb, "Кнопка устарела", false)
			return
		}
		reply, err = b.forms.Choose(ctx, chatID, value)
	case data == "form:skip":
		reply, err = b.forms.Skip(ctx, chatID)
	case data == "form:finish":
		reply, err = b.forms.FinishEarly(ctx, chatID)
	case data == "form:confirm":
		reply, err = b.forms.Confirm(ctx, chatID)
	case data == "form:restart":
		reply, err = b.forms.Restart(ctx, chatID)
	default:
		_ = b.answerCallback(cb, "", false)
		return
	}
	_ = b.answerCallback(cb, "", false)
	if err != nil {
		b.formError(chatID, err)
		return
	}
	b.clearMarkup(chatID, cb.Message.MessageID)
	b.renderForm(chatID, reply)
}

// optionValue значение варианта select по номеру кнопки.
func (b *Bot) optionValue(ctx context.Context, chatID int64, idx int) (string, bool) {
	it, err := b.states.Get(ctx, chatID)
	if err != nil || it.Form == nil || it.Form.CurrentStep == nil {
		return "", false
	}
	opts := it.Form.CurrentStep.Options
	if idx < 0 || idx >= len(opts) {
		return "", false
	}
	return opts[idx].Value, true
}

func (b *Bot) formError(chatID int64, err error) {
	if ie, ok := form.AsInputError(err); ok {
		r := ie.Result
		if r.ErrorMediaID != "" {
			b.sendMedia(chatID, r.ErrorMediaType, r.ErrorMediaID, r.ErrorText, nil)
			return
		}
		b.send(tgbotapi.NewMessage(chatID, r.ErrorText))
		return
	}
	switch {
	case form.IsConfigError(err):
		m := tgbotapi.NewMessage(chatID, "Анкета повреждена. Начните заполнение заново.")
		m.ReplyMarkup = restartKeyboard()
		b.send(m)
	case errors.Is(err, collector.ErrPreviewFailed):
		b.send(tgbotapi.NewMessage(chatID, "Не удалось отправить макет на генерацию. Повторите последний шаг чуть позже."))
	case errors.Is(err, collector.ErrNoSession), errors.Is(err, form.ErrFinalized):
		b.send(tgbotapi.NewMessage(chatID, "Анкета не найдена. Выберите шаблон в каталоге."))
	case errors.Is(err, collector.ErrTemplateNotFound):
		b.send(tgbotapi.NewMessage(chatID, "Шаблон недоступен."))
	case errors.Is(err, form.ErrStepRequired):
		b.send(tgbotapi.NewMessage(chatID, "Этот шаг обязательный."))
	default:
		b.log.WithError(err).WithField("chat_id", chatID).Error("form step failed")
		b.send(tgbotapi.NewMessage(chatID, "Ошибка, попробуйте ещё раз."))
	}
}

func (b *Bot) renderForm(chatID int64, r collector.Reply) {
	out := r.Outcome
	for _, rej := range out.Rejected {
		b.send(tgbotapi.NewMessage(chatID, rej.Result.ErrorText))
	}
	if out.Excess > 0 {
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Лишние файлы (%d) не сохранены.", out.Excess)))
	}

	switch out.Kind {
	case form.OutcomePrompt:
		b.sendPrompt(chatID, out)
	case form.OutcomePending:
		text := fmt.Sprintf("Принято %d из %d.", out.Collected, out.Required)
		m := tgbotapi.NewMessage(chatID, text)
		if kb := stepKeyboard(out.Step); kb != nil {
			m.ReplyMarkup = *kb
		}
		b.send(m)
	case form.OutcomeGenerate:
		m := tgbotapi.NewMessage(chatID, "Макет отправлен на генерацию. Проверьте превью и подтвердите его или начните заново.")
		m.ReplyMarkup = confirmLayoutKeyboard()
		b.send(m)
	case form.OutcomeFinalized:
		text := "Материал сохранён! После оформления заказа на WB нажмите «Заказ оформлен»."
		m := tgbotapi.NewMessage(chatID, text)
		if r.Material != nil {
			m.ReplyMarkup = orderPlacedKeyboard(r.Material.ID)
		}
		b.send(m)
	}
}

func (b *Bot) sendPrompt(chatID int64, out form.Outcome) {
	st := out.Step
	text := st.Text
	if text == "" {
		text = defaultPrompt(st)
	}
	text = fmt.Sprintf("Шаг %d из %d\n\n%s", out.StepNumber, out.StepsTotal, text)
	if st.IsMedia() && out.Required > 1 {
		text += fmt.Sprintf("\n\nНужно файлов: %d, уже есть: %d.", out.Required, out.Collected)
	}

	var markup any
	if kb := stepKeyboard(st); kb != nil {
		markup = *kb
	}
	if ex := st.Example; ex != nil && ex.Content != "" {
		b.sendMedia(chatID, ex.Type, ex.Content, text, markup)
		return
	}
	m := tgbotapi.NewMessage(chatID, text)
	m.ReplyMarkup = markup
	b.send(m)
}

func defaultPrompt(st form.Step) string {
	switch st.Type {
	case form.StepText:
		return "Введите текст."
	case form.StepPhoto:
		return "Пришлите фото."
	case form.StepVideo:
		return "Пришлите видео."
	case form.StepMulti:
		return "Пришлите фотографии."
	case form.StepMedia:
		return "Пришлите фото или видео."
	case form.StepSelect:
		return "Выберите вариант."
	}
	return "Продолжите заполнение."
}

// stepKeyboard варианты select, пропуск и досрочное завершение шага.
func stepKeyboard(st form.Step) *tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{}
	if st.Type == form.StepSelect {
		for i, o := range st.Options {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(o.Label, "form:opt:"+strconv.Itoa(i)),
			))
		}
	}
	if st.AllowEarlyFinish && st.IsMedia() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(st.FinishText(), "form:finish"),
		))
	}
	if st.Optional {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏭ Пропустить", "form:skip"),
		))
	}
	if len(rows) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}
