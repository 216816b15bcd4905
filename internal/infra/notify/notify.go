package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Thread тема в чате операторов.
type Thread int

const (
	ThreadWB    Thread = iota // заказы и поставки WB
	ThreadMedia               // видео и медиафайлы
)

type Button struct {
	Text string
	URL  string
}

// Sender часть *tgbotapi.BotAPI, нужная уведомлениям.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

type Telegram struct {
	api       Sender
	adminChat int64
	threads   map[Thread]int
}

func NewTelegram(api Sender, adminChat int64, wbThread, mediaThread int) *Telegram {
	return &Telegram{
		api:       api,
		adminChat: adminChat,
		threads:   map[Thread]int{ThreadWB: wbThread, ThreadMedia: mediaThread},
	}
}

// User сообщение клиенту, кнопки-ссылки по одной в ряд.
func (t *Telegram) User(_ context.Context, chatID int64, text string, buttons ...Button) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(buttons) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
		for _, b := range buttons {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL)))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("notify: user %d: %w", chatID, err)
	}
	return nil
}

// Operator сообщение в чат операторов. Без настроенной темы уходит в общий чат.
func (t *Telegram) Operator(_ context.Context, thread Thread, text string) error {
	if t.adminChat == 0 {
		return fmt.Errorf("notify: admin chat is not configured")
	}
	threadID := t.threads[thread]
	if threadID == 0 {
		if _, err := t.api.Send(tgbotapi.NewMessage(t.adminChat, text)); err != nil {
			return fmt.Errorf("notify: operator: %w", err)
		}
		return nil
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", t.adminChat)
	params.AddNonEmpty("text", text)
	params.AddNonZero("message_thread_id", threadID)
	resp, err := t.api.MakeRequest("sendMessage", params)
	if err != nil {
		return fmt.Errorf("notify: operator thread %d: %w", threadID, err)
	}
	if !resp.Ok {
		return fmt.Errorf("notify: operator thread %d: %s", threadID, resp.Description)
	}
	return nil
}
