package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Spok95/wb-materials-bot/internal/collector"
	"github.com/Spok95/wb-materials-bot/internal/dialog"
	"github.com/Spok95/wb-materials-bot/internal/domain/catalog"
	"github.com/Spok95/wb-materials-bot/internal/domain/materials"
	"github.com/Spok95/wb-materials-bot/internal/domain/users"
	"github.com/Spok95/wb-materials-bot/internal/intake"
	"github.com/Spok95/wb-materials-bot/internal/operator"
)

type Deps struct {
	API       *tgbotapi.BotAPI
	Users     *users.Repo
	States    *dialog.Repo
	Catalog   *catalog.Repo
	Materials *materials.Repo
	Forms     *collector.Service
	Intake    *intake.Service
	Operator  *operator.Service
}

type Bot struct {
	api        *tgbotapi.BotAPI
	log        *logrus.Entry
	users      *users.Repo
	states     *dialog.Repo
	catalog    *catalog.Repo
	materials  *materials.Repo
	forms      *collector.Service
	intake     *intake.Service
	operator   *operator.Service
	adminChat  int64
	supportURL string
}

func New(d Deps, adminChatID int64, supportURL string, log *logrus.Entry) *Bot {
	return &Bot{
		api: d.API, log: log, users: d.Users, states: d.States,
		catalog: d.Catalog, materials: d.Materials,
		forms: d.Forms, intake: d.Intake, operator: d.Operator,
		adminChat: adminChatID, supportURL: supportURL,
	}
}

func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			if upd.Message != nil {
				b.onMessage(ctx, upd)
			} else if upd.CallbackQuery != nil {
				b.onCallback(ctx, upd)
			}
		}
	}
}

func (b *Bot) onMessage(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleStateMessage(ctx, msg)
}

func (b *Bot) onCallback(ctx context.Context, upd tgbotapi.Update) {
	b.handleCallback(ctx, upd.CallbackQuery)
}

// isOperatorChat команды оператора принимаются только из чата операторов.
func (b *Bot) isOperatorChat(chatID int64) bool {
	return b.adminChat != 0 && chatID == b.adminChat
}
