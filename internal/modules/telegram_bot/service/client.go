package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal_bot/internal/models"
	health "signal_bot/internal/modules/health/service"
	"signal_bot/pkg/logger"
)

// botAPI: то, что нужно от *tgbot.BotAPI.
type botAPI interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

// History отдаёт последние сигналы для команды /last.
type History interface {
	Latest(ctx context.Context, limit int) ([]models.ValidatedSignal, error)
}

// Telegram: синк уведомлений в один чат плюс пара read-only команд.
type Telegram struct {
	bot     botAPI
	chatID  int64
	state   *health.State
	history History
}

func NewTelegram(token string, chatID int64, state *health.State, history History) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, errors.New("telegram token and chat_id are required")
	}
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newTelegram(b, chatID, state, history), nil
}

func newTelegram(b botAPI, chatID int64, state *health.State, history History) *Telegram {
	return &Telegram{
		bot:     b,
		chatID:  chatID,
		state:   state,
		history: history,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Receive отправляет карточку сигнала. Ретраев нет, ошибку увидит дедупликатор.
func (t *Telegram) Receive(ctx context.Context, sig models.ValidatedSignal) error {
	msg := tgbot.NewMessage(t.chatID, formatSignal(sig))
	msg.ParseMode = tgbot.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (t *Telegram) Send(ctx context.Context, chatID int64, msg string) (tgbot.Message, error) {
	return t.bot.Send(tgbot.NewMessage(chatID, msg))
}

func (t *Telegram) SendF(ctx context.Context, chatID int64, format string, args ...any) (tgbot.Message, error) {
	return t.Send(ctx, chatID, fmt.Sprintf(format, args...))
}

// SendService: служебное сообщение в рабочий чат, ошибка только логируется.
func (t *Telegram) SendService(ctx context.Context, msg string) {
	if _, err := t.Send(ctx, t.chatID, msg); err != nil {
		logger.Warn("[TG] service message failed: %v", err)
	}
}

// Start: long-polling команд, до отмены ctx.
func (t *Telegram) Start(ctx context.Context) {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, upd)
			}
		}
	}()
}

func (t *Telegram) Stop() {
	t.bot.StopReceivingUpdates()
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbot.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	// чужие чаты игнорируем
	if msg.Chat.ID != t.chatID {
		return
	}

	var text string
	switch msg.Command() {
	case "start", "help":
		text = helpText
	case "status":
		text = formatStatus(t.state, time.Now())
	case "last":
		text = t.lastSignals(ctx)
	default:
		return
	}

	reply := tgbot.NewMessage(t.chatID, text)
	reply.ParseMode = tgbot.ModeMarkdown
	if _, err := t.bot.Send(reply); err != nil {
		logger.Error("telegram reply /%s: %v", msg.Command(), err)
	}
}

func (t *Telegram) lastSignals(ctx context.Context) string {
	if t.history == nil {
		return "История сигналов выключена (нет БД)"
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	sigs, err := t.history.Latest(ctx, 5)
	if err != nil {
		return fmt.Sprintf("❗️ Ошибка чтения истории: %v", err)
	}
	return formatLatest(sigs)
}
