package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal_bot/internal/models"
	health "signal_bot/internal/modules/health/service"
)

type fakeBot struct {
	mu   sync.Mutex
	sent []tgbot.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbot.Chattable) (tgbot.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbot.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbot.Message{MessageID: len(f.sent)}, f.err
}

func (f *fakeBot) GetUpdatesChan(tgbot.UpdateConfig) tgbot.UpdatesChannel {
	return make(chan tgbot.Update)
}

func (f *fakeBot) StopReceivingUpdates() {}

type fakeHistory struct {
	sigs []models.ValidatedSignal
}

func (h fakeHistory) Latest(context.Context, int) ([]models.ValidatedSignal, error) {
	return h.sigs, nil
}

func command(chatID int64, text string) tgbot.Update {
	return tgbot.Update{Message: &tgbot.Message{
		Text:     text,
		Chat:     &tgbot.Chat{ID: chatID},
		Entities: []tgbot.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func testSignal() models.ValidatedSignal {
	return models.ValidatedSignal{
		CandidateSignal: models.CandidateSignal{
			Direction:  models.DirectionLong,
			Strategy:   "fib_retest",
			Entry:      2000,
			StopLoss:   1980,
			TakeProfit: 2050,
			Confidence: 0.8,
			Rationale:  "retest of 0.618_level",
			CandleTime: time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC),
		},
		ID:         "abc",
		Symbol:     "XAUUSD",
		Timeframe:  "1h",
		RiskPips:   200,
		RewardPips: 500,
		RR:         2.5,
	}
}

func TestReceiveSendsSignalCard(t *testing.T) {
	bot := &fakeBot{}
	tg := newTelegram(bot, 42, nil, nil)

	if err := tg.Receive(context.Background(), testSignal()); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent = %d", len(bot.sent))
	}
	m := bot.sent[0]
	if m.ChatID != 42 || m.ParseMode != tgbot.ModeMarkdown {
		t.Fatalf("unexpected message config: %+v", m.BaseChat)
	}
	for _, want := range []string{"XAUUSD LONG", "2000.00", "1980.00", "2050.00", "1:2.50", "★★★★☆", `0.618\_level`} {
		if !strings.Contains(m.Text, want) {
			t.Fatalf("card misses %q:\n%s", want, m.Text)
		}
	}
}

func TestReceiveReturnsSendError(t *testing.T) {
	tg := newTelegram(&fakeBot{err: errors.New("429")}, 42, nil, nil)
	if err := tg.Receive(context.Background(), testSignal()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCommands(t *testing.T) {
	state := health.NewState()
	state.SetReady(true)
	state.SetWorker(health.WorkerStatus{Timeframe: "15m", State: "waiting", LastPrice: 2001.5})

	bot := &fakeBot{}
	tg := newTelegram(bot, 42, state, fakeHistory{sigs: []models.ValidatedSignal{testSignal()}})

	tg.handleUpdate(context.Background(), command(42, "/status"))
	tg.handleUpdate(context.Background(), command(42, "/last"))
	tg.handleUpdate(context.Background(), command(7, "/status"))
	tg.handleUpdate(context.Background(), command(42, "/unknown"))

	if len(bot.sent) != 2 {
		t.Fatalf("replies = %d, want 2", len(bot.sent))
	}
	if !strings.Contains(bot.sent[0].Text, "15m") || !strings.Contains(bot.sent[0].Text, "2001.50") {
		t.Fatalf("status reply:\n%s", bot.sent[0].Text)
	}
	if !strings.Contains(bot.sent[1].Text, "fib_retest") {
		t.Fatalf("last reply:\n%s", bot.sent[1].Text)
	}
}

func TestLastWithoutHistory(t *testing.T) {
	bot := &fakeBot{}
	tg := newTelegram(bot, 42, nil, nil)
	tg.handleUpdate(context.Background(), command(42, "/last"))
	if len(bot.sent) != 1 || !strings.Contains(bot.sent[0].Text, "выключена") {
		t.Fatalf("unexpected reply: %+v", bot.sent)
	}
}

func TestSendServiceSwallowsErrors(t *testing.T) {
	bot := &fakeBot{}
	tg := newTelegram(bot, 42, health.NewState(), nil)

	tg.SendService(context.Background(), "warmup done")
	bot.err = errors.New("Too Many Requests")
	tg.SendService(context.Background(), "second")

	if len(bot.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(bot.sent))
	}
	if bot.sent[0].ChatID != 42 || bot.sent[0].Text != "warmup done" {
		t.Fatalf("unexpected message: %+v", bot.sent[0])
	}
}
