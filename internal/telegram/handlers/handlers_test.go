package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"robogarage/internal/garage"
	"robogarage/internal/identity"
	"robogarage/internal/models"
)

const testChatID = 42

type fakeGarage struct {
	slots      []*garage.Slot
	refreshErr error
	refreshes  int
}

func (f *fakeGarage) CurrentSlot() (*garage.Slot, bool) {
	if len(f.slots) == 0 {
		return nil, false
	}

	return f.slots[len(f.slots)-1], true
}

func (f *fakeGarage) Slots() []*garage.Slot {
	return f.slots
}

func (f *fakeGarage) Refresh(ctx context.Context) error {
	f.refreshes++
	return f.refreshErr
}

type fakeLogs struct {
	logs []models.ActivityLog
}

func (f *fakeLogs) GetLogs(ctx context.Context, hashID string, limit int) ([]models.ActivityLog, error) {
	if len(f.logs) > limit {
		return f.logs[:limit], nil
	}

	return f.logs, nil
}

type fakeSender struct {
	chats    []int64
	messages []string
	photos   []string
}

func (f *fakeSender) SendPhoto(chatID int64, name string, data []byte, caption string) error {
	f.chats = append(f.chats, chatID)
	f.photos = append(f.photos, name+"|"+caption)

	return nil
}

type fakeAvatars struct {
	err   error
	sizes []identity.AvatarSize
}

func (f *fakeAvatars) Avatar(ctx context.Context, hashID string, size identity.AvatarSize) ([]byte, error) {
	f.sizes = append(f.sizes, size)
	if f.err != nil {
		return nil, f.err
	}

	return []byte("\x89PNG"), nil
}

func (f *fakeSender) SendMessage(chatID int64, text string) error {
	f.chats = append(f.chats, chatID)
	f.messages = append(f.messages, text)

	return nil
}

func command(chatID int64, text string) tgbotapi.Update {
	length := len(text)
	if i := strings.IndexByte(text, ' '); i > 0 {
		length = i
	}

	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text:     text,
			Chat:     &tgbotapi.Chat{ID: chatID},
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}},
		},
	}
}

func newTestHandler(g *fakeGarage, logs *fakeLogs) (*Handler, *fakeSender) {
	sender := &fakeSender{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(g, logs, &fakeAvatars{}, sender, testChatID, logger), sender
}

func newTestSlot(aliases ...string) *garage.Slot {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return garage.NewSlot("T1", aliases, models.KeyPair{}, nil, logger, nil)
}

func TestStatusEmptyGarage(t *testing.T) {
	h, sender := newTestHandler(&fakeGarage{}, &fakeLogs{})

	h.HandleUpdate(command(testChatID, "/status"))

	require.Equal(t, []int64{testChatID}, sender.chats)
	require.Equal(t, "📝 Гараж пуст", sender.messages[0])
}

func TestStatusWithOrders(t *testing.T) {
	slot := newTestSlot("c1", "c2")

	robot := models.NewRobot("c2", models.Credentials{Token: "T1"})
	robot.LastOrderID = "o1"
	robot.ActiveOrderID = "o2"
	slot.UpdateSlotFromRobot(robot)

	h, sender := newTestHandler(&fakeGarage{slots: []*garage.Slot{slot}}, &fakeLogs{})

	h.HandleUpdate(command(testChatID, "/status"))
	require.Contains(t, sender.messages[0], "o2 @ c2")
	require.Contains(t, sender.messages[0], "o1 @ c2")

	h.HandleUpdate(command(testChatID, "/robots"))
	require.Contains(t, sender.messages[1], "c2 👑")
	require.Contains(t, sender.messages[1], "активный: o2")
}

func TestUnknownChatIgnored(t *testing.T) {
	h, sender := newTestHandler(&fakeGarage{}, &fakeLogs{})

	h.HandleUpdate(command(7, "/status"))
	h.HandleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: testChatID}}})

	require.Empty(t, sender.messages)
}

func TestRefresh(t *testing.T) {
	g := &fakeGarage{slots: []*garage.Slot{newTestSlot("c1")}}
	h, sender := newTestHandler(g, &fakeLogs{})

	h.HandleUpdate(command(testChatID, "/refresh"))
	require.Equal(t, 1, g.refreshes)
	require.True(t, strings.HasPrefix(sender.messages[0], "✅ Слот обновлен"))

	g.refreshErr = errors.New("c1: timeout")
	h.HandleUpdate(command(testChatID, "/refresh"))
	require.Contains(t, sender.messages[1], "c1: timeout")
}

func TestLogsLimit(t *testing.T) {
	logs := &fakeLogs{}
	for i := 0; i < 5; i++ {
		logs.logs = append(logs.logs, models.ActivityLog{
			Level:     "warn",
			Action:    "order_status",
			Message:   "order o1 on c1: in dispute",
			CreatedAt: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
		})
	}

	h, sender := newTestHandler(&fakeGarage{slots: []*garage.Slot{newTestSlot("c1")}}, logs)

	h.HandleUpdate(command(testChatID, "/logs 2"))
	require.Contains(t, sender.messages[0], "последние 2")
	require.Contains(t, sender.messages[0], "⚠️ [order_status]")
	require.Contains(t, sender.messages[0], "16.10 12:00")
}

func TestUnknownCommand(t *testing.T) {
	h, sender := newTestHandler(&fakeGarage{}, &fakeLogs{})

	h.HandleUpdate(command(testChatID, "/dance"))
	require.Equal(t, "❌ Неизвестная команда. /help", sender.messages[0])
}

func TestAvatarSendsPhoto(t *testing.T) {
	slot := newTestSlot("c1")
	h, sender := newTestHandler(&fakeGarage{slots: []*garage.Slot{slot}}, &fakeLogs{})

	h.HandleUpdate(command(testChatID, "/avatar"))

	require.Empty(t, sender.messages)
	require.Equal(t, []string{slot.HashID() + ".png|" + slot.HashID()[:8]}, sender.photos)
}

func TestAvatarRenderFailure(t *testing.T) {
	slot := newTestSlot("c1")
	sender := &fakeSender{}
	avatars := &fakeAvatars{err: errors.New("disk full")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(&fakeGarage{slots: []*garage.Slot{slot}}, &fakeLogs{}, avatars, sender, testChatID, logger)

	h.HandleUpdate(command(testChatID, "/avatar"))

	require.Equal(t, []identity.AvatarSize{identity.AvatarLarge}, avatars.sizes)
	require.Len(t, sender.messages, 1)
	require.Contains(t, sender.messages[0], "disk full")
	require.Empty(t, sender.photos)
}
