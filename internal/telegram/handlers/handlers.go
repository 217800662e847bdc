package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"robogarage/internal/garage"
	"robogarage/internal/identity"
	"robogarage/internal/models"
)

// Garage - операции гаража, доступные из бота
type Garage interface {
	CurrentSlot() (*garage.Slot, bool)
	Slots() []*garage.Slot
	Refresh(ctx context.Context) error
}

// LogStore читает лог активности
type LogStore interface {
	GetLogs(ctx context.Context, hashID string, limit int) ([]models.ActivityLog, error)
}

// Sender отправляет ответы в чат
type Sender interface {
	SendMessage(chatID int64, text string) error
	SendPhoto(chatID int64, name string, data []byte, caption string) error
}

// Avatars рендерит аватары роботов
type Avatars interface {
	Avatar(ctx context.Context, hashID string, size identity.AvatarSize) ([]byte, error)
}

// Handler обрабатывает команды бота
type Handler struct {
	garage  Garage
	logs    LogStore
	avatars Avatars
	sender  Sender
	chatID  int64
	logger  *slog.Logger
}

// New создает новый обработчик. Отвечает только в чат chatID.
func New(garage Garage, logs LogStore, avatars Avatars, sender Sender, chatID int64, logger *slog.Logger) *Handler {
	return &Handler{
		garage:  garage,
		logs:    logs,
		avatars: avatars,
		sender:  sender,
		chatID:  chatID,
		logger:  logger,
	}
}

// Run обрабатывает обновления до закрытия канала или отмены контекста
func (h *Handler) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}

			h.HandleUpdate(update)
		}
	}
}

// HandleUpdate обрабатывает обновление от Telegram
func (h *Handler) HandleUpdate(update tgbotapi.Update) {
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	chatID := update.Message.Chat.ID
	if chatID != h.chatID {
		h.logger.Warn("Command from unknown chat ignored", slog.Int64("chat_id", chatID))
		return
	}

	// Создаем контекст с таймаутом 15 секунд
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cmd := update.Message.Command()
	args := strings.Fields(update.Message.CommandArguments())

	h.logger.Info("Command received",
		slog.Int64("chat_id", chatID),
		slog.String("command", cmd),
		slog.Any("args", args))

	var response string

	switch cmd {
	case "start", "help":
		response = h.handleHelp()
	case "status":
		response = h.handleStatus()
	case "robots":
		response = h.handleRobots()
	case "slots":
		response = h.handleSlots()
	case "refresh":
		response = h.handleRefresh(ctx)
	case "logs":
		response = h.handleLogs(ctx, args)
	case "avatar":
		if response = h.handleAvatar(ctx, chatID); response == "" {
			return
		}
	default:
		response = "❌ Неизвестная команда. /help"
	}

	if err := h.sender.SendMessage(chatID, response); err != nil {
		h.logger.Error("Failed to send response", slog.Any("error", err))
	}
}

func (h *Handler) handleHelp() string {
	return `🤖 Robot Garage

📋 Слоты:
/status - Текущий слот и ордера
/robots - Роботы по координаторам
/slots - Все слоты гаража
/refresh - Обновить роботов и активный ордер

📈 Информация:
/logs [limit] - Логи активности
/avatar - Аватар текущего робота
/help - Помощь`
}

func (h *Handler) handleStatus() string {
	slot, ok := h.garage.CurrentSlot()
	if !ok {
		return "📝 Гараж пуст"
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("🤖 %s", displayName(slot)))

	if order, ok := slot.ActiveOrder(); ok {
		lines = append(lines, fmt.Sprintf("🟢 Активный: %s @ %s (%s)", order.ID, order.ShortAlias, order.Status))
	} else {
		lines = append(lines, "⚪ Активного ордера нет")
	}

	if order, ok := slot.LastOrder(); ok {
		lines = append(lines, fmt.Sprintf("🏁 Последний: %s @ %s (%s)", order.ID, order.ShortAlias, order.Status))
	}

	return strings.Join(lines, "\n")
}

func (h *Handler) handleRobots() string {
	slot, ok := h.garage.CurrentSlot()
	if !ok {
		return "📝 Гараж пуст"
	}

	robots := slot.Robots()
	if len(robots) == 0 {
		return "📝 Нет роботов. Включите координатора"
	}

	current, _ := slot.GetRobot("")

	var lines []string
	lines = append(lines, "📋 РОБОТЫ:\n")

	for _, robot := range robots {
		foundIcon := "❔"
		if robot.Found {
			foundIcon = "✅"
		}

		currentIcon := ""
		if robot.ShortAlias == current.ShortAlias {
			currentIcon = " 👑"
		}

		line := fmt.Sprintf("%s %s%s", foundIcon, robot.ShortAlias, currentIcon)
		if robot.ActiveOrderID != "" {
			line += fmt.Sprintf("\n   активный: %s", robot.ActiveOrderID)
		}
		if robot.LastOrderID != "" {
			line += fmt.Sprintf("\n   последний: %s", robot.LastOrderID)
		}
		if robot.EarnedRewards > 0 {
			line += fmt.Sprintf("\n   награды: %d sats", robot.EarnedRewards)
		}

		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func (h *Handler) handleSlots() string {
	slots := h.garage.Slots()
	if len(slots) == 0 {
		return "📝 Гараж пуст"
	}

	current, _ := h.garage.CurrentSlot()

	var lines []string
	lines = append(lines, "🚗 СЛОТЫ:\n")

	for i, slot := range slots {
		currentIcon := ""
		if slot == current {
			currentIcon = " 👑"
		}

		lines = append(lines, fmt.Sprintf("#%d %s%s", i+1, displayName(slot), currentIcon))
	}

	return strings.Join(lines, "\n")
}

func (h *Handler) handleRefresh(ctx context.Context) string {
	if _, ok := h.garage.CurrentSlot(); !ok {
		return "📝 Гараж пуст"
	}

	if err := h.garage.Refresh(ctx); err != nil {
		return fmt.Sprintf("⚠️ Обновлено с ошибками: %v", err)
	}

	return "✅ Слот обновлен\n\n" + h.handleStatus()
}

// handleLogs показывает логи активности текущего слота
func (h *Handler) handleLogs(ctx context.Context, args []string) string {
	slot, ok := h.garage.CurrentSlot()
	if !ok {
		return "📝 Гараж пуст"
	}

	limit := 20
	if len(args) > 0 {
		if l, err := strconv.Atoi(args[0]); err == nil && l > 0 {
			limit = min(l, 100)
		}
	}

	logs, err := h.logs.GetLogs(ctx, slot.HashID(), limit)
	if err != nil {
		return fmt.Sprintf("❌ Ошибка: %v", err)
	}

	if len(logs) == 0 {
		return "📋 Логи пусты"
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("📋 ЛОГИ АКТИВНОСТИ (последние %d):\n", len(logs)))

	for _, log := range logs {
		levelIcon := "ℹ️"
		switch log.Level {
		case "warn":
			levelIcon = "⚠️"
		case "error":
			levelIcon = "❌"
		}

		lines = append(lines, fmt.Sprintf("%s [%s] %s\n   %s",
			levelIcon, log.Action, log.Message, log.CreatedAt.Format("02.01 15:04")))
	}

	return strings.Join(lines, "\n")
}

func displayName(slot *garage.Slot) string {
	if nickname := slot.Nickname(); nickname != "" {
		return nickname
	}

	return slot.HashID()[:8]
}

// handleAvatar отправляет аватар текущего робота. Пустая строка - фото отправлено.
func (h *Handler) handleAvatar(ctx context.Context, chatID int64) string {
	slot, ok := h.garage.CurrentSlot()
	if !ok {
		return "📝 Гараж пуст"
	}

	data, err := h.avatars.Avatar(ctx, slot.HashID(), identity.AvatarLarge)
	if err != nil {
		h.logger.Error("Failed to render avatar", slog.Any("error", err))
		return fmt.Sprintf("❌ Не удалось получить аватар: %v", err)
	}

	if err := h.sender.SendPhoto(chatID, slot.HashID()+".png", data, displayName(slot)); err != nil {
		h.logger.Error("Failed to send avatar", slog.Any("error", err))
		return fmt.Sprintf("❌ Не удалось отправить аватар: %v", err)
	}

	return ""
}
