// Package notify следит за слотами гаража и сообщает о переходах ордеров
// в Telegram и в лог активности.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sync"
	"time"

	"robogarage/internal/garage"
	"robogarage/internal/models"
)

const (
	ActionOrderActivated = "order_activated"
	ActionOrderDemoted   = "order_demoted"
	ActionOrderStatus    = "order_status"
)

// Sender отправляет сообщения в чат
type Sender interface {
	SendHTMLMessage(chatID int64, text string) error
}

// LogStore сохраняет события в лог активности
type LogStore interface {
	AddLog(ctx context.Context, log models.ActivityLog) error
}

// Slots находит слот по hashID
type Slots interface {
	SlotByHashID(hashID string) (*garage.Slot, bool)
}

// Event - переход ордера, о котором нужно сообщить
type Event struct {
	Action  string
	Level   string
	Message string
	OrderID string
}

type refs struct {
	active *models.Order
	last   *models.Order
}

// Notifier сравнивает состояние слота с последним увиденным
type Notifier struct {
	sender Sender
	chatID int64
	logs   LogStore
	slots  Slots
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]refs
}

// New создает Notifier. sender и logs могут быть nil.
func New(slots Slots, sender Sender, chatID int64, logs LogStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		chatID: chatID,
		logs:   logs,
		slots:  slots,
		logger: logger,
		seen:   make(map[string]refs),
	}
}

// HandleSlotUpdate - подписчик гаража
func (n *Notifier) HandleSlotUpdate(hashID string) {
	slot, ok := n.slots.SlotByHashID(hashID)
	if !ok {
		return
	}

	var active, last *models.Order
	if order, ok := slot.ActiveOrder(); ok {
		active = &order
	}
	if order, ok := slot.LastOrder(); ok {
		last = &order
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n.Observe(ctx, hashID, slot.Nickname(), active, last)
}

// Observe фиксирует новое состояние слота и рассылает события переходов.
// Первое наблюдение слота только запоминается.
func (n *Notifier) Observe(ctx context.Context, hashID, nickname string, active, last *models.Order) []Event {
	n.mu.Lock()
	prev, known := n.seen[hashID]
	n.seen[hashID] = refs{active: clone(active), last: clone(last)}
	n.mu.Unlock()

	if !known {
		return nil
	}

	events := diff(prev, active, last)

	for _, event := range events {
		n.dispatch(ctx, hashID, nickname, event)
	}

	return events
}

// Forget удаляет слот из наблюдения
func (n *Notifier) Forget(hashID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.seen, hashID)
}

func diff(prev refs, active, last *models.Order) []Event {
	var events []Event

	if prev.active != nil && !prev.active.SameAs(active) && prev.active.SameAs(last) {
		events = append(events, Event{
			Action:  ActionOrderDemoted,
			Level:   "info",
			Message: fmt.Sprintf("order %s on %s finished: %s", last.ID, last.ShortAlias, last.Status),
			OrderID: last.ID,
		})
	}

	switch {
	case active == nil:
	case !active.SameAs(prev.active):
		events = append(events, Event{
			Action:  ActionOrderActivated,
			Level:   "info",
			Message: fmt.Sprintf("order %s on %s is active", active.ID, active.ShortAlias),
			OrderID: active.ID,
		})
	case active.Status != prev.active.Status && active.Status != models.StatusUnresolved:
		level := "info"
		if active.Status == models.StatusInDispute {
			level = "warn"
		}

		events = append(events, Event{
			Action:  ActionOrderStatus,
			Level:   level,
			Message: fmt.Sprintf("order %s on %s: %s", active.ID, active.ShortAlias, active.Status),
			OrderID: active.ID,
		})
	}

	return events
}

func (n *Notifier) dispatch(ctx context.Context, hashID, nickname string, event Event) {
	n.logger.Info("🔔 Order transition",
		slog.String("hash_id", hashID[:min(8, len(hashID))]),
		slog.String("action", event.Action),
		slog.String("order_id", event.OrderID))

	if n.logs != nil {
		err := n.logs.AddLog(ctx, models.ActivityLog{
			HashID:  hashID,
			Level:   event.Level,
			Action:  event.Action,
			Message: event.Message,
			Details: event.OrderID,
		})
		if err != nil {
			n.logger.Error("Failed to write activity log", slog.Any("error", err))
		}
	}

	if n.sender == nil || n.chatID == 0 {
		return
	}

	if nickname == "" {
		nickname = "robot"
	}

	text := fmt.Sprintf("%s <b>%s</b>\n%s", emoji(event.Action), html.EscapeString(nickname), html.EscapeString(event.Message))
	if err := n.sender.SendHTMLMessage(n.chatID, text); err != nil {
		n.logger.Error("Failed to send notification", slog.Any("error", err))
	}
}

func emoji(action string) string {
	switch action {
	case ActionOrderActivated:
		return "🟢"
	case ActionOrderDemoted:
		return "🏁"
	default:
		return "🔄"
	}
}

func clone(order *models.Order) *models.Order {
	if order == nil {
		return nil
	}

	c := *order

	return &c
}
