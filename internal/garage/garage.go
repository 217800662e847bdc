package garage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"robogarage/internal/keys"
	"robogarage/internal/metrics"
	"robogarage/internal/models"
)

var (
	ErrSlotNotFound = errors.New("slot not found")
	ErrEmptyToken   = errors.New("empty token")
)

// Federation - координаторы, на которых живут роботы слотов
type Federation interface {
	Remote
	ShortAliases() []string
}

// Store сохраняет слоты между запусками
type Store interface {
	SaveSlot(ctx context.Context, record models.SlotRecord) error
	LoadSlots(ctx context.Context) ([]models.SlotRecord, error)
	DeleteSlot(ctx context.Context, token string) error
	SetCurrentSlot(ctx context.Context, token string) error
}

// Garage - упорядоченный набор слотов и текущий слот
type Garage struct {
	federation Federation
	store      Store
	identity   Identity
	logger     *slog.Logger
	derive     func(token string) (models.KeyPair, error)

	mu      sync.RWMutex
	order   []string
	slots   map[string]*Slot
	current string

	subsMu      sync.RWMutex
	subscribers []func(hashID string)
}

// New создает пустой гараж
func New(federation Federation, store Store, ident Identity, logger *slog.Logger) *Garage {
	return &Garage{
		federation: federation,
		store:      store,
		identity:   ident,
		logger:     logger,
		derive:     keys.Derive,
		slots:      make(map[string]*Slot),
	}
}

// Subscribe регистрирует обработчик изменений слотов
func (g *Garage) Subscribe(fn func(hashID string)) {
	g.subsMu.Lock()
	defer g.subsMu.Unlock()

	g.subscribers = append(g.subscribers, fn)
}

func (g *Garage) newSlot(token string, shortAliases []string, keyPair models.KeyPair) *Slot {
	return NewSlot(token, shortAliases, keyPair, g.identity, g.logger, func() {
		g.slotUpdated(token)
	})
}

// slotUpdated сохраняет слот и оповещает подписчиков.
// Уведомления, пришедшие до регистрации слота, пропускаются: слот сохраняется сразу после регистрации.
func (g *Garage) slotUpdated(token string) {
	slot, ok := g.Slot(token)
	if !ok {
		return
	}

	g.save(context.Background(), slot)

	g.subsMu.RLock()
	subscribers := make([]func(string), len(g.subscribers))
	copy(subscribers, g.subscribers)
	g.subsMu.RUnlock()

	for _, fn := range subscribers {
		fn(slot.HashID())
	}
}

func (g *Garage) save(ctx context.Context, slot *Slot) {
	if g.store == nil {
		return
	}

	record := slot.Snapshot()

	g.mu.RLock()
	for i, token := range g.order {
		if token == record.Token {
			record.Position = i
		}
	}
	record.IsCurrent = g.current == record.Token
	g.mu.RUnlock()

	if err := g.store.SaveSlot(ctx, record); err != nil {
		g.logger.Error("Failed to save slot",
			slog.String("hash_id", shortHash(record.HashID)),
			slog.Any("error", err))
	}
}

// UpsertSlot открывает слот для токена и делает его текущим.
// Для нового токена выводятся ключи и создается по роботу на каждого включенного координатора.
func (g *Garage) UpsertSlot(ctx context.Context, token string) (*Slot, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	if slot, ok := g.Slot(token); ok {
		if err := g.SetCurrentSlot(ctx, token); err != nil {
			return nil, err
		}

		return slot, nil
	}

	keyPair, err := g.derive(token)
	if err != nil {
		return nil, fmt.Errorf("failed to derive keys: %w", err)
	}

	slot := g.newSlot(token, g.federation.ShortAliases(), keyPair)

	g.mu.Lock()
	if existing, ok := g.slots[token]; ok {
		g.mu.Unlock()
		return existing, g.SetCurrentSlot(ctx, token)
	}
	g.order = append(g.order, token)
	g.slots[token] = slot
	g.current = token
	metrics.Slots.Set(float64(len(g.order)))
	g.mu.Unlock()

	g.logger.Info("🚗 Slot added to garage",
		slog.String("hash_id", shortHash(slot.HashID())),
		slog.Int("robots", len(slot.Robots())))

	g.save(ctx, slot)

	if g.store != nil {
		if err := g.store.SetCurrentSlot(ctx, token); err != nil {
			g.logger.Error("Failed to save current slot", slog.Any("error", err))
		}
	}

	return slot, nil
}

// DeleteSlot удаляет слот. Текущим становится последний оставшийся слот.
func (g *Garage) DeleteSlot(ctx context.Context, token string) error {
	g.mu.Lock()
	if _, ok := g.slots[token]; !ok {
		g.mu.Unlock()
		return ErrSlotNotFound
	}

	delete(g.slots, token)
	for i, t := range g.order {
		if t == token {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}

	if g.current == token {
		g.current = ""
		if len(g.order) > 0 {
			g.current = g.order[len(g.order)-1]
		}
	}
	current := g.current
	metrics.Slots.Set(float64(len(g.order)))
	g.mu.Unlock()

	if g.store == nil {
		return nil
	}

	if err := g.store.DeleteSlot(ctx, token); err != nil {
		return fmt.Errorf("failed to delete slot: %w", err)
	}

	if current != "" {
		if err := g.store.SetCurrentSlot(ctx, current); err != nil {
			return fmt.Errorf("failed to save current slot: %w", err)
		}
	}

	return nil
}

// Slot возвращает слот по токену
func (g *Garage) Slot(token string) (*Slot, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	slot, ok := g.slots[token]

	return slot, ok
}

// SlotByHashID возвращает слот по hashID
func (g *Garage) SlotByHashID(hashID string) (*Slot, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, token := range g.order {
		if slot := g.slots[token]; slot.HashID() == hashID {
			return slot, true
		}
	}

	return nil, false
}

// Slots возвращает слоты в порядке добавления
func (g *Garage) Slots() []*Slot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	slots := make([]*Slot, 0, len(g.order))
	for _, token := range g.order {
		slots = append(slots, g.slots[token])
	}

	return slots
}

// CurrentSlot возвращает текущий слот
func (g *Garage) CurrentSlot() (*Slot, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	slot, ok := g.slots[g.current]

	return slot, ok
}

// SetCurrentSlot переключает текущий слот
func (g *Garage) SetCurrentSlot(ctx context.Context, token string) error {
	g.mu.Lock()
	if _, ok := g.slots[token]; !ok {
		g.mu.Unlock()
		return ErrSlotNotFound
	}
	g.current = token
	g.mu.Unlock()

	if g.store == nil {
		return nil
	}

	return g.store.SetCurrentSlot(ctx, token)
}

// SyncCoordinator подключает все слоты к координатору
func (g *Garage) SyncCoordinator(ctx context.Context, shortAlias string) error {
	var (
		errs []error
		mu   sync.Mutex
	)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrentFetches)

	for _, slot := range g.Slots() {
		slot := slot
		eg.Go(func() error {
			if err := slot.SyncCoordinator(ctx, g.federation, shortAlias); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", shortHash(slot.HashID()), err))
				mu.Unlock()
			}

			return nil
		})
	}

	_ = eg.Wait()

	return errors.Join(errs...)
}

// Refresh обновляет роботов и активный ордер текущего слота
func (g *Garage) Refresh(ctx context.Context) error {
	slot, ok := g.CurrentSlot()
	if !ok {
		return nil
	}

	robotErr := slot.FetchRobot(ctx, g.federation)

	orderErr := slot.FetchActiveOrder(ctx, g.federation)
	if errors.Is(orderErr, ErrNoActiveOrder) {
		orderErr = nil
	}

	return errors.Join(robotErr, orderErr)
}

// Run периодически обновляет текущий слот до отмены контекста
func (g *Garage) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.logger.Info("🔄 Garage refresh loop started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("🛑 Garage refresh loop stopped")
			return
		case <-ticker.C:
			if err := g.Refresh(ctx); err != nil && ctx.Err() == nil {
				g.logger.Warn("Garage refresh finished with errors", slog.Any("error", err))
			}
		}
	}
}

// Load восстанавливает сохраненные слоты
func (g *Garage) Load(ctx context.Context) error {
	if g.store == nil {
		return nil
	}

	records, err := g.store.LoadSlots(ctx)
	if err != nil {
		return fmt.Errorf("failed to load slots: %w", err)
	}

	aliases := g.federation.ShortAliases()

	for _, record := range records {
		keyPair := record.Keys
		if keyPair.PubKey == "" {
			if keyPair, err = g.derive(record.Token); err != nil {
				g.logger.Error("Failed to derive keys for saved slot",
					slog.String("hash_id", shortHash(record.HashID)),
					slog.Any("error", err))
				continue
			}
		}

		slot := g.newSlot(record.Token, aliases, keyPair)
		slot.restore(record)

		g.mu.Lock()
		if _, ok := g.slots[record.Token]; !ok {
			g.order = append(g.order, record.Token)
		}
		g.slots[record.Token] = slot
		if record.IsCurrent {
			g.current = record.Token
		}
		g.mu.Unlock()
	}

	g.mu.Lock()
	if g.current == "" && len(g.order) > 0 {
		g.current = g.order[len(g.order)-1]
	}
	count := len(g.order)
	metrics.Slots.Set(float64(count))
	g.mu.Unlock()

	g.logger.Info("✅ Garage loaded", slog.Int("slots", count))

	return nil
}
