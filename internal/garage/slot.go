package garage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"robogarage/internal/identity"
	"robogarage/internal/metrics"
	"robogarage/internal/models"
)

var (
	ErrRobotNotFound = errors.New("robot not found")
	ErrNoActiveOrder = errors.New("no active order")
)

// Координатор не присылает статус для некоторых ошибок истекшего ордера,
// поэтому истечение определяется по тексту bad_request.
const expiredMarker = "expired"

const maxConcurrentFetches = 8

// Remote - удаленные операции над роботами и ордерами
type Remote interface {
	FetchRobot(ctx context.Context, robot models.Robot) (models.Robot, error)
	FetchOrder(ctx context.Context, order models.Order, robot models.Robot) (models.Order, error)
	MakeOrder(ctx context.Context, attrs models.OrderAttributes, robot models.Robot) (models.Order, error)
}

// Identity генерирует никнейм и аватары по hashID
type Identity interface {
	Nickname(ctx context.Context, hashID string) (string, error)
	Avatar(ctx context.Context, hashID string, size identity.AvatarSize) ([]byte, error)
}

// Slot - корень сессии: роботы одного токена и ссылки на активный и последний ордер
type Slot struct {
	token    string
	hashID   string
	nickname string

	aliases []string
	robots  map[string]*models.Robot

	activeOrder *models.Order
	lastOrder   *models.Order
	copiedToken bool

	identity Identity
	logger   *slog.Logger
	onUpdate func()

	mu sync.Mutex
	bg sync.WaitGroup
}

// NewSlot создает слот для токена и по роботу на каждого координатора.
// Никнейм и аватары генерируются в фоне; onUpdate вызывается после каждого изменения.
func NewSlot(
	token string,
	shortAliases []string,
	keys models.KeyPair,
	ident Identity,
	logger *slog.Logger,
	onUpdate func(),
) *Slot {
	hashID := identity.HashID(token)

	s := &Slot{
		token:    token,
		hashID:   hashID,
		robots:   make(map[string]*models.Robot, len(shortAliases)),
		identity: ident,
		logger:   logger.With(slog.String("hash_id", shortHash(hashID))),
		onUpdate: onUpdate,
	}

	score := identity.Entropy(token)
	creds := models.Credentials{
		Token:            token,
		KeyPair:          keys,
		TokenSHA256:      identity.AuthDigest(token),
		HasEnoughEntropy: score.HasEnoughEntropy,
		BitsEntropy:      score.BitsEntropy,
		ShannonEntropy:   score.ShannonEntropy,
	}

	s.mu.Lock()
	for _, alias := range shortAliases {
		if _, ok := s.robots[alias]; ok {
			continue
		}

		robot := models.NewRobot(alias, creds)
		s.aliases = append(s.aliases, alias)
		s.robots[alias] = &robot
		s.applyRobot(robot)
	}
	s.mu.Unlock()

	if ident != nil {
		s.deriveIdentity()
	}

	s.notify()

	return s
}

func (s *Slot) deriveIdentity() {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		nickname, err := s.identity.Nickname(context.Background(), s.hashID)
		if err != nil {
			s.logger.Warn("Failed to generate nickname", slog.Any("error", err))
			return
		}

		s.mu.Lock()
		s.nickname = nickname
		s.mu.Unlock()

		s.notify()
	}()

	for _, size := range []identity.AvatarSize{identity.AvatarSmall, identity.AvatarLarge} {
		size := size
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			if _, err := s.identity.Avatar(context.Background(), s.hashID, size); err != nil {
				s.logger.Warn("Failed to generate avatar",
					slog.String("size", string(size)),
					slog.Any("error", err))
			}
		}()
	}
}

// Wait ждет завершения фоновой генерации никнейма и аватаров
func (s *Slot) Wait() {
	s.bg.Wait()
}

func (s *Slot) notify() {
	if s.onUpdate != nil {
		s.onUpdate()
	}
}

// Token возвращает секретный токен слота
func (s *Slot) Token() string {
	return s.token
}

// HashID возвращает стабильный идентификатор слота
func (s *Slot) HashID() string {
	return s.hashID
}

// Nickname возвращает никнейм, пустой до завершения генерации
func (s *Slot) Nickname() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nickname
}

// CopiedToken - флаг копирования токена в буфер обмена
func (s *Slot) CopiedToken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.copiedToken
}

// SetCopiedToken отмечает, что пользователь скопировал токен
func (s *Slot) SetCopiedToken(copied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.copiedToken = copied
}

// ActiveOrder возвращает копию активного ордера
func (s *Slot) ActiveOrder() (models.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return orderValue(s.activeOrder)
}

// LastOrder возвращает копию последнего (исторического) ордера
func (s *Slot) LastOrder() (models.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return orderValue(s.lastOrder)
}

// Robots возвращает роботов в порядке добавления
func (s *Slot) Robots() []models.Robot {
	s.mu.Lock()
	defer s.mu.Unlock()

	robots := make([]models.Robot, 0, len(s.aliases))
	for _, alias := range s.aliases {
		robots = append(robots, *s.robots[alias])
	}

	return robots
}

// GetRobot определяет текущую личность. Порядок:
// явный координатор, координатор активного ордера, координатор последнего ордера
// (если робот для него есть), первый добавленный робот.
func (s *Slot) GetRobot(shortAlias string) (models.Robot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	robot, ok := s.resolveRobot(shortAlias)
	if !ok {
		return models.Robot{}, false
	}

	return *robot, true
}

func (s *Slot) resolveRobot(shortAlias string) (*models.Robot, bool) {
	switch {
	case shortAlias != "":
		robot, ok := s.robots[shortAlias]
		return robot, ok
	case s.activeOrder != nil:
		robot, ok := s.robots[s.activeOrder.ShortAlias]
		return robot, ok
	case s.lastOrder != nil && s.robots[s.lastOrder.ShortAlias] != nil:
		return s.robots[s.lastOrder.ShortAlias], true
	case len(s.aliases) > 0:
		return s.robots[s.aliases[0]], true
	default:
		return nil, false
	}
}

// FetchRobot параллельно обновляет всех роботов слота.
// Каждый успешный ответ сверяется сразу по мере прихода; ошибки не прерывают остальные
// обновления и не меняют состояние слота.
func (s *Slot) FetchRobot(ctx context.Context, remote Remote) error {
	robots := s.Robots()

	var (
		errs []error
		mu   sync.Mutex
	)

	var g errgroup.Group
	g.SetLimit(maxConcurrentFetches)

	for _, robot := range robots {
		robot := robot
		g.Go(func() error {
			fetched, err := remote.FetchRobot(ctx, robot)
			if err != nil {
				s.logger.Warn("Failed to fetch robot",
					slog.String("short_alias", robot.ShortAlias),
					slog.Any("error", err))

				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", robot.ShortAlias, err))
				mu.Unlock()

				return nil
			}

			s.UpdateSlotFromRobot(fetched)

			return nil
		})
	}

	_ = g.Wait()

	return errors.Join(errs...)
}

// UpdateSlotFromRobot сверяет слот с обновленным роботом.
// Повторное применение тех же данных ничего не меняет. Подписчики уведомляются всегда.
func (s *Slot) UpdateSlotFromRobot(robot models.Robot) {
	s.mu.Lock()
	if stored, ok := s.robots[robot.ShortAlias]; ok {
		*stored = robot
	}
	s.applyRobot(robot)
	s.mu.Unlock()

	s.notify()
}

func (s *Slot) applyRobot(robot models.Robot) {
	alias := robot.ShortAlias
	lastID, activeID := robot.LastOrderID, robot.ActiveOrderID
	outcome := "unchanged"

	// При совпадении lastOrderId и activeOrderId ордер считается активным.
	if lastID != "" && lastID != activeID && !s.lastOrder.Is(lastID, alias) {
		if s.activeOrder.Is(lastID, alias) {
			s.lastOrder = s.activeOrder
			s.activeOrder = nil
			outcome = "demoted"
		} else {
			order := models.NewPlaceholderOrder(lastID, alias)
			s.lastOrder = &order
			outcome = "adopted_last"
		}
	}

	if activeID != "" && !s.activeOrder.Is(activeID, alias) {
		order := models.NewPlaceholderOrder(activeID, alias)
		s.activeOrder = &order
		if s.lastOrder.SameAs(s.activeOrder) {
			s.lastOrder = nil
		}
		outcome = "adopted_active"
	}

	metrics.Reconciliations.WithLabelValues("robot", outcome).Inc()

	if outcome != "unchanged" {
		s.logger.Debug("Slot reconciled from robot",
			slog.String("short_alias", alias),
			slog.String("outcome", outcome),
			slog.String("last_order_id", lastID),
			slog.String("active_order_id", activeID))
	}
}

// FetchActiveOrder обновляет активный ордер с его координатора
func (s *Slot) FetchActiveOrder(ctx context.Context, remote Remote) error {
	s.mu.Lock()
	active, ok := orderValue(s.activeOrder)
	var robot models.Robot
	var hasRobot bool
	if ok {
		if r, found := s.robots[active.ShortAlias]; found {
			robot, hasRobot = *r, true
		}
	}
	s.mu.Unlock()

	if !ok {
		return ErrNoActiveOrder
	}

	if !hasRobot {
		return fmt.Errorf("%w: %s", ErrRobotNotFound, active.ShortAlias)
	}

	order, err := remote.FetchOrder(ctx, active, robot)
	if err != nil {
		s.logger.Warn("Failed to fetch active order",
			slog.String("order_id", active.ID),
			slog.String("short_alias", active.ShortAlias),
			slog.Any("error", err))

		return fmt.Errorf("fetch active order %s: %w", active.ID, err)
	}

	s.UpdateSlotFromOrder(order)

	return nil
}

// MakeOrder создает ордер на координаторе робота и делает его активным.
// После успешного создания последним становится прежний активный ордер (или никакой).
func (s *Slot) MakeOrder(ctx context.Context, remote Remote, attrs models.OrderAttributes) (models.Order, error) {
	robot, ok := s.GetRobot(attrs.ShortAlias)
	if !ok {
		return models.Order{}, fmt.Errorf("%w: %s", ErrRobotNotFound, attrs.ShortAlias)
	}

	attrs.ShortAlias = robot.ShortAlias

	order, err := remote.MakeOrder(ctx, attrs, robot)
	if err != nil {
		s.logger.Warn("Failed to make order",
			slog.String("short_alias", robot.ShortAlias),
			slog.Any("error", err))

		return models.Order{}, fmt.Errorf("make order on %s: %w", robot.ShortAlias, err)
	}

	order.ShortAlias = robot.ShortAlias

	s.mu.Lock()
	s.lastOrder = s.activeOrder
	s.activeOrder = &order
	if s.lastOrder.SameAs(s.activeOrder) {
		s.lastOrder = nil
	}
	s.mu.Unlock()

	s.logger.Info("📝 Order made",
		slog.String("order_id", order.ID),
		slog.String("short_alias", order.ShortAlias))

	s.notify()

	return order, nil
}

// UpdateSlotFromOrder сверяет слот с ответом по ордеру (fetch, update или создание).
// Устаревшие и посторонние ответы игнорируются.
func (s *Slot) UpdateSlotFromOrder(order models.Order) {
	if strings.Contains(order.BadRequest, expiredMarker) {
		order.Status = models.StatusExpired
	}

	outcome := "ignored"

	s.mu.Lock()
	switch {
	case s.activeOrder.Is(order.ID, order.ShortAlias):
		s.activeOrder.Update(order)
		outcome = "merged"

		if s.activeOrder.BadRequest != "" {
			s.lastOrder = s.activeOrder
			s.activeOrder = nil
			outcome = "demoted"
		}
	case order.IsParticipant && !s.lastOrder.Is(order.ID, order.ShortAlias):
		s.activeOrder = &order
		outcome = "adopted_active"
	}
	s.mu.Unlock()

	metrics.Reconciliations.WithLabelValues("order", outcome).Inc()

	if outcome == "ignored" {
		return
	}

	s.logger.Debug("Slot reconciled from order",
		slog.String("order_id", order.ID),
		slog.String("short_alias", order.ShortAlias),
		slog.String("status", order.Status.String()),
		slog.String("outcome", outcome))

	s.notify()
}

// SyncCoordinator подключает слот к новому координатору: робот создается из учетных
// данных текущей личности. Без личности с токеном или при наличии робота ничего не делает.
func (s *Slot) SyncCoordinator(ctx context.Context, remote Remote, shortAlias string) error {
	s.mu.Lock()
	if _, exists := s.robots[shortAlias]; exists {
		s.mu.Unlock()
		return nil
	}

	def, ok := s.resolveRobot("")
	if !ok || def.Token == "" {
		s.mu.Unlock()
		return nil
	}

	robot := models.NewRobot(shortAlias, def.Credentials)
	s.aliases = append(s.aliases, shortAlias)
	s.robots[shortAlias] = &robot
	s.applyRobot(robot)
	s.mu.Unlock()

	s.logger.Info("🤖 Robot joined coordinator", slog.String("short_alias", shortAlias))

	s.notify()

	fetched, err := remote.FetchRobot(ctx, robot)
	if err != nil {
		s.logger.Warn("Failed to fetch joined robot",
			slog.String("short_alias", shortAlias),
			slog.Any("error", err))

		return fmt.Errorf("fetch robot %s: %w", shortAlias, err)
	}

	s.UpdateSlotFromRobot(fetched)

	return nil
}

// Snapshot возвращает состояние слота для сохранения
func (s *Slot) Snapshot() models.SlotRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := models.SlotRecord{
		Token:    s.token,
		HashID:   s.hashID,
		Nickname: s.nickname,
		Robots:   make([]models.Robot, 0, len(s.aliases)),
	}

	for _, alias := range s.aliases {
		record.Robots = append(record.Robots, *s.robots[alias])
	}

	if len(record.Robots) > 0 {
		record.Keys = record.Robots[0].KeyPair
	}

	if order, ok := orderValue(s.activeOrder); ok {
		record.ActiveOrder = &order
	}

	if order, ok := orderValue(s.lastOrder); ok {
		record.LastOrder = &order
	}

	return record
}

// restore применяет сохраненное состояние к только что созданному слоту
func (s *Slot) restore(record models.SlotRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.Nickname != "" && s.nickname == "" {
		s.nickname = record.Nickname
	}

	for _, saved := range record.Robots {
		robot, ok := s.robots[saved.ShortAlias]
		if !ok {
			r := models.NewRobot(saved.ShortAlias, s.credentials())
			robot = &r
			s.aliases = append(s.aliases, saved.ShortAlias)
			s.robots[saved.ShortAlias] = robot
		}

		robot.Nickname = saved.Nickname
		robot.LastOrderID = saved.LastOrderID
		robot.ActiveOrderID = saved.ActiveOrderID
		robot.EarnedRewards = saved.EarnedRewards
		robot.Found = saved.Found
		robot.TGEnabled = saved.TGEnabled
	}

	s.activeOrder = nil
	if record.ActiveOrder != nil {
		order := *record.ActiveOrder
		s.activeOrder = &order
	}

	s.lastOrder = nil
	if record.LastOrder != nil && !s.activeOrder.SameAs(record.LastOrder) {
		order := *record.LastOrder
		s.lastOrder = &order
	}
}

func (s *Slot) credentials() models.Credentials {
	if len(s.aliases) == 0 {
		return models.Credentials{Token: s.token, TokenSHA256: identity.AuthDigest(s.token)}
	}

	return s.robots[s.aliases[0]].Credentials
}

func orderValue(order *models.Order) (models.Order, bool) {
	if order == nil {
		return models.Order{}, false
	}

	return *order, true
}

func shortHash(hashID string) string {
	if len(hashID) > 8 {
		return hashID[:8]
	}

	return hashID
}
