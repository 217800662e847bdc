package federation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"robogarage/internal/config"
	"robogarage/internal/metrics"
	"robogarage/internal/models"
	"robogarage/pkg/services/coordinator"
)

var ErrUnknownCoordinator = errors.New("unknown coordinator")

// Coordinator - координатор федерации
type Coordinator struct {
	ShortAlias string `json:"short_alias"`
	LongAlias  string `json:"long_alias"`
	Enabled    bool   `json:"enabled"`
	url        string
}

// BaseURL возвращает адрес координатора
func (c Coordinator) BaseURL() string {
	return c.url
}

// Federation - реестр координаторов и удаленные операции над роботами и ордерами
type Federation struct {
	order        []string
	coordinators map[string]*Coordinator
	transport    http.RoundTripper
	logger       *slog.Logger
	mu           sync.RWMutex
}

// New создает федерацию из конфигурации для выбранной сети
func New(coordinators []config.Coordinator, network string, transport http.RoundTripper, logger *slog.Logger) *Federation {
	f := &Federation{
		order:        make([]string, 0, len(coordinators)),
		coordinators: make(map[string]*Coordinator, len(coordinators)),
		transport:    transport,
		logger:       logger,
	}

	for _, c := range coordinators {
		if _, ok := f.coordinators[c.ShortAlias]; ok {
			continue
		}

		f.order = append(f.order, c.ShortAlias)
		f.coordinators[c.ShortAlias] = &Coordinator{
			ShortAlias: c.ShortAlias,
			LongAlias:  c.LongAlias,
			Enabled:    c.Enabled,
			url:        c.URL(network),
		}
	}

	return f
}

// Coordinator возвращает координатора по короткому алиасу
func (f *Federation) Coordinator(shortAlias string) (Coordinator, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	c, ok := f.coordinators[shortAlias]
	if !ok {
		return Coordinator{}, false
	}

	return *c, true
}

// Coordinators возвращает всех координаторов в порядке федерации
func (f *Federation) Coordinators() []Coordinator {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]Coordinator, 0, len(f.order))
	for _, alias := range f.order {
		result = append(result, *f.coordinators[alias])
	}

	return result
}

// ShortAliases возвращает алиасы включенных координаторов
func (f *Federation) ShortAliases() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	aliases := make([]string, 0, len(f.order))
	for _, alias := range f.order {
		if f.coordinators[alias].Enabled {
			aliases = append(aliases, alias)
		}
	}

	return aliases
}

// SetEnabled включает или выключает координатора. Возвращает true, если состояние изменилось.
func (f *Federation) SetEnabled(shortAlias string, enabled bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.coordinators[shortAlias]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownCoordinator, shortAlias)
	}

	if c.Enabled == enabled {
		return false, nil
	}

	c.Enabled = enabled

	f.logger.Info("🌐 Coordinator membership changed",
		slog.String("short_alias", shortAlias),
		slog.Bool("enabled", enabled))

	return true, nil
}

func (f *Federation) client(robot models.Robot) (*coordinator.Client, error) {
	c, ok := f.Coordinator(robot.ShortAlias)
	if !ok || c.BaseURL() == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCoordinator, robot.ShortAlias)
	}

	return coordinator.NewClient(c.BaseURL(), robot, f.transport, f.logger), nil
}

// FetchRobot обновляет робота с его координатора
func (f *Federation) FetchRobot(ctx context.Context, robot models.Robot) (models.Robot, error) {
	client, err := f.client(robot)
	if err != nil {
		return models.Robot{}, err
	}

	fetched, err := client.FetchRobot(ctx)
	metrics.RobotFetches.WithLabelValues(robot.ShortAlias, metrics.Result(err)).Inc()

	return fetched, err
}

// FetchOrder получает ордер с координатора от имени робота
func (f *Federation) FetchOrder(ctx context.Context, order models.Order, robot models.Robot) (models.Order, error) {
	client, err := f.client(robot)
	if err != nil {
		return models.Order{}, err
	}

	fetched, err := client.FetchOrder(ctx, order.ID)
	metrics.OrderFetches.WithLabelValues(robot.ShortAlias, metrics.Result(err)).Inc()

	return fetched, err
}

// MakeOrder создает ордер на координаторе робота
func (f *Federation) MakeOrder(ctx context.Context, attrs models.OrderAttributes, robot models.Robot) (models.Order, error) {
	client, err := f.client(robot)
	if err != nil {
		return models.Order{}, err
	}

	order, err := client.MakeOrder(ctx, attrs)
	metrics.OrdersMade.WithLabelValues(robot.ShortAlias, metrics.Result(err)).Inc()

	return order, err
}
