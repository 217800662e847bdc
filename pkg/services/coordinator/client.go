package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"robogarage/internal/models"
	"robogarage/pkg/services/httpmiddleware"
)

const (
	robotEndpoint = "/api/robot/"
	orderEndpoint = "/api/order/"
	makeEndpoint  = "/api/make/"

	maxResponseSize = 1 << 20
)

// Client - клиент координатора для одного робота
type Client struct {
	robot      models.Robot
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewTransport собирает общий транспорт для всех клиентов координаторов
func NewTransport(logger *slog.Logger) http.RoundTripper {
	return httpmiddleware.Wrap(
		httpmiddleware.DefaultTransport(),
		httpmiddleware.RequestGetBodySetter,
		httpmiddleware.RequestID,
		httpmiddleware.Logger(logger, -1),
	)
}

// NewClient создает клиент координатора baseURL от имени робота
func NewClient(baseURL string, robot models.Robot, transport http.RoundTripper, logger *slog.Logger) *Client {
	return &Client{
		robot: robot,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		logger:  logger.With(slog.String("short_alias", robot.ShortAlias)),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// authHeader формирует заголовок авторизации робота
func (c *Client) authHeader() string {
	header := "Token " + c.robot.TokenSHA256
	if c.robot.PubKey != "" && c.robot.EncPrivKey != "" {
		header += " | Public " + c.robot.PubKey + " | Private " + c.robot.EncPrivKey
	}

	return header
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) (int, []byte, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}

		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authHeader())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

// FetchRobot получает состояние робота от координатора.
// Учетные данные берутся из локального робота, остальные поля - из ответа.
func (c *Client) FetchRobot(ctx context.Context) (models.Robot, error) {
	status, body, err := c.do(ctx, http.MethodGet, robotEndpoint, nil)
	if err != nil {
		return models.Robot{}, fmt.Errorf("fetch robot: %w", err)
	}

	var result robotResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return models.Robot{}, fmt.Errorf("fetch robot: decode response (status %d): %w", status, err)
	}

	if status >= http.StatusBadRequest {
		return models.Robot{}, fmt.Errorf("fetch robot: %w", &RequestError{StatusCode: status, BadRequest: result.BadRequest})
	}

	robot := models.NewRobot(c.robot.ShortAlias, c.robot.Credentials)
	robot.Nickname = result.Nickname
	robot.LastOrderID = string(result.LastOrderID)
	robot.ActiveOrderID = string(result.ActiveOrderID)
	robot.EarnedRewards = result.EarnedRewards
	robot.TGEnabled = result.TGEnabled
	robot.Found = result.Found

	c.logger.Debug("Robot fetched",
		slog.String("last_order_id", robot.LastOrderID),
		slog.String("active_order_id", robot.ActiveOrderID))

	return robot, nil
}

// FetchOrder получает ордер. Ответ с bad_request возвращается как данные ордера, а не ошибка.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (models.Order, error) {
	endpoint := orderEndpoint + "?order_id=" + url.QueryEscape(orderID)

	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Order{}, fmt.Errorf("fetch order %s: %w", orderID, err)
	}

	var result orderResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return models.Order{}, fmt.Errorf("fetch order %s: decode response (status %d): %w", orderID, status, err)
	}

	if status >= http.StatusBadRequest && result.BadRequest == "" {
		return models.Order{}, fmt.Errorf("fetch order %s: %w", orderID, &RequestError{StatusCode: status})
	}

	return result.toOrder(orderID, c.robot.ShortAlias), nil
}

// MakeOrder создает ордер на координаторе
func (c *Client) MakeOrder(ctx context.Context, attrs models.OrderAttributes) (models.Order, error) {
	status, body, err := c.do(ctx, http.MethodPost, makeEndpoint, newMakeRequest(attrs))
	if err != nil {
		return models.Order{}, fmt.Errorf("make order: %w", err)
	}

	var result orderResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return models.Order{}, fmt.Errorf("make order: decode response (status %d): %w", status, err)
	}

	if status >= http.StatusBadRequest || result.BadRequest != "" {
		return models.Order{}, fmt.Errorf("make order: %w", &RequestError{StatusCode: status, BadRequest: result.BadRequest})
	}

	if result.ID == "" {
		return models.Order{}, fmt.Errorf("make order: response without order id")
	}

	order := result.toOrder("", c.robot.ShortAlias)
	order.IsParticipant = true

	c.logger.Info("✅ Order created",
		slog.String("order_id", order.ID),
		slog.String("type", order.Type.String()))

	return order, nil
}
