package coordinator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"robogarage/internal/models"
)

func testRobot() models.Robot {
	return models.NewRobot("c1", models.Credentials{
		Token:       "T1",
		KeyPair:     models.KeyPair{PubKey: "pub", EncPrivKey: "enc"},
		TokenSHA256: "digest",
	})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewClient(srv.URL+"/", testRobot(), NewTransport(logger), logger)
}

func TestFetchRobot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, robotEndpoint, r.URL.Path)
		require.Equal(t, "Token digest | Public pub | Private enc", r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))

		io.WriteString(w, `{"nickname":"HumbleBolt1","found":true,"last_order_id":12,"active_order_id":null,"earned_rewards":50}`)
	})

	robot, err := c.FetchRobot(context.Background())
	require.NoError(t, err)
	require.Equal(t, "c1", robot.ShortAlias)
	require.Equal(t, "12", robot.LastOrderID)
	require.Empty(t, robot.ActiveOrderID)
	require.Equal(t, int64(50), robot.EarnedRewards)
	require.Equal(t, "digest", robot.TokenSHA256)
	require.True(t, robot.Found)
}

func TestFetchRobotRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"bad_request":"Invalid token"}`)
	})

	_, err := c.FetchRobot(context.Background())
	require.ErrorIs(t, err, ErrBadRequest)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusForbidden, reqErr.StatusCode)
	require.Equal(t, "Invalid token", reqErr.BadRequest)
}

func TestFetchOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "o1", r.URL.Query().Get("order_id"))
		io.WriteString(w, `{"id":"o1","status":9,"is_participant":true,"amount":"150.00","premium":"1.5"}`)
	})

	order, err := c.FetchOrder(context.Background(), "o1")
	require.NoError(t, err)
	require.Equal(t, "o1", order.ID)
	require.Equal(t, "c1", order.ShortAlias)
	require.Equal(t, models.StatusSendingFiat, order.Status)
	require.True(t, order.IsParticipant)
	require.True(t, order.Amount.Equal(decimal.RequireFromString("150")))
}

func TestFetchOrderSoftRejection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"bad_request":"This order has expired"}`)
	})

	order, err := c.FetchOrder(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, "42", order.ID)
	require.Equal(t, "This order has expired", order.BadRequest)
	require.Equal(t, models.StatusUnresolved, order.Status)
}

func TestFetchOrderServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{}`)
	})

	_, err := c.FetchOrder(context.Background(), "42")
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestMakeOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "100", req["amount"])
		require.NotContains(t, req, "min_amount")

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":77,"status":0,"type":1}`)
	})

	order, err := c.MakeOrder(context.Background(), models.OrderAttributes{
		ShortAlias: "c1",
		Type:       models.OrderTypeSell,
		Amount:     decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	require.Equal(t, "77", order.ID)
	require.Equal(t, models.StatusWaitingForMakerBond, order.Status)
	require.Equal(t, models.OrderTypeSell, order.Type)
	require.True(t, order.IsParticipant)
}

func TestMakeOrderRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"bad_request":"You are already maker of an active order"}`)
	})

	_, err := c.MakeOrder(context.Background(), models.OrderAttributes{ShortAlias: "c1"})
	require.ErrorIs(t, err, ErrBadRequest)
	require.Contains(t, err.Error(), "already maker")
}
