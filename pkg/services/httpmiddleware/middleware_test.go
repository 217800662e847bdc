package httpmiddleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapOrder(t *testing.T) {
	var calls []string
	mark := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
				calls = append(calls, name)
				return next.RoundTrip(req)
			})
		}
	}

	base := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		calls = append(calls, "base")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "http://coordinator/api/robot/", nil)
	_, err := Wrap(base, mark("outer"), mark("inner")).RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, []string{"outer", "inner", "base"}, calls)
}

func TestRequestIDAndRedaction(t *testing.T) {
	var seenID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = r.Header.Get(RequestIDHeader)
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	client := &http.Client{Transport: Wrap(DefaultTransport(), RequestGetBodySetter, RequestID, Logger(logger, -1))}

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Token secret-digest")

	resp, err := client.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, `{"ok":true}`, string(body))
	require.NotEmpty(t, seenID)
	require.Contains(t, logs.String(), "[REDACTED]")
	require.NotContains(t, logs.String(), "secret-digest")
}
