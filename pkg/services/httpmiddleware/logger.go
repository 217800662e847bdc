package httpmiddleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"
)

var sensitiveHeaders = []string{
	"authorization",
	"cookie",
	"set-cookie",
	"x-api-key",
}

// Logger логирует запросы к координаторам.
// maxBodySize: 0 - без тела, -1 - все тело, >0 - первые N байт.
func Logger(logger *slog.Logger, maxBodySize int) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			logRequest(logger, req, maxBodySize)

			start := time.Now()
			resp, err := next.RoundTrip(req)
			duration := time.Since(start)

			if err != nil {
				logger.Error("HTTP request failed",
					slog.String("method", req.Method),
					slog.String("url", req.URL.String()),
					slog.String("request_id", req.Header.Get(RequestIDHeader)),
					slog.Duration("duration", duration),
					slog.Any("error", err))

				return resp, err
			}

			logResponse(logger, req, resp, duration, maxBodySize)

			return resp, nil
		})
	}
}

func logRequest(logger *slog.Logger, req *http.Request, maxBodySize int) {
	attrs := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
		slog.String("request_id", req.Header.Get(RequestIDHeader)),
		slog.Any("headers", headerGroup(req.Header)),
	}

	if maxBodySize != 0 && req.Body != nil && req.Body != http.NoBody {
		body, err := readBody(req.Body, maxBodySize)
		if err == nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			if len(body) > 0 {
				attrs = append(attrs, slog.String("body", string(body)))
			}
		}
	}

	logger.LogAttrs(req.Context(), slog.LevelDebug, "📤 Coordinator request", attrs...)
}

func logResponse(logger *slog.Logger, req *http.Request, resp *http.Response, duration time.Duration, maxBodySize int) {
	attrs := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
		slog.String("request_id", req.Header.Get(RequestIDHeader)),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration),
	}

	if maxBodySize != 0 && resp.Body != nil {
		body, err := readBody(resp.Body, maxBodySize)
		if err == nil {
			resp.Body = io.NopCloser(bytes.NewReader(body))
			if len(body) > 0 {
				attrs = append(attrs, slog.String("body", string(body)))
			}
		}
	}

	level := slog.LevelDebug
	switch {
	case resp.StatusCode >= 500:
		level = slog.LevelError
	case resp.StatusCode >= 400:
		level = slog.LevelWarn
	}

	logger.LogAttrs(req.Context(), level, "📥 Coordinator response", attrs...)
}

func headerGroup(h http.Header) slog.Value {
	attrs := make([]slog.Attr, 0, len(h))
	for k, v := range h {
		if slices.Contains(sensitiveHeaders, strings.ToLower(k)) {
			attrs = append(attrs, slog.String(k, "[REDACTED]"))
			continue
		}

		attrs = append(attrs, slog.String(k, strings.Join(v, ", ")))
	}

	return slog.GroupValue(attrs...)
}

// readBody читает тело целиком (-1) или первые maxBodySize байт.
// При частичном чтении остаток тела теряется, поэтому для ответов используется -1.
func readBody(body io.ReadCloser, maxBodySize int) ([]byte, error) {
	defer body.Close()

	if maxBodySize == -1 {
		return io.ReadAll(body)
	}

	buf := make([]byte, maxBodySize)
	n, err := io.ReadFull(body, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return buf[:n], nil
}
