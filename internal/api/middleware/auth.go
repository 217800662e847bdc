package middleware

import (
	"context"
	"net/http"
	"strings"

	"robogarage/internal/api/auth"
)

type contextKey string

const HashIDKey contextKey = "hash_id"

// AuthMiddleware проверяет JWT токен в запросе.
// Браузерный websocket не умеет слать заголовки, поэтому токен принимается и из access_token.
func AuthMiddleware(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.URL.Query().Get("access_token")

			// Получаем токен из заголовка Authorization (формат: "Bearer <token>")
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				parts := strings.Split(authHeader, " ")
				if len(parts) != 2 || parts[0] != "Bearer" {
					http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
					return
				}

				tokenString = parts[1]
			}

			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := authService.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), HashIDKey, claims.HashID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetHashID извлекает hashID слота из контекста
func GetHashID(ctx context.Context) (string, bool) {
	hashID, ok := ctx.Value(HashIDKey).(string)
	return hashID, ok && hashID != ""
}
