package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"robogarage/internal/api/middleware"
	cors "robogarage/internal/middleware"
)

// SetupRouter настраивает роутинг для API. Без allowedOrigins CORS разрешает любой origin.
func (h *Handler) SetupRouter(allowedOrigins ...string) *mux.Router {
	r := mux.NewRouter()

	// Применяем CORS middleware ко всем маршрутам
	r.Use(cors.CORS(allowedOrigins...))

	// Публичные маршруты (не требуют аутентификации)
	r.HandleFunc("/api/auth/login", h.HandleLogin).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/auth/token", h.HandleGenerateToken).Methods("POST", "OPTIONS")
	r.HandleFunc("/health", h.HandleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Защищенные маршруты (требуют аутентификации)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(h.authService))

	// Federation
	api.HandleFunc("/coordinators", h.HandleGetCoordinators).Methods("GET")

	// Slot
	api.HandleFunc("/slot", h.HandleGetSlot).Methods("GET")
	api.HandleFunc("/slot/refresh", h.HandleRefreshSlot).Methods("POST")
	api.HandleFunc("/slot/order/refresh", h.HandleRefreshOrder).Methods("POST")
	api.HandleFunc("/slot/orders", h.HandleMakeOrder).Methods("POST")
	api.HandleFunc("/slot/robot", h.HandleGetRobot).Methods("GET")
	api.HandleFunc("/slot/robots/{alias}", h.HandleGetRobot).Methods("GET")
	api.HandleFunc("/slot/coordinators/{alias}", h.HandleEnableCoordinator).Methods("POST")
	api.HandleFunc("/slot/coordinators/{alias}", h.HandleDisableCoordinator).Methods("DELETE")
	api.HandleFunc("/slot/copied", h.HandleSetCopied).Methods("PUT")
	api.HandleFunc("/slot/avatar", h.HandleGetAvatar).Methods("GET")

	// Activity Logs
	api.HandleFunc("/slot/logs", h.HandleGetLogs).Methods("GET")

	// Slot change events
	api.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")

	return r
}

// HandleHealth возвращает статус здоровья сервиса
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondSuccess(w, "OK", map[string]string{
		"status": "healthy",
	})
}
