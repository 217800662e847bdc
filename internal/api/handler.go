package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"robogarage/internal/api/auth"
	"robogarage/internal/federation"
	"robogarage/internal/garage"
	"robogarage/internal/identity"
	"robogarage/internal/models"
)

// Garage - операции гаража, доступные через API
type Garage interface {
	UpsertSlot(ctx context.Context, token string) (*garage.Slot, error)
	SlotByHashID(hashID string) (*garage.Slot, bool)
	SyncCoordinator(ctx context.Context, shortAlias string) error
}

// Federation - реестр координаторов и удаленные операции
type Federation interface {
	garage.Remote
	Coordinators() []federation.Coordinator
	SetEnabled(shortAlias string, enabled bool) (bool, error)
}

// LogStore читает лог активности
type LogStore interface {
	GetLogs(ctx context.Context, hashID string, limit int) ([]models.ActivityLog, error)
}

// Avatars отдает PNG аватары роботов
type Avatars interface {
	Avatar(ctx context.Context, hashID string, size identity.AvatarSize) ([]byte, error)
}

// Handler обрабатывает API запросы
type Handler struct {
	garage      Garage
	federation  Federation
	logs        LogStore
	avatars     Avatars
	authService *auth.Service
	hub         *wsHub
	logger      *slog.Logger
}

func New(
	garage Garage,
	federation Federation,
	logs LogStore,
	avatars Avatars,
	authService *auth.Service,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		garage:      garage,
		federation:  federation,
		logs:        logs,
		avatars:     avatars,
		authService: authService,
		hub:         newWSHub(logger),
		logger:      logger,
	}
}

// Helper функции для JSON ответов

type ErrorResponse struct {
	Error      string `json:"error"`
	BadRequest string `json:"bad_request,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, statusCode int, message string) {
	h.respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func (h *Handler) respondSuccess(w http.ResponseWriter, message string, data any) {
	h.respondJSON(w, http.StatusOK, SuccessResponse{
		Message: message,
		Data:    data,
	})
}
