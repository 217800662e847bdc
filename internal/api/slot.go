package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"robogarage/internal/api/middleware"
	"robogarage/internal/federation"
	"robogarage/internal/garage"
	"robogarage/internal/identity"
	"robogarage/internal/models"
	"robogarage/pkg/services/coordinator"
)

// SlotResponse - состояние слота для клиента
type SlotResponse struct {
	HashID       string         `json:"hash_id"`
	Nickname     string         `json:"nickname"`
	CopiedToken  bool           `json:"copied_token"`
	CurrentRobot string         `json:"current_robot,omitempty"`
	Robots       []models.Robot `json:"robots"`
	ActiveOrder  *models.Order  `json:"active_order"`
	LastOrder    *models.Order  `json:"last_order"`
}

type CopiedRequest struct {
	Copied bool `json:"copied"`
}

func newSlotResponse(slot *garage.Slot) SlotResponse {
	resp := SlotResponse{
		HashID:      slot.HashID(),
		Nickname:    slot.Nickname(),
		CopiedToken: slot.CopiedToken(),
		Robots:      slot.Robots(),
	}

	if robot, ok := slot.GetRobot(""); ok {
		resp.CurrentRobot = robot.ShortAlias
	}

	if order, ok := slot.ActiveOrder(); ok {
		resp.ActiveOrder = &order
	}

	if order, ok := slot.LastOrder(); ok {
		resp.LastOrder = &order
	}

	return resp
}

// slot находит слот текущей сессии, при ошибке отвечает сам
func (h *Handler) slot(w http.ResponseWriter, r *http.Request) (*garage.Slot, bool) {
	hashID, ok := middleware.GetHashID(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}

	slot, ok := h.garage.SlotByHashID(hashID)
	if !ok {
		h.respondError(w, http.StatusNotFound, "Slot not found, login again")
		return nil, false
	}

	return slot, true
}

// HandleGetSlot возвращает состояние слота
func (h *Handler) HandleGetSlot(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.slot(w, r)
	if !ok {
		return
	}

	h.respondSuccess(w, "", newSlotResponse(slot))
}

// HandleRefreshSlot обновляет роботов и активный ордер с координаторов
func (h *Handler) HandleRefreshSlot(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.slot(w, r)
	if !ok {
		return
	}

	err := slot.FetchRobot(r.Context(), h.federation)

	orderErr := slot.FetchActiveOrder(r.Context(), h.federation)
	if !errors.Is(orderErr, garage.ErrNoActiveOrder) {
		err = errors.Join(err, orderErr)
	}

	if err != nil {
		h.logger.Warn("Slot refreshed with errors", "error", err)
		h.respondSuccess(w, "Refreshed with errors: "+err.Error(), newSlotResponse(slot))

		return
	}

	h.respondSuccess(w, "Refreshed", newSlotResponse(slot))
}

// HandleRefreshOrder обновляет активный ордер
func (h *Handler) HandleRefreshOrder(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.slot(w, r)
	if !ok {
		return
	}

	if err := slot.FetchActiveOrder(r.Context(), h.federation); err != nil {
		if errors.Is(err, garage.ErrNoActiveOrder) {
			h.respondError(w, http.StatusNotFound, "No active order")
			return
		}

		h.respondError(w, http.StatusBadGateway, err.Error())

		return
	}

	h.respondSuccess(w, "Order refreshed", newSlotResponse(slot))
}

// HandleMakeOrder создает ордер от имени робота слота
func (h *Handler) HandleMakeOrder(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.slot(w, r)
	if !ok {
		return
	}

	var attrs models.OrderAttributes
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := slot.MakeOrder(r.Context(), h.federation, attrs)
	if err != nil {
		var reqErr *coordinator.RequestError

		switch {
		case errors.Is(err, garage.ErrRobotNotFound):
			h.respondError(w, http.StatusNotFound, "Robot not found for coordinator")
		case errors.As(err, &reqErr):
			h.respondJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:      "Coordinator rejected the order",
				BadRequest: reqErr.BadRequest,
			})
		default:
			h.respondError(w, http.StatusBadGateway, err.Error())
		}

		return
	}

	h.respondSuccess(w, "Order created", order)
}

// HandleGetRobot возвращает робота координатора или текущего робота
func (h *Handler) HandleGetRobot(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.slot(w, r)
	if !ok {
		return
	}

	robot, ok := slot.GetRobot(mux.Vars(r)["alias"])
	if !ok {
		h.respondError(w, http.StatusNotFound, "Robot not found")
		return
	}

	h.respondSuccess(w, "", robot)
}

// HandleGetCoordinators возвращает координаторов федерации
func (h *Handler) HandleGetCoordinators(w http.ResponseWriter, r *http.Request) {
	h.respondSuccess(w, "", h.federation.Coordinators())
}

// HandleEnableCoordinator включает координатора и подключает к нему все слоты
func (h *Handler) HandleEnableCoordinator(w http.ResponseWriter, r *http.Request) {
	alias := mux.Vars(r)["alias"]

	if _, err := h.federation.SetEnabled(alias, true); err != nil {
		if errors.Is(err, federation.ErrUnknownCoordinator) {
			h.respondError(w, http.StatusNotFound, "Unknown coordinator")
			return
		}

		h.respondError(w, http.StatusInternalServerError, err.Error())

		return
	}

	if err := h.garage.SyncCoordinator(r.Context(), alias); err != nil {
		h.logger.Warn("Coordinator sync finished with errors", "short_alias", alias, "error", err)
	}

	slot, ok := h.slot(w, r)
	if !ok {
		return
	}

	h.respondSuccess(w, "Coordinator enabled", newSlotResponse(slot))
}

// HandleDisableCoordinator выключает координатора. Роботы слотов остаются.
func (h *Handler) HandleDisableCoordinator(w http.ResponseWriter, r *http.Request) {
	alias := mux.Vars(r)["alias"]

	if _, err := h.federation.SetEnabled(alias, false); err != nil {
		if errors.Is(err, federation.ErrUnknownCoordinator) {
			h.respondError(w, http.StatusNotFound, "Unknown coordinator")
			return
		}

		h.respondError(w, http.StatusInternalServerError, err.Error())

		return
	}

	h.respondSuccess(w, "Coordinator disabled", nil)
}

// HandleSetCopied отмечает, что токен скопирован пользователем
func (h *Handler) HandleSetCopied(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.slot(w, r)
	if !ok {
		return
	}

	var req CopiedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	slot.SetCopiedToken(req.Copied)

	h.respondSuccess(w, "Updated", newSlotResponse(slot))
}

// HandleGetLogs возвращает лог активности слота
func (h *Handler) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.slot(w, r)
	if !ok {
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = min(parsed, 500)
		}
	}

	logs, err := h.logs.GetLogs(r.Context(), slot.HashID(), limit)
	if err != nil {
		h.logger.Error("Failed to get logs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to get logs")

		return
	}

	if logs == nil {
		logs = []models.ActivityLog{}
	}

	h.respondSuccess(w, "", logs)
}

// HandleGetAvatar отдает аватар робота слота (size=small|large)
func (h *Handler) HandleGetAvatar(w http.ResponseWriter, r *http.Request) {
	slot, ok := h.slot(w, r)
	if !ok {
		return
	}

	size := identity.AvatarSmall
	switch r.URL.Query().Get("size") {
	case "", string(identity.AvatarSmall):
	case string(identity.AvatarLarge):
		size = identity.AvatarLarge
	default:
		h.respondError(w, http.StatusBadRequest, "Unknown avatar size")
		return
	}

	data, err := h.avatars.Avatar(r.Context(), slot.HashID(), size)
	if err != nil {
		h.logger.Error("Failed to render avatar", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Failed to render avatar")

		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "max-age=86400")
	w.Write(data)
}
