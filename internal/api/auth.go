package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"robogarage/internal/garage"
	"robogarage/internal/identity"
)

type LoginRequest struct {
	Token string `json:"token"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	HashID   string `json:"hash_id"`
	Nickname string `json:"nickname,omitempty"`
}

type GeneratedTokenResponse struct {
	Token string         `json:"token"`
	Score identity.Score `json:"entropy"`
}

// HandleLogin открывает слот по токену робота и выдает JWT сессии
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	slot, err := h.garage.UpsertSlot(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, garage.ErrEmptyToken) {
			h.respondError(w, http.StatusBadRequest, "Token is required")
			return
		}

		h.logger.Error("Failed to open slot", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error")

		return
	}

	// Генерируем JWT токен
	token, err := h.authService.GenerateToken(slot.HashID())
	if err != nil {
		h.logger.Error("Failed to generate token", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error")

		return
	}

	h.respondSuccess(w, "Login successful", LoginResponse{
		Token:    token,
		HashID:   slot.HashID(),
		Nickname: slot.Nickname(),
	})
}

// HandleGenerateToken выдает новый случайный токен робота. Слот не создается.
func (h *Handler) HandleGenerateToken(w http.ResponseWriter, r *http.Request) {
	token, err := identity.GenerateToken(identity.DefaultTokenLength)
	if err != nil {
		h.logger.Error("Failed to generate robot token", "error", err)
		h.respondError(w, http.StatusInternalServerError, "Internal server error")

		return
	}

	h.respondSuccess(w, "Token generated", GeneratedTokenResponse{
		Token: token,
		Score: identity.Entropy(token),
	})
}
