package coordinator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"robogarage/internal/models"
)

var ErrBadRequest = errors.New("coordinator rejected request")

// RequestError - ответ координатора с ошибкой
type RequestError struct {
	StatusCode int
	BadRequest string
}

func (e *RequestError) Error() string {
	if e.BadRequest != "" {
		return fmt.Sprintf("coordinator returned %d: %s", e.StatusCode, e.BadRequest)
	}

	return fmt.Sprintf("coordinator returned %d", e.StatusCode)
}

func (e *RequestError) Is(target error) bool {
	return target == ErrBadRequest
}

// wireID принимает id как число или строку, null - пустая строка
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*id = wireID(n.String())
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}

	*id = wireID(s)

	return nil
}

type robotResponse struct {
	Nickname            string `json:"nickname"`
	PublicKey           string `json:"public_key"`
	EncryptedPrivateKey string `json:"encrypted_private_key"`
	EarnedRewards       int64  `json:"earned_rewards"`
	TGEnabled           bool   `json:"tg_enabled"`
	Found               bool   `json:"found"`
	LastOrderID         wireID `json:"last_order_id"`
	ActiveOrderID       wireID `json:"active_order_id"`
	BadRequest          string `json:"bad_request"`
}

type orderResponse struct {
	ID            wireID          `json:"id"`
	Status        *int            `json:"status"`
	IsParticipant bool            `json:"is_participant"`
	BadRequest    string          `json:"bad_request"`
	Type          int             `json:"type"`
	Currency      int             `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	Premium       decimal.Decimal `json:"premium"`
	PaymentMethod string          `json:"payment_method"`
	ExpiresAt     *time.Time      `json:"expires_at"`
}

// toOrder переводит ответ в модель. Отсутствующий статус остается StatusUnresolved.
func (r orderResponse) toOrder(id, shortAlias string) models.Order {
	order := models.Order{
		ID:            id,
		ShortAlias:    shortAlias,
		Status:        models.StatusUnresolved,
		IsParticipant: r.IsParticipant,
		BadRequest:    r.BadRequest,
		Type:          models.OrderType(r.Type),
		Currency:      r.Currency,
		Amount:        r.Amount,
		Premium:       r.Premium,
		PaymentMethod: r.PaymentMethod,
	}

	if r.ID != "" {
		order.ID = string(r.ID)
	}

	if r.Status != nil {
		order.Status = models.OrderStatus(*r.Status)
	}

	if r.ExpiresAt != nil {
		order.ExpiresAt = *r.ExpiresAt
	}

	return order
}

type makeRequest struct {
	Type           int              `json:"type"`
	Currency       int              `json:"currency"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	HasRange       bool             `json:"has_range"`
	MinAmount      *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount      *decimal.Decimal `json:"max_amount,omitempty"`
	PaymentMethod  string           `json:"payment_method"`
	IsExplicit     bool             `json:"is_explicit"`
	Premium        decimal.Decimal  `json:"premium"`
	Satoshis       int64            `json:"satoshis,omitempty"`
	PublicDuration int              `json:"public_duration"`
	EscrowDuration int              `json:"escrow_duration"`
	BondSize       decimal.Decimal  `json:"bond_size"`
}

func newMakeRequest(attrs models.OrderAttributes) makeRequest {
	req := makeRequest{
		Type:           int(attrs.Type),
		Currency:       attrs.Currency,
		HasRange:       attrs.HasRange,
		PaymentMethod:  attrs.PaymentMethod,
		IsExplicit:     attrs.IsExplicit,
		Premium:        attrs.Premium,
		Satoshis:       attrs.Satoshis,
		PublicDuration: attrs.PublicDuration,
		EscrowDuration: attrs.EscrowDuration,
		BondSize:       attrs.BondSize,
	}

	if attrs.HasRange {
		req.MinAmount = &attrs.MinAmount
		req.MaxAmount = &attrs.MaxAmount
	} else {
		req.Amount = &attrs.Amount
	}

	return req
}
