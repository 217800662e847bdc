package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// KeyPair - ключи робота (приватный ключ зашифрован токеном)
type KeyPair struct {
	PubKey     string `json:"pub_key"`
	EncPrivKey string `json:"enc_priv_key"`
}

// Credentials - учетные данные робота, выведенные из одного токена.
// Только эти поля копируются при подключении нового координатора.
type Credentials struct {
	Token string `json:"-"`
	KeyPair
	TokenSHA256      string  `json:"token_sha256"`
	HasEnoughEntropy bool    `json:"has_enough_entropy"`
	BitsEntropy      float64 `json:"bits_entropy"`
	ShannonEntropy   float64 `json:"shannon_entropy"`
}

// Robot - псевдонимная личность, привязанная к одному координатору
type Robot struct {
	Credentials
	ShortAlias    string `json:"short_alias"`
	Nickname      string `json:"nickname,omitempty"`
	LastOrderID   string `json:"last_order_id,omitempty"`
	ActiveOrderID string `json:"active_order_id,omitempty"`
	EarnedRewards int64  `json:"earned_rewards"`
	Found         bool   `json:"found"`
	TGEnabled     bool   `json:"tg_enabled"`
}

// NewRobot создает робота для координатора из учетных данных.
// Поля состояния (ордера, награды) не переносятся.
func NewRobot(shortAlias string, creds Credentials) Robot {
	return Robot{
		Credentials: creds,
		ShortAlias:  shortAlias,
	}
}

// OrderType - сторона ордера
type OrderType int

const (
	OrderTypeBuy  OrderType = 0
	OrderTypeSell OrderType = 1
)

func (t OrderType) String() string {
	if t == OrderTypeSell {
		return "sell"
	}

	return "buy"
}

// Order - состояние одной сделки, синхронизированное с координатором
type Order struct {
	ID            string          `json:"id"`
	ShortAlias    string          `json:"short_alias"`
	Status        OrderStatus     `json:"status"`
	IsParticipant bool            `json:"is_participant"`
	BadRequest    string          `json:"bad_request,omitempty"`
	Type          OrderType       `json:"type"`
	Currency      int             `json:"currency,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Premium       decimal.Decimal `json:"premium"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	ExpiresAt     time.Time       `json:"expires_at,omitzero"`
}

// NewPlaceholderOrder создает ордер, известный только по id и координатору
func NewPlaceholderOrder(id, shortAlias string) Order {
	return Order{
		ID:         id,
		ShortAlias: shortAlias,
		Status:     StatusUnresolved,
	}
}

// Is проверяет совпадение пары (id, координатор)
func (o *Order) Is(id, shortAlias string) bool {
	return o != nil && o.ID == id && o.ShortAlias == shortAlias
}

// SameAs проверяет, что два ордера ссылаются на одну и ту же сделку
func (o *Order) SameAs(other *Order) bool {
	return other != nil && o.Is(other.ID, other.ShortAlias)
}

// Update перезаписывает удаленные поля ордера значениями из other.
// Идентичность (id, координатор) не меняется. Отказ без статуса
// (bad_request при StatusUnresolved) меняет только BadRequest: детали сделки сохраняются.
func (o *Order) Update(other Order) {
	if other.BadRequest != "" && other.Status == StatusUnresolved {
		o.BadRequest = other.BadRequest
		return
	}

	o.Status = other.Status
	o.IsParticipant = other.IsParticipant
	o.BadRequest = other.BadRequest
	o.Type = other.Type
	o.Currency = other.Currency
	o.Amount = other.Amount
	o.Premium = other.Premium
	o.PaymentMethod = other.PaymentMethod
	o.ExpiresAt = other.ExpiresAt
}

// OrderAttributes - параметры создания нового ордера
type OrderAttributes struct {
	ShortAlias     string          `json:"short_alias"`
	Type           OrderType       `json:"type"`
	Currency       int             `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	HasRange       bool            `json:"has_range"`
	MinAmount      decimal.Decimal `json:"min_amount"`
	MaxAmount      decimal.Decimal `json:"max_amount"`
	PaymentMethod  string          `json:"payment_method"`
	IsExplicit     bool            `json:"is_explicit"`
	Premium        decimal.Decimal `json:"premium"`
	Satoshis       int64           `json:"satoshis,omitempty"`
	PublicDuration int             `json:"public_duration"`
	EscrowDuration int             `json:"escrow_duration"`
	BondSize       decimal.Decimal `json:"bond_size"`
}
