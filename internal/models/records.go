package models

import "time"

// SlotRecord - сохраненное состояние слота гаража
type SlotRecord struct {
	Token       string
	HashID      string
	Nickname    string
	Keys        KeyPair
	Position    int
	IsCurrent   bool
	Robots      []Robot
	ActiveOrder *Order
	LastOrder   *Order
	CreatedAt   time.Time
}

// ActivityLog представляет запись в логе активности слота
type ActivityLog struct {
	ID        int       `json:"id"`
	HashID    string    `json:"hash_id"`
	Level     string    `json:"level"`  // "info", "warn", "error"
	Action    string    `json:"action"` // "order_activated", "order_demoted", etc.
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
