package models

import "time"

// IdempotencyKey provides durable, DB-backed idempotency for offline-sync
// replays. Unique constraint: (outlet_id, handler_name, client_ref).
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	OutletId    int               `gorm:"not null;index:uniq_idem,unique" json:"outlet_id"`
	HandlerName string            `gorm:"size:100;not null;index:uniq_idem,unique" json:"handler_name"`
	ClientRef   string            `gorm:"size:64;not null;index:uniq_idem,unique" json:"client_ref"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	ResultId    *int              `json:"result_id"` // transaction id once SUCCEEDED
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
