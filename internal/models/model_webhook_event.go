package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent 按支付平台事件ID去重的处理记录，只承载幂等状态，不承载业务状态。
// A row is either a provisional lock marker or a committed final result;
// the primary key on event_id turns concurrent acquisition into a single
// winning insert.
type WebhookEvent struct {
	EventID   string `gorm:"column:event_id;primary_key;type:varchar(128)" json:"event_id"`
	EventType string `gorm:"column:event_type;type:varchar(128);not null" json:"event_type"`
	// ProcessingResult 锁标记 {locked, locked_at_ms} 或最终结果 {success, terminal, ...}
	ProcessingResult datatypes.JSON `gorm:"column:processing_result;type:jsonb" json:"processing_result"`
	ProcessedAt      *time.Time     `gorm:"column:processed_at;default:null" json:"processed_at"`
	CreatedAt        time.Time      `json:"created_at"`
}

func (WebhookEvent) TableName() string { return "webhook_event" }
