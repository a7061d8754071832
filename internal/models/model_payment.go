package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/eventcrew/feegate/pkg/types"
)

type PaymentExtra struct {
	// EventTitle 活动标题快照
	EventTitle string `json:"event_title,omitempty"`
	// OperatorID 操作员ID（现金确认/免除/退款时记录）
	OperatorID string `json:"operator_id,omitempty"`
	// Note 操作备注
	Note string `json:"note,omitempty"`
}

// Payment 参会费用义务，每个 attendance 至多一条记录。
// The unique index on attendance_id is the hard backstop for the completion
// guard: the engine reuses or rejects, it never inserts a second row.
type Payment struct {
	ID           string              `gorm:"column:id;primary_key;type:uuid;index:idx_attendance_id_id,priority:2,sort:desc" json:"id"`
	AttendanceID string              `gorm:"column:attendance_id;type:varchar(64);not null;uniqueIndex:unique_payment_attendance_id;index:idx_attendance_id_id,priority:1" json:"attendance_id"`
	EventID      string              `gorm:"column:event_id;type:varchar(64);not null;index" json:"event_id"`
	Method       types.PaymentMethod `gorm:"column:method;type:varchar(16);not null" json:"method"`
	// Amount 金额，最小货币单位
	Amount   int64               `gorm:"column:amount;type:bigint;not null" json:"amount"`
	Currency string              `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status   types.PaymentStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	// PaidAt 支付完成时间
	PaidAt *time.Time `gorm:"column:paid_at;default:null" json:"paid_at"`
	// ProviderSessionID 支付会话ID，重新发起支付时重置
	ProviderSessionID *string `gorm:"column:provider_session_id;type:varchar(128);default:null" json:"provider_session_id"`
	// ProviderPaymentIntentID webhook 回填的支付单ID
	ProviderPaymentIntentID *string `gorm:"column:provider_payment_intent_id;type:varchar(128);default:null" json:"provider_payment_intent_id"`
	// IdempotencyKey 创建支付会话时生成的幂等键
	IdempotencyKey *string `gorm:"column:idempotency_key;type:varchar(64);default:null" json:"idempotency_key"`
	// Version 乐观锁计数，更新时必须匹配
	Version int64 `gorm:"column:version;type:bigint;not null;default:0" json:"version"`

	Extra     datatypes.JSONType[*PaymentExtra] `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt time.Time                         `json:"created_at"`
	UpdatedAt time.Time                         `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payment"
}

func (p *Payment) Terminal() bool {
	if p == nil {
		return false
	}
	return p.Status.IsTerminal()
}

// CompletionTime is the (paidAt, createdAt) tuple used to pick the most
// recent terminal row for guard error messages. PaidAt wins when present.
func (p *Payment) CompletionTime() time.Time {
	if p.PaidAt != nil {
		return *p.PaidAt
	}
	return p.CreatedAt
}
