package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/eventcrew/feegate/internal/models"
)

// paymentStore is the ledger access the service needs. version-guarded
// updates carry the optimistic concurrency control; the unique key on
// attendance_id backstops the one-row invariant on insert.
type paymentStore interface {
	ListByAttendance(ctx context.Context, attendanceID string) ([]*models.Payment, error)
	Insert(ctx context.Context, row *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	GetByPaymentIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	// UpdateGuarded writes every mutable column of row where the stored
	// version still equals expectedVersion, bumping version by one.
	// Returns ErrConcurrentUpdate when the row moved underneath us.
	UpdateGuarded(ctx context.Context, row *models.Payment, expectedVersion int64) error
}

type GormPaymentStore struct {
	db *gorm.DB
}

func NewGormPaymentStore(db *gorm.DB) *GormPaymentStore {
	return &GormPaymentStore{db: db}
}

func (s *GormPaymentStore) ListByAttendance(ctx context.Context, attendanceID string) ([]*models.Payment, error) {
	var rows []*models.Payment
	if err := s.db.WithContext(ctx).Where("attendance_id = ?", attendanceID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return rows, nil
}

func (s *GormPaymentStore) Insert(ctx context.Context, row *models.Payment) error {
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *GormPaymentStore) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *GormPaymentStore) GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	return s.first(ctx, "provider_session_id = ?", sessionID)
}

func (s *GormPaymentStore) GetByPaymentIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	return s.first(ctx, "provider_payment_intent_id = ?", intentID)
}

func (s *GormPaymentStore) first(ctx context.Context, query string, arg any) (*models.Payment, error) {
	var row models.Payment
	err := s.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (s *GormPaymentStore) UpdateGuarded(ctx context.Context, row *models.Payment, expectedVersion int64) error {
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND version = ?", row.ID, expectedVersion).
		Updates(map[string]any{
			"method":                     row.Method,
			"amount":                     row.Amount,
			"currency":                   row.Currency,
			"status":                     row.Status,
			"paid_at":                    row.PaidAt,
			"provider_session_id":        row.ProviderSessionID,
			"provider_payment_intent_id": row.ProviderPaymentIntentID,
			"idempotency_key":            row.IdempotencyKey,
			"extra":                      row.Extra,
			"version":                    expectedVersion + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}
	row.Version = expectedVersion + 1
	return nil
}

// isDuplicateKeyErr matches unique-key violations on the attendance_id
// backstop across gorm translation and raw postgres errors.
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "23505")
}
