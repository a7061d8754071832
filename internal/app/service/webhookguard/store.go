package webhookguard

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/eventcrew/feegate/internal/models"
)

// eventStore is the minimal durable contract the coordinator needs: atomic
// insert-if-absent (via the event_id primary key), read, upsert, delete.
type eventStore interface {
	Insert(ctx context.Context, row *models.WebhookEvent) error
	Get(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	Upsert(ctx context.Context, row *models.WebhookEvent) error
	Delete(ctx context.Context, eventID string) error
}

// GormEventStore persists webhook events in postgres; the primary key on
// event_id provides the insert-if-absent semantics.
type GormEventStore struct {
	db *gorm.DB
}

func NewGormEventStore(db *gorm.DB) *GormEventStore {
	return &GormEventStore{db: db}
}

func (s *GormEventStore) Insert(ctx context.Context, row *models.WebhookEvent) error {
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *GormEventStore) Get(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var row models.WebhookEvent
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (s *GormEventStore) Upsert(ctx context.Context, row *models.WebhookEvent) error {
	return s.db.WithContext(ctx).Save(row).Error
}

func (s *GormEventStore) Delete(ctx context.Context, eventID string) error {
	return s.db.WithContext(ctx).Where("event_id = ?", eventID).Delete(&models.WebhookEvent{}).Error
}

// isDuplicateErr matches unique-key violations across gorm error translation
// and raw postgres errors.
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "23505")
}
