package webhookguard

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/eventcrew/feegate/pkg/config"
)

func NewCoordinator(db *gorm.DB, log *zap.SugaredLogger, cfg *config.Config) *Coordinator {
	return New(NewGormEventStore(db), log, cfg.Webhook.LockTTL)
}

// Module exposes the webhook idempotency coordinator via Fx.
var Module = fx.Options(
	fx.Provide(NewCoordinator),
)
