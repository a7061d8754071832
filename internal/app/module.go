package app

import (
    "github.com/eventcrew/feegate/internal/app/api/server"
    "github.com/eventcrew/feegate/internal/app/service/payment"
    "github.com/eventcrew/feegate/internal/app/service/webhookguard"
    "github.com/eventcrew/feegate/internal/platform/cache"
    "github.com/eventcrew/feegate/internal/platform/db"
    "github.com/eventcrew/feegate/internal/platform/provider"
    "github.com/eventcrew/feegate/pkg/config"
    "github.com/eventcrew/feegate/pkg/logger"
	"time"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
    logger.Module,
    config.Module,
    db.Module,
    cache.Module,
    provider.Module,
    webhookguard.Module,
    payment.Module,
    server.Module,
)
