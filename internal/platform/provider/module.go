package provider

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/eventcrew/feegate/pkg/config"
)

func NewClient(cfg *config.Config, log *zap.SugaredLogger) Client {
	return NewHTTPClient(HTTPClientOptions{
		BaseURL:   cfg.Provider.BaseURL,
		SecretKey: cfg.Provider.SecretKey,
		Timeout:   cfg.Provider.Timeout,
	}, log)
}

// Module exposes the payment provider client via Fx.
var Module = fx.Options(
	fx.Provide(NewClient),
)
