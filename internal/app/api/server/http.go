package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/eventcrew/feegate/docs"
	"github.com/eventcrew/feegate/internal/app/api/handlers"
	mw "github.com/eventcrew/feegate/internal/app/api/middleware"
	"github.com/eventcrew/feegate/internal/app/service/payment"
	cfgpkg "github.com/eventcrew/feegate/pkg/config"
	metrics "github.com/eventcrew/feegate/pkg/metrics"
	"github.com/eventcrew/feegate/pkg/ratelimit"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(r *gin.Engine, log *zap.SugaredLogger, svc *payment.Service, limiter *ratelimit.Limiter, cfg *cfgpkg.Config) {
	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}
	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Attendee payment APIs, throttled per caller IP and per attendance
	payments := r.Group("/api/v1/payments")
	payments.Use(
		mw.RequestLoggerMiddleware(log),
		mw.AccessLogMiddleware(),
		mw.RateLimitMiddleware(limiter, cfg.RateLimit.Session,
			mw.ClientIPKey(cfg.RateLimit.Session.Scope),
			mw.ParamKey(cfg.RateLimit.Session.Scope, "attendance_id"),
		),
	)
	handlers.RegisterPaymentRoutes(payments, svc)

	// Provider webhook
	webhooks := r.Group("/api/v1/webhooks")
	webhooks.Use(
		mw.RequestLoggerMiddleware(log),
		mw.AccessLogMiddleware(),
		mw.RateLimitMiddleware(limiter, cfg.RateLimit.Webhook,
			mw.ClientIPKey(cfg.RateLimit.Webhook.Scope),
		),
	)
	handlers.RegisterWebhookRoutes(webhooks, svc, cfg.Provider.WebhookSecret, log)

	// Organizer admin APIs
	admin := r.Group("/api/v1/admin")
	admin.Use(
		mw.RequestLoggerMiddleware(log),
		mw.AccessLogMiddleware(),
		mw.RateLimitMiddleware(limiter, cfg.RateLimit.Admin,
			mw.ClientIPKey(cfg.RateLimit.Admin.Scope),
		),
	)
	handlers.RegisterAdminPaymentRoutes(admin, svc)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
