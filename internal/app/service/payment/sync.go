package payment

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/eventcrew/feegate/internal/platform/provider"
)

// SyncAccountStatus pulls the provider account state once, through the
// classified retry driver.
func (s *Service) SyncAccountStatus(ctx context.Context) (*provider.AccountStatus, error) {
	policy := provider.RetryPolicy{
		MaxRetries:     s.cfg.Provider.Retry.MaxRetries,
		InitialBackoff: s.cfg.Provider.Retry.InitialBackoff,
	}
	return provider.WithRetry(ctx, s.log, policy, "account_status_sync",
		func(ctx context.Context) (*provider.AccountStatus, error) {
			return s.provider.GetAccountStatus(ctx, s.cfg.Provider.AccountID)
		})
}

// RunAccountSync starts the periodic account-status sync loop when an
// account id and interval are configured.
func RunAccountSync(lc fx.Lifecycle, s *Service) {
	interval := s.cfg.Provider.SyncInterval
	if interval <= 0 || s.cfg.Provider.AccountID == "" {
		return
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-loopCtx.Done():
						return
					case <-ticker.C:
						s.syncOnce(loopCtx)
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}

func (s *Service) syncOnce(ctx context.Context) {
	syncCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	status, err := s.SyncAccountStatus(syncCtx)
	if err != nil {
		s.log.Errorw("account status sync failed", "err", err)
		return
	}
	s.log.Infow("account status synced",
		"account_id", status.ID,
		"charges_enabled", status.ChargesEnabled,
		"payouts_enabled", status.PayoutsEnabled,
		"disabled_reason", status.DisabledReason)
}
