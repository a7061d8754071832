package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/eventcrew/feegate/internal/app/service/webhookguard"
	"github.com/eventcrew/feegate/internal/models"
	"github.com/eventcrew/feegate/internal/platform/provider"
	"github.com/eventcrew/feegate/pkg/logctx"
	"github.com/eventcrew/feegate/pkg/types"
)

// HandleWebhookEvent applies one provider notification to the ledger, at
// most once per event id. The coordinator commits only terminal outcomes;
// transient ones (payment row not visible yet) are released so the
// provider's own retry drives redelivery.
func (s *Service) HandleWebhookEvent(ctx context.Context, event *provider.WebhookEvent) (*webhookguard.ProcessingResult, error) {
	return s.guard.RunExclusive(ctx, event.ID, event.Type,
		func(ctx context.Context) (*webhookguard.ProcessingResult, error) {
			return s.applyEvent(ctx, event)
		},
		func(r *webhookguard.ProcessingResult) bool { return r.Terminal },
	)
}

func (s *Service) applyEvent(ctx context.Context, event *provider.WebhookEvent) (*webhookguard.ProcessingResult, error) {
	switch event.Type {
	case provider.EventCheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, event)
	case provider.EventCheckoutExpired, provider.EventPaymentFailed:
		return s.applyPaymentFailed(ctx, event)
	case provider.EventChargeRefunded:
		return s.applyChargeRefunded(ctx, event)
	default:
		logctx.FromCtx(ctx, s.log).Infow("ignoring webhook event type",
			"event_id", event.ID, "event_type", event.Type)
		return &webhookguard.ProcessingResult{
			Success: true, Terminal: true,
			Message: fmt.Sprintf("event type %s not handled", event.Type),
		}, nil
	}
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, event *provider.WebhookEvent) (*webhookguard.ProcessingResult, error) {
	row, err := s.findBySession(ctx, event)
	if err != nil {
		return nil, err
	}
	if row == nil {
		// The session row may not be visible yet; a released lock lets
		// the provider retry deliver later.
		return &webhookguard.ProcessingResult{
			Success: false, Terminal: false,
			Message: fmt.Sprintf("no payment for session %s", event.Data.Object.ID),
		}, nil
	}

	return s.transitionFromEvent(ctx, row, types.PaymentStatusPaid, func(p *models.Payment) {
		p.PaidAt = lo.ToPtr(s.now())
		if event.Data.Object.PaymentIntent != "" {
			p.ProviderPaymentIntentID = lo.ToPtr(event.Data.Object.PaymentIntent)
		}
	})
}

func (s *Service) applyPaymentFailed(ctx context.Context, event *provider.WebhookEvent) (*webhookguard.ProcessingResult, error) {
	row, err := s.findBySession(ctx, event)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return &webhookguard.ProcessingResult{
			Success: false, Terminal: false,
			Message: fmt.Sprintf("no payment for session %s", event.Data.Object.ID),
		}, nil
	}

	if row.Terminal() {
		// A late expiry after completion changes nothing.
		return &webhookguard.ProcessingResult{
			Success: true, Terminal: true, PaymentID: row.ID,
			Message: fmt.Sprintf("payment already settled as %s", row.Status),
		}, nil
	}

	return s.transitionFromEvent(ctx, row, types.PaymentStatusFailed, nil)
}

func (s *Service) applyChargeRefunded(ctx context.Context, event *provider.WebhookEvent) (*webhookguard.ProcessingResult, error) {
	intentID := event.Data.Object.PaymentIntent
	if intentID == "" {
		intentID = event.Data.Object.ID
	}
	row, err := s.store.GetByPaymentIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return &webhookguard.ProcessingResult{
			Success: false, Terminal: false,
			Message: fmt.Sprintf("no payment for intent %s", intentID),
		}, nil
	}

	return s.transitionFromEvent(ctx, row, types.PaymentStatusRefunded, nil)
}

// transitionFromEvent drives one status transition under the version guard,
// re-reading and retrying the decision on a conflict.
func (s *Service) transitionFromEvent(ctx context.Context, row *models.Payment, next types.PaymentStatus, mutate func(*models.Payment)) (*webhookguard.ProcessingResult, error) {
	for attempt := 0; attempt < conflictRetries; attempt++ {
		if row.Status == next {
			return &webhookguard.ProcessingResult{
				Success: true, Terminal: true, PaymentID: row.ID,
				Message: fmt.Sprintf("payment already %s", next),
			}, nil
		}
		if !types.ValidTransition(row.Method, row.Status, next) {
			// No retry will make this transition legal; commit the
			// outcome so the provider stops redelivering.
			return &webhookguard.ProcessingResult{
				Success: false, Terminal: true, PaymentID: row.ID,
				Message: fmt.Sprintf("invalid transition %s %s -> %s", row.Method, row.Status, next),
			}, nil
		}

		expected := row.Version
		row.Status = next
		if mutate != nil {
			mutate(row)
		}

		err := s.store.UpdateGuarded(ctx, row, expected)
		if err == nil {
			logctx.FromCtx(ctx, s.log).Infow("webhook transition applied",
				"payment_id", row.ID, "status", next)
			return &webhookguard.ProcessingResult{
				Success: true, Terminal: true, PaymentID: row.ID,
			}, nil
		}
		if !errors.Is(err, ErrConcurrentUpdate) {
			return nil, err
		}

		row, err = s.store.GetByID(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, fmt.Errorf("%w: payment vanished mid-transition", ErrPaymentNotFound)
		}
	}
	return nil, fmt.Errorf("webhook transition to %s: %w", next, ErrConcurrentUpdate)
}

func (s *Service) findBySession(ctx context.Context, event *provider.WebhookEvent) (*models.Payment, error) {
	row, err := s.store.GetBySessionID(ctx, event.Data.Object.ID)
	if err != nil {
		return nil, err
	}
	if row != nil {
		return row, nil
	}
	if paymentID := event.Data.Object.Metadata["payment_id"]; paymentID != "" {
		return s.store.GetByID(ctx, paymentID)
	}
	return nil, nil
}
