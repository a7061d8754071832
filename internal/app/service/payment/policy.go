package payment

import (
	"github.com/samber/lo"

	"github.com/eventcrew/feegate/internal/models"
	"github.com/eventcrew/feegate/pkg/types"
)

type DecisionKind string

const (
	DecisionCreate DecisionKind = "create"
	DecisionReuse  DecisionKind = "reuse"
	DecisionReject DecisionKind = "reject"
)

// ReuseDecision is the completion guard's verdict for one attendance.
// Payment is the row to reuse (DecisionReuse) or the terminal row that
// fired the guard (DecisionReject).
type ReuseDecision struct {
	Kind    DecisionKind
	Payment *models.Payment
}

// selectExistingPayment decides whether a new payment attempt may start.
// Normally an attendance has at most one row, but the guard stays correct
// over historical duplicates:
//
//  1. Any terminal row rejects the request; the most recently completed
//     terminal row (paidAt, then createdAt) is reported, whichever terminal
//     status it carries.
//  2. Otherwise open rows are reusable: pending wins over failed, and within
//     equal status the most recently updated row wins. A pending session
//     awaiting the attendee must survive a contemporaneous failed attempt
//     from an earlier page load, and updatedAt is the informative tie-break
//     on a mutated row.
//  3. No rows: create.
func selectExistingPayment(payments []*models.Payment) ReuseDecision {
	terminal := lo.Filter(payments, func(p *models.Payment, _ int) bool { return p.Terminal() })
	if len(terminal) > 0 {
		newest := lo.MaxBy(terminal, func(a, b *models.Payment) bool {
			return a.CompletionTime().After(b.CompletionTime())
		})
		return ReuseDecision{Kind: DecisionReject, Payment: newest}
	}

	open := lo.Filter(payments, func(p *models.Payment, _ int) bool { return p.Status.IsOpen() })
	if len(open) > 0 {
		best := lo.MaxBy(open, func(a, b *models.Payment) bool {
			if a.Status != b.Status {
				return a.Status == types.PaymentStatusPending
			}
			return a.UpdatedAt.After(b.UpdatedAt)
		})
		return ReuseDecision{Kind: DecisionReuse, Payment: best}
	}

	if len(payments) > 0 {
		// Rows exist but none is terminal or open (completed/canceled
		// history). The engine never inserts a second row for an
		// attendance, so the guard rejects with the highest-ranked row.
		highest := lo.MaxBy(payments, func(a, b *models.Payment) bool {
			return a.Status.Rank() > b.Status.Rank()
		})
		return ReuseDecision{Kind: DecisionReject, Payment: highest}
	}

	return ReuseDecision{Kind: DecisionCreate}
}
