package types

type PaymentMethod string

const (
	PaymentMethodOnline PaymentMethod = "online"
	PaymentMethodCash   PaymentMethod = "cash"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusReceived  PaymentStatus = "received"
	PaymentStatusWaived    PaymentStatus = "waived"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusCanceled  PaymentStatus = "canceled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// statusRank orders statuses for guard decisions and candidate selection.
// paid and received share a rank: both mean "funds secured", one via the
// provider checkout, one via manual cash confirmation.
var statusRank = map[PaymentStatus]int{
	PaymentStatusPending:   10,
	PaymentStatusFailed:    15,
	PaymentStatusPaid:      20,
	PaymentStatusReceived:  20,
	PaymentStatusWaived:    25,
	PaymentStatusCompleted: 30,
	PaymentStatusCanceled:  35,
	PaymentStatusRefunded:  40,
}

func (s PaymentStatus) Rank() int {
	return statusRank[s]
}

// terminalStatuses is the single source of truth for the completion guard.
// Every call site must derive terminality from here, never ad hoc.
var terminalStatuses = map[PaymentStatus]struct{}{
	PaymentStatusPaid:     {},
	PaymentStatusReceived: {},
	PaymentStatusRefunded: {},
	PaymentStatusWaived:   {},
}

// IsTerminal reports whether no further provider-driven mutation is expected.
func (s PaymentStatus) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// IsOpen reports whether the payment row may be reused for a new attempt.
func (s PaymentStatus) IsOpen() bool {
	return s == PaymentStatusPending || s == PaymentStatusFailed
}

var statusTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {
		PaymentStatusPaid, PaymentStatusReceived, PaymentStatusFailed,
		PaymentStatusCompleted, PaymentStatusRefunded, PaymentStatusWaived,
	},
	PaymentStatusPaid:      {PaymentStatusCompleted, PaymentStatusRefunded},
	PaymentStatusReceived:  {PaymentStatusCompleted},
	PaymentStatusFailed:    {PaymentStatusPending},
	PaymentStatusCompleted: {PaymentStatusRefunded},
	PaymentStatusRefunded:  {},
	PaymentStatusWaived:    {PaymentStatusCompleted},
	PaymentStatusCanceled:  {},
}

// ValidTransition reports whether a payment with the given method may move
// from current to next. Online payments never reach received (cash-only
// confirmation) and cash payments never reach paid (provider-only).
func ValidTransition(method PaymentMethod, current, next PaymentStatus) bool {
	if method == PaymentMethodOnline && next == PaymentStatusReceived {
		return false
	}
	if method == PaymentMethodCash && next == PaymentStatusPaid {
		return false
	}
	for _, candidate := range statusTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
