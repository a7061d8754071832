package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eventcrew/feegate/internal/app/service/webhookguard"
	"github.com/eventcrew/feegate/internal/models"
	"github.com/eventcrew/feegate/internal/platform/provider"
	"github.com/eventcrew/feegate/pkg/config"
	"github.com/eventcrew/feegate/pkg/logctx"
	"github.com/eventcrew/feegate/pkg/metrics"
	"github.com/eventcrew/feegate/pkg/tool"
	"github.com/eventcrew/feegate/pkg/types"
)

// conflictRetries bounds the re-read-and-retry loop on optimistic-lock
// conflicts before the conflict is surfaced.
const conflictRetries = 3

type CreateSessionRequest struct {
	AttendanceID string              `json:"attendance_id" binding:"required"`
	EventID      string              `json:"event_id" binding:"required"`
	Method       types.PaymentMethod `json:"method" binding:"required,oneof=online cash"`
	Amount       int64               `json:"amount" binding:"required,gt=0"`
	Currency     string              `json:"currency" binding:"required"`
	EventTitle   string              `json:"event_title"`
	SuccessURL   string              `json:"success_url"`
	CancelURL    string              `json:"cancel_url"`
}

type CreateSessionResult struct {
	PaymentID  string `json:"payment_id"`
	SessionURL string `json:"session_url,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	// Reused is true when an open row was reattached instead of created.
	Reused bool `json:"reused"`
}

type Service struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	db       *gorm.DB
	store    paymentStore
	provider provider.Client
	guard    *webhookguard.Coordinator
	now      func() time.Time
}

func NewService(cfg *config.Config, log *zap.SugaredLogger, db *gorm.DB, client provider.Client, guard *webhookguard.Coordinator) *Service {
	return &Service{
		cfg:      cfg,
		log:      log,
		db:       db,
		store:    NewGormPaymentStore(db),
		provider: client,
		guard:    guard,
		now:      time.Now,
	}
}

// CreateSession starts (or resumes) a payment attempt for an attendance.
// The completion guard decides: a terminal row rejects, an open row is
// reused with its provider-session fields reset, otherwise a fresh row is
// created. The engine never inserts a second row for the same attendance.
func (s *Service) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResult, error) {
	log := logctx.FromCtx(ctx, s.log)

	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		rows, err := s.store.ListByAttendance(ctx, req.AttendanceID)
		if err != nil {
			return nil, err
		}

		decision := selectExistingPayment(rows)
		switch decision.Kind {
		case DecisionReject:
			metrics.SessionDecision.WithLabelValues("reject").Inc()
			settled := decision.Payment
			return nil, fmt.Errorf("%w: attendance %s settled as %s at %s",
				ErrPaymentAlreadyExists, req.AttendanceID, settled.Status,
				settled.CompletionTime().Format(time.RFC3339))

		case DecisionCreate:
			row := s.newPaymentRow(req)
			if err := s.store.Insert(ctx, row); err != nil {
				if isDuplicateKeyErr(err) {
					// Lost the insert race to a concurrent request:
					// re-read and let the guard decide again.
					lastErr = ErrConcurrentUpdate
					continue
				}
				return nil, fmt.Errorf("failed to create payment: %w", err)
			}
			metrics.SessionDecision.WithLabelValues("create").Inc()
			res, err := s.attachProviderSession(ctx, row, req, false)
			if err != nil {
				if errors.Is(err, ErrConcurrentUpdate) {
					lastErr = err
					continue
				}
				return nil, err
			}
			return res, nil

		case DecisionReuse:
			row := decision.Payment
			expected := row.Version
			s.resetForReuse(row, req)
			if err := s.store.UpdateGuarded(ctx, row, expected); err != nil {
				if errors.Is(err, ErrConcurrentUpdate) {
					lastErr = err
					continue
				}
				return nil, err
			}
			metrics.SessionDecision.WithLabelValues("reuse").Inc()
			log.Infow("reusing open payment row",
				"payment_id", row.ID, "attendance_id", req.AttendanceID)
			res, err := s.attachProviderSession(ctx, row, req, true)
			if err != nil {
				if errors.Is(err, ErrConcurrentUpdate) {
					lastErr = err
					continue
				}
				return nil, err
			}
			return res, nil
		}
	}

	return nil, fmt.Errorf("create session for attendance %s: %w", req.AttendanceID, lastErr)
}

func (s *Service) newPaymentRow(req *CreateSessionRequest) *models.Payment {
	return &models.Payment{
		ID:             tool.GenerateUUIDV7(),
		AttendanceID:   req.AttendanceID,
		EventID:        req.EventID,
		Method:         req.Method,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Status:         types.PaymentStatusPending,
		IdempotencyKey: lo.ToPtr(tool.GenerateUUIDV7()),
		Extra:          datatypes.NewJSONType(&models.PaymentExtra{EventTitle: req.EventTitle}),
	}
}

// resetForReuse reattaches an open row to a new attempt: provider-session
// fields cleared, fresh idempotency key, failed rows revived to pending.
func (s *Service) resetForReuse(row *models.Payment, req *CreateSessionRequest) {
	row.Method = req.Method
	row.Amount = req.Amount
	row.Currency = req.Currency
	row.ProviderSessionID = nil
	row.ProviderPaymentIntentID = nil
	row.IdempotencyKey = lo.ToPtr(tool.GenerateUUIDV7())
	if row.Status == types.PaymentStatusFailed {
		row.Status = types.PaymentStatusPending
	}
}

// attachProviderSession issues the checkout session for online payments and
// stores its id on the row. Cash obligations stop at the pending row.
func (s *Service) attachProviderSession(ctx context.Context, row *models.Payment, req *CreateSessionRequest, reused bool) (*CreateSessionResult, error) {
	if req.Method == types.PaymentMethodCash {
		return &CreateSessionResult{PaymentID: row.ID, Reused: reused}, nil
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, &provider.CheckoutSessionRequest{
		AttendanceID:   req.AttendanceID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Description:    req.EventTitle,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		IdempotencyKey: lo.FromPtr(row.IdempotencyKey),
		Metadata: map[string]string{
			"payment_id":    row.ID,
			"attendance_id": req.AttendanceID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	expected := row.Version
	row.ProviderSessionID = lo.ToPtr(sess.ID)
	if err := s.store.UpdateGuarded(ctx, row, expected); err != nil {
		return nil, err
	}

	return &CreateSessionResult{
		PaymentID:  row.ID,
		SessionURL: sess.URL,
		SessionID:  sess.ID,
		Reused:     reused,
	}, nil
}

// GetByAttendance returns the payment row for an attendance, or nil.
func (s *Service) GetByAttendance(ctx context.Context, attendanceID string) (*models.Payment, error) {
	rows, err := s.store.ListByAttendance(ctx, attendanceID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	best := lo.MaxBy(rows, func(a, b *models.Payment) bool {
		return a.Status.Rank() > b.Status.Rank()
	})
	return best, nil
}

// MarkCashReceived records an organizer's confirmation of a cash payment.
func (s *Service) MarkCashReceived(ctx context.Context, paymentID, operatorID, note string) (*models.Payment, error) {
	return s.applyOrganizerTransition(ctx, paymentID, types.PaymentStatusReceived, operatorID, note)
}

// WaivePayment waives the fee obligation.
func (s *Service) WaivePayment(ctx context.Context, paymentID, operatorID, note string) (*models.Payment, error) {
	return s.applyOrganizerTransition(ctx, paymentID, types.PaymentStatusWaived, operatorID, note)
}

// RefundPayment records a refund decision on a settled payment.
func (s *Service) RefundPayment(ctx context.Context, paymentID, operatorID, note string) (*models.Payment, error) {
	return s.applyOrganizerTransition(ctx, paymentID, types.PaymentStatusRefunded, operatorID, note)
}

func (s *Service) applyOrganizerTransition(ctx context.Context, paymentID string, next types.PaymentStatus, operatorID, note string) (*models.Payment, error) {
	for attempt := 0; attempt < conflictRetries; attempt++ {
		row, err := s.store.GetByID(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		if !types.ValidTransition(row.Method, row.Status, next) {
			return nil, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, row.Method, row.Status, next)
		}

		expected := row.Version
		row.Status = next
		if next == types.PaymentStatusReceived {
			row.PaidAt = lo.ToPtr(s.now())
		}
		row.Extra = datatypes.NewJSONType(&models.PaymentExtra{
			EventTitle: lo.FromPtrOr(extraOf(row), models.PaymentExtra{}).EventTitle,
			OperatorID: operatorID,
			Note:       note,
		})

		err = s.store.UpdateGuarded(ctx, row, expected)
		if err == nil {
			logctx.FromCtx(ctx, s.log).Infow("organizer transition applied",
				"payment_id", row.ID, "status", next, "operator_id", operatorID)
			return row, nil
		}
		if !errors.Is(err, ErrConcurrentUpdate) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("organizer transition on %s: %w", paymentID, ErrConcurrentUpdate)
}

func extraOf(row *models.Payment) *models.PaymentExtra {
	return row.Extra.Data()
}

// ScanPayments implements paginated admin listing with filters.
func (s *Service) ScanPayments(ctx context.Context, req *ScanPaymentsRequest) (*ScanPaymentsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.Payment{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}

	var rows []*models.Payment
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	if req.SortBy != "" {
		q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: req.SortBy}, Desc: req.SortOrder != "asc"}}})
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	return &ScanPaymentsResponse{Items: rows, Total: total}, nil
}

type ScanPaymentsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanPaymentsResponse struct {
	Items []*models.Payment `json:"items"`
	Total int64             `json:"total"`
}

// filtersAnd combines multiple CommonFilter into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}
