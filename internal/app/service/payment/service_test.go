package payment

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/eventcrew/feegate/internal/app/service/webhookguard"
	"github.com/eventcrew/feegate/internal/models"
	"github.com/eventcrew/feegate/internal/platform/provider"
	"github.com/eventcrew/feegate/pkg/config"
	"github.com/eventcrew/feegate/pkg/types"
)

// memoryPaymentStore mimics the postgres ledger, including the unique key
// on attendance_id and the version guard.
type memoryPaymentStore struct {
	mu   sync.Mutex
	rows map[string]models.Payment
}

func newMemoryPaymentStore() *memoryPaymentStore {
	return &memoryPaymentStore{rows: make(map[string]models.Payment)}
}

func (m *memoryPaymentStore) ListByAttendance(_ context.Context, attendanceID string) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Payment
	for _, row := range m.rows {
		if row.AttendanceID == attendanceID {
			cp := row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryPaymentStore) Insert(_ context.Context, row *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.AttendanceID == row.AttendanceID {
			return gorm.ErrDuplicatedKey
		}
	}
	row.CreatedAt = time.Now()
	row.UpdatedAt = row.CreatedAt
	m.rows[row.ID] = *row
	return nil
}

func (m *memoryPaymentStore) GetByID(_ context.Context, id string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (m *memoryPaymentStore) GetBySessionID(_ context.Context, sessionID string) (*models.Payment, error) {
	return m.findBy(func(p models.Payment) bool {
		return p.ProviderSessionID != nil && *p.ProviderSessionID == sessionID
	})
}

func (m *memoryPaymentStore) GetByPaymentIntentID(_ context.Context, intentID string) (*models.Payment, error) {
	return m.findBy(func(p models.Payment) bool {
		return p.ProviderPaymentIntentID != nil && *p.ProviderPaymentIntentID == intentID
	})
}

func (m *memoryPaymentStore) findBy(match func(models.Payment) bool) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if match(row) {
			cp := row
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryPaymentStore) UpdateGuarded(_ context.Context, row *models.Payment, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rows[row.ID]
	if !ok || stored.Version != expectedVersion {
		return ErrConcurrentUpdate
	}
	row.Version = expectedVersion + 1
	row.UpdatedAt = time.Now()
	row.CreatedAt = stored.CreatedAt
	m.rows[row.ID] = *row
	return nil
}

// memoryEventStore gives the coordinator insert-if-absent semantics in
// tests.
type memoryEventStore struct {
	mu   sync.Mutex
	rows map[string]models.WebhookEvent
}

func newMemoryEventStore() *memoryEventStore {
	return &memoryEventStore{rows: make(map[string]models.WebhookEvent)}
}

func (m *memoryEventStore) Insert(_ context.Context, row *models.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[row.EventID]; ok {
		return gorm.ErrDuplicatedKey
	}
	m.rows[row.EventID] = *row
	return nil
}

func (m *memoryEventStore) Get(_ context.Context, eventID string) (*models.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[eventID]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (m *memoryEventStore) Upsert(_ context.Context, row *models.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[row.EventID] = *row
	return nil
}

func (m *memoryEventStore) Delete(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, eventID)
	return nil
}

// stubProviderClient records checkout session calls.
type stubProviderClient struct {
	mu       sync.Mutex
	sessions int
	lastReq  *provider.CheckoutSessionRequest
}

func (s *stubProviderClient) CreateCheckoutSession(_ context.Context, req *provider.CheckoutSessionRequest) (*provider.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions++
	s.lastReq = req
	id := fmt.Sprintf("cs_%d", s.sessions)
	return &provider.CheckoutSession{ID: id, URL: "https://pay.example.com/" + id}, nil
}

func (s *stubProviderClient) GetCheckoutSession(_ context.Context, sessionID string) (*provider.CheckoutSession, error) {
	return &provider.CheckoutSession{ID: sessionID}, nil
}

func (s *stubProviderClient) GetAccountStatus(_ context.Context, accountID string) (*provider.AccountStatus, error) {
	return &provider.AccountStatus{ID: accountID, ChargesEnabled: true}, nil
}

func newTestService(t *testing.T) (*Service, *memoryPaymentStore, *stubProviderClient) {
	t.Helper()
	store := newMemoryPaymentStore()
	client := &stubProviderClient{}
	guard := webhookguard.New(newMemoryEventStore(), zap.NewNop().Sugar(), time.Minute)
	svc := &Service{
		cfg:      &config.Config{},
		log:      zap.NewNop().Sugar(),
		store:    store,
		provider: client,
		guard:    guard,
		now:      time.Now,
	}
	return svc, store, client
}

func onlineRequest(attendanceID string) *CreateSessionRequest {
	return &CreateSessionRequest{
		AttendanceID: attendanceID,
		EventID:      "evt_meetup",
		Method:       types.PaymentMethodOnline,
		Amount:       5000,
		Currency:     "jpy",
		EventTitle:   "Autumn Meetup",
		SuccessURL:   "https://app.example.com/done",
		CancelURL:    "https://app.example.com/cancel",
	}
}

func TestCreateSession_NewAttendance(t *testing.T) {
	svc, store, client := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateSession(ctx, onlineRequest("att_1"))
	require.NoError(t, err)
	require.False(t, res.Reused)
	require.Equal(t, "cs_1", res.SessionID)
	require.NotEmpty(t, res.SessionURL)

	row, err := store.GetByID(ctx, res.PaymentID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusPending, row.Status)
	require.Equal(t, "cs_1", *row.ProviderSessionID)
	require.NotNil(t, row.IdempotencyKey)
	require.Equal(t, *row.IdempotencyKey, client.lastReq.IdempotencyKey)
}

func TestCreateSession_ReusesPendingRowAndResetsSessionFields(t *testing.T) {
	svc, store, client := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateSession(ctx, onlineRequest("att_1"))
	require.NoError(t, err)

	second, err := svc.CreateSession(ctx, onlineRequest("att_1"))
	require.NoError(t, err)
	require.True(t, second.Reused)
	require.Equal(t, first.PaymentID, second.PaymentID, "never a second row per attendance")
	require.Equal(t, 2, client.sessions)
	require.NotEqual(t, first.SessionID, second.SessionID)

	row, err := store.GetByID(ctx, second.PaymentID)
	require.NoError(t, err)
	require.Equal(t, second.SessionID, *row.ProviderSessionID)
	require.Nil(t, row.ProviderPaymentIntentID)
}

func TestCreateSession_CashCreatesObligationWithoutProviderCall(t *testing.T) {
	svc, store, client := newTestService(t)
	ctx := context.Background()

	req := onlineRequest("att_1")
	req.Method = types.PaymentMethodCash
	res, err := svc.CreateSession(ctx, req)
	require.NoError(t, err)
	require.Empty(t, res.SessionURL)
	require.Zero(t, client.sessions)

	row, err := store.GetByID(ctx, res.PaymentID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusPending, row.Status)
	require.Equal(t, types.PaymentMethodCash, row.Method)
}

func TestCreateSession_WaivedRowRejectsAnyMethod(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &models.Payment{
		ID: "pay_1", AttendanceID: "att_1", Method: types.PaymentMethodCash,
		Status: types.PaymentStatusWaived, Amount: 5000, Currency: "jpy",
	}))

	_, err := svc.CreateSession(ctx, onlineRequest("att_1"))
	require.ErrorIs(t, err, ErrPaymentAlreadyExists)

	cash := onlineRequest("att_1")
	cash.Method = types.PaymentMethodCash
	_, err = svc.CreateSession(ctx, cash)
	require.ErrorIs(t, err, ErrPaymentAlreadyExists)
}

func webhookEvent(id, typ, objectID string) *provider.WebhookEvent {
	raw := fmt.Sprintf(`{"id":%q,"type":%q,"data":{"object":{"id":%q,"payment_intent":"pi_1"}}}`, id, typ, objectID)
	event, err := provider.ParseWebhookEvent([]byte(raw))
	if err != nil {
		panic(err)
	}
	return event
}

func TestHandleWebhookEvent_CheckoutCompletedSettlesPayment(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateSession(ctx, onlineRequest("att_1"))
	require.NoError(t, err)

	outcome, err := svc.HandleWebhookEvent(ctx, webhookEvent("evt_1", provider.EventCheckoutCompleted, res.SessionID))
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.True(t, outcome.Terminal)
	require.False(t, outcome.WasAlreadyProcessed)

	row, err := store.GetByID(ctx, res.PaymentID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusPaid, row.Status)
	require.NotNil(t, row.PaidAt)
	require.Equal(t, "pi_1", *row.ProviderPaymentIntentID)

	// Redelivery of the same event id is suppressed by the guard.
	again, err := svc.HandleWebhookEvent(ctx, webhookEvent("evt_1", provider.EventCheckoutCompleted, res.SessionID))
	require.NoError(t, err)
	require.True(t, again.WasAlreadyProcessed)
	require.True(t, again.Success)
}

func TestHandleWebhookEvent_CompletedThenCreateSessionIsRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateSession(ctx, onlineRequest("att_1"))
	require.NoError(t, err)

	_, err = svc.HandleWebhookEvent(ctx, webhookEvent("evt_1", provider.EventCheckoutCompleted, res.SessionID))
	require.NoError(t, err)

	// Completion guard monotonicity: once terminal, always rejected.
	for _, method := range []types.PaymentMethod{types.PaymentMethodOnline, types.PaymentMethodCash} {
		req := onlineRequest("att_1")
		req.Method = method
		_, err = svc.CreateSession(ctx, req)
		require.ErrorIs(t, err, ErrPaymentAlreadyExists, "method=%s", method)
	}
}

func TestHandleWebhookEvent_ExpiredAfterSettlementIsIgnored(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateSession(ctx, onlineRequest("att_1"))
	require.NoError(t, err)
	_, err = svc.HandleWebhookEvent(ctx, webhookEvent("evt_1", provider.EventCheckoutCompleted, res.SessionID))
	require.NoError(t, err)

	outcome, err := svc.HandleWebhookEvent(ctx, webhookEvent("evt_2", provider.EventCheckoutExpired, res.SessionID))
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.True(t, outcome.Terminal)

	row, err := store.GetByID(ctx, res.PaymentID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusPaid, row.Status)
}

func TestHandleWebhookEvent_RefundFollowsSettlement(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateSession(ctx, onlineRequest("att_1"))
	require.NoError(t, err)
	_, err = svc.HandleWebhookEvent(ctx, webhookEvent("evt_1", provider.EventCheckoutCompleted, res.SessionID))
	require.NoError(t, err)

	outcome, err := svc.HandleWebhookEvent(ctx, webhookEvent("evt_2", provider.EventChargeRefunded, "ch_1"))
	require.NoError(t, err)
	require.True(t, outcome.Success)

	row, err := store.GetByID(ctx, res.PaymentID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusRefunded, row.Status)
}

func TestHandleWebhookEvent_UnknownSessionIsTransient(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	outcome, err := svc.HandleWebhookEvent(ctx, webhookEvent("evt_1", provider.EventCheckoutCompleted, "cs_missing"))
	require.NoError(t, err)
	require.False(t, outcome.Success)
	require.False(t, outcome.Terminal)

	// The lock was released, so the provider retry re-runs the handler
	// and can succeed once the row exists.
	res, err := svc.CreateSession(ctx, onlineRequest("att_1"))
	require.NoError(t, err)
	retry, err := svc.HandleWebhookEvent(ctx, webhookEvent("evt_1", provider.EventCheckoutCompleted, res.SessionID))
	require.NoError(t, err)
	require.True(t, retry.Success)
	require.False(t, retry.WasAlreadyProcessed)
}

func TestMarkCashReceived(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	req := onlineRequest("att_1")
	req.Method = types.PaymentMethodCash
	res, err := svc.CreateSession(ctx, req)
	require.NoError(t, err)

	row, err := svc.MarkCashReceived(ctx, res.PaymentID, "op_1", "paid at the door")
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusReceived, row.Status)
	require.NotNil(t, row.PaidAt)

	stored, err := store.GetByID(ctx, res.PaymentID)
	require.NoError(t, err)
	require.Equal(t, "op_1", stored.Extra.Data().OperatorID)
}

func TestMarkCashReceived_OnlinePaymentIsRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateSession(ctx, onlineRequest("att_1"))
	require.NoError(t, err)

	_, err = svc.MarkCashReceived(ctx, res.PaymentID, "op_1", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWaiveThenRefundLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req := onlineRequest("att_1")
	req.Method = types.PaymentMethodCash
	res, err := svc.CreateSession(ctx, req)
	require.NoError(t, err)

	row, err := svc.WaivePayment(ctx, res.PaymentID, "op_1", "speaker")
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusWaived, row.Status)

	// Waived is terminal for the guard.
	_, err = svc.CreateSession(ctx, onlineRequest("att_1"))
	require.ErrorIs(t, err, ErrPaymentAlreadyExists)

	// And refund of a waived obligation is not a legal transition.
	_, err = svc.RefundPayment(ctx, res.PaymentID, "op_1", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGetByAttendance_PicksHighestRankedRow(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &models.Payment{
		ID: "pay_1", AttendanceID: "att_1", Method: types.PaymentMethodOnline,
		Status: types.PaymentStatusPaid, PaidAt: lo.ToPtr(time.Now()),
	}))

	row, err := svc.GetByAttendance(ctx, "att_1")
	require.NoError(t, err)
	require.Equal(t, "pay_1", row.ID)

	missing, err := svc.GetByAttendance(ctx, "att_none")
	require.NoError(t, err)
	require.Nil(t, missing)
}
