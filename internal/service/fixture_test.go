package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"order-settlement/internal/dbtest"
	"order-settlement/internal/model"
	"order-settlement/internal/repository"
	"order-settlement/internal/webhook"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []*model.GatewayTransactionRequest
	err   error
	// captured reports every sale as settled on the spot, the way Braintree does.
	captured bool
}

func (g *fakeGateway) CreateTransaction(_ context.Context, req *model.GatewayTransactionRequest) (*model.GatewayTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return nil, g.err
	}
	return &model.GatewayTransaction{
		TransactionID: "tx_" + req.LocalCorrelationID,
		PaymentURL:    "https://pay.example/" + req.LocalCorrelationID,
		Captured:      g.captured,
	}, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fixture struct {
	db    *gorm.DB
	clock *testClock
	bus   *EventBus

	orderRepo       repository.OrderRepository
	promotionRepo   repository.PromotionRepository
	reservationRepo repository.ReservationRepository
	loyaltyRepo     repository.LoyaltyRepository
	paymentRepo     repository.PaymentRepository
	webhookRepo     repository.WebhookRecordRepository

	sequence   *sequenceGeneratorImpl
	orders     *orderServiceImpl
	evaluator  *promotionEvaluatorImpl
	promotions *promotionServiceImpl
	loyalty    *loyaltyServiceImpl
	payments   *paymentServiceImpl
	settlement *settlementServiceImpl
	gateway    *fakeGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.New(t)
	log := zaptest.NewLogger(t)
	clock := &testClock{now: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}

	f := &fixture{
		db:              db,
		clock:           clock,
		bus:             NewEventBus(log),
		orderRepo:       repository.NewOrderRepository(db),
		promotionRepo:   repository.NewPromotionRepository(db),
		reservationRepo: repository.NewReservationRepository(db),
		loyaltyRepo:     repository.NewLoyaltyRepository(db),
		paymentRepo:     repository.NewPaymentRepository(db),
		webhookRepo:     repository.NewWebhookRecordRepository(db),
		gateway:         &fakeGateway{},
	}

	f.sequence = NewSequenceGenerator(db, repository.NewSequenceRepository(db), "ORD", time.UTC).(*sequenceGeneratorImpl)

	f.orders = NewOrderService(db, f.sequence, f.orderRepo, f.bus, "USD", log).(*orderServiceImpl)
	f.orders.now = clock.Now

	f.evaluator = NewPromotionEvaluator(f.promotionRepo).(*promotionEvaluatorImpl)
	f.evaluator.now = clock.Now

	f.promotions = NewPromotionService(db, f.evaluator, f.promotionRepo, f.reservationRepo, f.orderRepo, f.loyaltyRepo, log).(*promotionServiceImpl)
	f.promotions.now = clock.Now

	f.loyalty = NewLoyaltyService(db, DefaultLoyaltyPolicy(), f.loyaltyRepo, f.orderRepo, f.reservationRepo, log).(*loyaltyServiceImpl)
	f.loyalty.now = clock.Now

	f.payments = NewPaymentService(
		db,
		f.gateway,
		webhook.NewVerifier(testWebhookSecret, 5*time.Minute),
		"http://localhost:8080/",
		f.orderRepo,
		f.paymentRepo,
		f.webhookRepo,
		f.bus,
		log,
	).(*paymentServiceImpl)
	f.payments.now = clock.Now

	f.settlement = NewSettlementService(db, f.orderRepo, f.promotions, f.loyalty, log).(*settlementServiceImpl)
	f.settlement.now = clock.Now
	f.settlement.Subscribe(f.bus)

	return f
}

func ptr[T any](v T) *T {
	return &v
}

func (f *fixture) createOrder(t *testing.T, customerID string, lines ...OrderLine) *model.Order {
	t.Helper()
	order, err := f.orders.Create(context.Background(), CreateOrderInput{
		CustomerID: customerID,
		Currency:   "USD",
		Items:      lines,
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) reloadOrder(t *testing.T, orderID string) *model.Order {
	t.Helper()
	order, err := f.orderRepo.FindByID(context.Background(), f.db, orderID)
	require.NoError(t, err)
	return order
}

func (f *fixture) seedPromotions(t *testing.T, promotions ...model.Promotion) {
	t.Helper()
	require.NoError(t, f.promotionRepo.Seed(context.Background(), promotions))
}

func (f *fixture) promotion(t *testing.T, code string) *model.Promotion {
	t.Helper()
	promotion, err := f.promotionRepo.FindByCode(context.Background(), f.db, code)
	require.NoError(t, err)
	return promotion
}

func (f *fixture) creditPoints(t *testing.T, customerID string, points int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&model.LoyaltyAccount{
		CustomerID:     customerID,
		PointsBalance:  points,
		LifetimePoints: points,
		Tier:           model.TierBronze,
	}).Error)
}

func (f *fixture) account(t *testing.T, customerID string) *model.LoyaltyAccount {
	t.Helper()
	account, err := f.loyaltyRepo.FindAccount(context.Background(), f.db, customerID)
	require.NoError(t, err)
	return account
}

func (f *fixture) payment(t *testing.T, key string) *model.Payment {
	t.Helper()
	payment, err := f.paymentRepo.FindByIdempotencyKey(context.Background(), f.db, key)
	require.NoError(t, err)
	return payment
}

func signedHeaders(body []byte) http.Header {
	headers := http.Header{}
	headers.Set(webhook.SignatureHeader, webhook.Sign(body, testWebhookSecret, time.Now().Unix()))
	return headers
}

func notificationBody(t *testing.T, note model.GatewayNotification) []byte {
	t.Helper()
	body, err := json.Marshal(note)
	require.NoError(t, err)
	return body
}

// deliver posts a signed notification for the payment.
func (f *fixture) deliver(t *testing.T, eventID string, payment *model.Payment, state model.GatewayState) (*WebhookResult, error) {
	t.Helper()
	body := notificationBody(t, model.GatewayNotification{
		EventID:       eventID,
		TransactionID: payment.GatewayTransactionID,
		State:         state,
		LocalID:       payment.LocalCorrelationID,
		OrderID:       payment.OrderID,
	})
	return f.payments.HandleWebhook(context.Background(), signedHeaders(body), body)
}

func line(itemID string, quantity, unitPrice int64) OrderLine {
	return OrderLine{ItemID: itemID, Quantity: quantity, UnitPrice: unitPrice}
}
