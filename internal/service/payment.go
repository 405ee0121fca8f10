package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"order-settlement/internal/apperror"
	"order-settlement/internal/client"
	"order-settlement/internal/model"
	"order-settlement/internal/repository"
	"order-settlement/internal/webhook"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type InitiateRequest struct {
	OrderID string
	// Amount defaults to the order total.
	Amount             *int64
	IdempotencyKey     string
	PaymentMethodToken string
}

// InitiateResult carries no payment when the order was paid without charging the gateway.
type InitiateResult struct {
	Payment   *model.Payment
	Reused    bool
	OrderPaid bool
}

type PartialResult struct {
	InitiateResult
	RemainingBefore int64
	RemainingAfter  int64
}

type WebhookResult struct {
	IdempotencyKey string
	Status         model.WebhookStatus
	Duplicate      bool
	OrderPaid      bool
}

type PaymentService interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	InitiatePartial(ctx context.Context, orderID string, amount int64, key, paymentMethodToken string) (*PartialResult, error)
	RemainingBalance(ctx context.Context, orderID string) (int64, error)
	ListPayments(ctx context.Context, orderID string) ([]*model.Payment, error)
	HandleWebhook(ctx context.Context, headers http.Header, body []byte) (*WebhookResult, error)
	ReprocessWebhook(ctx context.Context, key string) (*WebhookResult, error)
	ReprocessPending(ctx context.Context, limit int) (int, error)
}

type paymentServiceImpl struct {
	db             *gorm.DB
	gateway        client.PaymentGateway
	verifier       *webhook.Verifier
	serviceBaseUrl string
	orderRepo      repository.OrderRepository
	paymentRepo    repository.PaymentRepository
	webhookRepo    repository.WebhookRecordRepository
	events         EventPublisher
	log            *zap.Logger
	now            func() time.Time
}

func NewPaymentService(
	db *gorm.DB,
	gateway client.PaymentGateway,
	verifier *webhook.Verifier,
	serviceBaseUrl string,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	webhookRepo repository.WebhookRecordRepository,
	events EventPublisher,
	log *zap.Logger,
) PaymentService {
	return &paymentServiceImpl{
		db:             db,
		gateway:        gateway,
		verifier:       verifier,
		serviceBaseUrl: strings.TrimRight(serviceBaseUrl, "/"),
		orderRepo:      orderRepo,
		paymentRepo:    paymentRepo,
		webhookRepo:    webhookRepo,
		events:         events,
		log:            log,
		now:            time.Now,
	}
}

// defaultPaymentKey allows one full payment attempt per order per day.
func defaultPaymentKey(orderID string, at time.Time) string {
	return fmt.Sprintf("payment:%s:%s", orderID, at.UTC().Format("20060102"))
}

func (s *paymentServiceImpl) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	order, err := s.orderRepo.FindByID(ctx, s.db, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsSettled() && order.SettledAt == nil {
		// paid but settlement never finished; finish it instead of charging again
		s.log.Warn("re-driving settlement for paid order", zap.String("order_id", order.ID))
		if err := s.publishPaid(ctx, order.ID); err != nil {
			return nil, err
		}
		return &InitiateResult{OrderPaid: true}, nil
	}
	if !order.Status.IsOpen() {
		return nil, apperror.Conflict(fmt.Sprintf("order is %s and does not accept payments", order.Status))
	}
	if req.Amount == nil && order.TotalMinor == 0 {
		return s.settleWithoutPayment(ctx, order.ID)
	}

	amount := order.TotalMinor
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount <= 0 {
		return nil, apperror.Validation("payment amount must be positive")
	}
	key := req.IdempotencyKey
	if key == "" {
		key = defaultPaymentKey(order.ID, s.now())
	}

	payment := &model.Payment{
		ID:                 uuid.NewString(),
		OrderID:            order.ID,
		IdempotencyKey:     key,
		LocalCorrelationID: uuid.NewString(),
		Amount:             amount,
		Currency:           order.Currency,
		Status:             model.PaymentStatusCreated,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.paymentRepo.CreateIfAbsent(ctx, tx, payment)
		if err != nil {
			return fmt.Errorf("store payment in db: %w", err)
		}
		if !created {
			payment, err = s.paymentRepo.FindByIdempotencyKey(ctx, tx, key)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if payment.OrderID != order.ID {
		return nil, apperror.Conflict("idempotency key belongs to another order")
	}
	if payment.Amount != amount {
		return nil, apperror.Conflict(fmt.Sprintf("payment %s was started for %d, not %d; retry with a new idempotency key",
			payment.ID, payment.Amount, amount))
	}
	switch payment.Status {
	case model.PaymentStatusCreated, model.PaymentStatusFailed:
	case model.PaymentStatusCancelled, model.PaymentStatusExpired:
		return nil, apperror.Conflict(fmt.Sprintf("payment %s is %s, retry with a new idempotency key", payment.ID, payment.Status))
	default:
		return &InitiateResult{Payment: payment, Reused: true}, nil
	}

	txn, err := s.gateway.CreateTransaction(ctx, &model.GatewayTransactionRequest{
		AmountMinorUnits:   payment.Amount,
		Currency:           payment.Currency,
		LocalCorrelationID: payment.LocalCorrelationID,
		CallbackURL:        s.serviceBaseUrl + "/api/gateway/webhook",
		PaymentMethodToken: req.PaymentMethodToken,
	})
	if err != nil {
		s.log.Warn("gateway create transaction failed",
			zap.String("payment_id", payment.ID),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		if apperror.CodeOf(err) == "" {
			err = apperror.Wrap(apperror.CodeGateway, err, "create gateway transaction")
		}
		return nil, err
	}

	if err := s.paymentRepo.MarkInitiated(ctx, s.db, payment.ID, txn); err != nil {
		return nil, fmt.Errorf("mark payment initiated: %w", err)
	}
	s.log.Info("payment initiated",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", order.ID),
		zap.String("transaction_id", txn.TransactionID),
		zap.Int64("amount", payment.Amount),
		zap.Bool("captured", txn.Captured),
	)

	result := &InitiateResult{}
	if txn.Captured {
		// no notification follows a synchronous capture
		raw, err := json.Marshal(txn)
		if err != nil {
			return nil, fmt.Errorf("encode gateway result: %w", err)
		}
		if result.OrderPaid, err = s.confirm(ctx, payment.ID, string(raw)); err != nil {
			return nil, err
		}
	}

	if result.Payment, err = s.paymentRepo.FindByIdempotencyKey(ctx, s.db, key); err != nil {
		return nil, err
	}
	return result, nil
}

// settleWithoutPayment marks an order whose discounts cover the whole subtotal as paid.
// Nothing is charged and no payment row is written.
func (s *paymentServiceImpl) settleWithoutPayment(ctx context.Context, orderID string) (*InitiateResult, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.IsOpen() {
			return apperror.Conflict(fmt.Sprintf("order is %s and does not accept payments", order.Status))
		}
		if order.TotalMinor > 0 {
			return apperror.Retry(fmt.Errorf("total is %d", order.TotalMinor), "order total changed")
		}
		return s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPaid)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order paid without payment", zap.String("order_id", orderID))
	if err := s.publishPaid(ctx, orderID); err != nil {
		return nil, err
	}
	return &InitiateResult{OrderPaid: true}, nil
}

func (s *paymentServiceImpl) publishPaid(ctx context.Context, orderID string) error {
	if err := s.events.Publish(ctx, OrderEvent{Type: EventOrderPaid, OrderID: orderID, OccurredAt: s.now()}); err != nil {
		return fmt.Errorf("settle order %s: %w", orderID, err)
	}
	return nil
}

func (s *paymentServiceImpl) InitiatePartial(ctx context.Context, orderID string, amount int64, key, paymentMethodToken string) (*PartialResult, error) {
	if amount <= 0 {
		return nil, apperror.Validation("payment amount must be positive")
	}
	if strings.TrimSpace(key) == "" {
		return nil, apperror.Validation("idempotency key is required for partial payments")
	}

	before, err := s.RemainingBalance(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if amount > before {
		return nil, apperror.Validation(fmt.Sprintf("amount %d exceeds remaining balance %d", amount, before))
	}

	result, err := s.Initiate(ctx, InitiateRequest{
		OrderID:            orderID,
		Amount:             &amount,
		IdempotencyKey:     fmt.Sprintf("partial:%s:%s", orderID, key),
		PaymentMethodToken: paymentMethodToken,
	})
	if err != nil {
		return nil, err
	}

	after := max(before-result.Payment.Amount, 0)
	if isSettledPayment(result.Payment.Status) {
		after = before
	}
	return &PartialResult{
		InitiateResult:  *result,
		RemainingBefore: before,
		RemainingAfter:  after,
	}, nil
}

func isSettledPayment(status model.PaymentStatus) bool {
	for _, settled := range model.SettledPaymentStatuses {
		if status == settled {
			return true
		}
	}
	return false
}

func (s *paymentServiceImpl) RemainingBalance(ctx context.Context, orderID string) (int64, error) {
	order, err := s.orderRepo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return 0, err
	}
	paid, err := s.paymentRepo.SumSettled(ctx, s.db, orderID)
	if err != nil {
		return 0, err
	}
	return max(order.TotalMinor-paid, 0), nil
}

func (s *paymentServiceImpl) ListPayments(ctx context.Context, orderID string) ([]*model.Payment, error) {
	if _, err := s.orderRepo.FindByID(ctx, s.db, orderID); err != nil {
		return nil, err
	}
	return s.paymentRepo.ListByOrder(ctx, s.db, orderID)
}

func webhookKey(note *model.GatewayNotification) string {
	if note.EventID != "" {
		return "webhook:" + note.EventID
	}
	orderID := note.OrderID
	if orderID == "" {
		orderID = "unknown"
	}
	return fmt.Sprintf("webhook:%s:%s", orderID, uuid.NewString())
}

// HandleWebhook stores the raw notification before verifying it, so nothing the
// gateway sent is lost. Records already past "received" are acknowledged as duplicates.
func (s *paymentServiceImpl) HandleWebhook(ctx context.Context, headers http.Header, body []byte) (*WebhookResult, error) {
	var note model.GatewayNotification
	// malformed payloads are still stored and then rejected
	_ = json.Unmarshal(body, &note)

	record := &model.WebhookRecord{
		IdempotencyKey: webhookKey(&note),
		GatewayEventID: note.EventID,
		RawPayload:     string(body),
		Signature:      headers.Get(webhook.SignatureHeader),
		Status:         model.WebhookStatusReceived,
	}

	var stored *model.WebhookRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.webhookRepo.Store(ctx, tx, record)
		if err != nil {
			return fmt.Errorf("store webhook in db: %w", err)
		}
		stored = record
		if !created {
			stored, err = s.webhookRepo.Find(ctx, tx, record.IdempotencyKey)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if stored.Status != model.WebhookStatusReceived {
		s.log.Info("duplicate webhook acknowledged",
			zap.String("key", stored.IdempotencyKey),
			zap.String("status", string(stored.Status)),
		)
		return &WebhookResult{IdempotencyKey: stored.IdempotencyKey, Status: stored.Status, Duplicate: true}, nil
	}

	return s.process(ctx, record.IdempotencyKey, body, record.Signature, s.verifier.Verify)
}

// ReprocessWebhook re-drives a stored notification. The signature age is not checked
// because the record was accepted when it arrived.
func (s *paymentServiceImpl) ReprocessWebhook(ctx context.Context, key string) (*WebhookResult, error) {
	record, err := s.webhookRepo.Find(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	switch record.Status {
	case model.WebhookStatusProcessed, model.WebhookStatusRejected:
		return nil, apperror.Conflict(fmt.Sprintf("webhook is already %s", record.Status))
	}
	return s.process(ctx, record.IdempotencyKey, []byte(record.RawPayload), record.Signature, s.verifier.VerifyStored)
}

// ReprocessPending re-drives received and failed records and returns how many were processed.
func (s *paymentServiceImpl) ReprocessPending(ctx context.Context, limit int) (int, error) {
	records, err := s.webhookRepo.ListPending(ctx, s.db, limit)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, record := range records {
		result, err := s.process(ctx, record.IdempotencyKey, []byte(record.RawPayload), record.Signature, s.verifier.VerifyStored)
		if err != nil {
			s.log.Warn("webhook reprocessing failed", zap.String("key", record.IdempotencyKey), zap.Error(err))
			continue
		}
		if result.Status == model.WebhookStatusProcessed {
			processed++
		}
	}
	return processed, nil
}

func (s *paymentServiceImpl) process(ctx context.Context, key string, body []byte, signature string, verify func([]byte, string) error) (*WebhookResult, error) {
	result := &WebhookResult{IdempotencyKey: key}

	if err := verify(body, signature); err != nil {
		return s.reject(ctx, result, err, "invalid webhook signature")
	}

	var note model.GatewayNotification
	if err := json.Unmarshal(body, &note); err != nil {
		return s.reject(ctx, result, err, "decode webhook payload")
	}
	if note.LocalID == "" {
		return s.reject(ctx, result, errors.New("missing localId"), "decode webhook payload")
	}

	payment, err := s.paymentRepo.FindByCorrelationID(ctx, s.db, note.LocalID)
	if err != nil {
		return s.fail(ctx, result, err)
	}
	if payment == nil {
		// left in received so it can be re-driven once the payment exists
		s.log.Warn("webhook for unknown payment", zap.String("key", key), zap.String("local_id", note.LocalID))
		result.Status = model.WebhookStatusReceived
		return result, nil
	}

	orderPaid, err := s.dispatch(ctx, payment, &note, string(body))
	if err != nil {
		return s.fail(ctx, result, fmt.Errorf("payment %s: %w", payment.ID, err))
	}

	if err := s.webhookRepo.MarkProcessed(ctx, s.db, key); err != nil {
		return nil, fmt.Errorf("mark webhook processed: %w", err)
	}
	result.Status = model.WebhookStatusProcessed
	result.OrderPaid = orderPaid
	return result, nil
}

// fail stores the error on the record so the notification can be re-driven; the error is returned.
func (s *paymentServiceImpl) fail(ctx context.Context, result *WebhookResult, cause error) (*WebhookResult, error) {
	s.log.Error("webhook processing failed", zap.String("key", result.IdempotencyKey), zap.Error(cause))
	if err := s.webhookRepo.MarkFailed(ctx, s.db, result.IdempotencyKey, cause.Error()); err != nil {
		s.log.Error("mark webhook failed", zap.String("key", result.IdempotencyKey), zap.Error(err))
	}
	result.Status = model.WebhookStatusFailed
	return result, cause
}

func (s *paymentServiceImpl) reject(ctx context.Context, result *WebhookResult, cause error, msg string) (*WebhookResult, error) {
	s.log.Warn("webhook rejected", zap.String("key", result.IdempotencyKey), zap.Error(cause))
	if err := s.webhookRepo.MarkRejected(ctx, s.db, result.IdempotencyKey, cause.Error()); err != nil {
		return nil, fmt.Errorf("mark webhook rejected: %w", err)
	}
	result.Status = model.WebhookStatusRejected
	return result, apperror.Wrap(apperror.CodeValidation, cause, msg)
}

func (s *paymentServiceImpl) dispatch(ctx context.Context, payment *model.Payment, note *model.GatewayNotification, raw string) (bool, error) {
	switch note.State {
	case model.GatewayStateConfirmed:
		return s.confirm(ctx, payment.ID, raw)
	case model.GatewayStateFailed:
		return false, s.closePayment(ctx, payment.ID, model.PaymentStatusFailed, raw)
	case model.GatewayStateCancelled:
		return false, s.closePayment(ctx, payment.ID, model.PaymentStatusCancelled, raw)
	case model.GatewayStateExpired:
		return false, s.closePayment(ctx, payment.ID, model.PaymentStatusExpired, raw)
	}
	return false, apperror.Validation(fmt.Sprintf("unknown gateway state %q", note.State))
}

// closePayment records a terminal gateway outcome; confirmed money is never downgraded.
func (s *paymentServiceImpl) closePayment(ctx context.Context, paymentID string, status model.PaymentStatus, raw string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.paymentRepo.FindByIDForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if isSettledPayment(payment.Status) {
			s.log.Warn("ignoring gateway state for settled payment",
				zap.String("payment_id", payment.ID),
				zap.String("state", string(status)),
			)
			return nil
		}
		return s.paymentRepo.UpdateStatus(ctx, tx, paymentID, status, raw)
	})
}

// confirm settles the payment and, once confirmed money covers the total, marks the
// order paid. OrderPaid is published after commit; an order that is paid but never
// settled gets the event again on replay.
func (s *paymentServiceImpl) confirm(ctx context.Context, paymentID string, raw string) (bool, error) {
	var orderID string
	var paidNow, resettle bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.paymentRepo.FindByIDForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		orderID = payment.OrderID
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, payment.OrderID)
		if err != nil {
			return err
		}

		if isSettledPayment(payment.Status) {
			resettle = order.Status.IsSettled() && order.SettledAt == nil
			return nil
		}
		if err := s.paymentRepo.UpdateStatus(ctx, tx, payment.ID, model.PaymentStatusConfirmed, raw); err != nil {
			return err
		}

		if order.Status == model.OrderStatusCancelled {
			s.log.Error("payment confirmed for cancelled order",
				zap.String("payment_id", payment.ID),
				zap.String("order_id", order.ID),
				zap.Int64("amount", payment.Amount),
			)
			return nil
		}
		if order.Status.IsSettled() {
			return nil
		}

		paid, err := s.paymentRepo.SumSettled(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if paid >= order.TotalMinor {
			paidNow = true
			return s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPaid)
		}
		return s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPartial)
	})
	if err != nil {
		return false, err
	}

	if paidNow {
		s.log.Info("order paid", zap.String("order_id", orderID), zap.String("payment_id", paymentID))
	}
	if paidNow || resettle {
		if err := s.publishPaid(ctx, orderID); err != nil {
			return paidNow, err
		}
	}
	return paidNow, nil
}
