package handler

import (
	"io"
	"net/http"
	"order-settlement/internal/apperror"
	"order-settlement/internal/dto"
	"order-settlement/internal/model"
	"order-settlement/internal/service"

	"github.com/labstack/echo/v4"
)

type PaymentHandler struct {
	paymentService service.PaymentService
	orderService   service.OrderService
}

func NewPaymentHandler(paymentService service.PaymentService, orderService service.OrderService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		orderService:   orderService,
	}
}

func toPayResponse(orderID string, result *service.InitiateResult) dto.PayResponse {
	resp := dto.PayResponse{
		OrderID:   orderID,
		Reused:    result.Reused,
		OrderPaid: result.OrderPaid,
	}
	if payment := result.Payment; payment != nil {
		resp.PaymentID = payment.ID
		resp.Status = payment.Status
		resp.AmountMinor = payment.Amount
		resp.PaymentURL = payment.PaymentURL
	}
	return resp
}

func (h *PaymentHandler) Pay(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.PayRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	result, err := h.paymentService.Initiate(ctx, service.InitiateRequest{
		OrderID:            c.Param("id"),
		Amount:             req.AmountMinorUnits,
		IdempotencyKey:     req.IdempotencyKey,
		PaymentMethodToken: req.PaymentMethodToken,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPayResponse(c.Param("id"), result))
}

func (h *PaymentHandler) PayPartial(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.PartialPayRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	result, err := h.paymentService.InitiatePartial(ctx, c.Param("id"), req.AmountMinorUnits, req.IdempotencyKey, req.PaymentMethodToken)
	if err != nil {
		return err
	}
	resp := toPayResponse(c.Param("id"), &result.InitiateResult)
	resp.RemainingBefore = &result.RemainingBefore
	resp.RemainingAfter = &result.RemainingAfter
	return c.JSON(http.StatusOK, resp)
}

func (h *PaymentHandler) Balance(c echo.Context) error {
	ctx := c.Request().Context()
	orderID := c.Param("id")

	order, err := h.orderService.Get(ctx, orderID)
	if err != nil {
		return err
	}
	remaining, err := h.paymentService.RemainingBalance(ctx, orderID)
	if err != nil {
		return err
	}
	payments, err := h.paymentService.ListPayments(ctx, orderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto.BalanceResponse{
		OrderID:        order.ID,
		TotalMinor:     order.TotalMinor,
		RemainingMinor: remaining,
		Currency:       order.Currency,
		Payments:       payments,
	})
}

// Webhook answers 2xx once the notification is durably handled; a 5xx asks the
// gateway to deliver it again.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
	}

	result, err := h.paymentService.HandleWebhook(ctx, c.Request().Header, body)
	if err != nil {
		if apperror.Is(err, apperror.CodeValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}

	status := http.StatusOK
	if result.Status == model.WebhookStatusReceived {
		status = http.StatusAccepted
	}
	return c.JSON(status, dto.WebhookResponse{
		Key:       result.IdempotencyKey,
		Status:    result.Status,
		Duplicate: result.Duplicate,
		OrderPaid: result.OrderPaid,
	})
}
