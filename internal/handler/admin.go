package handler

import (
	"net/http"
	"order-settlement/internal/dto"
	"order-settlement/internal/service"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

type AdminHandler struct {
	loyaltyService service.LoyaltyService
	paymentService service.PaymentService
}

func NewAdminHandler(loyaltyService service.LoyaltyService, paymentService service.PaymentService) *AdminHandler {
	return &AdminHandler{
		loyaltyService: loyaltyService,
		paymentService: paymentService,
	}
}

func (h *AdminHandler) ExpireHolds(c echo.Context) error {
	expired, err := h.loyaltyService.ExpireHolds(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto.ExpireHoldsResponse{Expired: expired, At: time.Now().UTC()})
}

func (h *AdminHandler) ReprocessWebhook(c echo.Context) error {
	result, err := h.paymentService.ReprocessWebhook(c.Request().Context(), c.Param("key"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dto.WebhookResponse{
		Key:       result.IdempotencyKey,
		Status:    result.Status,
		OrderPaid: result.OrderPaid,
	})
}

func (h *AdminHandler) ReprocessPending(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	processed, err := h.paymentService.ReprocessPending(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"processed": processed})
}
