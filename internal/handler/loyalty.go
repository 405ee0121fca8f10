package handler

import (
	"net/http"
	"order-settlement/internal/apperror"
	"order-settlement/internal/dto"
	"order-settlement/internal/service"

	"github.com/labstack/echo/v4"
)

type LoyaltyHandler struct {
	loyaltyService service.LoyaltyService
}

func NewLoyaltyHandler(loyaltyService service.LoyaltyService) *LoyaltyHandler {
	return &LoyaltyHandler{loyaltyService: loyaltyService}
}

func (h *LoyaltyHandler) PlaceHold(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.LoyaltyHoldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	hold, err := h.loyaltyService.CreateOrRefreshHold(ctx, req.CustomerID, c.Param("id"), req.Points)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hold)
}

func (h *LoyaltyHandler) ReleaseHold(c echo.Context) error {
	ctx := c.Request().Context()

	hold, err := h.loyaltyService.HoldForOrder(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	if hold == nil {
		return apperror.NotFound("order has no loyalty hold")
	}
	if err := h.loyaltyService.ReleaseHold(ctx, hold.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *LoyaltyHandler) Account(c echo.Context) error {
	account, err := h.loyaltyService.AccountFor(c.Request().Context(), c.Param("customerID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, account)
}

func (h *LoyaltyHandler) History(c echo.Context) error {
	entries, err := h.loyaltyService.History(c.Request().Context(), c.Param("customerID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}
