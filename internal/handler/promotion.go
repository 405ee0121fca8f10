package handler

import (
	"net/http"
	"order-settlement/internal/dto"
	"order-settlement/internal/service"

	"github.com/labstack/echo/v4"
)

type PromotionHandler struct {
	promotionService service.PromotionService
}

func NewPromotionHandler(promotionService service.PromotionService) *PromotionHandler {
	return &PromotionHandler{promotionService: promotionService}
}

func (h *PromotionHandler) Apply(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.ApplyPromotionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	reservation, err := h.promotionService.ApplyToOrder(ctx, c.Param("id"), req.Code, req.CustomerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reservation)
}

func (h *PromotionHandler) Remove(c echo.Context) error {
	if err := h.promotionService.RemoveFromOrder(c.Request().Context(), c.Param("id"), c.Param("code")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PromotionHandler) Evaluate(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.EvaluatePromotionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	if req.OrderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "orderId is required")
	}

	result, err := h.promotionService.Evaluate(ctx, req.OrderID, req.Code, req.CustomerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
