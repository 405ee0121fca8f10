package handler

import (
	"net/http"
	"order-settlement/internal/dto"
	"order-settlement/internal/model"
	"order-settlement/internal/service"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	orderService     service.OrderService
	promotionService service.PromotionService
	loyaltyService   service.LoyaltyService
}

func NewOrderHandler(orderService service.OrderService, promotionService service.PromotionService, loyaltyService service.LoyaltyService) *OrderHandler {
	return &OrderHandler{
		orderService:     orderService,
		promotionService: promotionService,
		loyaltyService:   loyaltyService,
	}
}

func (h *OrderHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	input := service.CreateOrderInput{
		CustomerID: req.CustomerID,
		Currency:   req.Currency,
		Items:      make([]service.OrderLine, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		if item == nil {
			continue
		}
		input.Items = append(input.Items, service.OrderLine{
			ItemID:     item.ItemID,
			CategoryID: item.CategoryID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPriceMinorUnits,
		})
	}

	order, err := h.orderService.Create(ctx, input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, dto.OrderResponse{Order: order})
}

func (h *OrderHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	order, err := h.orderService.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, order)
}

func (h *OrderHandler) Cancel(c echo.Context) error {
	order, err := h.orderService.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, order)
}

func (h *OrderHandler) Complete(c echo.Context) error {
	order, err := h.orderService.Complete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return h.respond(c, http.StatusOK, order)
}

func (h *OrderHandler) respond(c echo.Context, status int, order *model.Order) error {
	ctx := c.Request().Context()

	reservations, err := h.promotionService.Reservations(ctx, order.ID)
	if err != nil {
		return err
	}
	hold, err := h.loyaltyService.HoldForOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	return c.JSON(status, dto.OrderResponse{
		Order:       order,
		Promotions:  reservations,
		LoyaltyHold: hold,
	})
}
