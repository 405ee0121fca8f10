package server

import (
	"context"
	"order-settlement/internal/handler"
	"order-settlement/internal/logger"
	authmw "order-settlement/internal/middleware"
	"order-settlement/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Services struct {
	Orders     service.OrderService
	Promotions service.PromotionService
	Loyalty    service.LoyaltyService
	Payments   service.PaymentService
}

type Server struct {
	echo             *echo.Echo
	jwtSecret        string
	orderHandler     *handler.OrderHandler
	promotionHandler *handler.PromotionHandler
	loyaltyHandler   *handler.LoyaltyHandler
	paymentHandler   *handler.PaymentHandler
	adminHandler     *handler.AdminHandler
}

func NewServer(services Services, jwtSecret string, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler(log)

	e.Use(middleware.RequestID())
	e.Use(logger.RequestLogger(log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:             e,
		jwtSecret:        jwtSecret,
		orderHandler:     handler.NewOrderHandler(services.Orders, services.Promotions, services.Loyalty),
		promotionHandler: handler.NewPromotionHandler(services.Promotions),
		loyaltyHandler:   handler.NewLoyaltyHandler(services.Loyalty),
		paymentHandler:   handler.NewPaymentHandler(services.Payments, services.Orders),
		adminHandler:     handler.NewAdminHandler(services.Loyalty, services.Payments),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// -------- orders --------
	orders := api.Group("/orders")
	orders.POST("", s.orderHandler.Create)
	orders.GET("/:id", s.orderHandler.Get)
	orders.POST("/:id/cancel", s.orderHandler.Cancel)
	orders.POST("/:id/complete", s.orderHandler.Complete)

	orders.POST("/:id/promotions", s.promotionHandler.Apply)
	orders.DELETE("/:id/promotions/:code", s.promotionHandler.Remove)

	orders.POST("/:id/loyalty-hold", s.loyaltyHandler.PlaceHold)
	orders.DELETE("/:id/loyalty-hold", s.loyaltyHandler.ReleaseHold)

	orders.POST("/:id/payments", s.paymentHandler.Pay)
	orders.POST("/:id/payments/partial", s.paymentHandler.PayPartial)
	orders.GET("/:id/balance", s.paymentHandler.Balance)

	api.POST("/promotions/evaluate", s.promotionHandler.Evaluate)

	// -------- loyalty --------
	api.GET("/loyalty/:customerID", s.loyaltyHandler.Account)
	api.GET("/loyalty/:customerID/history", s.loyaltyHandler.History)

	// -------- gateway webhooks --------
	api.POST("/gateway/webhook", s.paymentHandler.Webhook)

	// -------- admin --------
	admin := api.Group("/admin", authmw.AuthMiddleware(s.jwtSecret), authmw.RequireRole(authmw.RoleAdmin))
	admin.POST("/loyalty/expire-holds", s.adminHandler.ExpireHolds)
	admin.POST("/webhooks/reprocess", s.adminHandler.ReprocessPending)
	admin.POST("/webhooks/:key/reprocess", s.adminHandler.ReprocessWebhook)
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() *echo.Echo {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
