package client

import (
	"context"
	"fmt"
	"order-settlement/internal/apperror"
	"order-settlement/internal/config"
	"order-settlement/internal/model"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// PaymentGateway creates transactions at the external payment provider.
type PaymentGateway interface {
	CreateTransaction(ctx context.Context, req *model.GatewayTransactionRequest) (*model.GatewayTransaction, error)
}

type httpGatewayImpl struct {
	httpClient *resty.Client
	limiter    *rate.Limiter
}

func NewHTTPGateway(cfg *config.Gateway) PaymentGateway {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseApiURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.ApiKey != "" {
		httpClient.SetAuthToken(cfg.ApiKey)
	}

	return &httpGatewayImpl{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

func (c *httpGatewayImpl) CreateTransaction(ctx context.Context, req *model.GatewayTransactionRequest) (*model.GatewayTransaction, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperror.Wrap(apperror.CodeGateway, err, "gateway rate limit")
	}

	var result model.GatewayTransaction
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/v1/transactions")
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeGateway, err, "gateway create transaction")
	}

	if resp.IsError() {
		return nil, apperror.Wrap(apperror.CodeGateway,
			fmt.Errorf("status=%d body=%s", resp.StatusCode(), resp.String()),
			"gateway create transaction")
	}
	if result.TransactionID == "" {
		return nil, apperror.New(apperror.CodeGateway, "gateway response has no transaction id")
	}

	return &result, nil
}
