package client

import (
	"context"
	"fmt"
	"order-settlement/internal/apperror"
	"order-settlement/internal/config"
	"order-settlement/internal/model"

	"github.com/braintree-go/braintree-go"
)

type braintreeGatewayImpl struct {
	gateway *braintree.Braintree
}

// NewBraintreeGateway charges vaulted payment methods through the Braintree SDK.
// Sales are submitted for settlement, so a successful call is already a capture.
func NewBraintreeGateway(cfg *config.Braintree) PaymentGateway {
	env := braintree.Sandbox
	if cfg.Environment == "production" {
		env = braintree.Production
	}

	gateway := braintree.New(
		env,
		cfg.MerchantID,
		cfg.PublicKey,
		cfg.PrivateKey,
	)

	return &braintreeGatewayImpl{
		gateway: gateway,
	}
}

func (c *braintreeGatewayImpl) CreateTransaction(ctx context.Context, req *model.GatewayTransactionRequest) (*model.GatewayTransaction, error) {
	if req.PaymentMethodToken == "" {
		return nil, apperror.Validation("braintree payments need a payment method token")
	}

	btReq := &braintree.TransactionRequest{
		Type:               "sale",
		Amount:             braintree.NewDecimal(req.AmountMinorUnits, 2),
		PaymentMethodToken: req.PaymentMethodToken,
		OrderId:            req.LocalCorrelationID,
		Options: &braintree.TransactionOptions{
			SubmitForSettlement: true, // Captures the funds immediately
		},
	}

	tx, err := c.gateway.Transaction().Create(ctx, btReq)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeGateway, err, "braintree transaction creation failed")
	}
	return transactionResult(tx)
}

// transactionResult maps a Braintree sale onto the gateway result. Braintree sends no
// notification for a captured sale, so the caller confirms it from this result.
func transactionResult(tx *braintree.Transaction) (*model.GatewayTransaction, error) {
	switch tx.Status {
	case braintree.TransactionStatusSubmittedForSettlement,
		braintree.TransactionStatusSettlementPending,
		braintree.TransactionStatusSettling,
		braintree.TransactionStatusSettlementConfirmed,
		braintree.TransactionStatusSettled:
		return &model.GatewayTransaction{TransactionID: tx.Id, Captured: true}, nil
	case braintree.TransactionStatusAuthorizing, braintree.TransactionStatusAuthorized:
		return &model.GatewayTransaction{TransactionID: tx.Id}, nil
	case braintree.TransactionStatusProcessorDeclined:
		return nil, apperror.Wrap(apperror.CodeGateway,
			fmt.Errorf("declined: %s", tx.ProcessorResponseText),
			"braintree transaction declined by processor")
	case braintree.TransactionStatusGatewayRejected:
		return nil, apperror.Wrap(apperror.CodeGateway,
			fmt.Errorf("rejected: %s", tx.GatewayRejectionReason),
			"braintree transaction rejected by gateway")
	}
	return nil, apperror.Wrap(apperror.CodeGateway,
		fmt.Errorf("status %s", tx.Status),
		"braintree transaction not captured")
}

// NewPaymentGateway picks the provider configured in GATEWAY_PROVIDER.
func NewPaymentGateway(cfg *config.Config) (PaymentGateway, error) {
	switch cfg.Gateway.Provider {
	case "", "http":
		return NewHTTPGateway(&cfg.Gateway), nil
	case "braintree":
		return NewBraintreeGateway(&cfg.BrainTree), nil
	default:
		return nil, fmt.Errorf("unsupported gateway provider %q", cfg.Gateway.Provider)
	}
}
