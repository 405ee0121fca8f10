package model

// GatewayState is the transaction state reported by the payment gateway.
type GatewayState string

const (
	GatewayStateConfirmed GatewayState = "CONFIRMED"
	GatewayStateFailed    GatewayState = "FAILED"
	GatewayStateCancelled GatewayState = "CANCELLED"
	GatewayStateExpired   GatewayState = "EXPIRED"
)

// GatewayNotification is the inbound webhook payload.
type GatewayNotification struct {
	EventID       string       `json:"eventId"`
	TransactionID string       `json:"transactionId"`
	State         GatewayState `json:"state"`
	LocalID       string       `json:"localId"`
	OrderID       string       `json:"orderId,omitempty"`
}

type GatewayTransactionRequest struct {
	AmountMinorUnits   int64  `json:"amountMinorUnits"`
	Currency           string `json:"currency"`
	LocalCorrelationID string `json:"localId"`
	CallbackURL        string `json:"callbackUrl,omitempty"`

	// PaymentMethodToken is only used by vaulted-card providers.
	PaymentMethodToken string `json:"-"`
}

type GatewayTransaction struct {
	TransactionID string `json:"transactionId"`
	PaymentURL    string `json:"paymentUrl"`
	// Captured is set when the gateway settled the money synchronously and will not
	// send a CONFIRMED notification.
	Captured bool `json:"captured,omitempty"`
}
