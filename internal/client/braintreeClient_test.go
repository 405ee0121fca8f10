package client

import (
	"testing"

	"order-settlement/internal/apperror"

	"github.com/braintree-go/braintree-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionResult(t *testing.T) {
	tests := []struct {
		status   braintree.TransactionStatus
		captured bool
	}{
		{status: braintree.TransactionStatusSubmittedForSettlement, captured: true},
		{status: braintree.TransactionStatusSettling, captured: true},
		{status: braintree.TransactionStatusSettled, captured: true},
		{status: braintree.TransactionStatusAuthorized, captured: false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			result, err := transactionResult(&braintree.Transaction{Id: "bt_1", Status: tt.status})
			require.NoError(t, err)
			assert.Equal(t, "bt_1", result.TransactionID)
			assert.Equal(t, tt.captured, result.Captured)
		})
	}
}

func TestTransactionResult_Failures(t *testing.T) {
	for _, status := range []braintree.TransactionStatus{
		braintree.TransactionStatusProcessorDeclined,
		braintree.TransactionStatusGatewayRejected,
		braintree.TransactionStatusFailed,
		braintree.TransactionStatusVoided,
	} {
		t.Run(string(status), func(t *testing.T) {
			_, err := transactionResult(&braintree.Transaction{Id: "bt_1", Status: status})
			assert.True(t, apperror.Is(err, apperror.CodeGateway))
		})
	}
}
