package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier(t *testing.T) {
	const secret = "whsec_test"
	payload := []byte(`{"transactionId":"tx_1","state":"CONFIRMED","localId":"loc_1"}`)
	now := time.Unix(1_700_000_000, 0)

	v := NewVerifier(secret, 5*time.Minute)
	v.now = func() time.Time { return now }

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{name: "valid", header: Sign(payload, secret, now.Unix())},
		{name: "missing", header: "", want: ErrMissingSignature},
		{name: "garbage", header: "nonsense", want: ErrMalformedHeader},
		{name: "no signature", header: "t=1700000000", want: ErrMalformedHeader},
		{name: "wrong secret", header: Sign(payload, "other", now.Unix()), want: ErrSignatureInvalid},
		{name: "too old", header: Sign(payload, secret, now.Add(-10*time.Minute).Unix()), want: ErrTimestampExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(payload, tt.header)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestVerifyStored_IgnoresAge(t *testing.T) {
	const secret = "whsec_test"
	payload := []byte(`{}`)
	header := Sign(payload, secret, time.Now().Add(-48*time.Hour).Unix())

	v := NewVerifier(secret, time.Minute)
	assert.ErrorIs(t, v.Verify(payload, header), ErrTimestampExpired)
	assert.NoError(t, v.VerifyStored(payload, header))
	assert.ErrorIs(t, v.VerifyStored([]byte(`{"x":1}`), header), ErrSignatureInvalid)
}
