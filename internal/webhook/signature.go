// Package webhook implements the gateway's webhook signature scheme.
//
// The signature header format is:
//
//	X-Gateway-Signature: t={timestamp},v1={signature}
//
// Where signature = hex(HMAC-SHA256(secret, "{timestamp}.{payload}")).
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const SignatureHeader = "X-Gateway-Signature"

var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrMalformedHeader  = errors.New("malformed signature header")
	ErrSignatureInvalid = errors.New("signature does not match payload")
	ErrTimestampExpired = errors.New("signature timestamp outside tolerance")
)

type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier builds a verifier. A zero tolerance disables the timestamp check.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{secret: secret, tolerance: tolerance, now: time.Now}
}

// Verify checks the header against payload, including the timestamp tolerance.
func (v *Verifier) Verify(payload []byte, header string) error {
	return v.verify(payload, header, true)
}

// VerifyStored checks only the MAC; used when re-driving a stored notification.
func (v *Verifier) VerifyStored(payload []byte, header string) error {
	return v.verify(payload, header, false)
}

func (v *Verifier) verify(payload []byte, header string, checkAge bool) error {
	if header == "" {
		return ErrMissingSignature
	}
	timestamp, signatures, err := parseHeader(header)
	if err != nil {
		return err
	}

	expected := ComputeSignature(timestamp, payload, v.secret)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return ErrSignatureInvalid
	}

	if checkAge && v.tolerance > 0 {
		age := v.now().Sub(time.Unix(timestamp, 0))
		if age > v.tolerance || age < -v.tolerance {
			return ErrTimestampExpired
		}
	}
	return nil
}

func parseHeader(header string) (int64, []string, error) {
	var (
		timestamp  int64
		signatures []string
		haveTime   bool
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, nil, ErrMalformedHeader
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrMalformedHeader)
			}
			timestamp, haveTime = ts, true
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if !haveTime || len(signatures) == 0 {
		return 0, nil, ErrMalformedHeader
	}
	return timestamp, signatures, nil
}

// Sign produces the header value for payload; used by tests and local tooling.
func Sign(payload []byte, secret string, timestamp int64) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, ComputeSignature(timestamp, payload, secret))
}

func ComputeSignature(timestamp int64, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
