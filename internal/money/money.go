// Package money implements a non-negative minor-unit currency amount.
//
// Every discount computation in the service goes through this type so that
// rounding is always a floor and never over-charges the customer.
package money

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"order-settlement/internal/apperror"

	"github.com/shopspring/decimal"
)

const basisPointsScale = 10000

// minorUnitExponent is the number of minor units digits for the supported currencies.
const minorUnitExponent = 2

type Money struct {
	amount   int64
	currency string
}

func New(amountMinor int64, currency string) (Money, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return Money{}, apperror.Validation("currency is required")
	}
	if amountMinor < 0 {
		return Money{}, apperror.Newf(apperror.CodeValidation, "amount must not be negative: %d", amountMinor)
	}
	return Money{amount: amountMinor, currency: currency}, nil
}

func Zero(currency string) Money {
	return Money{currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// FromMajorUnits parses a decimal string such as "12.34" into minor units.
// Digits beyond the minor unit are floored.
func FromMajorUnits(major string, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(major))
	if err != nil {
		return Money{}, apperror.Wrap(apperror.CodeValidation, err, "invalid amount")
	}
	return FromDecimalFloor(d.Shift(minorUnitExponent), currency)
}

// FromDecimalFloor floors a decimal amount already expressed in minor units.
func FromDecimalFloor(minor decimal.Decimal, currency string) (Money, error) {
	if minor.IsNegative() {
		return Money{}, apperror.Newf(apperror.CodeValidation, "amount must not be negative: %s", minor.String())
	}
	floored := minor.Floor()
	if floored.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return Money{}, apperror.Validation("amount overflows")
	}
	return New(floored.IntPart(), currency)
}

func (m Money) Amount() int64 {
	return m.amount
}

func (m Money) Currency() string {
	return m.currency
}

func (m Money) IsZero() bool {
	return m.amount == 0
}

// Major renders the amount in major units, e.g. "12.34".
func (m Money) Major() string {
	return decimal.New(m.amount, -minorUnitExponent).StringFixed(minorUnitExponent)
}

func (m Money) String() string {
	return m.Major() + " " + m.currency
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return apperror.Newf(apperror.CodeValidation, "currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return nil
}

func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	if m.amount > math.MaxInt64-other.amount {
		return Money{}, apperror.Validation("amount overflows")
	}
	return Money{amount: m.amount + other.amount, currency: m.currency}, nil
}

// Subtract never goes below zero.
func (m Money) Subtract(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	if other.amount >= m.amount {
		return Money{currency: m.currency}, nil
	}
	return Money{amount: m.amount - other.amount, currency: m.currency}, nil
}

func (m Money) Multiply(n int64) (Money, error) {
	if n < 0 {
		return Money{}, apperror.Newf(apperror.CodeValidation, "multiplier must not be negative: %d", n)
	}
	if n != 0 && m.amount > math.MaxInt64/n {
		return Money{}, apperror.Validation("amount overflows")
	}
	return Money{amount: m.amount * n, currency: m.currency}, nil
}

// PercentageOf returns floor(amount * basisPoints / 10000).
func (m Money) PercentageOf(basisPoints int64) (Money, error) {
	if basisPoints < 0 {
		return Money{}, apperror.Newf(apperror.CodeValidation, "basis points must not be negative: %d", basisPoints)
	}
	whole := m.amount / basisPointsScale
	rest := m.amount % basisPointsScale
	if whole != 0 && basisPoints > math.MaxInt64/whole {
		return Money{}, apperror.Validation("amount overflows")
	}
	return Money{
		amount:   whole*basisPoints + rest*basisPoints/basisPointsScale,
		currency: m.currency,
	}, nil
}

func (m Money) Min(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	if other.amount < m.amount {
		return other, nil
	}
	return m, nil
}

func (m Money) Max(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	if other.amount > m.amount {
		return other, nil
	}
	return m, nil
}

type jsonMoney struct {
	AmountMinorUnits int64  `json:"amountMinorUnits"`
	Currency         string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonMoney{AmountMinorUnits: m.amount, Currency: m.currency})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw jsonMoney
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode money: %w", err)
	}
	parsed, err := New(raw.AmountMinorUnits, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
