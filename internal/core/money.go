// Package core provides money parsing and handling utilities.
//
// Amounts are kept as exact decimals so that summing many records never
// accumulates binary floating point error. Rounding to two places is a
// presentation concern and happens only through Rounded.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a non-currency-aware decimal amount.
type Money struct {
	Value decimal.Decimal
}

// NewMoney wraps a decimal value.
func NewMoney(d decimal.Decimal) Money {
	return Money{Value: d}
}

// MustMoney parses s and panics on failure. Intended for constants and tests.
func MustMoney(s string) Money {
	return Money{Value: decimal.RequireFromString(s)}
}

// ParseAmount converts a user supplied decimal string to Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. The
// result keeps full precision and must be strictly positive.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-1")    -> error
//	ParseAmount("0")     -> error
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m := Money{Value: d}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

func (m Money) Validate() error {
	if !m.Value.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money {
	return Money{Value: m.Value.Add(o.Value)}
}

// Div divides by n; dividing by zero yields zero.
func (m Money) Div(n int) Money {
	if n == 0 {
		return Money{}
	}
	return Money{Value: m.Value.Div(decimal.NewFromInt(int64(n)))}
}

func (m Money) Cmp(o Money) int {
	return m.Value.Cmp(o.Value)
}

func (m Money) IsZero() bool {
	return m.Value.IsZero()
}

// Rounded returns m rounded half away from zero to two decimal places.
func (m Money) Rounded() Money {
	return Money{Value: m.Value.Round(2)}
}

func (m Money) String() string {
	return m.Value.String()
}

// MarshalJSON encodes the amount as a bare JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Value.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	m.Value = d
	return nil
}
