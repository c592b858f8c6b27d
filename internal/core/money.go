// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings,
// rounding derived figures to whole cents and encoding money on the wire.
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is a decimal amount held as integer cents.
type Money struct {
	Cents int64
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, an optional
// leading minus sign, and rounds half away from zero on the third decimal place.
// Exponent notation (1e2) is accepted for values coming out of JSON documents.
//
// Examples:
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,34")  -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil (rounds up)
//	ParseDecimalToCents("-0.005") -> -1, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, ErrInvalidAmount
		}
		if math.Abs(f*100) >= maxCentsFloat {
			return 0, ErrInvalidAmount
		}
		return roundCents(f * 100), nil
	}

	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return 0, ErrInvalidAmount
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return 0, ErrInvalidAmount
		}
	}

	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64-1 {
		return 0, ErrInvalidAmount
	}

	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if neg {
		cents = -cents
	}
	return cents, nil
}

// ParseMoney parses a user-entered decimal amount.
func ParseMoney(s string) (Money, error) {
	cents, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents}, nil
}

// FromFloat converts a float amount to money, rounding to whole cents.
func FromFloat(f float64) Money {
	return Money{Cents: roundCents(f * 100)}
}

// maxCentsFloat is 2^63, the first float64 outside the int64 range.
const maxCentsFloat = float64(math.MaxInt64)

// roundCents rounds half away from zero, saturating at the int64 range.
func roundCents(f float64) int64 {
	r := math.Round(f)
	switch {
	case math.IsNaN(r):
		return 0
	case r >= maxCentsFloat:
		return math.MaxInt64
	case r <= -maxCentsFloat:
		return math.MinInt64
	}
	return int64(r)
}

// MulRound multiplies by a factor and rounds half away from zero to cents.
// Products outside the int64 range saturate.
func (m Money) MulRound(factor float64) Money {
	if math.IsNaN(factor) || math.IsInf(factor, 0) {
		return Money{}
	}
	return Money{Cents: roundCents(float64(m.Cents) * factor)}
}

// Add and Sub saturate instead of wrapping around.
func (m Money) Add(o Money) Money {
	s := m.Cents + o.Cents
	if (s > m.Cents) != (o.Cents > 0) {
		if o.Cents > 0 {
			return Money{Cents: math.MaxInt64}
		}
		return Money{Cents: math.MinInt64}
	}
	return Money{Cents: s}
}

func (m Money) Sub(o Money) Money {
	d := m.Cents - o.Cents
	if (d < m.Cents) != (o.Cents > 0) {
		if o.Cents > 0 {
			return Money{Cents: math.MinInt64}
		}
		return Money{Cents: math.MaxInt64}
	}
	return Money{Cents: d}
}

// Float returns the value as a float64 for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

// String formats the amount with two decimals, e.g. "45.00" or "-12.50".
func (m Money) String() string {
	c := m.Cents
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// Signed formats the amount with an explicit sign, as the summary panel shows it.
func (m Money) Signed() string {
	if m.Cents < 0 {
		return m.String()
	}
	return "+" + m.String()
}

// MarshalJSON writes a plain JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts numbers, numeric strings and null.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = Money{}
		return nil
	}
	var raw string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		if strings.TrimSpace(raw) == "" {
			*m = Money{}
			return nil
		}
	} else {
		raw = string(b)
	}
	cents, err := ParseDecimalToCents(raw)
	if err != nil {
		return fmt.Errorf("invalid money value %q: %w", raw, err)
	}
	m.Cents = cents
	return nil
}
