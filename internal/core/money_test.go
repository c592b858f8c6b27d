package core

import (
	"encoding/json"
	"math"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"0", 0, true},
		{".5", 50, true},
		{"1.005", 101, true}, // half-up rounding
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"-1.5", -150, true},
		{"-0.005", -1, true}, // away from zero
		{"+3", 300, true},
		{"1e2", 10000, true},
		{"29.16375", 2916, true},
		{"1e16", 1e18, true},
		{"abc", 0, false},
		{"1.٣", 0, false},
		{"٣", 0, false},
		{"1e20", 0, false},
		{"-1e20", 0, false},
		{"92233720368547758", 0, false},
		{"1.2.3", 0, false},
		{"-", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := []struct {
		m      Money
		plain  string
		signed string
	}{
		{Money{Cents: 0}, "0.00", "+0.00"},
		{Money{Cents: 4500}, "45.00", "+45.00"},
		{Money{Cents: 5}, "0.05", "+0.05"},
		{Money{Cents: -1250}, "-12.50", "-12.50"},
	}
	for _, tc := range cases {
		if got := tc.m.String(); got != tc.plain {
			t.Errorf("String(%d) = %q, want %q", tc.m.Cents, got, tc.plain)
		}
		if got := tc.m.Signed(); got != tc.signed {
			t.Errorf("Signed(%d) = %q, want %q", tc.m.Cents, got, tc.signed)
		}
	}
}

func TestMoneyMulRound(t *testing.T) {
	cases := []struct {
		m      int64
		factor float64
		want   int64
	}{
		{4500, 10, 45000},
		{4500, 7.5, 33750},
		{3333, 0.125, 417},
		{1, 0.5, 1},
		{-1, 0.5, -1},
		{100, 0, 0},
		{math.MaxInt64 / 2, 4, math.MaxInt64},
		{-4500, 1e18, math.MinInt64},
	}
	for _, tc := range cases {
		if got := (Money{Cents: tc.m}).MulRound(tc.factor).Cents; got != tc.want {
			t.Errorf("%d * %v = %d, want %d", tc.m, tc.factor, got, tc.want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Money `json:"a"`
	}{Money{Cents: 4500}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"a":45.00}` {
		t.Fatalf("unexpected encoding: %s", b)
	}

	var got struct {
		A Money `json:"a"`
		B Money `json:"b"`
		C Money `json:"c"`
		D Money `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"a":45,"b":"12,5","c":null,"d":29.16375}`), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.A.Cents != 4500 || got.B.Cents != 1250 || got.C.Cents != 0 || got.D.Cents != 2916 {
		t.Fatalf("unexpected values: %+v", got)
	}
	if err := json.Unmarshal([]byte(`{"a":"lots"}`), &got); err == nil {
		t.Fatalf("expected error for non-numeric string")
	}
	if err := json.Unmarshal([]byte(`{"a":1e20}`), &got); err == nil {
		t.Fatalf("expected error for out-of-range amount, got %d", got.A.Cents)
	}
}

func TestMoneyAddSubSaturate(t *testing.T) {
	hi := Money{Cents: math.MaxInt64}
	lo := Money{Cents: math.MinInt64}
	one := Money{Cents: 1}
	cases := []struct {
		name string
		got  Money
		want int64
	}{
		{"add", Money{Cents: 150}.Add(Money{Cents: -50}), 100},
		{"sub", Money{Cents: 150}.Sub(Money{Cents: 200}), -50},
		{"add overflow", hi.Add(one), math.MaxInt64},
		{"add underflow", lo.Add(Money{Cents: -1}), math.MinInt64},
		{"sub underflow", lo.Sub(one), math.MinInt64},
		{"sub overflow", hi.Sub(Money{Cents: -1}), math.MaxInt64},
		{"sub min", Money{}.Sub(lo), math.MaxInt64},
	}
	for _, tc := range cases {
		if tc.got.Cents != tc.want {
			t.Errorf("%s = %d, want %d", tc.name, tc.got.Cents, tc.want)
		}
	}
}

func TestFromFloat(t *testing.T) {
	if got := FromFloat(-3.5).Cents; got != -350 {
		t.Fatalf("FromFloat(-3.5) = %d, want -350", got)
	}
	if got := FromFloat(12.34).Cents; got != 1234 {
		t.Fatalf("FromFloat(12.34) = %d, want 1234", got)
	}
}
