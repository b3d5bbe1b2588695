package dex

import (
	"math/big"
	"testing"
)

func TestToBaseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"1.5", 6, "1500000"},
		{"0.1234567", 6, "123456"},
		{"2", 18, "2000000000000000000"},
		{"", 18, "0"},
		{" 10 ", 0, "10"},
	}
	for _, tc := range cases {
		got, err := ToBaseUnits(tc.in, tc.decimals)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("%q: got %s want %s", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"-1", "abc", "1e"} {
		if _, err := ToBaseUnits(bad, 6); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(big.NewInt(1500000), 6); got != "1.5" {
		t.Fatalf("got %s", got)
	}
	if got := FormatAmount(nil, 6); got != "0" {
		t.Fatalf("got %s", got)
	}
}

func TestPriceString(t *testing.T) {
	one := new(big.Int).Lsh(big.NewInt(1), 96)
	if got := PriceString(one, 18, 18); got != "1" {
		t.Fatalf("equal decimals: got %s", got)
	}
	// 1 raw unit of an 18-decimal token per raw unit of a 6-decimal token
	if got := PriceString(one, 18, 6); got != "1000000000000" {
		t.Fatalf("decimal adjust: got %s", got)
	}
	two := new(big.Int).Lsh(big.NewInt(1), 97)
	if got := PriceString(two, 6, 6); got != "4" {
		t.Fatalf("sqrt 2: got %s", got)
	}
}

func TestSlippage(t *testing.T) {
	bps, err := SlippageBps(0.5)
	if err != nil || bps != 50 {
		t.Fatalf("0.5%%: got %d %v", bps, err)
	}
	if _, err := SlippageBps(-1); err == nil {
		t.Fatalf("expected error for negative slippage")
	}
	if got := WithSlippage(big.NewInt(1000), 50); got.Int64() != 1005 {
		t.Fatalf("got %s", got)
	}
	if got := WithSlippage(big.NewInt(1), 50); got.Int64() != 2 {
		t.Fatalf("max should round up, got %s", got)
	}
	if got := WithSlippage(big.NewInt(0), 50); got.Sign() != 0 {
		t.Fatalf("zero stays zero, got %s", got)
	}
}
