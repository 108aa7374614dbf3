package app

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeFees_FlatSplit(t *testing.T) {
	tests := []struct {
		name         string
		price        string
		wantFee      string
		wantEarnings string
	}{
		{name: "round figure", price: "1000.00", wantFee: "150.00", wantEarnings: "850.00"},
		{name: "small listing", price: "50.00", wantFee: "7.50", wantEarnings: "42.50"},
		{name: "odd cents", price: "333.33", wantFee: "50.00", wantEarnings: "283.33"},
		{name: "single cent", price: "0.01", wantFee: "0.00", wantEarnings: "0.01"},
		{name: "repeating split", price: "99.99", wantFee: "15.00", wantEarnings: "84.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price := decimal.RequireFromString(tt.price)
			fees, err := ComputeFees(price)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fees.PlatformFee.StringFixed(2); got != tt.wantFee {
				t.Errorf("platform fee: got %s, want %s", got, tt.wantFee)
			}
			if got := fees.BreederEarnings.StringFixed(2); got != tt.wantEarnings {
				t.Errorf("breeder earnings: got %s, want %s", got, tt.wantEarnings)
			}
		})
	}
}

func TestComputeFees_SplitSumsToPrice(t *testing.T) {
	// fee + earnings must reconstruct the rounded price within one cent.
	prices := []string{"0.01", "1.00", "49.99", "50.00", "300.00", "301.00", "750.00", "751.00", "1000.00", "12345.67", "0.03"}
	tolerance := decimal.RequireFromString("0.01")

	for _, p := range prices {
		price := decimal.RequireFromString(p)
		fees, err := ComputeFees(price)
		if err != nil {
			t.Fatalf("price %s: unexpected error: %v", p, err)
		}
		sum := fees.PlatformFee.Add(fees.BreederEarnings)
		if sum.Sub(price.Round(2)).Abs().GreaterThan(tolerance) {
			t.Errorf("price %s: fee %s + earnings %s = %s drifts more than a cent",
				p, fees.PlatformFee, fees.BreederEarnings, sum)
		}
	}
}

func TestComputeFees_RejectsNonPositivePrice(t *testing.T) {
	for _, p := range []string{"0", "-1.00", "-0.01"} {
		if _, err := ComputeFees(decimal.RequireFromString(p)); err == nil {
			t.Errorf("price %s: expected error, got nil", p)
		}
	}
}

func TestFeesMatch(t *testing.T) {
	base, err := ComputeFees(decimal.RequireFromString("500.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	within := base
	within.PlatformFee = within.PlatformFee.Add(decimal.RequireFromString("0.01"))
	if !FeesMatch(base, within) {
		t.Error("expected one-cent drift to be tolerated")
	}

	beyond := base
	beyond.PlatformFee = beyond.PlatformFee.Add(decimal.RequireFromString("0.02"))
	if FeesMatch(base, beyond) {
		t.Error("expected two-cent drift to be rejected")
	}

	changed, err := ComputeFees(decimal.RequireFromString("800.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if FeesMatch(base, changed) {
		t.Error("expected fee splits from different prices to mismatch")
	}
}

func TestAmountToCents(t *testing.T) {
	tests := []struct {
		amount string
		want   int64
	}{
		{"1000.00", 100000},
		{"0.01", 1},
		{"19.99", 1999},
		{"150.005", 15001},
	}
	for _, tt := range tests {
		if got := AmountToCents(decimal.RequireFromString(tt.amount)); got != tt.want {
			t.Errorf("AmountToCents(%s): got %d, want %d", tt.amount, got, tt.want)
		}
	}
}
